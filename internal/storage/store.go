// Package storage はコメントウィジェットの永続化層を提供する。
// 3つのバックエンド（ローカルファイル+メモリ、リモートKV、GitHubリポジトリファイル）を
// 単一のStoreインターフェースの背後に隠蔽し、起動時の設定でバックエンドを選択する。
// リモートバックエンドの障害は呼び出し元に伝播させず、ミラー/キャッシュのデータへ
// 縮退してログにのみ記録する。
package storage

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/Mimi-by-typh/lukavaka/internal/config"
	"github.com/Mimi-by-typh/lukavaka/internal/metrics"
	"github.com/Mimi-by-typh/lukavaka/internal/model"
)

// Store はバックエンドに依存しないドキュメントストアの契約。
// 未検出はエラーではなくnil結果で表現する。リモート障害はここまで到達しない。
type Store interface {
	// コメント
	GetComments(ctx context.Context) ([]model.Comment, error)
	SaveComments(ctx context.Context, comments []model.Comment) error
	AddComment(ctx context.Context, comment model.Comment) error
	DeleteCommentByID(ctx context.Context, id int64) (*model.Comment, error)

	// ユーザー
	GetUser(ctx context.Context, userID string) (*model.User, error)
	SaveUser(ctx context.Context, user *model.User) error
	UpdateUserProfile(ctx context.Context, userID string, updates model.ProfileUpdate) (*model.User, error)
	AddUserIP(ctx context.Context, userID, ip string) error
	GetAllUsers(ctx context.Context) ([]model.User, error)
	BanUser(ctx context.Context, userID string) error
	UnbanUser(ctx context.Context, userID string) error
	IsUserBanned(ctx context.Context, userID string) (bool, error)

	// 管理者メール
	GetAdminEmails(ctx context.Context) ([]string, error)
	AddAdminEmail(ctx context.Context, email string) error
	IsAdmin(ctx context.Context, email string) (bool, error)

	// ロール
	GetAllRoles(ctx context.Context) ([]model.Role, error)
	SaveRoles(ctx context.Context, roles []model.Role) error
	CreateRole(ctx context.Context, input model.RoleInput) (*model.Role, error)
	UpdateRole(ctx context.Context, roleID string, updates model.RoleUpdate) (*model.Role, error)
	DeleteRole(ctx context.Context, roleID string) error

	// ユーザーロール割り当て
	GetUserRoles(ctx context.Context) (map[string][]string, error)
	SaveUserRoles(ctx context.Context, userRoles map[string][]string) error
	AssignRoleToUser(ctx context.Context, userID, roleID string) error
	RemoveRoleFromUser(ctx context.Context, userID, roleID string) error
	GetUserRolesList(ctx context.Context, userID string) ([]model.Role, error)
	GetUserMainRole(ctx context.Context, userID string) (*model.Role, error)
	UpdateUserPrefix(ctx context.Context, userID string, prefix, prefixColor *string) error

	// ウィジェット設定
	GetWidgetSettings(ctx context.Context) (*model.WidgetSettings, error)
	SaveWidgetSettings(ctx context.Context, updates *model.WidgetSettingsUpdate) (*model.WidgetSettings, error)

	// オンラインセッション
	GetOnlineSessions(ctx context.Context) (map[string]model.OnlineSession, error)
	SaveOnlineSessions(ctx context.Context, sessions map[string]model.OnlineSession) error
	UpdateOnlineSession(ctx context.Context, sessionID, userID string, timestamp int64) error
	RemoveOnlineSession(ctx context.Context, sessionID string) error
}

// New は設定に基づいてバックエンドを選択し、初期化済みのStoreを返す。
// GitHubトークンが存在すればGitHubバックエンドを排他的に選択する。
// それ以外はローカルバックエンドを選択し、KV認証情報があればKVを併用する。
// 初期化中のリモート障害はログに記録され、Storeは常に利用可能な状態で返る。
func New(ctx context.Context, cfg *config.Config, httpClient *http.Client, logger *slog.Logger, collector metrics.MetricsCollector) Store {
	if cfg.UseGitHub() {
		logger.Info("GitHubバックエンドを選択しました",
			slog.String("repo", cfg.GitHubRepo),
			slog.String("data_file", cfg.GitHubDataFile),
		)
		return NewGitHubStore(cfg, httpClient, logger, collector)
	}

	var kv *KVClient
	if cfg.UseKV() {
		kv = NewKVClient(cfg.KVRestAPIURL, cfg.KVRestAPIToken, httpClient, logger)
		logger.Info("リモートKVバックエンドを併用します", slog.String("url", cfg.KVRestAPIURL))
	} else {
		logger.Warn("KVが未設定のためローカルファイルストレージを使用します")
	}

	return NewLocalStore(ctx, cfg, kv, logger, collector)
}

// document はストア全体の永続化ドキュメント。
// ローカルバックエンドではこの構造がまるごとJSONファイルに書き出され、
// GitHubバックエンドでは1つのファイルリビジョンとしてプッシュされる。
type document struct {
	Comments       []model.Comment                `json:"comments"`
	Users          map[string]*model.User         `json:"users"`
	OnlineSessions map[string]model.OnlineSession `json:"onlineSessions"`
	AdminEmails    []string                       `json:"adminEmails"`
	Roles          []model.Role                   `json:"roles"`
	UserRoles      map[string][]string            `json:"userRoles"`
	WidgetSettings *model.WidgetSettings          `json:"widgetSettings,omitempty"`
}

// newDocument は空のドキュメントを生成する。
func newDocument() *document {
	return &document{
		Comments:       []model.Comment{},
		Users:          map[string]*model.User{},
		OnlineSessions: map[string]model.OnlineSession{},
		AdminEmails:    []string{},
		Roles:          []model.Role{},
		UserRoles:      map[string][]string{},
	}
}

// ensureAdminEmail はデフォルト管理者メールが集合に含まれることを保証する（自己修復）。
// 追加が発生した場合はtrueを返す。
func (d *document) ensureAdminEmail(defaultAdmin string) bool {
	defaultAdmin = strings.ToLower(defaultAdmin)
	for _, e := range d.AdminEmails {
		if e == defaultAdmin {
			return false
		}
	}
	d.AdminEmails = append(d.AdminEmails, defaultAdmin)
	return true
}

// hasAdminEmail はメールアドレスが管理者集合に含まれるかを返す（大文字小文字は区別しない）。
func (d *document) hasAdminEmail(email string) bool {
	email = strings.ToLower(email)
	for _, e := range d.AdminEmails {
		if e == email {
			return true
		}
	}
	return false
}

// deleteCommentByID は一致するIDのコメントを取り除いて返す。未検出時はnil。
func (d *document) deleteCommentByID(id int64) *model.Comment {
	for i, c := range d.Comments {
		if c.ID == id {
			deleted := c
			d.Comments = append(d.Comments[:i], d.Comments[i+1:]...)
			return &deleted
		}
	}
	return nil
}

// upsertUser はユーザーをドキュメントに保存する。
// 新規の場合のみCreatedAtを設定し、常にUpdatedAtを更新する。
func (d *document) upsertUser(user *model.User, now time.Time) {
	if d.Users == nil {
		d.Users = map[string]*model.User{}
	}
	if existing, ok := d.Users[user.ID]; !ok || existing == nil {
		if user.CreatedAt.IsZero() {
			user.CreatedAt = now
		}
		if user.IPAddresses == nil {
			user.IPAddresses = []string{}
		}
	}
	user.UpdatedAt = now
	d.Users[user.ID] = user
}

// applyProfile はプロフィール部分更新を適用する。ユーザーが存在しなければ新規作成する。
func (d *document) applyProfile(userID string, updates model.ProfileUpdate, now time.Time) *model.User {
	user := d.Users[userID]
	if user == nil {
		user = &model.User{
			ID:          userID,
			Username:    "User",
			CreatedAt:   now,
			IPAddresses: []string{},
		}
	}
	if updates.Username != nil {
		user.Username = *updates.Username
	}
	if updates.Avatar != nil {
		user.Avatar = *updates.Avatar
	}
	if updates.Email != nil {
		user.Email = *updates.Email
	}
	d.upsertUser(user, now)
	return user
}

// sortedUsers は全ユーザーをCreatedAt（なければUpdatedAt）の降順で返す。
func (d *document) sortedUsers() []model.User {
	users := make([]model.User, 0, len(d.Users))
	for _, u := range d.Users {
		if u != nil {
			users = append(users, *u)
		}
	}
	sort.Slice(users, func(i, j int) bool {
		return userSortTime(&users[i]).After(userSortTime(&users[j]))
	})
	return users
}

func userSortTime(u *model.User) time.Time {
	if !u.CreatedAt.IsZero() {
		return u.CreatedAt
	}
	return u.UpdatedAt
}

// findRole は一致するIDのロールのインデックスを返す。未検出時は-1。
func (d *document) findRole(roleID string) int {
	for i := range d.Roles {
		if d.Roles[i].ID == roleID {
			return i
		}
	}
	return -1
}

// removeRoleEverywhere はロールをロール一覧と全ユーザーの割り当てから取り除く（カスケード削除）。
func (d *document) removeRoleEverywhere(roleID string) {
	if i := d.findRole(roleID); i >= 0 {
		d.Roles = append(d.Roles[:i], d.Roles[i+1:]...)
	}
	for userID, roleIDs := range d.UserRoles {
		filtered := roleIDs[:0]
		for _, rid := range roleIDs {
			if rid != roleID {
				filtered = append(filtered, rid)
			}
		}
		d.UserRoles[userID] = filtered
	}
}

// rolesForUser はユーザーに割り当てられたロールをpriority降順で返す。
func (d *document) rolesForUser(userID string) []model.Role {
	roleIDs := d.UserRoles[userID]
	if len(roleIDs) == 0 {
		return []model.Role{}
	}
	assigned := make(map[string]bool, len(roleIDs))
	for _, rid := range roleIDs {
		assigned[rid] = true
	}
	roles := make([]model.Role, 0, len(roleIDs))
	for _, r := range d.Roles {
		if assigned[r.ID] {
			roles = append(roles, r)
		}
	}
	sort.SliceStable(roles, func(i, j int) bool {
		return roles[i].Priority > roles[j].Priority
	})
	return roles
}

// applyRoleUpdate はロール部分更新を適用する。nilのフィールドは変更しない。
func applyRoleUpdate(role *model.Role, updates model.RoleUpdate, now time.Time) {
	if updates.Name != nil {
		role.Name = *updates.Name
	}
	if updates.Color != nil {
		role.Color = *updates.Color
	}
	if updates.Icon != nil {
		role.Icon = updates.Icon
	}
	if updates.Permissions != nil {
		role.Permissions = *updates.Permissions
	}
	if updates.IsDisplaySeparate != nil {
		role.IsDisplaySeparate = *updates.IsDisplaySeparate
	}
	if updates.Priority != nil {
		role.Priority = *updates.Priority
	}
	role.UpdatedAt = &now
}

// copyComments はコメント一覧の複製を返す。
// 呼び出し元がミラーを直接書き換えられないようにする（所有権はファサードが持つ）。
func copyComments(comments []model.Comment) []model.Comment {
	out := make([]model.Comment, len(comments))
	copy(out, comments)
	return out
}

// copySessions はセッションマップの複製を返す。
func copySessions(sessions map[string]model.OnlineSession) map[string]model.OnlineSession {
	out := make(map[string]model.OnlineSession, len(sessions))
	for k, v := range sessions {
		out[k] = v
	}
	return out
}

// copyStrings は文字列スライスの複製を返す。
func copyStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}

// copyUserRoles はユーザーロール割り当てマップの複製を返す。
func copyUserRoles(in map[string][]string) map[string][]string {
	out := make(map[string][]string, len(in))
	for k, v := range in {
		out[k] = copyStrings(v)
	}
	return out
}
