package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/Mimi-by-typh/lukavaka/internal/config"
	"github.com/Mimi-by-typh/lukavaka/internal/metrics"
	"github.com/Mimi-by-typh/lukavaka/internal/model"
)

// dbFileName はローカルバックアップファイルの名前。
const dbFileName = "db.json"

var _ Store = (*LocalStore)(nil)

// LocalStore はインメモリミラー + ローカルJSONファイル + オプションのリモートKVからなる
// ローカルバックエンド。
//
// 一貫性ポリシー: KVが設定されている場合はKVが信頼できるソースとなり、
// 読み取りはまずKVを試み、失敗時はミラーへフォールバックする。
// KVからの読み取り成功はミラーを更新しディスクへ書き戻す。
// 書き込みは常にミラーとディスクを無条件に更新した後、KVへの書き込みを試みる。
// KV障害はログに記録されるが操作を失敗させない（プロセス存続中はミラーが正となる）。
//
// ミューテックスは各操作のread-modify-writeサイクル全体を保護する。
// KV呼び出し中もロックを保持するため、リモート遅延はHTTPクライアントの
// タイムアウトで上限が決まる。
type LocalStore struct {
	mu  sync.Mutex
	doc *document

	kv       *KVClient
	dbFile   string
	skipDisk bool

	defaultAdmin string
	logger       *slog.Logger
	metrics      metrics.MetricsCollector

	// テスト用に現在時刻を差し替え可能
	now func() time.Time
}

// NewLocalStore はLocalStoreを生成し、起動時の同期パスを実行する。
// ディスクの状態を読み込んだ後、KVが到達可能であればKVの状態を上書きロードする
// （ユーザーはキー単位で個別に走査する）。KVが未設定の場合はデモコメントと
// デフォルト管理者メールを初期投入する。同期中の障害はログにのみ記録される。
func NewLocalStore(ctx context.Context, cfg *config.Config, kv *KVClient, logger *slog.Logger, collector metrics.MetricsCollector) *LocalStore {
	s := &LocalStore{
		doc:          newDocument(),
		kv:           kv,
		dbFile:       filepath.Join(cfg.DataDir, dbFileName),
		skipDisk:     config.IsServerless() && kv != nil,
		defaultAdmin: cfg.AdminEmail,
		logger:       logger,
		metrics:      collector,
		now:          time.Now,
	}

	if !s.skipDisk {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			logger.Error("データディレクトリの作成に失敗しました",
				slog.String("dir", cfg.DataDir),
				slog.String("error", err.Error()),
			)
		}
	}

	s.loadFromDisk()

	if s.kv != nil {
		s.syncFromKV(ctx)
	} else {
		s.seedDefaults()
	}

	return s
}

// loadFromDisk はローカルJSONファイルからミラーを復元する。
func (s *LocalStore) loadFromDisk() {
	if s.skipDisk {
		return
	}

	data, err := os.ReadFile(s.dbFile)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) && !errors.Is(err, syscall.EROFS) {
			s.logger.Error("ローカルDBの読み込みに失敗しました", slog.String("error", err.Error()))
		}
		return
	}

	if err := json.Unmarshal(data, s.doc); err != nil {
		s.logger.Error("ローカルDBのパースに失敗しました", slog.String("error", err.Error()))
		return
	}
	s.logger.Info("ローカルDBからデータを読み込みました", slog.String("file", s.dbFile))
}

// saveToDisk はミラー全体をローカルJSONファイルへ書き出す。
// 読み取り専用ファイルシステムでは警告を出してスキップする（ベストエフォート）。
func (s *LocalStore) saveToDisk() {
	if s.skipDisk {
		return
	}

	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		s.logger.Error("ローカルDBのシリアライズに失敗しました", slog.String("error", err.Error()))
		return
	}

	if err := os.WriteFile(s.dbFile, data, 0o644); err != nil {
		if errors.Is(err, syscall.EROFS) || errors.Is(err, fs.ErrPermission) {
			s.logger.Warn("ローカルDBの保存をスキップしました（読み取り専用ファイルシステム）")
			return
		}
		s.logger.Error("ローカルDBの保存に失敗しました", slog.String("error", err.Error()))
	}
}

// syncFromKV は起動時にKVの状態をミラーへ上書きロードする。
// ユーザーはコレクション単位の取得APIがないためキーを個別に走査する。
func (s *LocalStore) syncFromKV(ctx context.Context) {
	var comments []model.Comment
	if s.kvGet(ctx, kvKeyComments, &comments) {
		s.doc.Comments = comments
	}

	var sessions map[string]model.OnlineSession
	if s.kvGet(ctx, kvKeyOnlineSessions, &sessions) {
		s.doc.OnlineSessions = sessions
	}

	var admins []string
	if s.kvGet(ctx, kvKeyAdminEmails, &admins) {
		s.doc.AdminEmails = admins
	}

	var roles []model.Role
	if s.kvGet(ctx, kvKeyRoles, &roles) {
		s.doc.Roles = roles
	}

	var userRoles map[string][]string
	if s.kvGet(ctx, kvKeyUserRoles, &userRoles) {
		s.doc.UserRoles = userRoles
	}

	var settings model.WidgetSettings
	if s.kvGet(ctx, kvKeyWidgetSettings, &settings) {
		s.doc.WidgetSettings = &settings
	}

	keys, err := s.kv.Keys(ctx, kvKeyUsersPrefix+":*")
	if err != nil {
		s.metrics.RecordKVError("keys")
		s.logger.Error("KVからのユーザーキー取得に失敗しました", slog.String("error", err.Error()))
	} else {
		for _, key := range keys {
			var user model.User
			if s.kvGet(ctx, key, &user) && user.ID != "" {
				u := user
				s.doc.Users[user.ID] = &u
			}
		}
		s.logger.Info("KVからユーザーを同期しました", slog.Int("count", len(s.doc.Users)))
	}

	s.saveToDisk()
}

// seedDefaults はKV未設定時の初期データを投入する。
func (s *LocalStore) seedDefaults() {
	if len(s.doc.Comments) == 0 {
		now := s.now()
		s.doc.Comments = []model.Comment{
			{
				ID:     now.Add(-time.Hour).UnixMilli(),
				Author: "Demo User",
				Avatar: "https://picsum.photos/seed/demo1/40/40.jpg",
				Text:   "Отличный сайт! Очень атмосферный дизайн.",
				Date:   now.Add(-time.Hour),
				UserID: "demo1",
				Status: model.CommentStatusPublished,
			},
			{
				ID:     now.Add(-2 * time.Hour).UnixMilli(),
				Author: "Visitor",
				Avatar: "https://picsum.photos/seed/demo2/40/40.jpg",
				Text:   "Визуальные эффекты просто потрясающие!",
				Date:   now.Add(-2 * time.Hour),
				UserID: "demo2",
				Status: model.CommentStatusPublished,
			},
		}
	}
	s.doc.ensureAdminEmail(s.defaultAdmin)
	s.saveToDisk()
}

// kvGet はKVからの読み取りを試みる。障害はログとメトリクスに記録し、falseを返す。
// 呼び出し元はfalse時にミラーのデータへフォールバックする。
func (s *LocalStore) kvGet(ctx context.Context, key string, dest any) bool {
	if s.kv == nil {
		return false
	}
	found, err := s.kv.Get(ctx, key, dest)
	if err != nil {
		s.metrics.RecordKVError("get")
		s.logger.Error("KVからの読み取りに失敗しました",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return false
	}
	return found
}

// kvSet はKVへの書き込みを試みる（ベストエフォート）。
// 障害はログとメトリクスに記録されるが操作は失敗しない。
func (s *LocalStore) kvSet(ctx context.Context, key string, value any) {
	if s.kv == nil {
		return
	}
	if err := s.kv.Set(ctx, key, value); err != nil {
		s.metrics.RecordKVError("set")
		s.logger.Error("KVへの書き込みに失敗しました",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

// refreshComments はKVからコメント一覧をミラーへ読み込む。ロック保持中に呼ぶこと。
func (s *LocalStore) refreshComments(ctx context.Context) {
	var comments []model.Comment
	if s.kvGet(ctx, kvKeyComments, &comments) {
		s.doc.Comments = comments
		s.saveToDisk()
	}
}

// persistComments はミラーのコメント一覧をディスクとKVへ書き出す。ロック保持中に呼ぶこと。
func (s *LocalStore) persistComments(ctx context.Context) {
	s.saveToDisk()
	s.kvSet(ctx, kvKeyComments, s.doc.Comments)
}

// GetComments はコメント一覧を返す。
func (s *LocalStore) GetComments(ctx context.Context) ([]model.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refreshComments(ctx)
	return copyComments(s.doc.Comments), nil
}

// SaveComments はコメント一覧をまるごと置き換える。
func (s *LocalStore) SaveComments(ctx context.Context, comments []model.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.doc.Comments = copyComments(comments)
	s.persistComments(ctx)
	return nil
}

// AddComment はコメントを先頭に追加する。
func (s *LocalStore) AddComment(ctx context.Context, comment model.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refreshComments(ctx)
	s.doc.Comments = append([]model.Comment{comment}, s.doc.Comments...)
	s.persistComments(ctx)
	return nil
}

// DeleteCommentByID はIDが一致するコメントを削除して返す。未検出時はnil。
func (s *LocalStore) DeleteCommentByID(ctx context.Context, id int64) (*model.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refreshComments(ctx)
	deleted := s.doc.deleteCommentByID(id)
	if deleted == nil {
		return nil, nil
	}
	s.persistComments(ctx)
	return deleted, nil
}

// refreshUser はKVからユーザーをミラーへ読み込む。ロック保持中に呼ぶこと。
func (s *LocalStore) refreshUser(ctx context.Context, userID string) {
	var user model.User
	if s.kvGet(ctx, userKey(userID), &user) && user.ID != "" {
		u := user
		s.doc.Users[user.ID] = &u
		s.saveToDisk()
	}
}

// persistUser はミラーのユーザーをディスクとKVへ書き出す。ロック保持中に呼ぶこと。
func (s *LocalStore) persistUser(ctx context.Context, user *model.User) {
	s.saveToDisk()
	s.kvSet(ctx, userKey(user.ID), user)
}

// GetUser はユーザーを返す。未検出時はnil。
func (s *LocalStore) GetUser(ctx context.Context, userID string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refreshUser(ctx, userID)
	user := s.doc.Users[userID]
	if user == nil {
		return nil, nil
	}
	u := *user
	return &u, nil
}

// SaveUser はユーザーをupsertする。
// 新規の場合のみCreatedAtを設定し、常にUpdatedAtを更新する。
func (s *LocalStore) SaveUser(ctx context.Context, user *model.User) error {
	if user == nil || user.ID == "" {
		return fmt.Errorf("ユーザーIDが指定されていません")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.doc.upsertUser(user, s.now())
	s.persistUser(ctx, user)
	return nil
}

// UpdateUserProfile はプロフィールを部分更新する。ユーザーが存在しなければ新規作成する。
func (s *LocalStore) UpdateUserProfile(ctx context.Context, userID string, updates model.ProfileUpdate) (*model.User, error) {
	if userID == "" {
		return nil, fmt.Errorf("ユーザーIDが指定されていません")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.refreshUser(ctx, userID)
	user := s.doc.applyProfile(userID, updates, s.now())
	s.persistUser(ctx, user)

	u := *user
	return &u, nil
}

// AddUserIP はユーザーのIPアドレス集合へ冪等に追加し、lastIPを更新する。
// ユーザーが存在しない場合は何もしない。
func (s *LocalStore) AddUserIP(ctx context.Context, userID, ip string) error {
	if userID == "" || ip == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.refreshUser(ctx, userID)
	user := s.doc.Users[userID]
	if user == nil {
		return nil
	}

	for _, existing := range user.IPAddresses {
		if existing == ip {
			return nil
		}
	}
	user.IPAddresses = append(user.IPAddresses, ip)
	user.LastIP = ip
	s.doc.upsertUser(user, s.now())
	s.persistUser(ctx, user)
	return nil
}

// GetAllUsers は全ユーザーをCreatedAt降順で返す。
// KV使用時はユーザーキーを走査してミラーを更新する。
func (s *LocalStore) GetAllUsers(ctx context.Context) ([]model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.kv != nil {
		keys, err := s.kv.Keys(ctx, kvKeyUsersPrefix+":*")
		if err != nil {
			s.metrics.RecordKVError("keys")
			s.logger.Error("KVからのユーザーキー取得に失敗しました", slog.String("error", err.Error()))
		} else {
			for _, key := range keys {
				var user model.User
				if s.kvGet(ctx, key, &user) && user.ID != "" {
					u := user
					s.doc.Users[user.ID] = &u
				}
			}
			s.saveToDisk()
		}
	}

	return s.doc.sortedUsers(), nil
}

// BanUser はユーザーをBANする。存在しないユーザーは何もしない。
func (s *LocalStore) BanUser(ctx context.Context, userID string) error {
	return s.setBanned(ctx, userID, true)
}

// UnbanUser はユーザーのBANを解除する。存在しないユーザーは何もしない。
func (s *LocalStore) UnbanUser(ctx context.Context, userID string) error {
	return s.setBanned(ctx, userID, false)
}

func (s *LocalStore) setBanned(ctx context.Context, userID string, banned bool) error {
	if userID == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.refreshUser(ctx, userID)
	user := s.doc.Users[userID]
	if user == nil {
		return nil
	}

	user.IsBanned = banned
	if banned {
		now := s.now()
		user.BannedAt = &now
	} else {
		user.BannedAt = nil
	}
	s.doc.upsertUser(user, s.now())
	s.persistUser(ctx, user)
	return nil
}

// IsUserBanned はユーザーがBANされているかを返す。未知のユーザーはfalse。
func (s *LocalStore) IsUserBanned(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.refreshUser(ctx, userID)
	user := s.doc.Users[userID]
	if user == nil {
		return false, nil
	}
	return user.IsBanned, nil
}

// refreshAdminEmails はKVから管理者メール集合をミラーへ読み込み、
// デフォルト管理者メールの存在を保証する（自己修復）。ロック保持中に呼ぶこと。
func (s *LocalStore) refreshAdminEmails(ctx context.Context) {
	var emails []string
	if s.kvGet(ctx, kvKeyAdminEmails, &emails) && len(emails) > 0 {
		s.doc.AdminEmails = emails
	}

	if s.doc.ensureAdminEmail(s.defaultAdmin) {
		s.logger.Info("デフォルト管理者メールを復元しました")
		s.saveToDisk()
		s.kvSet(ctx, kvKeyAdminEmails, s.doc.AdminEmails)
	}
}

// GetAdminEmails は管理者メール集合を返す。
// 永続化データからデフォルト管理者が欠落していた場合は返却前に再追加する。
func (s *LocalStore) GetAdminEmails(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refreshAdminEmails(ctx)
	return copyStrings(s.doc.AdminEmails), nil
}

// AddAdminEmail は管理者メールを冪等に追加する（大文字小文字は区別しない）。
func (s *LocalStore) AddAdminEmail(ctx context.Context, email string) error {
	if email == "" {
		return fmt.Errorf("メールアドレスが指定されていません")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.refreshAdminEmails(ctx)

	email = strings.ToLower(email)
	if s.doc.hasAdminEmail(email) {
		return nil
	}
	s.doc.AdminEmails = append(s.doc.AdminEmails, email)
	s.saveToDisk()
	s.kvSet(ctx, kvKeyAdminEmails, s.doc.AdminEmails)
	return nil
}

// IsAdmin はメールアドレスが管理者集合に含まれるかを返す。
func (s *LocalStore) IsAdmin(ctx context.Context, email string) (bool, error) {
	if email == "" {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.refreshAdminEmails(ctx)
	return s.doc.hasAdminEmail(email), nil
}

// refreshRoles はKVからロール一覧をミラーへ読み込む。ロック保持中に呼ぶこと。
func (s *LocalStore) refreshRoles(ctx context.Context) {
	var roles []model.Role
	if s.kvGet(ctx, kvKeyRoles, &roles) {
		s.doc.Roles = roles
		s.saveToDisk()
	}
}

// persistRoles はミラーのロール一覧をディスクとKVへ書き出す。ロック保持中に呼ぶこと。
func (s *LocalStore) persistRoles(ctx context.Context) {
	s.saveToDisk()
	s.kvSet(ctx, kvKeyRoles, s.doc.Roles)
}

// GetAllRoles はロール一覧を返す。
func (s *LocalStore) GetAllRoles(ctx context.Context) ([]model.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refreshRoles(ctx)
	roles := make([]model.Role, len(s.doc.Roles))
	copy(roles, s.doc.Roles)
	return roles, nil
}

// SaveRoles はロール一覧をまるごと置き換える。
func (s *LocalStore) SaveRoles(ctx context.Context, roles []model.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.doc.Roles = make([]model.Role, len(roles))
	copy(s.doc.Roles, roles)
	s.persistRoles(ctx)
	return nil
}

// CreateRole は新しいロールを作成する。IDは現在時刻のUnixミリ秒から採番される。
func (s *LocalStore) CreateRole(ctx context.Context, input model.RoleInput) (*model.Role, error) {
	if input.Name == "" {
		return nil, fmt.Errorf("ロール名が指定されていません")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.refreshRoles(ctx)

	now := s.now()
	role := model.Role{
		ID:                strconv.FormatInt(now.UnixMilli(), 10),
		Name:              input.Name,
		Color:             input.Color,
		Icon:              input.Icon,
		Permissions:       input.Permissions,
		IsDisplaySeparate: input.IsDisplaySeparate,
		Priority:          input.Priority,
		CreatedAt:         now,
	}
	if role.Color == "" {
		role.Color = "#6366f1"
	}

	s.doc.Roles = append(s.doc.Roles, role)
	s.persistRoles(ctx)
	return &role, nil
}

// UpdateRole はロールを部分更新する。未検出時はnil。
func (s *LocalStore) UpdateRole(ctx context.Context, roleID string, updates model.RoleUpdate) (*model.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refreshRoles(ctx)

	i := s.doc.findRole(roleID)
	if i == -1 {
		return nil, nil
	}

	applyRoleUpdate(&s.doc.Roles[i], updates, s.now())
	s.persistRoles(ctx)

	role := s.doc.Roles[i]
	return &role, nil
}

// DeleteRole はロールを削除し、全ユーザーの割り当てからも取り除く（カスケード削除）。
func (s *LocalStore) DeleteRole(ctx context.Context, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refreshRoles(ctx)
	s.refreshUserRoles(ctx)

	s.doc.removeRoleEverywhere(roleID)
	s.persistRoles(ctx)
	s.persistUserRoles(ctx)
	return nil
}

// refreshUserRoles はKVからユーザーロール割り当てをミラーへ読み込む。ロック保持中に呼ぶこと。
func (s *LocalStore) refreshUserRoles(ctx context.Context) {
	var userRoles map[string][]string
	if s.kvGet(ctx, kvKeyUserRoles, &userRoles) {
		s.doc.UserRoles = userRoles
		s.saveToDisk()
	}
}

// persistUserRoles はミラーのユーザーロール割り当てをディスクとKVへ書き出す。ロック保持中に呼ぶこと。
func (s *LocalStore) persistUserRoles(ctx context.Context) {
	s.saveToDisk()
	s.kvSet(ctx, kvKeyUserRoles, s.doc.UserRoles)
}

// GetUserRoles はユーザーロール割り当てマップを返す。
func (s *LocalStore) GetUserRoles(ctx context.Context) (map[string][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refreshUserRoles(ctx)
	return copyUserRoles(s.doc.UserRoles), nil
}

// SaveUserRoles はユーザーロール割り当てマップをまるごと置き換える。
func (s *LocalStore) SaveUserRoles(ctx context.Context, userRoles map[string][]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.doc.UserRoles = copyUserRoles(userRoles)
	s.persistUserRoles(ctx)
	return nil
}

// AssignRoleToUser はユーザーへロールを冪等に割り当てる。
func (s *LocalStore) AssignRoleToUser(ctx context.Context, userID, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refreshUserRoles(ctx)

	for _, rid := range s.doc.UserRoles[userID] {
		if rid == roleID {
			return nil
		}
	}
	s.doc.UserRoles[userID] = append(s.doc.UserRoles[userID], roleID)
	s.persistUserRoles(ctx)
	return nil
}

// RemoveRoleFromUser はユーザーからロールの割り当てを取り除く。
func (s *LocalStore) RemoveRoleFromUser(ctx context.Context, userID, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refreshUserRoles(ctx)

	roleIDs, ok := s.doc.UserRoles[userID]
	if !ok {
		return nil
	}
	filtered := roleIDs[:0]
	for _, rid := range roleIDs {
		if rid != roleID {
			filtered = append(filtered, rid)
		}
	}
	s.doc.UserRoles[userID] = filtered
	s.persistUserRoles(ctx)
	return nil
}

// GetUserRolesList はユーザーに割り当てられたロールをpriority降順で返す。
func (s *LocalStore) GetUserRolesList(ctx context.Context, userID string) ([]model.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refreshRoles(ctx)
	s.refreshUserRoles(ctx)
	return s.doc.rolesForUser(userID), nil
}

// GetUserMainRole はユーザーの最高priorityのロールを返す。割り当てがなければnil。
func (s *LocalStore) GetUserMainRole(ctx context.Context, userID string) (*model.Role, error) {
	roles, err := s.GetUserRolesList(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(roles) == 0 {
		return nil, nil
	}
	return &roles[0], nil
}

// UpdateUserPrefix はユーザーのカスタムプレフィックスを更新する。
// nilを渡すとプレフィックスをクリアする。存在しないユーザーは何もしない。
func (s *LocalStore) UpdateUserPrefix(ctx context.Context, userID string, prefix, prefixColor *string) error {
	if userID == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.refreshUser(ctx, userID)
	user := s.doc.Users[userID]
	if user == nil {
		return nil
	}

	user.CustomPrefix = prefix
	user.PrefixColor = prefixColor
	s.doc.upsertUser(user, s.now())
	s.persistUser(ctx, user)
	return nil
}

// refreshWidgetSettings はKVからウィジェット設定をミラーへ読み込む。ロック保持中に呼ぶこと。
func (s *LocalStore) refreshWidgetSettings(ctx context.Context) {
	var settings model.WidgetSettings
	if s.kvGet(ctx, kvKeyWidgetSettings, &settings) {
		s.doc.WidgetSettings = &settings
		s.saveToDisk()
	}
}

// GetWidgetSettings はウィジェット設定を返す。初回読み取り時はデフォルト値で初期化する。
func (s *LocalStore) GetWidgetSettings(ctx context.Context) (*model.WidgetSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refreshWidgetSettings(ctx)

	if s.doc.WidgetSettings == nil {
		s.doc.WidgetSettings = model.DefaultWidgetSettings()
		s.saveToDisk()
	}

	out := *s.doc.WidgetSettings
	return &out, nil
}

// SaveWidgetSettings は部分更新を既存設定へ浅いマージで適用し、マージ後の設定を返す。
func (s *LocalStore) SaveWidgetSettings(ctx context.Context, updates *model.WidgetSettingsUpdate) (*model.WidgetSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.doc.WidgetSettings == nil {
		s.doc.WidgetSettings = model.DefaultWidgetSettings()
	}
	if updates != nil {
		updates.Apply(s.doc.WidgetSettings)
	}

	s.saveToDisk()
	s.kvSet(ctx, kvKeyWidgetSettings, s.doc.WidgetSettings)

	out := *s.doc.WidgetSettings
	return &out, nil
}

// refreshSessions はKVからオンラインセッションをミラーへ読み込む。ロック保持中に呼ぶこと。
func (s *LocalStore) refreshSessions(ctx context.Context) {
	var sessions map[string]model.OnlineSession
	if s.kvGet(ctx, kvKeyOnlineSessions, &sessions) {
		s.doc.OnlineSessions = sessions
		s.saveToDisk()
	}
}

// persistSessions はミラーのオンラインセッションをディスクとKVへ書き出す。ロック保持中に呼ぶこと。
func (s *LocalStore) persistSessions(ctx context.Context) {
	s.saveToDisk()
	s.kvSet(ctx, kvKeyOnlineSessions, s.doc.OnlineSessions)
}

// GetOnlineSessions はオンラインセッションのマップを返す。
func (s *LocalStore) GetOnlineSessions(ctx context.Context) (map[string]model.OnlineSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refreshSessions(ctx)
	return copySessions(s.doc.OnlineSessions), nil
}

// SaveOnlineSessions はオンラインセッションのマップをまるごと置き換える。
func (s *LocalStore) SaveOnlineSessions(ctx context.Context, sessions map[string]model.OnlineSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.doc.OnlineSessions = copySessions(sessions)
	s.persistSessions(ctx)
	return nil
}

// UpdateOnlineSession はセッションのlastActivityをupsertする。
func (s *LocalStore) UpdateOnlineSession(ctx context.Context, sessionID, userID string, timestamp int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refreshSessions(ctx)
	s.doc.OnlineSessions[sessionID] = model.OnlineSession{
		UserID:       userID,
		LastActivity: timestamp,
	}
	s.persistSessions(ctx)
	return nil
}

// RemoveOnlineSession はセッションを取り除く。
func (s *LocalStore) RemoveOnlineSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refreshSessions(ctx)
	delete(s.doc.OnlineSessions, sessionID)
	s.persistSessions(ctx)
	return nil
}
