package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Mimi-by-typh/lukavaka/internal/config"
	"github.com/Mimi-by-typh/lukavaka/internal/metrics"
	"github.com/Mimi-by-typh/lukavaka/internal/model"
)

// githubAPIBase はGitHub APIのベースURL。
const githubAPIBase = "https://api.github.com"

var _ Store = (*GitHubStore)(nil)

// GitHubStore はリポジトリ内の1つのJSONファイルをデータベース全体として扱うバックエンド。
// 読み取りはコンテンツAPI経由で取得して固定TTLの間キャッシュし、
// 書き込みはドキュメント全体をシリアライズして新しいファイルリビジョンをプッシュする。
// 上書きに必要なリビジョン識別子（sha）を追跡する。
//
// オンラインセッションはリビジョン履歴の肥大化を避けるためGitHubへ永続化せず、
// メモリ上にのみ保持する（既知の制限）。
// 連続する書き込みと読み取りは、第三者がGitHub上のファイルを直接編集した場合に
// 最大でTTL分古いデータを観測しうる。
type GitHubStore struct {
	mu        sync.Mutex
	cache     *document
	cacheSha  string
	lastFetch time.Time
	ttl       time.Duration

	baseURL    string // テスト用にエンドポイントを差し替え可能
	token      string
	repo       string
	dataFile   string
	branch     string
	httpClient *http.Client

	// セッションはメモリのみ
	sessions map[string]model.OnlineSession

	defaultAdmin string
	logger       *slog.Logger
	metrics      metrics.MetricsCollector

	// テスト用に現在時刻を差し替え可能
	now func() time.Time
}

// NewGitHubStore はGitHubStoreの新しいインスタンスを生成する。
func NewGitHubStore(cfg *config.Config, httpClient *http.Client, logger *slog.Logger, collector metrics.MetricsCollector) *GitHubStore {
	return &GitHubStore{
		ttl:          cfg.GitHubCacheTTL,
		baseURL:      githubAPIBase,
		token:        cfg.GitHubToken,
		repo:         cfg.GitHubRepo,
		dataFile:     cfg.GitHubDataFile,
		branch:       cfg.GitHubBranch,
		httpClient:   httpClient,
		sessions:     map[string]model.OnlineSession{},
		defaultAdmin: cfg.AdminEmail,
		logger:       logger,
		metrics:      collector,
		now:          time.Now,
	}
}

// contentsResponse はGitHubコンテンツAPIのレスポンス。
type contentsResponse struct {
	SHA     string `json:"sha"`
	Content string `json:"content"`
}

// putResponse はファイル更新APIのレスポンス。
type putResponse struct {
	Content *contentsResponse `json:"content"`
}

// githubRequest はGitHub APIへのHTTPリクエストを実行する。
// 404の場合は(nil, nil)を返す（初回利用時のファイル未存在）。
func (s *GitHubStore) githubRequest(ctx context.Context, method, endpoint string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("リクエストボディのシリアライズに失敗しました: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	url := s.baseURL + "/repos/" + s.repo + endpoint
	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "LukaFrizz-App")

	s.metrics.RecordGitHubRequest(method)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.metrics.RecordGitHubError()
		return nil, fmt.Errorf("GitHub APIの呼び出しに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		s.metrics.RecordGitHubError()
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		s.metrics.RecordGitHubError()
		s.logger.Error("GitHub APIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
			slog.String("method", method),
			slog.String("endpoint", endpoint),
		)
		return nil, fmt.Errorf("GitHub APIがステータス %d を返しました", resp.StatusCode)
	}

	return body, nil
}

// defaultDocument は初回利用時（ファイル未存在）のドキュメントを生成する。
func (s *GitHubStore) defaultDocument() *document {
	doc := newDocument()
	doc.ensureAdminEmail(s.defaultAdmin)
	return doc
}

// getData はドキュメント全体を返す。キャッシュが新鮮であればそれを返し、
// そうでなければコンテンツAPIから取得する。取得失敗時はキャッシュまたは
// デフォルトドキュメントへ縮退する（障害は呼び出し元へ伝播しない）。
// ロック保持中に呼ぶこと。
func (s *GitHubStore) getData(ctx context.Context) *document {
	if s.cache != nil && s.now().Sub(s.lastFetch) < s.ttl {
		return s.cache
	}

	body, err := s.githubRequest(ctx, http.MethodGet, "/contents/"+s.dataFile+"?ref="+s.branch, nil)
	if err != nil {
		s.logger.Error("GitHubからのデータ取得に失敗しました", slog.String("error", err.Error()))
		if s.cache != nil {
			return s.cache
		}
		return s.defaultDocument()
	}

	if body == nil {
		// ファイル未存在: デフォルトドキュメントを使用
		s.cache = s.defaultDocument()
		s.cacheSha = ""
		s.lastFetch = s.now()
		return s.cache
	}

	var result contentsResponse
	if err := json.Unmarshal(body, &result); err != nil {
		s.logger.Error("GitHubレスポンスのパースに失敗しました", slog.String("error", err.Error()))
		if s.cache != nil {
			return s.cache
		}
		return s.defaultDocument()
	}

	content, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(result.Content, "\n", ""))
	if err != nil {
		s.logger.Error("ファイル内容のデコードに失敗しました", slog.String("error", err.Error()))
		if s.cache != nil {
			return s.cache
		}
		return s.defaultDocument()
	}

	doc := newDocument()
	if err := json.Unmarshal(content, doc); err != nil {
		s.logger.Error("データファイルのパースに失敗しました", slog.String("error", err.Error()))
		if s.cache != nil {
			return s.cache
		}
		return s.defaultDocument()
	}

	s.cache = doc
	s.cacheSha = result.SHA
	s.lastFetch = s.now()
	return s.cache
}

// saveData はドキュメント全体をシリアライズして新しいファイルリビジョンをプッシュする。
// 障害はログに記録されるが呼び出し元へは伝播しない（キャッシュが正のまま残る）。
// ロック保持中に呼ぶこと。
func (s *GitHubStore) saveData(ctx context.Context, doc *document) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		s.logger.Error("データのシリアライズに失敗しました", slog.String("error", err.Error()))
		s.cache = doc
		return
	}

	payload := map[string]any{
		"message": "Update data " + s.now().UTC().Format(time.RFC3339),
		"content": base64.StdEncoding.EncodeToString(data),
		"branch":  s.branch,
	}
	if s.cacheSha != "" {
		payload["sha"] = s.cacheSha
	}

	body, err := s.githubRequest(ctx, http.MethodPut, "/contents/"+s.dataFile, payload)
	if err != nil {
		s.logger.Error("GitHubへのデータ保存に失敗しました", slog.String("error", err.Error()))
		s.cache = doc
		return
	}

	var result putResponse
	if err := json.Unmarshal(body, &result); err == nil && result.Content != nil {
		s.cacheSha = result.Content.SHA
	}

	s.cache = doc
	s.lastFetch = s.now()
}

// GetComments はコメント一覧を返す。
func (s *GitHubStore) GetComments(ctx context.Context) ([]model.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return copyComments(s.getData(ctx).Comments), nil
}

// SaveComments はコメント一覧をまるごと置き換える。
func (s *GitHubStore) SaveComments(ctx context.Context, comments []model.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.getData(ctx)
	doc.Comments = copyComments(comments)
	s.saveData(ctx, doc)
	return nil
}

// AddComment はコメントを先頭に追加する。
func (s *GitHubStore) AddComment(ctx context.Context, comment model.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.getData(ctx)
	doc.Comments = append([]model.Comment{comment}, doc.Comments...)
	s.saveData(ctx, doc)
	return nil
}

// DeleteCommentByID はIDが一致するコメントを削除して返す。未検出時はnil。
func (s *GitHubStore) DeleteCommentByID(ctx context.Context, id int64) (*model.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.getData(ctx)
	deleted := doc.deleteCommentByID(id)
	if deleted == nil {
		return nil, nil
	}
	s.saveData(ctx, doc)
	return deleted, nil
}

// GetUser はユーザーを返す。未検出時はnil。
func (s *GitHubStore) GetUser(ctx context.Context, userID string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user := s.getData(ctx).Users[userID]
	if user == nil {
		return nil, nil
	}
	u := *user
	return &u, nil
}

// SaveUser はユーザーをupsertする。
func (s *GitHubStore) SaveUser(ctx context.Context, user *model.User) error {
	if user == nil || user.ID == "" {
		return fmt.Errorf("ユーザーIDが指定されていません")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.getData(ctx)
	doc.upsertUser(user, s.now())
	s.saveData(ctx, doc)
	return nil
}

// UpdateUserProfile はプロフィールを部分更新する。ユーザーが存在しなければ新規作成する。
func (s *GitHubStore) UpdateUserProfile(ctx context.Context, userID string, updates model.ProfileUpdate) (*model.User, error) {
	if userID == "" {
		return nil, fmt.Errorf("ユーザーIDが指定されていません")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.getData(ctx)
	user := doc.applyProfile(userID, updates, s.now())
	s.saveData(ctx, doc)

	u := *user
	return &u, nil
}

// AddUserIP はユーザーのIPアドレス集合へ冪等に追加し、lastIPを更新する。
func (s *GitHubStore) AddUserIP(ctx context.Context, userID, ip string) error {
	if userID == "" || ip == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.getData(ctx)
	user := doc.Users[userID]
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
	doc.upsertUser(user, s.now())
	s.saveData(ctx, doc)
	return nil
}

// GetAllUsers は全ユーザーをCreatedAt降順で返す。
func (s *GitHubStore) GetAllUsers(ctx context.Context) ([]model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.getData(ctx).sortedUsers(), nil
}

// BanUser はユーザーをBANする。存在しないユーザーは何もしない。
func (s *GitHubStore) BanUser(ctx context.Context, userID string) error {
	return s.setBanned(ctx, userID, true)
}

// UnbanUser はユーザーのBANを解除する。存在しないユーザーは何もしない。
func (s *GitHubStore) UnbanUser(ctx context.Context, userID string) error {
	return s.setBanned(ctx, userID, false)
}

func (s *GitHubStore) setBanned(ctx context.Context, userID string, banned bool) error {
	if userID == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.getData(ctx)
	user := doc.Users[userID]
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
	doc.upsertUser(user, s.now())
	s.saveData(ctx, doc)
	return nil
}

// IsUserBanned はユーザーがBANされているかを返す。未知のユーザーはfalse。
func (s *GitHubStore) IsUserBanned(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user := s.getData(ctx).Users[userID]
	if user == nil {
		return false, nil
	}
	return user.IsBanned, nil
}

// GetAdminEmails は管理者メール集合を返す。
// デフォルト管理者が欠落していた場合は返却前に再追加する。
func (s *GitHubStore) GetAdminEmails(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.getData(ctx)
	if doc.ensureAdminEmail(s.defaultAdmin) {
		s.logger.Info("デフォルト管理者メールを復元しました")
		s.saveData(ctx, doc)
	}
	return copyStrings(doc.AdminEmails), nil
}

// AddAdminEmail は管理者メールを冪等に追加する（大文字小文字は区別しない）。
func (s *GitHubStore) AddAdminEmail(ctx context.Context, email string) error {
	if email == "" {
		return fmt.Errorf("メールアドレスが指定されていません")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.getData(ctx)
	email = strings.ToLower(email)
	if doc.hasAdminEmail(email) {
		return nil
	}
	doc.AdminEmails = append(doc.AdminEmails, email)
	s.saveData(ctx, doc)
	return nil
}

// IsAdmin はメールアドレスが管理者集合に含まれるかを返す。
func (s *GitHubStore) IsAdmin(ctx context.Context, email string) (bool, error) {
	if email == "" {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.getData(ctx)
	doc.ensureAdminEmail(s.defaultAdmin)
	return doc.hasAdminEmail(email), nil
}

// GetAllRoles はロール一覧を返す。
func (s *GitHubStore) GetAllRoles(ctx context.Context) ([]model.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.getData(ctx)
	roles := make([]model.Role, len(doc.Roles))
	copy(roles, doc.Roles)
	return roles, nil
}

// SaveRoles はロール一覧をまるごと置き換える。
func (s *GitHubStore) SaveRoles(ctx context.Context, roles []model.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.getData(ctx)
	doc.Roles = make([]model.Role, len(roles))
	copy(doc.Roles, roles)
	s.saveData(ctx, doc)
	return nil
}

// CreateRole は新しいロールを作成する。IDは現在時刻のUnixミリ秒から採番される。
func (s *GitHubStore) CreateRole(ctx context.Context, input model.RoleInput) (*model.Role, error) {
	if input.Name == "" {
		return nil, fmt.Errorf("ロール名が指定されていません")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.getData(ctx)

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

	doc.Roles = append(doc.Roles, role)
	s.saveData(ctx, doc)
	return &role, nil
}

// UpdateRole はロールを部分更新する。未検出時はnil。
func (s *GitHubStore) UpdateRole(ctx context.Context, roleID string, updates model.RoleUpdate) (*model.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.getData(ctx)
	i := doc.findRole(roleID)
	if i == -1 {
		return nil, nil
	}

	applyRoleUpdate(&doc.Roles[i], updates, s.now())
	s.saveData(ctx, doc)

	role := doc.Roles[i]
	return &role, nil
}

// DeleteRole はロールを削除し、全ユーザーの割り当てからも取り除く（カスケード削除）。
func (s *GitHubStore) DeleteRole(ctx context.Context, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.getData(ctx)
	doc.removeRoleEverywhere(roleID)
	s.saveData(ctx, doc)
	return nil
}

// GetUserRoles はユーザーロール割り当てマップを返す。
func (s *GitHubStore) GetUserRoles(ctx context.Context) (map[string][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return copyUserRoles(s.getData(ctx).UserRoles), nil
}

// SaveUserRoles はユーザーロール割り当てマップをまるごと置き換える。
func (s *GitHubStore) SaveUserRoles(ctx context.Context, userRoles map[string][]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.getData(ctx)
	doc.UserRoles = copyUserRoles(userRoles)
	s.saveData(ctx, doc)
	return nil
}

// AssignRoleToUser はユーザーへロールを冪等に割り当てる。
func (s *GitHubStore) AssignRoleToUser(ctx context.Context, userID, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.getData(ctx)
	for _, rid := range doc.UserRoles[userID] {
		if rid == roleID {
			return nil
		}
	}
	doc.UserRoles[userID] = append(doc.UserRoles[userID], roleID)
	s.saveData(ctx, doc)
	return nil
}

// RemoveRoleFromUser はユーザーからロールの割り当てを取り除く。
func (s *GitHubStore) RemoveRoleFromUser(ctx context.Context, userID, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.getData(ctx)
	roleIDs, ok := doc.UserRoles[userID]
	if !ok {
		return nil
	}
	filtered := roleIDs[:0]
	for _, rid := range roleIDs {
		if rid != roleID {
			filtered = append(filtered, rid)
		}
	}
	doc.UserRoles[userID] = filtered
	s.saveData(ctx, doc)
	return nil
}

// GetUserRolesList はユーザーに割り当てられたロールをpriority降順で返す。
func (s *GitHubStore) GetUserRolesList(ctx context.Context, userID string) ([]model.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.getData(ctx).rolesForUser(userID), nil
}

// GetUserMainRole はユーザーの最高priorityのロールを返す。割り当てがなければnil。
func (s *GitHubStore) GetUserMainRole(ctx context.Context, userID string) (*model.Role, error) {
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
func (s *GitHubStore) UpdateUserPrefix(ctx context.Context, userID string, prefix, prefixColor *string) error {
	if userID == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.getData(ctx)
	user := doc.Users[userID]
	if user == nil {
		return nil
	}

	user.CustomPrefix = prefix
	user.PrefixColor = prefixColor
	doc.upsertUser(user, s.now())
	s.saveData(ctx, doc)
	return nil
}

// GetWidgetSettings はウィジェット設定を返す。初回読み取り時はデフォルト値で初期化する。
// デフォルト値は次の書き込みまでGitHubへは永続化されない。
func (s *GitHubStore) GetWidgetSettings(ctx context.Context) (*model.WidgetSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.getData(ctx)
	if doc.WidgetSettings == nil {
		doc.WidgetSettings = model.DefaultWidgetSettings()
	}

	out := *doc.WidgetSettings
	return &out, nil
}

// SaveWidgetSettings は部分更新を既存設定へ浅いマージで適用し、マージ後の設定を返す。
func (s *GitHubStore) SaveWidgetSettings(ctx context.Context, updates *model.WidgetSettingsUpdate) (*model.WidgetSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.getData(ctx)
	if doc.WidgetSettings == nil {
		doc.WidgetSettings = model.DefaultWidgetSettings()
	}
	if updates != nil {
		updates.Apply(doc.WidgetSettings)
	}
	s.saveData(ctx, doc)

	out := *doc.WidgetSettings
	return &out, nil
}

// GetOnlineSessions はオンラインセッションのマップを返す（メモリのみ）。
func (s *GitHubStore) GetOnlineSessions(ctx context.Context) (map[string]model.OnlineSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return copySessions(s.sessions), nil
}

// SaveOnlineSessions はオンラインセッションのマップをまるごと置き換える（メモリのみ）。
func (s *GitHubStore) SaveOnlineSessions(ctx context.Context, sessions map[string]model.OnlineSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = copySessions(sessions)
	return nil
}

// UpdateOnlineSession はセッションのlastActivityをupsertする（メモリのみ）。
func (s *GitHubStore) UpdateOnlineSession(ctx context.Context, sessionID, userID string, timestamp int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[sessionID] = model.OnlineSession{
		UserID:       userID,
		LastActivity: timestamp,
	}
	return nil
}

// RemoveOnlineSession はセッションを取り除く（メモリのみ）。
func (s *GitHubStore) RemoveOnlineSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionID)
	return nil
}
