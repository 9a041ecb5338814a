package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Mimi-by-typh/lukavaka/internal/auth"
	"github.com/Mimi-by-typh/lukavaka/internal/metrics"
	"github.com/Mimi-by-typh/lukavaka/internal/middleware"
	"github.com/Mimi-by-typh/lukavaka/internal/model"
	"github.com/Mimi-by-typh/lukavaka/internal/security"
)

// CommentStoreInterface はコメントハンドラーが必要とするストア操作のサブセット。
type CommentStoreInterface interface {
	GetComments(ctx context.Context) ([]model.Comment, error)
	SaveComments(ctx context.Context, comments []model.Comment) error
	AddComment(ctx context.Context, comment model.Comment) error
	DeleteCommentByID(ctx context.Context, id int64) (*model.Comment, error)
	GetUser(ctx context.Context, userID string) (*model.User, error)
	GetUserMainRole(ctx context.Context, userID string) (*model.Role, error)
	GetWidgetSettings(ctx context.Context) (*model.WidgetSettings, error)
	IsAdmin(ctx context.Context, email string) (bool, error)
}

// CommentHandler はコメントAPIのHTTPハンドラー。
type CommentHandler struct {
	store     CommentStoreInterface
	sanitizer security.CommentSanitizerService
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
	maxLength int

	// テスト用に現在時刻を差し替え可能
	now func() time.Time
}

// NewCommentHandler はCommentHandlerを生成する。
func NewCommentHandler(store CommentStoreInterface, sanitizer security.CommentSanitizerService, collector metrics.MetricsCollector, logger *slog.Logger, maxLength int) *CommentHandler {
	if maxLength <= 0 {
		maxLength = 1000
	}
	return &CommentHandler{
		store:     store,
		sanitizer: sanitizer,
		metrics:   collector,
		logger:    logger,
		maxLength: maxLength,
		now:       time.Now,
	}
}

// listResponse はコメント一覧のAPIレスポンス。
type listResponse struct {
	Success    bool            `json:"success"`
	Comments   []model.Comment `json:"comments"`
	Total      int             `json:"total"`
	Page       int             `json:"page"`
	TotalPages int             `json:"totalPages"`
}

// createCommentRequest はコメント投稿リクエストのボディ。
type createCommentRequest struct {
	Text string `json:"text"`
}

// updateCommentRequest はコメント編集リクエストのボディ。
// TextとStatusはそれぞれ省略可能で、指定されたフィールドのみ更新される。
type updateCommentRequest struct {
	CommentID *int64  `json:"commentId"`
	Text      *string `json:"text"`
	Status    *string `json:"status"`
}

// deleteCommentRequest はコメント削除リクエストのボディ。
type deleteCommentRequest struct {
	CommentID int64 `json:"commentId"`
}

// List はコメント一覧をフィルターとページングを適用して返す。
// GET /api/comments?status=&search=&author=&page=&limit=
func (h *CommentHandler) List(w http.ResponseWriter, r *http.Request) {
	comments, err := h.store.GetComments(r.Context())
	if err != nil {
		h.logger.Error("コメント一覧の取得に失敗しました", slog.String("error", err.Error()))
		middleware.WriteErrorResponse(w, http.StatusInternalServerError, "Failed to fetch comments")
		return
	}

	comments = filterComments(comments, r.URL.Query())

	// 表示用にロールとプレフィックスを最新の状態で埋め込む
	for i := range comments {
		h.enrich(r.Context(), &comments[i])
	}

	page, limit := pagination(r.URL.Query())
	total := len(comments)
	totalPages := (total + limit - 1) / limit

	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	writeJSON(w, http.StatusOK, listResponse{
		Success:    true,
		Comments:   comments[start:end],
		Total:      total,
		Page:       page,
		TotalPages: totalPages,
	})
}

// Create は新しいコメントを投稿する。認証が必要。
// POST /api/comments
func (h *CommentHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req createCommentRequest
	if err := decodeJSONBody(r, &req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if strings.TrimSpace(req.Text) == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, "Comment text is required")
		return
	}
	if len(req.Text) > h.maxLength {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, "Comment too long (max 1000 characters)")
		return
	}

	text := h.sanitizer.Sanitize(req.Text)
	if text == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, "Invalid comment text")
		return
	}

	isAdmin := h.isAdminUser(r.Context(), user)
	author, avatar := commentIdentity(user, isAdmin)

	mainRole, _ := h.store.GetUserMainRole(r.Context(), user.ID)
	userData, _ := h.store.GetUser(r.Context(), user.ID)

	now := h.now()
	comment := model.Comment{
		ID:      now.UnixMilli(),
		Author:  author,
		Avatar:  avatar,
		Text:    text,
		Date:    now,
		UserID:  commentUserID(user),
		IsAdmin: isAdmin,
		Status:  h.initialStatus(r.Context(), text, isAdmin),
		Role:    mainRole.Snapshot(),
	}
	if userData != nil {
		comment.CustomPrefix = userData.CustomPrefix
		comment.PrefixColor = userData.PrefixColor
	}

	if err := h.store.AddComment(r.Context(), comment); err != nil {
		h.logger.Error("コメントの保存に失敗しました", slog.String("error", err.Error()))
		middleware.WriteErrorResponse(w, http.StatusInternalServerError, "Failed to create comment")
		return
	}

	h.metrics.RecordCommentCreated()

	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"comment": comment,
	})
}

// Update はコメント本文またはステータスを更新する。管理者のみ。
// PUT /api/comments
func (h *CommentHandler) Update(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	if !h.isAdminUser(r.Context(), user) {
		middleware.WriteErrorResponse(w, http.StatusForbidden, "Forbidden. Admin access required.")
		return
	}

	var req updateCommentRequest
	if err := decodeJSONBody(r, &req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.CommentID == nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, "Comment ID is required")
		return
	}
	if req.Text != nil && strings.TrimSpace(*req.Text) == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, "Comment text cannot be empty")
		return
	}
	if req.Status != nil && !model.CommentStatus(*req.Status).Valid() {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, "Invalid status")
		return
	}

	comments, err := h.store.GetComments(r.Context())
	if err != nil {
		h.logger.Error("コメント一覧の取得に失敗しました", slog.String("error", err.Error()))
		middleware.WriteErrorResponse(w, http.StatusInternalServerError, "Failed to update comment")
		return
	}

	index := -1
	for i := range comments {
		if comments[i].ID == *req.CommentID {
			index = i
			break
		}
	}
	if index == -1 {
		middleware.WriteErrorResponse(w, http.StatusNotFound, "Comment not found")
		return
	}

	if req.Text != nil {
		comments[index].Text = strings.TrimSpace(*req.Text)
	}
	if req.Status != nil {
		comments[index].Status = model.CommentStatus(*req.Status)
	}
	updatedAt := h.now()
	comments[index].UpdatedAt = &updatedAt

	if err := h.store.SaveComments(r.Context(), comments); err != nil {
		h.logger.Error("コメントの保存に失敗しました", slog.String("error", err.Error()))
		middleware.WriteErrorResponse(w, http.StatusInternalServerError, "Failed to update comment")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"comment": comments[index],
	})
}

// Delete はコメントを削除する。管理者のみ。
// DELETE /api/comments （commentIdはボディまたはクエリで指定）
func (h *CommentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, "Unauthorized. Admin access required.")
		return
	}
	if !h.isAdminUser(r.Context(), user) {
		middleware.WriteErrorResponse(w, http.StatusForbidden, "Forbidden. Admin access required.")
		return
	}

	commentID := h.deleteTargetID(r)
	if commentID == 0 {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, "Comment ID is required")
		return
	}

	deleted, err := h.store.DeleteCommentByID(r.Context(), commentID)
	if err != nil {
		h.logger.Error("コメントの削除に失敗しました",
			slog.Int64("comment_id", commentID),
			slog.String("error", err.Error()),
		)
		middleware.WriteErrorResponse(w, http.StatusInternalServerError, "Failed to delete comment")
		return
	}
	if deleted == nil {
		middleware.WriteErrorResponse(w, http.StatusNotFound, "Comment not found")
		return
	}

	h.metrics.RecordCommentDeleted()

	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"message":        "Comment deleted successfully",
		"deletedComment": deleted,
	})
}

// deleteTargetID は削除対象のコメントIDをボディまたはクエリから取り出す。
func (h *CommentHandler) deleteTargetID(r *http.Request) int64 {
	var req deleteCommentRequest
	if err := decodeJSONBody(r, &req); err == nil && req.CommentID != 0 {
		return req.CommentID
	}
	if raw := r.URL.Query().Get("commentId"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return id
		}
	}
	return 0
}

// enrich はコメントにユーザーの現在のメインロールとプレフィックスを埋め込む。
func (h *CommentHandler) enrich(ctx context.Context, comment *model.Comment) {
	if comment.UserID == "" || comment.UserID == "unknown" {
		return
	}

	mainRole, err := h.store.GetUserMainRole(ctx, comment.UserID)
	if err == nil {
		comment.Role = mainRole.Snapshot()
	}

	userData, err := h.store.GetUser(ctx, comment.UserID)
	if err == nil && userData != nil {
		comment.CustomPrefix = userData.CustomPrefix
		comment.PrefixColor = userData.PrefixColor
	}
}

// initialStatus は新規コメントの初期ステータスを決定する。
// 事前モデレーションが有効、またはモデレーションキーワードに一致した場合はpending。
// 管理者の投稿は常にpublished。
func (h *CommentHandler) initialStatus(ctx context.Context, text string, isAdmin bool) model.CommentStatus {
	if isAdmin {
		return model.CommentStatusPublished
	}

	settings, err := h.store.GetWidgetSettings(ctx)
	if err != nil || settings == nil {
		return model.CommentStatusPublished
	}
	if settings.RequirePremoderation {
		return model.CommentStatusPending
	}
	if settings.AutoModeration {
		lower := strings.ToLower(text)
		for _, keyword := range settings.ModerationKeywords {
			if keyword != "" && strings.Contains(lower, strings.ToLower(keyword)) {
				return model.CommentStatusPending
			}
		}
	}
	return model.CommentStatusPublished
}

// isAdminUser はトークンのロールまたは管理者メール集合で管理者かを判定する。
func (h *CommentHandler) isAdminUser(ctx context.Context, user *auth.TokenPayload) bool {
	if user.Role == "admin" {
		return true
	}
	if user.Email == "" {
		return false
	}
	ok, err := h.store.IsAdmin(ctx, user.Email)
	return err == nil && ok
}

// commentIdentity は投稿者の表示名とアバターURLを決定する。
func commentIdentity(user *auth.TokenPayload, isAdmin bool) (author, avatar string) {
	author = user.Username
	if author == "" {
		author = user.FirstName
	}

	if user.Role == "admin" {
		if author == "" && user.Email != "" {
			author = strings.SplitN(user.Email, "@", 2)[0]
		}
		if author == "" {
			author = "Admin"
		}
		avatar = user.PhotoURL
		if avatar == "" {
			avatar = "https://ui-avatars.com/api/?name=" + url.QueryEscape(author) + "&background=6366f1&color=fff"
		}
		return author, avatar
	}

	if author == "" {
		author = "User"
	}
	avatar = user.PhotoURL
	if avatar == "" {
		avatar = "https://ui-avatars.com/api/?name=" + url.QueryEscape(author) + "&background=random"
	}
	return author, avatar
}

// commentUserID はコメントに記録するユーザーIDを決定する。
func commentUserID(user *auth.TokenPayload) string {
	if user.ID != "" {
		return user.ID
	}
	if user.Email != "" {
		return user.Email
	}
	return "unknown"
}

// filterComments は一覧クエリのフィルターを適用する。
func filterComments(comments []model.Comment, query url.Values) []model.Comment {
	status := query.Get("status")
	search := strings.ToLower(query.Get("search"))
	author := query.Get("author")

	filtered := comments[:0:0]
	for _, c := range comments {
		if status != "" && status != "all" && string(c.Status) != status {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(c.Text), search) &&
			!strings.Contains(strings.ToLower(c.Author), search) {
			continue
		}
		if author != "" && c.UserID != author && c.Author != author {
			continue
		}
		filtered = append(filtered, c)
	}
	return filtered
}

// pagination は一覧クエリのページ番号と件数上限を解析する。
func pagination(query url.Values) (page, limit int) {
	page, _ = strconv.Atoi(query.Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ = strconv.Atoi(query.Get("limit"))
	if limit < 1 {
		limit = 100
	}
	return page, limit
}
