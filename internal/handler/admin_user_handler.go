package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Mimi-by-typh/lukavaka/internal/middleware"
	"github.com/Mimi-by-typh/lukavaka/internal/model"
)

// AdminUserStoreInterface はユーザー管理ハンドラーが必要とするストア操作のサブセット。
type AdminUserStoreInterface interface {
	GetAdminEmails(ctx context.Context) ([]string, error)
	AddAdminEmail(ctx context.Context, email string) error
	GetAllUsers(ctx context.Context) ([]model.User, error)
	BanUser(ctx context.Context, userID string) error
	UnbanUser(ctx context.Context, userID string) error
}

// AdminUserHandler は管理者向けユーザー管理APIのHTTPハンドラー。全操作が管理者専用。
type AdminUserHandler struct {
	service AdminServiceInterface
	store   AdminUserStoreInterface
	logger  *slog.Logger
}

// NewAdminUserHandler はAdminUserHandlerを生成する。
func NewAdminUserHandler(service AdminServiceInterface, store AdminUserStoreInterface, logger *slog.Logger) *AdminUserHandler {
	return &AdminUserHandler{
		service: service,
		store:   store,
		logger:  logger,
	}
}

// adminUserView はユーザー一覧のAPIレスポンス形式。
type adminUserView struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	Email        *string    `json:"email"`
	Avatar       *string    `json:"avatar"`
	Provider     string     `json:"provider"`
	CreatedAt    *time.Time `json:"createdAt"`
	LastIP       *string    `json:"lastIP"`
	IPAddresses  []string   `json:"ipAddresses"`
	IsBanned     bool       `json:"isBanned"`
	BannedAt     *time.Time `json:"bannedAt"`
	CustomPrefix *string    `json:"customPrefix"`
	PrefixColor  *string    `json:"prefixColor"`
}

// banRequest はBAN/BAN解除リクエストのボディ。
type banRequest struct {
	UserID string `json:"userId"`
	Action string `json:"action"`
}

// addAdminRequest は管理者追加リクエストのボディ。
type addAdminRequest struct {
	Email string `json:"email"`
}

// requireAdmin は管理者トークンを検証する。失敗時は401を書き込んでfalseを返す。
func (h *AdminUserHandler) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	if _, err := h.service.VerifyAdmin(r.Context(), middleware.BearerToken(r)); err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, "Unauthorized. Admin access required.")
		return false
	}
	return true
}

// List は管理者メール一覧またはユーザー一覧を返す。
// GET /api/admin/users?action=admins|users
func (h *AdminUserHandler) List(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	if r.URL.Query().Get("action") == "users" {
		users, err := h.store.GetAllUsers(r.Context())
		if err != nil {
			h.logger.Error("ユーザー一覧の取得に失敗しました", slog.String("error", err.Error()))
			middleware.WriteInternalServerError(w)
			return
		}

		views := make([]adminUserView, 0, len(users))
		for i := range users {
			views = append(views, toAdminUserView(&users[i]))
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"users":   views,
			"total":   len(views),
		})
		return
	}

	// デフォルトは管理者メール一覧
	admins, err := h.store.GetAdminEmails(r.Context())
	if err != nil {
		h.logger.Error("管理者メール一覧の取得に失敗しました", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"admins":  admins,
	})
}

// AddAdmin は管理者メールアドレスを追加する。
// POST /api/admin/users
func (h *AdminUserHandler) AddAdmin(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	var req addAdminRequest
	if err := decodeJSONBody(r, &req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Email == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, "Email is required")
		return
	}

	if err := h.store.AddAdminEmail(r.Context(), req.Email); err != nil {
		h.logger.Error("管理者の追加に失敗しました",
			slog.String("email", req.Email),
			slog.String("error", err.Error()),
		)
		middleware.WriteErrorResponse(w, http.StatusInternalServerError, "Failed to add admin")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Admin added successfully",
		"email":   strings.ToLower(req.Email),
	})
}

// UpdateBan はユーザーのBAN/BAN解除を行う。
// PUT /api/admin/users
func (h *AdminUserHandler) UpdateBan(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	var req banRequest
	if err := decodeJSONBody(r, &req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.UserID == "" || req.Action == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, "User ID and action are required")
		return
	}

	switch req.Action {
	case "ban":
		if err := h.store.BanUser(r.Context(), req.UserID); err != nil {
			h.logger.Error("ユーザーのBANに失敗しました",
				slog.String("user_id", req.UserID),
				slog.String("error", err.Error()),
			)
			middleware.WriteErrorResponse(w, http.StatusInternalServerError, "Failed to ban user")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "User banned successfully",
		})
	case "unban":
		if err := h.store.UnbanUser(r.Context(), req.UserID); err != nil {
			h.logger.Error("ユーザーのBAN解除に失敗しました",
				slog.String("user_id", req.UserID),
				slog.String("error", err.Error()),
			)
			middleware.WriteErrorResponse(w, http.StatusInternalServerError, "Failed to unban user")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "User unbanned successfully",
		})
	default:
		middleware.WriteErrorResponse(w, http.StatusBadRequest, "Invalid action")
	}
}

// toAdminUserView はユーザーを一覧レスポンス形式へ変換する。
func toAdminUserView(user *model.User) adminUserView {
	view := adminUserView{
		ID:           user.ID,
		Username:     user.Username,
		Provider:     user.Provider,
		IPAddresses:  user.IPAddresses,
		IsBanned:     user.IsBanned,
		BannedAt:     user.BannedAt,
		CustomPrefix: user.CustomPrefix,
		PrefixColor:  user.PrefixColor,
	}
	if view.Username == "" {
		view.Username = user.FirstName
	}
	if view.Username == "" {
		view.Username = "Unknown"
	}
	if view.Provider == "" {
		view.Provider = "unknown"
	}
	if view.IPAddresses == nil {
		view.IPAddresses = []string{}
	}
	if user.Email != "" {
		view.Email = &user.Email
	}
	if user.Avatar != "" {
		view.Avatar = &user.Avatar
	}
	if user.LastIP != "" {
		view.LastIP = &user.LastIP
	}
	if !user.CreatedAt.IsZero() {
		view.CreatedAt = &user.CreatedAt
	} else if !user.UpdatedAt.IsZero() {
		view.CreatedAt = &user.UpdatedAt
	}
	return view
}
