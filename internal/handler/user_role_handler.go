package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/Mimi-by-typh/lukavaka/internal/middleware"
	"github.com/Mimi-by-typh/lukavaka/internal/model"
)

// UserRoleStoreInterface はユーザーロールハンドラーが必要とするストア操作のサブセット。
type UserRoleStoreInterface interface {
	GetUserRoles(ctx context.Context) (map[string][]string, error)
	AssignRoleToUser(ctx context.Context, userID, roleID string) error
	RemoveRoleFromUser(ctx context.Context, userID, roleID string) error
	GetUserRolesList(ctx context.Context, userID string) ([]model.Role, error)
	GetUserMainRole(ctx context.Context, userID string) (*model.Role, error)
	UpdateUserPrefix(ctx context.Context, userID string, prefix, prefixColor *string) error
	GetUser(ctx context.Context, userID string) (*model.User, error)
}

// UserRoleHandler はロール割り当てAPIのHTTPハンドラー。全操作が管理者専用。
type UserRoleHandler struct {
	service AdminServiceInterface
	store   UserRoleStoreInterface
	logger  *slog.Logger
}

// NewUserRoleHandler はUserRoleHandlerを生成する。
func NewUserRoleHandler(service AdminServiceInterface, store UserRoleStoreInterface, logger *slog.Logger) *UserRoleHandler {
	return &UserRoleHandler{
		service: service,
		store:   store,
		logger:  logger,
	}
}

// assignRoleRequest はロール割り当て/解除リクエストのボディ。
type assignRoleRequest struct {
	UserID string `json:"userId"`
	RoleID string `json:"roleId"`
}

// prefixRequest はカスタムプレフィックス更新リクエストのボディ。
// nilのフィールドはクリアを意味する。
type prefixRequest struct {
	UserID       string  `json:"userId"`
	CustomPrefix *string `json:"customPrefix"`
	PrefixColor  *string `json:"prefixColor"`
}

// requireAdmin は管理者トークンを検証する。失敗時は401を書き込んでfalseを返す。
func (h *UserRoleHandler) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	if _, err := h.service.VerifyAdmin(r.Context(), middleware.BearerToken(r)); err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, "Unauthorized. Admin access required.")
		return false
	}
	return true
}

// List は全ユーザーの割り当てマップ、またはuserId指定時は個別ユーザーの
// ロール一覧・メインロール・プレフィックスを返す。
// GET /api/user-roles?userId=
func (h *UserRoleHandler) List(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	userID := r.URL.Query().Get("userId")
	if userID != "" {
		roles, err := h.store.GetUserRolesList(r.Context(), userID)
		if err != nil {
			h.logger.Error("ユーザーロールの取得に失敗しました", slog.String("error", err.Error()))
			middleware.WriteInternalServerError(w)
			return
		}
		mainRole, err := h.store.GetUserMainRole(r.Context(), userID)
		if err != nil {
			h.logger.Error("メインロールの取得に失敗しました", slog.String("error", err.Error()))
			middleware.WriteInternalServerError(w)
			return
		}
		user, err := h.store.GetUser(r.Context(), userID)
		if err != nil {
			h.logger.Error("ユーザーの取得に失敗しました", slog.String("error", err.Error()))
			middleware.WriteInternalServerError(w)
			return
		}

		resp := map[string]any{
			"success":      true,
			"roles":        roles,
			"mainRole":     mainRole,
			"customPrefix": nil,
			"prefixColor":  nil,
		}
		if user != nil {
			resp["customPrefix"] = user.CustomPrefix
			resp["prefixColor"] = user.PrefixColor
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	userRoles, err := h.store.GetUserRoles(r.Context())
	if err != nil {
		h.logger.Error("ロール割り当ての取得に失敗しました", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"userRoles": userRoles,
	})
}

// Assign はユーザーにロールを割り当てる。
// POST /api/user-roles
func (h *UserRoleHandler) Assign(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	var req assignRoleRequest
	if err := decodeJSONBody(r, &req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.UserID == "" || req.RoleID == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, "User ID and Role ID are required")
		return
	}

	if err := h.store.AssignRoleToUser(r.Context(), req.UserID, req.RoleID); err != nil {
		h.logger.Error("ロールの割り当てに失敗しました",
			slog.String("user_id", req.UserID),
			slog.String("role_id", req.RoleID),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Role assigned successfully",
	})
}

// Remove はユーザーからロールを取り除く。
// DELETE /api/user-roles （userId/roleIdはクエリまたはボディで指定）
func (h *UserRoleHandler) Remove(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	userID := r.URL.Query().Get("userId")
	roleID := r.URL.Query().Get("roleId")
	if userID == "" || roleID == "" {
		var req assignRoleRequest
		if err := decodeJSONBody(r, &req); err == nil {
			userID = req.UserID
			roleID = req.RoleID
		}
	}
	if userID == "" || roleID == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, "User ID and Role ID are required")
		return
	}

	if err := h.store.RemoveRoleFromUser(r.Context(), userID, roleID); err != nil {
		h.logger.Error("ロールの解除に失敗しました",
			slog.String("user_id", userID),
			slog.String("role_id", roleID),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Role removed successfully",
	})
}

// UpdatePrefix はユーザーのカスタムプレフィックスを更新する。
// PUT /api/user-roles
func (h *UserRoleHandler) UpdatePrefix(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	var req prefixRequest
	if err := decodeJSONBody(r, &req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.UserID == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, "User ID is required")
		return
	}

	if err := h.store.UpdateUserPrefix(r.Context(), req.UserID, req.CustomPrefix, req.PrefixColor); err != nil {
		h.logger.Error("プレフィックスの更新に失敗しました",
			slog.String("user_id", req.UserID),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "User prefix updated successfully",
	})
}
