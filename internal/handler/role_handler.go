package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Mimi-by-typh/lukavaka/internal/middleware"
	"github.com/Mimi-by-typh/lukavaka/internal/model"
)

// RoleStoreInterface はロールハンドラーが必要とするストア操作のサブセット。
type RoleStoreInterface interface {
	GetAllRoles(ctx context.Context) ([]model.Role, error)
	CreateRole(ctx context.Context, input model.RoleInput) (*model.Role, error)
	UpdateRole(ctx context.Context, roleID string, updates model.RoleUpdate) (*model.Role, error)
	DeleteRole(ctx context.Context, roleID string) error
}

// RoleHandler はロール管理APIのHTTPハンドラー。全操作が管理者専用。
type RoleHandler struct {
	service AdminServiceInterface
	store   RoleStoreInterface
	logger  *slog.Logger
}

// NewRoleHandler はRoleHandlerを生成する。
func NewRoleHandler(service AdminServiceInterface, store RoleStoreInterface, logger *slog.Logger) *RoleHandler {
	return &RoleHandler{
		service: service,
		store:   store,
		logger:  logger,
	}
}

// createRoleRequest はロール作成リクエストのボディ。
type createRoleRequest struct {
	Name              string            `json:"name"`
	Color             string            `json:"color"`
	Icon              *string           `json:"icon"`
	Permissions       model.Permissions `json:"permissions"`
	IsDisplaySeparate bool              `json:"isDisplaySeparate"`
	Priority          int               `json:"priority"`
}

// updateRoleRequest はロール部分更新リクエストのボディ。nilのフィールドは変更しない。
type updateRoleRequest struct {
	RoleID            string             `json:"roleId"`
	Name              *string            `json:"name"`
	Color             *string            `json:"color"`
	Icon              *string            `json:"icon"`
	Permissions       *model.Permissions `json:"permissions"`
	IsDisplaySeparate *bool              `json:"isDisplaySeparate"`
	Priority          *int               `json:"priority"`
}

// deleteRoleRequest はロール削除リクエストのボディ。
type deleteRoleRequest struct {
	RoleID string `json:"roleId"`
}

// requireAdmin は管理者トークンを検証する。失敗時は401を書き込んでfalseを返す。
func (h *RoleHandler) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	if _, err := h.service.VerifyAdmin(r.Context(), middleware.BearerToken(r)); err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, "Unauthorized. Admin access required.")
		return false
	}
	return true
}

// List は全ロールを返す。
// GET /api/roles
func (h *RoleHandler) List(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	roles, err := h.store.GetAllRoles(r.Context())
	if err != nil {
		h.logger.Error("ロール一覧の取得に失敗しました", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"roles":   roles,
	})
}

// Create は新しいロールを作成する。
// POST /api/roles
func (h *RoleHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	var req createRoleRequest
	if err := decodeJSONBody(r, &req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, "Role name is required")
		return
	}

	role, err := h.store.CreateRole(r.Context(), model.RoleInput{
		Name:              strings.TrimSpace(req.Name),
		Color:             req.Color,
		Icon:              req.Icon,
		Permissions:       req.Permissions,
		IsDisplaySeparate: req.IsDisplaySeparate,
		Priority:          req.Priority,
	})
	if err != nil {
		h.logger.Error("ロールの作成に失敗しました", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"role":    role,
	})
}

// Update はロールを部分更新する。
// PUT /api/roles
func (h *RoleHandler) Update(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	var req updateRoleRequest
	if err := decodeJSONBody(r, &req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.RoleID == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, "Role ID is required")
		return
	}

	role, err := h.store.UpdateRole(r.Context(), req.RoleID, model.RoleUpdate{
		Name:              req.Name,
		Color:             req.Color,
		Icon:              req.Icon,
		Permissions:       req.Permissions,
		IsDisplaySeparate: req.IsDisplaySeparate,
		Priority:          req.Priority,
	})
	if err != nil {
		h.logger.Error("ロールの更新に失敗しました",
			slog.String("role_id", req.RoleID),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return
	}
	if role == nil {
		middleware.WriteErrorResponse(w, http.StatusNotFound, "Role not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"role":    role,
	})
}

// Delete はロールを削除し、全ユーザーの割り当てからも取り除く。
// DELETE /api/roles （roleIdはクエリまたはボディで指定）
func (h *RoleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	roleID := r.URL.Query().Get("roleId")
	if roleID == "" {
		var req deleteRoleRequest
		if err := decodeJSONBody(r, &req); err == nil {
			roleID = req.RoleID
		}
	}
	if roleID == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, "Role ID is required")
		return
	}

	if err := h.store.DeleteRole(r.Context(), roleID); err != nil {
		h.logger.Error("ロールの削除に失敗しました",
			slog.String("role_id", roleID),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Role deleted successfully",
	})
}
