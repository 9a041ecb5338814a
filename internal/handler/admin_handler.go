package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/Mimi-by-typh/lukavaka/internal/auth"
	"github.com/Mimi-by-typh/lukavaka/internal/middleware"
	"github.com/Mimi-by-typh/lukavaka/internal/model"
)

// AdminServiceInterface は管理者ハンドラーが必要とするサービスインターフェース。
type AdminServiceInterface interface {
	// AdminLogin は管理者メールアドレスによるログインを行い、管理者トークンを返す。
	AdminLogin(ctx context.Context, email string) (string, *auth.TokenPayload, error)
	// VerifyAdmin は管理者トークンを検証する。
	VerifyAdmin(ctx context.Context, token string) (*auth.TokenPayload, error)
}

// AdminStoreInterface は管理者ハンドラーが必要とするストア操作のサブセット。
type AdminStoreInterface interface {
	GetComments(ctx context.Context) ([]model.Comment, error)
	GetOnlineSessions(ctx context.Context) (map[string]model.OnlineSession, error)
}

// AdminHandler は管理者APIのHTTPハンドラー。
// 単一エンドポイントでactionフィールドによりディスパッチする。
type AdminHandler struct {
	service AdminServiceInterface
	store   AdminStoreInterface
	logger  *slog.Logger
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(service AdminServiceInterface, store AdminStoreInterface, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		service: service,
		store:   store,
		logger:  logger,
	}
}

// adminRequest は管理者リクエストのボディ。
type adminRequest struct {
	Action string `json:"action"`
	Email  string `json:"email"`
}

// adminInfo は管理者リクエスト成功時のレスポンスに含まれる管理者情報。
type adminInfo struct {
	Email    string `json:"email"`
	Username string `json:"username"`
}

// adminStats は管理ダッシュボード用の統計情報。
type adminStats struct {
	TotalComments int `json:"totalComments"`
	TotalUsers    int `json:"totalUsers"`
	OnlineUsers   int `json:"onlineUsers"`
}

// Handle は管理者リクエストをactionに応じてディスパッチする。
// GET|POST /api/admin
func (h *AdminHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var req adminRequest
	if r.Method == http.MethodPost {
		if err := decodeJSONBody(r, &req); err != nil {
			middleware.WriteErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
	}
	if req.Action == "" {
		req.Action = r.URL.Query().Get("action")
	}

	switch {
	case req.Action == "check":
		h.check(w, r)
	case req.Action == "login" && r.Method == http.MethodPost:
		h.login(w, r, req.Email)
	case req.Action == "stats" && r.Method == http.MethodGet:
		h.stats(w, r)
	default:
		// 不明なactionでも管理者以外には内容を漏らさない
		if _, err := h.service.VerifyAdmin(r.Context(), middleware.BearerToken(r)); err != nil {
			middleware.WriteErrorResponse(w, http.StatusUnauthorized, "Unauthorized. Admin access required.")
			return
		}
		middleware.WriteErrorResponse(w, http.StatusBadRequest, "Invalid action")
	}
}

// check は管理者トークンの有効性を確認する。
func (h *AdminHandler) check(w http.ResponseWriter, r *http.Request) {
	payload, err := h.service.VerifyAdmin(r.Context(), middleware.BearerToken(r))
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"success": false,
			"isAdmin": false,
			"error":   "Not authorized as admin",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"isAdmin": true,
		"admin": adminInfo{
			Email:    payload.Email,
			Username: payload.Username,
		},
	})
}

// login は管理者メールアドレスによるログインを処理する。
func (h *AdminHandler) login(w http.ResponseWriter, r *http.Request, email string) {
	token, payload, err := h.service.AdminLogin(r.Context(), email)
	if err != nil {
		h.logger.Warn("管理者ログインに失敗しました", slog.String("error", err.Error()))
		middleware.WriteAPIError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"token":   token,
		"admin": adminInfo{
			Email:    payload.Email,
			Username: payload.Username,
		},
	})
}

// stats は管理ダッシュボード用の統計を返す。管理者のみ。
// オンライン人数はセッション中のユニークなユーザーID数で数える。
func (h *AdminHandler) stats(w http.ResponseWriter, r *http.Request) {
	if _, err := h.service.VerifyAdmin(r.Context(), middleware.BearerToken(r)); err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, "Unauthorized. Admin access required.")
		return
	}

	comments, err := h.store.GetComments(r.Context())
	if err != nil {
		h.logger.Error("統計情報の取得に失敗しました", slog.String("error", err.Error()))
		middleware.WriteErrorResponse(w, http.StatusInternalServerError, "Failed to get statistics")
		return
	}

	sessions, err := h.store.GetOnlineSessions(r.Context())
	if err != nil {
		h.logger.Error("統計情報の取得に失敗しました", slog.String("error", err.Error()))
		middleware.WriteErrorResponse(w, http.StatusInternalServerError, "Failed to get statistics")
		return
	}

	uniqueUsers := make(map[string]struct{}, len(sessions))
	for _, session := range sessions {
		if session.UserID != "" {
			uniqueUsers[session.UserID] = struct{}{}
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"stats": adminStats{
			TotalComments: len(comments),
			TotalUsers:    0,
			OnlineUsers:   len(uniqueUsers),
		},
	})
}
