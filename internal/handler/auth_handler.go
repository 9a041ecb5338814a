package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/Mimi-by-typh/lukavaka/internal/auth"
	"github.com/Mimi-by-typh/lukavaka/internal/middleware"
	"github.com/Mimi-by-typh/lukavaka/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	// LoginWithTelegram はTelegramログインウィジェットのデータを検証してログインする。
	LoginWithTelegram(ctx context.Context, data map[string]any, ip string) (*model.User, string, error)
	// LoginWithGoogle はGoogleサインインのIDトークンを検証してログインする。
	LoginWithGoogle(ctx context.Context, idToken, ip string) (*model.User, string, error)
	// VerifyToken はユーザートークンを検証してペイロードを返す。
	VerifyToken(ctx context.Context, token, ip string) (*auth.TokenPayload, error)
}

// AuthHandler は認証APIのHTTPハンドラー。
// 単一エンドポイントでactionフィールドによりディスパッチする。
type AuthHandler struct {
	service AuthServiceInterface
	logger  *slog.Logger
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		service: service,
		logger:  logger,
	}
}

// authRequest は認証リクエストのボディ。
type authRequest struct {
	Action       string         `json:"action"`
	TelegramData map[string]any `json:"telegramData"`
	IDToken      string         `json:"idToken"`
	Token        string         `json:"token"`
}

// userResponse はログイン成功レスポンスのユーザー情報。
type userResponse struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Avatar    string `json:"avatar"`
	Email     string `json:"email,omitempty"`
	Provider  string `json:"provider"`
}

// loginResponse はログイン成功のAPIレスポンス。
type loginResponse struct {
	Success bool         `json:"success"`
	User    userResponse `json:"user"`
	Token   string       `json:"token"`
}

// Handle は認証リクエストをactionに応じてディスパッチする。
// POST /api/auth
func (h *AuthHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if err := decodeJSONBody(r, &req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	switch req.Action {
	case "telegram":
		h.telegram(w, r, &req)
	case "google":
		h.google(w, r, &req)
	case "verify":
		h.verify(w, r, &req)
	case "logout":
		// トークンはステートレスなのでサーバー側の破棄対象はない
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	default:
		middleware.WriteErrorResponse(w, http.StatusBadRequest, "Invalid action")
	}
}

// telegram はTelegramログインを処理する。
func (h *AuthHandler) telegram(w http.ResponseWriter, r *http.Request, req *authRequest) {
	user, token, err := h.service.LoginWithTelegram(r.Context(), req.TelegramData, middleware.ClientIP(r))
	if err != nil {
		h.logger.Warn("Telegramログインに失敗しました", slog.String("error", err.Error()))
		middleware.WriteAPIError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Success: true,
		User:    toUserResponse(user),
		Token:   token,
	})
}

// google はGoogleログインを処理する。
func (h *AuthHandler) google(w http.ResponseWriter, r *http.Request, req *authRequest) {
	user, token, err := h.service.LoginWithGoogle(r.Context(), req.IDToken, middleware.ClientIP(r))
	if err != nil {
		h.logger.Warn("Googleログインに失敗しました", slog.String("error", err.Error()))
		middleware.WriteAPIError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Success: true,
		User:    toUserResponse(user),
		Token:   token,
	})
}

// verify は既存トークンを検証する。
func (h *AuthHandler) verify(w http.ResponseWriter, r *http.Request, req *authRequest) {
	payload, err := h.service.VerifyToken(r.Context(), req.Token, middleware.ClientIP(r))
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user":    payload,
	})
}

// toUserResponse はユーザーをAPIレスポンス形式へ変換する。
func toUserResponse(user *model.User) userResponse {
	return userResponse{
		ID:        user.ID,
		Username:  user.Username,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Avatar:    user.Avatar,
		Email:     user.Email,
		Provider:  user.Provider,
	}
}
