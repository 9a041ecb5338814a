package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Mimi-by-typh/lukavaka/internal/auth"
	"github.com/Mimi-by-typh/lukavaka/internal/middleware"
	"github.com/Mimi-by-typh/lukavaka/internal/model"
	"github.com/Mimi-by-typh/lukavaka/internal/security"
)

const maxUsernameLength = 32

// ProfileStoreInterface はプロフィールハンドラーが必要とするストア操作のサブセット。
type ProfileStoreInterface interface {
	GetUser(ctx context.Context, userID string) (*model.User, error)
	UpdateUserProfile(ctx context.Context, userID string, updates model.ProfileUpdate) (*model.User, error)
}

// ProfileHandler は自分のプロフィールAPIのHTTPハンドラー。
type ProfileHandler struct {
	store  ProfileStoreInterface
	guard  security.AvatarGuardService
	logger *slog.Logger
}

// NewProfileHandler はProfileHandlerを生成する。
func NewProfileHandler(store ProfileStoreInterface, guard security.AvatarGuardService, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{
		store:  store,
		guard:  guard,
		logger: logger,
	}
}

// profileUpdateRequest はプロフィール更新リクエストのボディ。
type profileUpdateRequest struct {
	Username *string `json:"username"`
	Avatar   *string `json:"avatar"`
}

// Get は自分のプロフィールを返す。
// まだストアにない場合はトークンペイロードから組み立てた暫定プロフィールを返す。
// GET /api/profile
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	profile, err := h.store.GetUser(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("プロフィールの取得に失敗しました",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return
	}

	if profile == nil {
		fallback := profileFromToken(user)
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"user":    fallback,
			"profile": fallback,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user":    profile,
		"profile": profile,
	})
}

// Update は自分のプロフィールを更新する。
// PUT /api/profile
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req profileUpdateRequest
	if err := decodeJSONBody(r, &req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if req.Username != nil {
		if strings.TrimSpace(*req.Username) == "" {
			middleware.WriteErrorResponse(w, http.StatusBadRequest, "Username cannot be empty")
			return
		}
		if len(*req.Username) > maxUsernameLength {
			middleware.WriteErrorResponse(w, http.StatusBadRequest, "Username too long (max 32 characters)")
			return
		}
	}

	if req.Avatar != nil {
		trimmed := strings.TrimSpace(*req.Avatar)
		if trimmed == "" {
			middleware.WriteErrorResponse(w, http.StatusBadRequest, "Invalid avatar URL")
			return
		}
		if err := h.guard.ValidateAvatarURL(trimmed); err != nil {
			h.logger.Warn("許可されないアバターURLを拒否しました",
				slog.String("user_id", user.ID),
				slog.String("error", err.Error()),
			)
			middleware.WriteErrorResponse(w, http.StatusBadRequest, "Invalid avatar URL format")
			return
		}
		if err := h.guard.ProbeAvatarURL(r.Context(), trimmed); err != nil {
			h.logger.Warn("画像として到達できないアバターURLを拒否しました",
				slog.String("user_id", user.ID),
				slog.String("error", err.Error()),
			)
			middleware.WriteErrorResponse(w, http.StatusBadRequest, "Avatar URL must point to an image")
			return
		}
	}

	updates := model.ProfileUpdate{}
	if req.Username != nil {
		trimmed := strings.TrimSpace(*req.Username)
		updates.Username = &trimmed
	}
	if req.Avatar != nil {
		trimmed := strings.TrimSpace(*req.Avatar)
		updates.Avatar = &trimmed
	}
	if user.Email != "" {
		updates.Email = &user.Email
	}

	profile, err := h.store.UpdateUserProfile(r.Context(), user.ID, updates)
	if err != nil || profile == nil {
		if err != nil {
			h.logger.Error("プロフィールの更新に失敗しました",
				slog.String("user_id", user.ID),
				slog.String("error", err.Error()),
			)
		}
		middleware.WriteErrorResponse(w, http.StatusInternalServerError, "Failed to update profile")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user":    profile,
		"profile": profile,
		"message": "Profile updated successfully",
	})
}

// profileFromToken はトークンペイロードから暫定プロフィールを組み立てる。
func profileFromToken(user *auth.TokenPayload) map[string]any {
	username := user.Username
	if username == "" {
		username = user.FirstName
	}
	if username == "" {
		username = "User"
	}
	provider := user.Provider
	if provider == "" {
		provider = "google"
	}

	profile := map[string]any{
		"id":       user.ID,
		"username": username,
		"avatar":   nil,
		"email":    nil,
		"provider": provider,
	}
	if user.PhotoURL != "" {
		profile["avatar"] = user.PhotoURL
	}
	if user.Email != "" {
		profile["email"] = user.Email
	}
	return profile
}
