package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/Mimi-by-typh/lukavaka/internal/middleware"
	"github.com/Mimi-by-typh/lukavaka/internal/model"
)

// SettingsStoreInterface は設定ハンドラーが必要とするストア操作のサブセット。
type SettingsStoreInterface interface {
	GetWidgetSettings(ctx context.Context) (*model.WidgetSettings, error)
	SaveWidgetSettings(ctx context.Context, updates *model.WidgetSettingsUpdate) (*model.WidgetSettings, error)
}

// SettingsHandler はウィジェット設定APIのHTTPハンドラー。
// 読み取りは公開、書き込みは管理者のみ。
type SettingsHandler struct {
	service AdminServiceInterface
	store   SettingsStoreInterface
	logger  *slog.Logger
}

// NewSettingsHandler はSettingsHandlerを生成する。
func NewSettingsHandler(service AdminServiceInterface, store SettingsStoreInterface, logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{
		service: service,
		store:   store,
		logger:  logger,
	}
}

// Get は現在のウィジェット設定を返す。未設定時はデフォルト値で遅延初期化される。
// GET /api/widget-settings
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	settings, err := h.store.GetWidgetSettings(r.Context())
	if err != nil {
		h.logger.Error("ウィジェット設定の取得に失敗しました", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"settings": settings,
	})
}

// Update はウィジェット設定を浅いマージで更新する。管理者のみ。
// PUT /api/widget-settings
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	if _, err := h.service.VerifyAdmin(r.Context(), middleware.BearerToken(r)); err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, "Unauthorized. Admin access required.")
		return
	}

	var updates model.WidgetSettingsUpdate
	if err := decodeJSONBody(r, &updates); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	settings, err := h.store.SaveWidgetSettings(r.Context(), &updates)
	if err != nil {
		h.logger.Error("ウィジェット設定の保存に失敗しました", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"message":  "Widget settings saved successfully",
		"settings": settings,
	})
}
