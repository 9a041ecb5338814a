package handler

import (
	"context"
	"log/slog"
	"net/http"
)

// PresenceTrackerInterface はオンラインハンドラーが必要とするトラッカーインターフェース。
type PresenceTrackerInterface interface {
	// Heartbeat はセッションの生存通知を記録し、現在のオンライン人数を返す。
	Heartbeat(ctx context.Context, sessionID, userID string) (int, error)
	// OnlineCount は現在のオンライン人数を返す。
	OnlineCount(ctx context.Context) (int, error)
}

// OnlineHandler はオンライン人数APIのHTTPハンドラー。
// ストレージ障害時もウィジェットの表示が壊れないよう、エラーは人数1に握り潰す。
type OnlineHandler struct {
	tracker PresenceTrackerInterface
	logger  *slog.Logger
}

// NewOnlineHandler はOnlineHandlerを生成する。
func NewOnlineHandler(tracker PresenceTrackerInterface, logger *slog.Logger) *OnlineHandler {
	return &OnlineHandler{
		tracker: tracker,
		logger:  logger,
	}
}

// onlineRequest はハートビートリクエストのボディ。
type onlineRequest struct {
	UserID string `json:"userId"`
}

// Count は現在のオンライン人数を返す。
// GET /api/online
func (h *OnlineHandler) Count(w http.ResponseWriter, r *http.Request) {
	count, err := h.tracker.OnlineCount(r.Context())
	if err != nil {
		h.logger.Error("オンライン人数の取得に失敗しました", slog.String("error", err.Error()))
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "online": 1})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"online":  count,
	})
}

// Heartbeat はセッションの生存通知を受け付け、オンライン人数を返す。
// POST /api/online
func (h *OnlineHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get("X-Session-ID")
	if sessionID == "" {
		sessionID = r.Header.Get("session-id")
	}

	if sessionID == "" {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "online": 1})
		return
	}

	var req onlineRequest
	// ボディなしのハートビートはゲスト扱い
	_ = decodeJSONBody(r, &req)

	count, err := h.tracker.Heartbeat(r.Context(), sessionID, req.UserID)
	if err != nil {
		h.logger.Error("ハートビートの処理に失敗しました",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "online": 1})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"online":    count,
		"sessionId": sessionID,
	})
}
