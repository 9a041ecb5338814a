// Package presence はオンライン人数の推定を提供する。
// 永続的な接続を必要とせず、クライアントが一定間隔で送信するハートビートと
// 時間ベースの期限切れでアクティブな訪問者数を近似する。
package presence

import (
	"context"
	"log/slog"
	"time"

	"github.com/Mimi-by-typh/lukavaka/internal/metrics"
	"github.com/Mimi-by-typh/lukavaka/internal/model"
)

// GuestUserID はユーザーIDを伴わないハートビートに割り当てる識別子。
const GuestUserID = "guest"

// SessionStore はトラッカーが必要とするストア操作のサブセット。
type SessionStore interface {
	GetOnlineSessions(ctx context.Context) (map[string]model.OnlineSession, error)
	SaveOnlineSessions(ctx context.Context, sessions map[string]model.OnlineSession) error
	UpdateOnlineSession(ctx context.Context, sessionID, userID string, timestamp int64) error
}

// Tracker は短命セッションの登録簿。
// セッションの状態遷移は 不在 → アクティブ（初回ハートビート）→ アクティブ
// （タイムアウト内の再ハートビートで更新）→ 不在（期限切れでパージ）。
// 明示的なクローズ遷移は存在せず、期限切れは純粋に時間ベース。
// パージはバックグラウンドタイマーではなく読み取りとハートビートの度に実行される。
type Tracker struct {
	store   SessionStore
	timeout time.Duration
	logger  *slog.Logger
	metrics metrics.MetricsCollector

	// テスト用に現在時刻を差し替え可能
	now func() time.Time
}

// NewTracker はTrackerの新しいインスタンスを生成する。
func NewTracker(store SessionStore, timeout time.Duration, logger *slog.Logger, collector metrics.MetricsCollector) *Tracker {
	return &Tracker{
		store:   store,
		timeout: timeout,
		logger:  logger,
		metrics: collector,
		now:     time.Now,
	}
}

// purge は期限切れセッションを破棄し、縮小した集合をストアへ書き戻す。
// ストア障害時はログに記録して空集合を返す（人数の下限1で吸収される）。
func (t *Tracker) purge(ctx context.Context) map[string]model.OnlineSession {
	sessions, err := t.store.GetOnlineSessions(ctx)
	if err != nil {
		t.logger.Error("オンラインセッションの取得に失敗しました", slog.String("error", err.Error()))
		return map[string]model.OnlineSession{}
	}

	now := t.now().UnixMilli()
	active := make(map[string]model.OnlineSession, len(sessions))
	for sessionID, session := range sessions {
		if session.LastActivity != 0 && now-session.LastActivity < t.timeout.Milliseconds() {
			active[sessionID] = session
		}
	}

	if err := t.store.SaveOnlineSessions(ctx, active); err != nil {
		t.logger.Error("オンラインセッションの保存に失敗しました", slog.String("error", err.Error()))
	}
	return active
}

// Heartbeat はセッションのlastActivityをupsertし、パージ後のオンライン人数を返す。
// userIDが空の場合はゲストとして記録する。人数は1を下回らない。
func (t *Tracker) Heartbeat(ctx context.Context, sessionID, userID string) (int, error) {
	if sessionID == "" {
		return 1, nil
	}
	if userID == "" {
		userID = GuestUserID
	}

	t.purge(ctx)

	if err := t.store.UpdateOnlineSession(ctx, sessionID, userID, t.now().UnixMilli()); err != nil {
		t.logger.Error("セッションの更新に失敗しました",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
	}

	sessions, err := t.store.GetOnlineSessions(ctx)
	if err != nil {
		t.logger.Error("オンラインセッションの取得に失敗しました", slog.String("error", err.Error()))
		return 1, nil
	}

	count := floorCount(len(sessions))
	t.metrics.SetOnlineUsers(count)
	return count, nil
}

// OnlineCount は期限切れセッションをパージした後の人数を返す。1を下回らない。
func (t *Tracker) OnlineCount(ctx context.Context) (int, error) {
	active := t.purge(ctx)

	count := floorCount(len(active))
	t.metrics.SetOnlineUsers(count)
	return count, nil
}

// floorCount は表示人数の下限を1に揃える（0人と表示しない）。
func floorCount(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
