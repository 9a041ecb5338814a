package presence

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Mimi-by-typh/lukavaka/internal/metrics"
	"github.com/Mimi-by-typh/lukavaka/internal/model"
)

// memorySessionStore はテスト用のインメモリSessionStore。
type memorySessionStore struct {
	sessions map[string]model.OnlineSession
	failing  bool
}

func newMemorySessionStore() *memorySessionStore {
	return &memorySessionStore{sessions: map[string]model.OnlineSession{}}
}

func (m *memorySessionStore) GetOnlineSessions(ctx context.Context) (map[string]model.OnlineSession, error) {
	if m.failing {
		return nil, errors.New("store unavailable")
	}
	out := make(map[string]model.OnlineSession, len(m.sessions))
	for k, v := range m.sessions {
		out[k] = v
	}
	return out, nil
}

func (m *memorySessionStore) SaveOnlineSessions(ctx context.Context, sessions map[string]model.OnlineSession) error {
	if m.failing {
		return errors.New("store unavailable")
	}
	m.sessions = sessions
	return nil
}

func (m *memorySessionStore) UpdateOnlineSession(ctx context.Context, sessionID, userID string, timestamp int64) error {
	if m.failing {
		return errors.New("store unavailable")
	}
	m.sessions[sessionID] = model.OnlineSession{UserID: userID, LastActivity: timestamp}
	return nil
}

func newTestTracker(store SessionStore) *Tracker {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return NewTracker(store, 15*time.Second, logger, metrics.NopCollector{})
}

func TestTracker_Heartbeat_RegistersSession(t *testing.T) {
	store := newMemorySessionStore()
	tracker := newTestTracker(store)

	count, err := tracker.Heartbeat(context.Background(), "sess1", "u1")
	if err != nil {
		t.Fatalf("Heartbeat がエラーを返した: %v", err)
	}
	if count != 1 {
		t.Errorf("オンライン人数 = %d, want 1", count)
	}
	if store.sessions["sess1"].UserID != "u1" {
		t.Errorf("登録されたセッション = %+v", store.sessions["sess1"])
	}
}

func TestTracker_Heartbeat_GuestWhenNoUserID(t *testing.T) {
	store := newMemorySessionStore()
	tracker := newTestTracker(store)

	if _, err := tracker.Heartbeat(context.Background(), "sess1", ""); err != nil {
		t.Fatalf("Heartbeat がエラーを返した: %v", err)
	}
	if store.sessions["sess1"].UserID != GuestUserID {
		t.Errorf("userId = %s, want %s", store.sessions["sess1"].UserID, GuestUserID)
	}
}

func TestTracker_Heartbeat_EmptySessionID(t *testing.T) {
	store := newMemorySessionStore()
	tracker := newTestTracker(store)

	count, err := tracker.Heartbeat(context.Background(), "", "u1")
	if err != nil {
		t.Fatalf("Heartbeat がエラーを返した: %v", err)
	}
	if count != 1 {
		t.Errorf("オンライン人数 = %d, want 1", count)
	}
	if len(store.sessions) != 0 {
		t.Errorf("セッションが登録された: %+v", store.sessions)
	}
}

// TestTracker_SessionLifecycle はt=0にハートビートしたセッションが
// t=10s（タイムアウト15s）ではカウントに含まれ、t=20sではパージされることを検証する。
func TestTracker_SessionLifecycle(t *testing.T) {
	store := newMemorySessionStore()
	tracker := newTestTracker(store)
	ctx := context.Background()

	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tracker.now = func() time.Time { return t0 }
	if _, err := tracker.Heartbeat(ctx, "sess1", "u1"); err != nil {
		t.Fatalf("Heartbeat がエラーを返した: %v", err)
	}

	// t=10s: まだアクティブ
	tracker.now = func() time.Time { return t0.Add(10 * time.Second) }
	count, err := tracker.OnlineCount(ctx)
	if err != nil {
		t.Fatalf("OnlineCount がエラーを返した: %v", err)
	}
	if count != 1 {
		t.Errorf("t=10s のオンライン人数 = %d, want 1", count)
	}
	if _, ok := store.sessions["sess1"]; !ok {
		t.Error("t=10s でセッションがパージされた")
	}

	// t=20s: 期限切れでパージ（人数は下限1）
	tracker.now = func() time.Time { return t0.Add(20 * time.Second) }
	count, err = tracker.OnlineCount(ctx)
	if err != nil {
		t.Fatalf("OnlineCount がエラーを返した: %v", err)
	}
	if count != 1 {
		t.Errorf("t=20s のオンライン人数 = %d, want 1 (下限)", count)
	}
	if _, ok := store.sessions["sess1"]; ok {
		t.Error("t=20s で期限切れセッションが残っている")
	}
}

func TestTracker_Heartbeat_RefreshExtendsLifetime(t *testing.T) {
	store := newMemorySessionStore()
	tracker := newTestTracker(store)
	ctx := context.Background()

	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tracker.now = func() time.Time { return t0 }
	if _, err := tracker.Heartbeat(ctx, "sess1", "u1"); err != nil {
		t.Fatalf("Heartbeat がエラーを返した: %v", err)
	}

	// t=10sで再ハートビート → t=20sでもまだアクティブ
	tracker.now = func() time.Time { return t0.Add(10 * time.Second) }
	if _, err := tracker.Heartbeat(ctx, "sess1", "u1"); err != nil {
		t.Fatalf("再ハートビートがエラーを返した: %v", err)
	}

	tracker.now = func() time.Time { return t0.Add(20 * time.Second) }
	count, _ := tracker.OnlineCount(ctx)
	if count != 1 {
		t.Errorf("オンライン人数 = %d, want 1", count)
	}
	if _, ok := store.sessions["sess1"]; !ok {
		t.Error("更新されたセッションがパージされた")
	}
}

func TestTracker_OnlineCount_MultipleSessions(t *testing.T) {
	store := newMemorySessionStore()
	tracker := newTestTracker(store)
	ctx := context.Background()

	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tracker.now = func() time.Time { return t0 }

	for _, id := range []string{"a", "b", "c"} {
		if _, err := tracker.Heartbeat(ctx, id, "u_"+id); err != nil {
			t.Fatalf("Heartbeat がエラーを返した: %v", err)
		}
	}

	count, err := tracker.OnlineCount(ctx)
	if err != nil {
		t.Fatalf("OnlineCount がエラーを返した: %v", err)
	}
	if count != 3 {
		t.Errorf("オンライン人数 = %d, want 3", count)
	}
}

func TestTracker_StoreFailure_FallsBackToFloor(t *testing.T) {
	store := newMemorySessionStore()
	store.failing = true
	tracker := newTestTracker(store)
	ctx := context.Background()

	count, err := tracker.OnlineCount(ctx)
	if err != nil {
		t.Fatalf("ストア障害時にエラーが表面化した: %v", err)
	}
	if count != 1 {
		t.Errorf("障害時のオンライン人数 = %d, want 1", count)
	}

	count, err = tracker.Heartbeat(ctx, "sess1", "u1")
	if err != nil {
		t.Fatalf("ストア障害時にエラーが表面化した: %v", err)
	}
	if count != 1 {
		t.Errorf("障害時のオンライン人数 = %d, want 1", count)
	}
}
