package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	if c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordCommentCreated_IncrementsCounter はコメント作成カウンタが増加することを検証する。
func TestRecordCommentCreated_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordCommentCreated()
	c.RecordCommentCreated()

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "lukavaka_comment_created_total" {
			found = true
			val := mf.GetMetric()[0].GetCounter().GetValue()
			if val != 2 {
				t.Errorf("comment_created_total = %v, want 2", val)
			}
		}
	}
	if !found {
		t.Error("lukavaka_comment_created_total metric not found")
	}
}

// TestRecordKVError_LabelsByOp はKVエラーカウンタが操作別に記録されることを検証する。
func TestRecordKVError_LabelsByOp(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordKVError("get")
	c.RecordKVError("get")
	c.RecordKVError("set")

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	for _, mf := range metrics {
		if mf.GetName() == "lukavaka_kv_error_total" {
			if len(mf.GetMetric()) != 2 {
				t.Fatalf("expected 2 labeled metrics, got %d", len(mf.GetMetric()))
			}
			return
		}
	}
	t.Error("lukavaka_kv_error_total metric not found")
}

// TestSetOnlineUsers_SetsGauge はオンラインユーザーゲージが設定されることを検証する。
func TestSetOnlineUsers_SetsGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.SetOnlineUsers(7)

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	for _, mf := range metrics {
		if mf.GetName() == "lukavaka_online_users" {
			val := mf.GetMetric()[0].GetGauge().GetValue()
			if val != 7 {
				t.Errorf("online_users = %v, want 7", val)
			}
			return
		}
	}
	t.Error("lukavaka_online_users metric not found")
}

// TestSetupMetricsRoute_ServesMetrics は/metricsパスでメトリクスが返ることを検証する。
func TestSetupMetricsRoute_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordCommentCreated()

	handler := SetupMetricsRoute(reg)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "lukavaka_comment_created_total") {
		t.Error("response should contain lukavaka_comment_created_total metric")
	}
}
