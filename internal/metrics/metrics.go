// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ストレージ層・ハンドラー層から利用する。
type MetricsCollector interface {
	RecordCommentCreated()
	RecordCommentDeleted()
	RecordKVError(op string)
	RecordGitHubRequest(method string)
	RecordGitHubError()
	RecordHTTPStatus(statusCode int)
	SetOnlineUsers(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	commentCreated prometheus.Counter
	commentDeleted prometheus.Counter
	kvErrors       *prometheus.CounterVec
	githubRequests *prometheus.CounterVec
	githubErrors   prometheus.Counter
	httpStatus     *prometheus.CounterVec
	onlineUsers    prometheus.Gauge
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		commentCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lukavaka_comment_created_total",
			Help: "作成されたコメントの合計数",
		}),
		commentDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lukavaka_comment_deleted_total",
			Help: "削除されたコメントの合計数",
		}),
		kvErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lukavaka_kv_error_total",
			Help: "リモートKVストア操作の失敗数（操作別）",
		}, []string{"op"}),
		githubRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lukavaka_github_request_total",
			Help: "GitHub contents APIの呼び出し数（メソッド別）",
		}, []string{"method"}),
		githubErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lukavaka_github_error_total",
			Help: "GitHub contents API呼び出しの失敗数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lukavaka_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		onlineUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lukavaka_online_users",
			Help: "直近のハートビートから推定したオンラインユーザー数",
		}),
	}

	reg.MustRegister(
		c.commentCreated,
		c.commentDeleted,
		c.kvErrors,
		c.githubRequests,
		c.githubErrors,
		c.httpStatus,
		c.onlineUsers,
	)

	return c
}

// RecordCommentCreated はコメント作成を記録する。
func (c *Collector) RecordCommentCreated() {
	c.commentCreated.Inc()
}

// RecordCommentDeleted はコメント削除を記録する。
func (c *Collector) RecordCommentDeleted() {
	c.commentDeleted.Inc()
}

// RecordKVError はKVストア操作の失敗を記録する。
func (c *Collector) RecordKVError(op string) {
	c.kvErrors.WithLabelValues(op).Inc()
}

// RecordGitHubRequest はGitHub APIの呼び出しを記録する。
func (c *Collector) RecordGitHubRequest(method string) {
	c.githubRequests.WithLabelValues(method).Inc()
}

// RecordGitHubError はGitHub API呼び出しの失敗を記録する。
func (c *Collector) RecordGitHubError() {
	c.githubErrors.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// SetOnlineUsers は推定オンラインユーザー数を記録する。
func (c *Collector) SetOnlineUsers(count int) {
	c.onlineUsers.Set(float64(count))
}

// NopCollector は何も記録しないMetricsCollector実装。テストおよびメトリクス無効時用。
type NopCollector struct{}

func (NopCollector) RecordCommentCreated()             {}
func (NopCollector) RecordCommentDeleted()             {}
func (NopCollector) RecordKVError(op string)           {}
func (NopCollector) RecordGitHubRequest(method string) {}
func (NopCollector) RecordGitHubError()                {}
func (NopCollector) RecordHTTPStatus(statusCode int)   {}
func (NopCollector) SetOnlineUsers(count int)          {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
