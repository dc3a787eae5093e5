// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ランディングページ、レポーター、バックエンド、ワーカーから利用する。
type MetricsCollector interface {
	RecordReporterCall(operation string)
	RecordReporterFailure(operation, kind string)
	RecordAssignment(bucket string)
	RecordSignup(bucket string, succeeded bool)
	RecordClickLogged(groupID int64)
	RecordHTTPStatus(statusCode int)
	SetGroupStats(groupName string, clicks, uniqueUsers int, ctr float64)
	RecordStatsRefreshLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	reporterCalls    *prometheus.CounterVec
	reporterFailures *prometheus.CounterVec
	assignments      *prometheus.CounterVec
	signups          *prometheus.CounterVec
	clicksLogged     *prometheus.CounterVec
	httpStatus       *prometheus.CounterVec
	groupClicks      *prometheus.GaugeVec
	groupUniqueUsers *prometheus.GaugeVec
	groupCTR         *prometheus.GaugeVec
	statsLatency     prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		reporterCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cometab_reporter_calls_total",
			Help: "バックエンド呼び出し成功の合計数",
		}, []string{"operation"}),
		reporterFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cometab_reporter_failures_total",
			Help: "バックエンド呼び出し失敗の合計数",
		}, []string{"operation", "kind"}),
		assignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cometab_assignments_total",
			Help: "ページ表示時のバケット割り当て数",
		}, []string{"bucket"}),
		signups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cometab_signups_total",
			Help: "サインアップフォーム送信数",
		}, []string{"bucket", "result"}),
		clicksLogged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cometab_clicks_logged_total",
			Help: "記録されたクリックイベントの合計数",
		}, []string{"group_id"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cometab_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		groupClicks: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cometab_group_clicks",
			Help: "グループ別のクリック総数",
		}, []string{"group"}),
		groupUniqueUsers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cometab_group_unique_users",
			Help: "グループ別のクリックしたユニークユーザー数",
		}, []string{"group"}),
		groupCTR: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cometab_group_ctr",
			Help: "グループ別のクリック率",
		}, []string{"group"}),
		statsLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cometab_stats_refresh_latency_seconds",
			Help:    "統計更新のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.reporterCalls,
		c.reporterFailures,
		c.assignments,
		c.signups,
		c.clicksLogged,
		c.httpStatus,
		c.groupClicks,
		c.groupUniqueUsers,
		c.groupCTR,
		c.statsLatency,
	)

	return c
}

// RecordReporterCall はバックエンド呼び出しの成功を記録する。
func (c *Collector) RecordReporterCall(operation string) {
	c.reporterCalls.WithLabelValues(operation).Inc()
}

// RecordReporterFailure はバックエンド呼び出しの失敗を種別付きで記録する。
func (c *Collector) RecordReporterFailure(operation, kind string) {
	c.reporterFailures.WithLabelValues(operation, kind).Inc()
}

// RecordAssignment はページ表示時のバケットを記録する。
func (c *Collector) RecordAssignment(bucket string) {
	c.assignments.WithLabelValues(bucket).Inc()
}

// RecordSignup はサインアップ送信の結果を記録する。
func (c *Collector) RecordSignup(bucket string, succeeded bool) {
	result := "success"
	if !succeeded {
		result = "failed"
	}
	c.signups.WithLabelValues(bucket, result).Inc()
}

// RecordClickLogged はバックエンドで保存したクリックを記録する。
func (c *Collector) RecordClickLogged(groupID int64) {
	c.clicksLogged.WithLabelValues(strconv.FormatInt(groupID, 10)).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// SetGroupStats はグループ別の集計値をゲージに反映する。
func (c *Collector) SetGroupStats(groupName string, clicks, uniqueUsers int, ctr float64) {
	c.groupClicks.WithLabelValues(groupName).Set(float64(clicks))
	c.groupUniqueUsers.WithLabelValues(groupName).Set(float64(uniqueUsers))
	c.groupCTR.WithLabelValues(groupName).Set(ctr)
}

// RecordStatsRefreshLatency は統計更新のレイテンシを記録する。
func (c *Collector) RecordStatsRefreshLatency(duration time.Duration) {
	c.statsLatency.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// ワーカーのようにAPIルーターを持たないプロセスで使う。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
