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
// 番組サービスやインポーターから利用する。
type MetricsCollector interface {
	RecordLoad(duration time.Duration)
	RecordSave(programs int, duration time.Duration)
	RecordSaveFailure(code string)
	RecordHistoryAppended(count int)
	RecordImport(added, skipped int)
	RecordImportFailure(reason string)
	RecordHTTPStatus(statusCode int)
	RecordFetchLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	loadLatency     prometheus.Histogram
	saveLatency     prometheus.Histogram
	savedPrograms   prometheus.Gauge
	saveFail        *prometheus.CounterVec
	historyAppended prometheus.Counter
	importAdded     prometheus.Counter
	importSkipped   prometheus.Counter
	importFail      *prometheus.CounterVec
	httpStatus      *prometheus.CounterVec
	fetchLatency    prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		loadLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "radioedit_load_latency_seconds",
			Help:    "番組一覧読み込みのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		saveLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "radioedit_save_latency_seconds",
			Help:    "番組一覧保存のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		savedPrograms: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "radioedit_active_programs",
			Help: "直近の保存で有効になった番組数",
		}),
		saveFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "radioedit_save_fail_total",
			Help: "エラーコード別の保存失敗数",
		}, []string{"code"}),
		historyAppended: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "radioedit_history_appended_total",
			Help: "履歴に追加されたスナップショットの合計数",
		}),
		importAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "radioedit_import_added_total",
			Help: "フィードから追加された番組の合計数",
		}),
		importSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "radioedit_import_skipped_total",
			Help: "上限または重複によりスキップされた番組の合計数",
		}),
		importFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "radioedit_import_fail_total",
			Help: "理由別のインポート失敗数",
		}, []string{"reason"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "radioedit_feed_http_status_total",
			Help: "フィード取得時のHTTPステータスコード別レスポンス数",
		}, []string{"status_code"}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "radioedit_feed_fetch_latency_seconds",
			Help:    "フィード取得のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.loadLatency,
		c.saveLatency,
		c.savedPrograms,
		c.saveFail,
		c.historyAppended,
		c.importAdded,
		c.importSkipped,
		c.importFail,
		c.httpStatus,
		c.fetchLatency,
	)

	return c
}

// RecordLoad は一覧読み込みのレイテンシを記録する。
func (c *Collector) RecordLoad(duration time.Duration) {
	c.loadLatency.Observe(duration.Seconds())
}

// RecordSave は保存成功時の番組数とレイテンシを記録する。
func (c *Collector) RecordSave(programs int, duration time.Duration) {
	c.savedPrograms.Set(float64(programs))
	c.saveLatency.Observe(duration.Seconds())
}

// RecordSaveFailure は保存失敗をエラーコード別に記録する。
func (c *Collector) RecordSaveFailure(code string) {
	c.saveFail.WithLabelValues(code).Inc()
}

// RecordHistoryAppended は履歴に追加されたスナップショット数を記録する。
func (c *Collector) RecordHistoryAppended(count int) {
	c.historyAppended.Add(float64(count))
}

// RecordImport はインポートで追加・スキップされた番組数を記録する。
func (c *Collector) RecordImport(added, skipped int) {
	c.importAdded.Add(float64(added))
	c.importSkipped.Add(float64(skipped))
}

// RecordImportFailure はインポート失敗を理由別に記録する。
func (c *Collector) RecordImportFailure(reason string) {
	c.importFail.WithLabelValues(reason).Inc()
}

// RecordHTTPStatus はフィード取得時のHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordFetchLatency はフィード取得のレイテンシを記録する。
func (c *Collector) RecordFetchLatency(duration time.Duration) {
	c.fetchLatency.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
