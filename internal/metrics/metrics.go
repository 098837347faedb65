// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hitoshi/toshokan/internal/rental"
)

var _ rental.MetricsRecorder = (*Collector)(nil)

// Collector はPrometheusメトリクスを収集する実装。
// rental.MetricsRecorderインターフェースを満たす。
type Collector struct {
	loans           prometheus.Counter
	returns         prometheus.Counter
	loanRejected    prometheus.Counter
	registrations   prometheus.Counter
	httpStatus      *prometheus.CounterVec
	requestLatency  prometheus.Histogram
	sessionsDeleted prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		loans: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "toshokan_loans_total",
			Help: "貸出の合計数",
		}),
		returns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "toshokan_returns_total",
			Help: "返却の合計数",
		}),
		loanRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "toshokan_loan_rejected_total",
			Help: "在庫なしで拒否された貸出の合計数",
		}),
		registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "toshokan_registrations_total",
			Help: "利用者登録の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "toshokan_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "toshokan_request_latency_seconds",
			Help:    "HTTPリクエスト処理のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		sessionsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "toshokan_sessions_deleted_total",
			Help: "クリーンアップで削除された期限切れセッションの合計数",
		}),
	}

	reg.MustRegister(
		c.loans,
		c.returns,
		c.loanRejected,
		c.registrations,
		c.httpStatus,
		c.requestLatency,
		c.sessionsDeleted,
	)

	return c
}

// RecordLoan は貸出成立を記録する。
func (c *Collector) RecordLoan() {
	c.loans.Inc()
}

// RecordReturn は返却成立を記録する。
func (c *Collector) RecordReturn() {
	c.returns.Inc()
}

// RecordLoanRejected は在庫なしによる貸出拒否を記録する。
func (c *Collector) RecordLoanRejected() {
	c.loanRejected.Inc()
}

// RecordRegistration は利用者登録を記録する。
func (c *Collector) RecordRegistration() {
	c.registrations.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエスト処理のレイテンシを記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// RecordSessionsDeleted はクリーンアップで削除されたセッション数を記録する。
func (c *Collector) RecordSessionsDeleted(count int) {
	c.sessionsDeleted.Add(float64(count))
}

// statusRecorder はレスポンスのステータスコードを観測するためのラッパー。
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

// HTTPMiddleware はレスポンスのステータスコードとレイテンシを記録するミドルウェアを返す。
func (c *Collector) HTTPMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rec, r)

			c.RecordHTTPStatus(rec.statusCode)
			c.RecordRequestLatency(time.Since(start))
		})
	}
}

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
