// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ログイン方式のラベル値。
const (
	MethodCredentials = "credentials"
	MethodGoogle      = "google"
)

// MetricsCollector はメトリクス収集のインターフェース。
// Account Service、Session Gateway、ミドルウェアから利用する。
type MetricsCollector interface {
	RecordLoginAttempt(method, outcome string)
	RecordRegistration(outcome string)
	RecordVerificationEmail(outcome string)
	RecordRouteDecision(decision string)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	loginAttempts      *prometheus.CounterVec
	registrations      *prometheus.CounterVec
	verificationEmails *prometheus.CounterVec
	routeDecisions     *prometheus.CounterVec
	httpStatus         *prometheus.CounterVec
	requestLatency     prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		loginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "belanjaku_login_attempts_total",
			Help: "ログイン試行数（方式・結果別）",
		}, []string{"method", "outcome"}),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "belanjaku_registrations_total",
			Help: "会員登録の結果別件数",
		}, []string{"outcome"}),
		verificationEmails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "belanjaku_verification_emails_total",
			Help: "確認メール送信の結果別件数",
		}, []string{"outcome"}),
		routeDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "belanjaku_route_guard_decisions_total",
			Help: "Route Guardの判定別件数",
		}, []string{"decision"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "belanjaku_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "belanjaku_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.loginAttempts,
		c.registrations,
		c.verificationEmails,
		c.routeDecisions,
		c.httpStatus,
		c.requestLatency,
	)

	return c
}

// RecordLoginAttempt はログイン試行を記録する。outcomeは成功時"success"、失敗時はErrorKind。
func (c *Collector) RecordLoginAttempt(method, outcome string) {
	c.loginAttempts.WithLabelValues(method, outcome).Inc()
}

// RecordRegistration は会員登録の結果を記録する。
func (c *Collector) RecordRegistration(outcome string) {
	c.registrations.WithLabelValues(outcome).Inc()
}

// RecordVerificationEmail は確認メール送信の結果を記録する。
func (c *Collector) RecordVerificationEmail(outcome string) {
	c.verificationEmails.WithLabelValues(outcome).Inc()
}

// RecordRouteDecision はRoute Guardの判定を記録する。
func (c *Collector) RecordRouteDecision(decision string) {
	c.routeDecisions.WithLabelValues(decision).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエスト処理時間を記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// Noop は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type Noop struct{}

func (Noop) RecordLoginAttempt(string, string)   {}
func (Noop) RecordRegistration(string)           {}
func (Noop) RecordVerificationEmail(string)      {}
func (Noop) RecordRouteDecision(string)          {}
func (Noop) RecordHTTPStatus(int)                {}
func (Noop) RecordRequestLatency(time.Duration) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Noop{}
)
