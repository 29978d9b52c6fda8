// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 認証方式ラベルの値
const (
	MethodPassword = "password"
	MethodGoogle   = "google"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 認証サービス層から利用する。
type MetricsCollector interface {
	RecordLogin(method string)
	RecordRegistration(method string)
	RecordAuthFailure(reason string)
	RecordTokenRefresh()
	RecordProviderExchangeLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	logins          *prometheus.CounterVec
	registrations   *prometheus.CounterVec
	authFailures    *prometheus.CounterVec
	tokenRefreshes  prometheus.Counter
	exchangeLatency prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campusos_logins_total",
			Help: "ログイン成功の合計数（認証方式別）",
		}, []string{"method"}),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campusos_registrations_total",
			Help: "アカウント登録の合計数（認証方式別）",
		}, []string{"method"}),
		authFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campusos_auth_failures_total",
			Help: "認証失敗の合計数（理由別）",
		}, []string{"reason"}),
		tokenRefreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "campusos_token_refreshes_total",
			Help: "アクセストークン再発行の合計数",
		}),
		exchangeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "campusos_provider_exchange_duration_seconds",
			Help:    "Google認可コード交換のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.logins,
		c.registrations,
		c.authFailures,
		c.tokenRefreshes,
		c.exchangeLatency,
	)

	return c
}

// RecordLogin はログイン成功を記録する。
func (c *Collector) RecordLogin(method string) {
	c.logins.WithLabelValues(method).Inc()
}

// RecordRegistration はアカウント登録を記録する。
func (c *Collector) RecordRegistration(method string) {
	c.registrations.WithLabelValues(method).Inc()
}

// RecordAuthFailure は認証失敗を記録する。
// reasonにはエラーコード（INVALID_STATE等）を渡す。
func (c *Collector) RecordAuthFailure(reason string) {
	c.authFailures.WithLabelValues(reason).Inc()
}

// RecordTokenRefresh はアクセストークン再発行を記録する。
func (c *Collector) RecordTokenRefresh() {
	c.tokenRefreshes.Inc()
}

// RecordProviderExchangeLatency は認可コード交換のレイテンシを記録する。
func (c *Collector) RecordProviderExchangeLatency(duration time.Duration) {
	c.exchangeLatency.Observe(duration.Seconds())
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
