// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// トークン検証結果のラベル値。
const (
	OutcomeValid     = "valid"
	OutcomeMalformed = "malformed"
	OutcomeExpired   = "expired"
)

// ログイン方式とその結果のラベル値。
const (
	LoginMethodPassword = "password"
	LoginMethodProvider = "provider"

	LoginSuccess = "success"
	LoginFailure = "failure"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ミドルウェアやサービス層から利用する。
type MetricsCollector interface {
	RecordTokenVerification(outcome string)
	RecordLogin(method, outcome string)
	RecordHTTPStatus(statusCode int)
	RecordTopicGeneration(duration time.Duration, err error)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	tokenVerifications *prometheus.CounterVec
	logins             *prometheus.CounterVec
	httpStatus         *prometheus.CounterVec
	topicLatency       prometheus.Histogram
	topicFailures      prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		tokenVerifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "interviewagent_token_verifications_total",
			Help: "結果別のセッショントークン検証数",
		}, []string{"outcome"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "interviewagent_logins_total",
			Help: "方式・結果別のログイン試行数",
		}, []string{"method", "outcome"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "interviewagent_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		topicLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "interviewagent_topic_generation_seconds",
			Help:    "AIトピック生成のレイテンシ（秒）",
			Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
		}),
		topicFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "interviewagent_topic_generation_failures_total",
			Help: "AIトピック生成失敗の合計数",
		}),
	}

	reg.MustRegister(
		c.tokenVerifications,
		c.logins,
		c.httpStatus,
		c.topicLatency,
		c.topicFailures,
	)

	return c
}

// RecordTokenVerification はトークン検証結果を記録する。
func (c *Collector) RecordTokenVerification(outcome string) {
	c.tokenVerifications.WithLabelValues(outcome).Inc()
}

// RecordLogin はログイン試行を記録する。
func (c *Collector) RecordLogin(method, outcome string) {
	c.logins.WithLabelValues(method, outcome).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordTopicGeneration はトピック生成のレイテンシを記録し、失敗時は失敗数も加算する。
func (c *Collector) RecordTopicGeneration(duration time.Duration, err error) {
	c.topicLatency.Observe(duration.Seconds())
	if err != nil {
		c.topicFailures.Inc()
	}
}

// Nop は何も記録しないMetricsCollector。
type Nop struct{}

func (Nop) RecordTokenVerification(string)             {}
func (Nop) RecordLogin(string, string)                 {}
func (Nop) RecordHTTPStatus(int)                       {}
func (Nop) RecordTopicGeneration(time.Duration, error) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface checks
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
