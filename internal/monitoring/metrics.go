package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 监控指标
type Metrics struct {
	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 地址指标
	AddressesCreated prometheus.Counter
	AddressesDeleted prometheus.Counter

	// 收信指标
	IntakeAccepted *prometheus.CounterVec // 按 kind: disposable / proxy
	IntakeRejected *prometheus.CounterVec // 按 reason

	// 投递管线指标
	MessagesStored    prometheus.Counter
	MessagesForwarded *prometheus.CounterVec // 按 direction: redirect / proxy_reply
	ForwardFailures   *prometheus.CounterVec

	// 出站指标
	OutboundSent   prometheus.Counter
	OutboundFailed prometheus.Counter

	// 清扫指标
	SweepAddresses prometheus.Counter
	SweepEmails    prometheus.Counter
	SweepProxies   prometheus.Counter
	SweepFailures  prometheus.Counter
	SweepDuration  prometheus.Histogram

	// 错误指标
	PanicsTotal prometheus.Counter
}

// NewMetrics 创建监控指标
func NewMetrics() *Metrics {
	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dropmail_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dropmail_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		AddressesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dropmail_addresses_created_total",
			Help: "Total number of disposable addresses created",
		}),
		AddressesDeleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dropmail_addresses_deleted_total",
			Help: "Total number of disposable addresses deleted",
		}),
		IntakeAccepted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dropmail_intake_accepted_total",
				Help: "Total number of accepted SMTP recipients",
			},
			[]string{"kind"},
		),
		IntakeRejected: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dropmail_intake_rejected_total",
				Help: "Total number of rejected SMTP recipients",
			},
			[]string{"reason"},
		),
		MessagesStored: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dropmail_messages_stored_total",
			Help: "Total number of messages stored",
		}),
		MessagesForwarded: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dropmail_messages_forwarded_total",
				Help: "Total number of messages forwarded",
			},
			[]string{"direction"},
		),
		ForwardFailures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dropmail_forward_failures_total",
				Help: "Total number of forwarding failures",
			},
			[]string{"direction"},
		),
		OutboundSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dropmail_outbound_sent_total",
			Help: "Total number of outbound messages sent via the API",
		}),
		OutboundFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dropmail_outbound_failed_total",
			Help: "Total number of outbound send failures",
		}),
		SweepAddresses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dropmail_sweep_addresses_total",
			Help: "Total number of expired addresses reclaimed",
		}),
		SweepEmails: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dropmail_sweep_emails_total",
			Help: "Total number of emails removed by the sweeper",
		}),
		SweepProxies: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dropmail_sweep_proxies_total",
			Help: "Total number of proxy mappings removed by the sweeper",
		}),
		SweepFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dropmail_sweep_failures_total",
			Help: "Total number of per-address sweep failures",
		}),
		SweepDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "dropmail_sweep_duration_seconds",
			Help:    "Duration of a full sweep pass in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		PanicsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "dropmail_panics_total",
			Help: "Total number of recovered panics",
		}),
	}
}

// RecordHTTPRequest 记录一次 HTTP 请求
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordIntakeAccepted 记录一次收件人通过
func (m *Metrics) RecordIntakeAccepted(kind string) {
	m.IntakeAccepted.WithLabelValues(kind).Inc()
}

// RecordIntakeRejected 记录一次收件人拒绝
func (m *Metrics) RecordIntakeRejected(reason string) {
	m.IntakeRejected.WithLabelValues(reason).Inc()
}

// RecordForwarded 记录一次转发成功
func (m *Metrics) RecordForwarded(direction string) {
	m.MessagesForwarded.WithLabelValues(direction).Inc()
}

// RecordForwardFailure 记录一次转发失败
func (m *Metrics) RecordForwardFailure(direction string) {
	m.ForwardFailures.WithLabelValues(direction).Inc()
}

// HTTPHandler 返回 /metrics 端点的处理器
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.Handler()
}
