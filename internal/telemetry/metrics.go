package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTPRequestDuration tracks HTTP request latency.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "chatgate",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path", "status"},
)

// MessagesSentTotal counts outbound messages accepted by the provider,
// labelled by message kind (template, session, auto_reply).
var MessagesSentTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "chatgate",
		Subsystem: "dispatch",
		Name:      "messages_sent_total",
		Help:      "Outbound messages accepted by the provider.",
	},
	[]string{"kind"},
)

// MessagesFailedTotal counts outbound messages rejected by the provider.
var MessagesFailedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "chatgate",
		Subsystem: "dispatch",
		Name:      "messages_failed_total",
		Help:      "Outbound messages that failed at the provider.",
	},
	[]string{"kind"},
)

// QuotaDeniedTotal counts sends denied by the quota ledger.
var QuotaDeniedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "chatgate",
		Subsystem: "dispatch",
		Name:      "quota_denied_total",
		Help:      "Send attempts denied for quota reasons.",
	},
)

// WebhookEventsTotal counts provider webhook events by variant.
var WebhookEventsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "chatgate",
		Subsystem: "webhook",
		Name:      "events_total",
		Help:      "Provider webhook events received, by variant.",
	},
	[]string{"type"},
)

// AutoRepliesTotal counts auto-replies produced by the inbound command parser.
var AutoRepliesTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "chatgate",
		Subsystem: "webhook",
		Name:      "auto_replies_total",
		Help:      "Canned auto-replies triggered by inbound messages.",
	},
)

// RealtimeClients tracks currently connected realtime sessions.
var RealtimeClients = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "chatgate",
		Subsystem: "realtime",
		Name:      "connected_clients",
		Help:      "Currently connected realtime websocket sessions.",
	},
)

// NewMetricsRegistry creates a Prometheus registry with default and custom collectors.
func NewMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		HTTPRequestDuration,
		MessagesSentTotal,
		MessagesFailedTotal,
		QuotaDeniedTotal,
		WebhookEventsTotal,
		AutoRepliesTotal,
		RealtimeClients,
	)
	return reg
}
