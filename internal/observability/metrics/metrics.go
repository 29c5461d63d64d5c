package metrics

import "github.com/prometheus/client_golang/prometheus"

// BotMetrics exposes counters/histograms for the assistant flows.
type BotMetrics struct {
	inboundTotal   *prometheus.CounterVec
	intentTotal    *prometheus.CounterVec
	ingestTotal    *prometheus.CounterVec
	linkTotal      *prometheus.CounterVec
	webhookLatency *prometheus.HistogramVec
}

func NewBotMetrics(reg prometheus.Registerer) *BotMetrics {
	m := &BotMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "archivador",
			Subsystem: "messaging",
			Name:      "inbound_webhook_total",
			Help:      "Total inbound Twilio webhooks",
		}, []string{"kind", "status"}),
		intentTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "archivador",
			Subsystem: "bot",
			Name:      "intent_total",
			Help:      "Classified intents by action and confidence",
		}, []string{"action", "confidence"}),
		ingestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "archivador",
			Subsystem: "ingest",
			Name:      "media_total",
			Help:      "Media ingestion attempts by media type and status",
		}, []string{"media_type", "status"}),
		linkTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "archivador",
			Subsystem: "linkcache",
			Name:      "resolve_total",
			Help:      "Ephemeral link resolutions",
		}, []string{"status"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "archivador",
			Subsystem: "messaging",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of Twilio webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.intentTotal, m.ingestTotal, m.linkTotal, m.webhookLatency)
	return m
}

func (m *BotMetrics) ObserveInbound(kind, status string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(kind, status).Inc()
}

func (m *BotMetrics) ObserveIntent(action, confidence string) {
	if m == nil {
		return
	}
	m.intentTotal.WithLabelValues(action, confidence).Inc()
}

func (m *BotMetrics) ObserveIngest(mediaType, status string) {
	if m == nil {
		return
	}
	m.ingestTotal.WithLabelValues(mediaType, status).Inc()
}

func (m *BotMetrics) ObserveLinkResolve(status string) {
	if m == nil {
		return
	}
	m.linkTotal.WithLabelValues(status).Inc()
}

func (m *BotMetrics) ObserveWebhookLatency(kind string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(kind).Observe(seconds)
}
