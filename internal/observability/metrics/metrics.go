// Package metrics defines the Prometheus collectors of the dispatcher and the
// inbound webhook. All methods are nil-safe so collaborators can run without
// metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "booking_agent"

// DispatchMetrics exposes counters and histograms for queue processing.
type DispatchMetrics struct {
	itemsTotal    *prometheus.CounterVec
	itemDuration  *prometheus.HistogramVec
	batchDuration prometheus.Histogram
	deliveryTotal *prometheus.CounterVec
	inboundTotal  *prometheus.CounterVec
	costUSD       *prometheus.CounterVec
	agentLoops    *prometheus.HistogramVec
}

func NewDispatchMetrics(reg prometheus.Registerer) *DispatchMetrics {
	m := &DispatchMetrics{
		itemsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "items_total",
			Help:      "Queue items brought to a terminal state",
		}, []string{"intent", "outcome"}),
		itemDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "item_duration_seconds",
			Help:      "Time spent handling one queue item",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"intent"}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "batch_duration_seconds",
			Help:      "Time spent processing one batch",
			Buckets:   prometheus.DefBuckets,
		}),
		deliveryTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "delivery_total",
			Help:      "Outbound reply deliveries",
		}, []string{"status"}),
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "inbound_total",
			Help:      "Inbound Telegram webhooks",
		}, []string{"status"}),
		costUSD: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "budget",
			Name:      "committed_usd_total",
			Help:      "Committed model spend in USD",
		}, []string{"tier"}),
		agentLoops: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "agent_iterations",
			Help:      "Oracle round-trips per booking message",
			Buckets:   []float64{1, 2, 3, 4, 5},
		}, []string{"exhausted"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.itemsTotal, m.itemDuration, m.batchDuration, m.deliveryTotal, m.inboundTotal, m.costUSD, m.agentLoops)
	return m
}

// ObserveItem records a terminal item: outcome is completed, failed or denied.
func (m *DispatchMetrics) ObserveItem(intent, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.itemsTotal.WithLabelValues(intent, outcome).Inc()
	m.itemDuration.WithLabelValues(intent).Observe(seconds)
}

func (m *DispatchMetrics) ObserveBatch(seconds float64) {
	if m == nil {
		return
	}
	m.batchDuration.Observe(seconds)
}

func (m *DispatchMetrics) ObserveDelivery(ok bool) {
	if m == nil {
		return
	}
	status := "sent"
	if !ok {
		status = "failed"
	}
	m.deliveryTotal.WithLabelValues(status).Inc()
}

func (m *DispatchMetrics) ObserveInbound(status string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(status).Inc()
}

func (m *DispatchMetrics) AddCost(tier string, usd float64) {
	if m == nil || usd <= 0 {
		return
	}
	m.costUSD.WithLabelValues(tier).Add(usd)
}

func (m *DispatchMetrics) ObserveAgent(iterations int, exhausted bool) {
	if m == nil {
		return
	}
	label := "false"
	if exhausted {
		label = "true"
	}
	m.agentLoops.WithLabelValues(label).Observe(float64(iterations))
}
