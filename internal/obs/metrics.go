package obs

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	PollTotal    *prometheus.CounterVec // result=slots|empty|error
	ConfirmTotal *prometheus.CounterVec // outcome=confirmed|not_available|failed
	CommitTotal  prometheus.Counter

	ConfirmLatencyMS prometheus.Histogram

	WakeSkewMS prometheus.Gauge
}

// NewMetrics registers the swipe collectors on reg. Passing a fresh
// prometheus.NewRegistry() keeps tests isolated from the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PollTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swipe_polls_total",
				Help: "Inventory queries by result",
			},
			[]string{"result"},
		),
		ConfirmTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swipe_confirm_total",
				Help: "Booking confirmations by outcome",
			},
			[]string{"outcome"},
		),
		CommitTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "swipe_commit_requests_total",
			Help: "Total book (commit) requests sent",
		}),
		ConfirmLatencyMS: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "swipe_confirm_latency_ms",
			Help:    "Latency of a full two-phase confirmation (ms)",
			Buckets: prometheus.ExponentialBuckets(1, 2, 13), // 1ms .. ~4s
		}),
		WakeSkewMS: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "swipe_wake_skew_ms",
			Help: "Actual wake instant minus scheduled wake instant (ms)",
		}),
	}

	reg.MustRegister(
		m.PollTotal,
		m.ConfirmTotal,
		m.CommitTotal,
		m.ConfirmLatencyMS,
		m.WakeSkewMS,
	)
	return m
}

func (m *Metrics) Poll(result string) {
	if m == nil {
		return
	}
	m.PollTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) Commit() {
	if m == nil {
		return
	}
	m.CommitTotal.Inc()
}

func (m *Metrics) Confirm(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.ConfirmTotal.WithLabelValues(outcome).Inc()
	m.ConfirmLatencyMS.Observe(float64(took.Milliseconds()))
}

func (m *Metrics) WakeSkew(d time.Duration) {
	if m == nil {
		return
	}
	m.WakeSkewMS.Set(float64(d.Milliseconds()))
}
