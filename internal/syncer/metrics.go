package syncer

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the coordinator's Prometheus collectors.
type Metrics struct {
	passes       *prometheus.CounterVec
	pushes       *prometheus.CounterVec
	pending      prometheus.Gauge
	passDuration prometheus.Histogram
	retries      prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pacer",
			Subsystem: "sync",
			Name:      "passes_total",
			Help:      "Sync passes by final status.",
		}, []string{"status"}),

		pushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pacer",
			Subsystem: "sync",
			Name:      "records_total",
			Help:      "Records handled by sync passes, labeled by kind and result.",
		}, []string{"kind", "result"}),

		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pacer",
			Subsystem: "sync",
			Name:      "pending_records",
			Help:      "Local records not yet pushed to the remote store.",
		}),

		passDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pacer",
			Subsystem: "sync",
			Name:      "pass_duration_seconds",
			Help:      "Time spent in one sync pass.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		}),

		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pacer",
			Subsystem: "sync",
			Name:      "retries_scheduled_total",
			Help:      "Delayed retries scheduled after the remote user could not be established.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.passes, m.pushes, m.pending, m.passDuration, m.retries)
	}
	return m
}

func (m *Metrics) observePass(status Status, seconds float64, report Report) {
	if m == nil {
		return
	}
	m.passes.WithLabelValues(string(status)).Inc()
	m.passDuration.Observe(seconds)
	for kind, k := range report.Kinds {
		m.pushes.WithLabelValues(string(kind), "pushed").Add(float64(k.Pushed))
		m.pushes.WithLabelValues(string(kind), "failed").Add(float64(k.Failed))
		m.pushes.WithLabelValues(string(kind), "skipped").Add(float64(k.Skipped))
	}
}

func (m *Metrics) setPending(n int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(n))
}

func (m *Metrics) retryScheduled() {
	if m == nil {
		return
	}
	m.retries.Inc()
}
