package testengine

import "github.com/prometheus/client_golang/prometheus"

// metrics are owned by one Runner and registered by the caller.
type metrics struct {
	testsRun  prometheus.Counter
	cacheHits prometheus.Counter
	outcomes  *prometheus.CounterVec
	duration  prometheus.Histogram
}

func newMetrics() *metrics {
	return &metrics{
		testsRun: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vela",
			Subsystem: "tests",
			Name:      "executed_total",
			Help:      "Tests evaluated by the interpreter.",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vela",
			Subsystem: "tests",
			Name:      "cache_hits_total",
			Help:      "Tests answered from the outcome cache.",
		}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vela",
			Subsystem: "tests",
			Name:      "outcomes_total",
			Help:      "Test outcomes by status.",
		}, []string{"status"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "vela",
			Subsystem: "tests",
			Name:      "duration_seconds",
			Help:      "Wall time of evaluated tests.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
	}
}

func (m *metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.testsRun, m.cacheHits, m.outcomes, m.duration}
}
