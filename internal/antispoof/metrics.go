package antispoof

import "github.com/prometheus/client_golang/prometheus"

var (
	decisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facegate",
		Subsystem: "antispoof",
		Name:      "decisions_total",
		Help:      "Total frame decisions by verdict.",
	}, []string{"verdict"}) // "accept", "reject", "challenge", "hold"

	challengesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facegate",
		Subsystem: "antispoof",
		Name:      "challenges_total",
		Help:      "Liveness challenge events by outcome.",
	}, []string{"outcome"}) // "started", "passed", "failed", "external"

	abnormalVarianceTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "facegate",
		Subsystem: "antispoof",
		Name:      "abnormal_variance_total",
		Help:      "Frames penalized for a too static or too erratic confidence history.",
	})

	suspicionLevel = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "facegate",
		Subsystem: "antispoof",
		Name:      "suspicion_level",
		Help:      "Suspicion level after each evaluated frame.",
		Buckets:   []float64{0, 1, 2, 3, 5, 8, 10, 15, 20},
	})
)

func init() {
	prometheus.MustRegister(
		decisionsTotal,
		challengesTotal,
		abnormalVarianceTotal,
		suspicionLevel,
	)
}
