package session

import "github.com/prometheus/client_golang/prometheus"

var (
	attemptWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facegate",
		Subsystem: "session",
		Name:      "attempt_writes_total",
		Help:      "Attempt record writes by result.",
	}, []string{"result"}) // "stored", "failed", "skipped"

	sessionsReaped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "facegate",
		Subsystem: "session",
		Name:      "reaped_total",
		Help:      "Sessions closed for inactivity.",
	})
)

func init() {
	prometheus.MustRegister(
		attemptWrites,
		sessionsReaped,
	)
}
