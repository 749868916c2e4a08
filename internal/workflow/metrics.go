package workflow

import "github.com/prometheus/client_golang/prometheus"

var (
	transitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facegate",
		Subsystem: "workflow",
		Name:      "transitions_total",
		Help:      "Committed workflow transitions.",
	}, []string{"from", "to"})

	transitionsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facegate",
		Subsystem: "workflow",
		Name:      "transitions_dropped_total",
		Help:      "Transition requests dropped without committing.",
	}, []string{"reason"}) // "invalid", "final", "conflict", "torndown", "unknown"

	transitionsPending = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "facegate",
		Subsystem: "workflow",
		Name:      "transitions_pending_total",
		Help:      "Transition requests held back awaiting confirmation.",
	})

	timeoutsFired = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facegate",
		Subsystem: "workflow",
		Name:      "timeouts_fired_total",
		Help:      "Workflow timeouts that moved an attempt to a timeout state.",
	}, []string{"kind"}) // "detection", "registration"

	timeoutsStale = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "facegate",
		Subsystem: "workflow",
		Name:      "timeouts_stale_total",
		Help:      "Timer firings discarded because the state had already changed.",
	})
)

func init() {
	prometheus.MustRegister(
		transitionsTotal,
		transitionsDropped,
		transitionsPending,
		timeoutsFired,
		timeoutsStale,
	)
}
