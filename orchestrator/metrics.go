package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Task-level metrics, registered on the default registry.
var (
	tasksCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "forgeline_tasks_completed_total",
		Help: "Tasks that reached the completed status.",
	})

	tasksFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forgeline_tasks_failed_total",
		Help: "Tasks that reached the failed status.",
	}, []string{"stage"})

	modeFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "forgeline_mode_fallbacks_total",
		Help: "Event-driven initiations that fell back to sequential execution.",
	})
)
