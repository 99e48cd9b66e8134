package bus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline bus metrics, registered on the default registry.
var (
	eventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forgeline_events_published_total",
		Help: "Events successfully published to the bus.",
	}, []string{"actor", "event_type"})

	publishRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forgeline_publish_retries_total",
		Help: "Publish attempts retried after a transport failure.",
	}, []string{"actor"})

	publishFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forgeline_publish_failures_total",
		Help: "Publishes abandoned after exhausting the retry budget.",
	}, []string{"actor", "event_type"})

	eventsConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forgeline_events_consumed_total",
		Help: "Events acknowledged after successful handling.",
	}, []string{"role"})

	handlerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forgeline_handler_failures_total",
		Help: "Handler invocations that returned an error.",
	}, []string{"role"})

	deadLettered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forgeline_dead_lettered_total",
		Help: "Messages routed to the dead-letter subject.",
	}, []string{"role", "reason"})
)
