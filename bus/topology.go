// Package bus provides the publish/subscribe layer of the event-driven
// orchestration mode: one JetStream stream acts as the topic exchange, one
// durable per-role consumer as each role's queue, and a shared dead-letter
// subject for poison messages.
package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/forgeline/forgeline/event"
)

// Defaults for the event topology.
const (
	DefaultNamespace  = "forgeline"
	DefaultStreamName = "FORGELINE_EVENTS"

	// defaultMaxMsgs bounds queue length; defaultMaxAge is the message TTL.
	defaultMaxMsgs = 100_000
	defaultMaxAge  = 24 * time.Hour
)

// DeadLetterSubject is where messages that failed processing are parked.
func DeadLetterSubject(namespace string) string {
	return namespace + ".deadletter"
}

// ProgressSubject carries best-effort progress entries for live observers.
func ProgressSubject(namespace, taskID string) string {
	return fmt.Sprintf("%s.progress.%s", namespace, taskID)
}

// TriggerSubjects returns the routing keys that wake the given role. Each
// role is triggered by exactly one upstream event type, except the
// orchestrator, which catches completion and failure events with wildcards.
func TriggerSubjects(namespace string, role event.Actor) []string {
	switch role {
	case event.ActorPlanner:
		return []string{namespace + "." + event.TypeTaskInitiated}
	case event.ActorArchitect:
		return []string{namespace + "." + event.TypePlanCreated}
	case event.ActorCoder:
		return []string{namespace + "." + event.TypeArchitectureProposed}
	case event.ActorTester:
		return []string{namespace + "." + event.TypeCodePROpened}
	case event.ActorReviewer:
		return []string{namespace + "." + event.TypeTestResults}
	case event.ActorDeployer:
		return []string{namespace + "." + event.TypeReviewDecision}
	case event.ActorExplorer:
		return []string{namespace + "." + event.TypeExplorerScanRequest}
	case event.ActorOrchestrator:
		return []string{
			namespace + ".*.failed",
			namespace + "." + event.TypeDeployStatus,
		}
	}
	return nil
}

// TopologyConfig configures the event stream.
type TopologyConfig struct {
	Namespace  string
	StreamName string
	MaxMsgs    int64
	MaxAge     time.Duration
}

// DefaultTopologyConfig returns the production topology defaults.
func DefaultTopologyConfig() TopologyConfig {
	return TopologyConfig{
		Namespace:  DefaultNamespace,
		StreamName: DefaultStreamName,
		MaxMsgs:    defaultMaxMsgs,
		MaxAge:     defaultMaxAge,
	}
}

// EnsureStream creates or updates the event stream covering every subject
// under the namespace, including the dead-letter subject so parked messages
// stay replayable.
func EnsureStream(ctx context.Context, js jetstream.JetStream, cfg TopologyConfig) (jetstream.Stream, error) {
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace
	}
	if cfg.StreamName == "" {
		cfg.StreamName = DefaultStreamName
	}
	if cfg.MaxMsgs == 0 {
		cfg.MaxMsgs = defaultMaxMsgs
	}
	if cfg.MaxAge == 0 {
		cfg.MaxAge = defaultMaxAge
	}

	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      cfg.StreamName,
		Subjects:  []string{cfg.Namespace + ".>"},
		Retention: jetstream.LimitsPolicy,
		MaxMsgs:   cfg.MaxMsgs,
		MaxAge:    cfg.MaxAge,
		Storage:   jetstream.FileStorage,
	})
	if err != nil {
		return nil, fmt.Errorf("ensure stream %s: %w", cfg.StreamName, err)
	}
	return stream, nil
}
