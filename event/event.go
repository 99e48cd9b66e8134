// Package event defines the canonical message exchanged between pipeline
// stages: a versioned envelope with typed, validated payloads and
// deterministic routing-key derivation.
//
// Events are immutable once published. Stages never mutate an event in
// place; each stage constructs a brand-new event carrying the same trace
// and task identifiers forward.
package event

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Version is the envelope schema tag, kept for forward compatibility.
const Version = "1"

// Event types, one per pipeline transition. The dotted form doubles as a
// human-readable tag and the suffix of the bus routing key.
const (
	TypeTaskInitiated         = "task.initiated"
	TypePlanCreated           = "plan.created"
	TypeArchitectureProposed  = "architecture.proposed"
	TypeCodePROpened          = "code.pr.opened"
	TypeTestResults           = "test.results"
	TypeReviewDecision        = "review.decision"
	TypeDeployStatus          = "deploy.status"
	TypeExplorerScanRequest   = "explorer.scan.request"
	TypeExplorerScanCompleted = "explorer.scan.completed"
)

// FailureType derives the event type published when a role's processing
// fails, e.g. "coder.failed".
func FailureType(actor Actor) string {
	return fmt.Sprintf("%s.failed", actor)
}

// Event is the envelope for one pipeline transition.
type Event struct {
	Version   string            `json:"version"`
	TraceID   string            `json:"trace_id"`
	TaskID    string            `json:"task_id"`
	Actor     Actor             `json:"actor"`
	Type      string            `json:"event_type"`
	Repo      string            `json:"repo"`
	Branch    string            `json:"branch"`
	Commit    string            `json:"commit"`
	Timestamp time.Time         `json:"timestamp"`
	Payload   Payload           `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// RoutingKey derives the bus topic for this event under the given
// namespace. Same event type, same key, always.
func (e *Event) RoutingKey(namespace string) string {
	return namespace + "." + e.Type
}

// Meta returns the metadata value for key, or "" when absent.
func (e *Event) Meta(key string) string {
	return e.Metadata[key]
}

// WithMeta returns a shallow copy of the event with the metadata key set.
// The original event is left untouched.
func (e *Event) WithMeta(key, value string) *Event {
	clone := *e
	clone.Metadata = make(map[string]string, len(e.Metadata)+1)
	for k, v := range e.Metadata {
		clone.Metadata[k] = v
	}
	clone.Metadata[key] = value
	return &clone
}

// wireEvent is the JSON wire shape; the payload stays raw until the
// registry resolves its concrete type.
type wireEvent struct {
	Version   string            `json:"version"`
	TraceID   string            `json:"trace_id"`
	TaskID    string            `json:"task_id"`
	Actor     Actor             `json:"actor"`
	Type      string            `json:"event_type"`
	Repo      string            `json:"repo"`
	Branch    string            `json:"branch"`
	Commit    string            `json:"commit"`
	Timestamp time.Time         `json:"timestamp"`
	Payload   json.RawMessage   `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Marshal serializes the event to its JSON wire format, validating the
// payload first so malformed events never reach the bus.
func (e *Event) Marshal() ([]byte, error) {
	if e.Payload == nil {
		return nil, &SchemaError{EventType: e.Type, Err: fmt.Errorf("payload is required")}
	}
	if err := e.Payload.Validate(); err != nil {
		return nil, &SchemaError{EventType: e.Type, Err: err}
	}

	raw, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	wire := wireEvent{
		Version:   e.Version,
		TraceID:   e.TraceID,
		TaskID:    e.TaskID,
		Actor:     e.Actor,
		Type:      e.Type,
		Repo:      e.Repo,
		Branch:    e.Branch,
		Commit:    e.Commit,
		Timestamp: e.Timestamp,
		Payload:   raw,
		Metadata:  e.Metadata,
	}
	return json.Marshal(wire)
}

// Unmarshal deserializes an event from its JSON wire format. The payload is
// resolved through the registry by event type and validated; a structurally
// invalid payload fails with a SchemaError rather than silently dropping
// fields.
func Unmarshal(data []byte) (*Event, error) {
	var wire wireEvent
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, &SchemaError{Err: fmt.Errorf("decode envelope: %w", err)}
	}

	if !wire.Actor.Valid() {
		return nil, &SchemaError{EventType: wire.Type, Err: fmt.Errorf("unknown actor: %q", wire.Actor)}
	}

	payload, ok := newPayload(wire.Type)
	if !ok {
		return nil, &SchemaError{EventType: wire.Type, Err: fmt.Errorf("unregistered event type")}
	}

	dec := json.NewDecoder(bytes.NewReader(wire.Payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(payload); err != nil {
		return nil, &SchemaError{EventType: wire.Type, Err: fmt.Errorf("decode payload: %w", err)}
	}
	if err := payload.Validate(); err != nil {
		return nil, &SchemaError{EventType: wire.Type, Err: err}
	}

	return &Event{
		Version:   wire.Version,
		TraceID:   wire.TraceID,
		TaskID:    wire.TaskID,
		Actor:     wire.Actor,
		Type:      wire.Type,
		Repo:      wire.Repo,
		Branch:    wire.Branch,
		Commit:    wire.Commit,
		Timestamp: wire.Timestamp,
		Payload:   payload,
		Metadata:  wire.Metadata,
	}, nil
}
