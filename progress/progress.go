// Package progress provides best-effort progress reporting for pipeline
// tasks. Agents report entries without blocking: a bounded queue feeds a
// single writer goroutine, and entries are dropped when the queue is full.
// Progress never affects task outcomes.
package progress

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/forgeline/forgeline/event"
	"github.com/forgeline/forgeline/store"
)

// Entry is one progress observation from a pipeline stage.
type Entry struct {
	ID        string      `json:"id"`
	TaskID    string      `json:"task_id"`
	TraceID   string      `json:"trace_id"`
	Actor     event.Actor `json:"actor"`
	Message   string      `json:"message"`
	Timestamp time.Time   `json:"timestamp"`
}

// Sink receives progress entries. Sink errors are logged and swallowed.
type Sink interface {
	Write(ctx context.Context, e Entry) error
}

// StoreSink persists entries in the logs collection.
type StoreSink struct {
	store store.Store
}

// NewStoreSink creates a sink writing to the given store.
func NewStoreSink(s store.Store) *StoreSink {
	return &StoreSink{store: s}
}

// Write implements Sink.
func (s *StoreSink) Write(ctx context.Context, e Entry) error {
	return s.store.InsertOne(ctx, store.CollectionLogs, e.ID, e)
}

// PublishFunc delivers raw bytes to a subject. Core NATS publish satisfies
// it; progress does not need JetStream persistence.
type PublishFunc func(subject string, data []byte) error

// BusSink mirrors entries onto the per-task progress subject for live
// observers.
type BusSink struct {
	namespace string
	publish   PublishFunc
}

// NewBusSink creates a sink publishing to "{ns}.progress.{task_id}".
func NewBusSink(namespace string, publish PublishFunc) *BusSink {
	return &BusSink{namespace: namespace, publish: publish}
}

// Write implements Sink.
func (b *BusSink) Write(_ context.Context, e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return b.publish(b.namespace+".progress."+e.TaskID, data)
}

// Reporter fans entries out to its sinks from a single writer goroutine.
type Reporter struct {
	logger *slog.Logger
	sinks  []Sink

	queue chan Entry

	mu      sync.Mutex
	dropped int
	closed  bool
	done    chan struct{}
}

// ReporterOption configures a Reporter.
type ReporterOption func(*Reporter)

// WithReporterLogger sets the logger.
func WithReporterLogger(logger *slog.Logger) ReporterOption {
	return func(r *Reporter) { r.logger = logger }
}

// NewReporter creates a reporter with the given queue bound and sinks, and
// starts its writer goroutine.
func NewReporter(bufferSize int, sinks []Sink, opts ...ReporterOption) *Reporter {
	if bufferSize < 1 {
		bufferSize = 1
	}

	r := &Reporter{
		logger: slog.Default(),
		sinks:  sinks,
		queue:  make(chan Entry, bufferSize),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}

	go r.run()
	return r
}

// Report queues an entry without blocking. When the queue is full the entry
// is dropped and counted.
func (r *Reporter) Report(taskID, traceID string, actor event.Actor, message string) {
	e := Entry{
		ID:        uuid.New().String(),
		TaskID:    taskID,
		TraceID:   traceID,
		Actor:     actor,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	select {
	case r.queue <- e:
	default:
		r.mu.Lock()
		r.dropped++
		dropped := r.dropped
		r.mu.Unlock()
		r.logger.Debug("Progress queue full, dropping entry",
			"task_id", taskID,
			"dropped_total", dropped)
	}
}

// Dropped returns how many entries have been dropped since creation.
func (r *Reporter) Dropped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Close stops accepting entries, drains the queue, and waits for the writer
// to finish.
func (r *Reporter) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	close(r.queue)
	<-r.done
}

// run is the single writer loop. Sink failures are logged, never propagated.
func (r *Reporter) run() {
	defer close(r.done)

	for e := range r.queue {
		for _, sink := range r.sinks {
			if err := sink.Write(context.Background(), e); err != nil {
				r.logger.Warn("Progress sink write failed",
					"task_id", e.TaskID,
					"actor", e.Actor,
					"error", err)
			}
		}
	}
}
