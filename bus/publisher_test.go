package bus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeline/forgeline/event"
)

// fakeConn records publish attempts and fails a configurable number of
// times (-1 = always).
type fakeConn struct {
	failures int
	attempts int
	subjects []string
	headers  []nats.Header
	healthy  bool
	closed   int
}

func (f *fakeConn) Publish(_ context.Context, subject string, _ []byte, header nats.Header) error {
	f.attempts++
	f.subjects = append(f.subjects, subject)
	f.headers = append(f.headers, header)
	if f.failures == -1 || f.attempts <= f.failures {
		return errors.New("connection reset")
	}
	return nil
}

func (f *fakeConn) Healthy() bool { return f.healthy }
func (f *fakeConn) Close()        { f.closed++ }

func testEvent() *event.Event {
	return event.NewTaskInitiated("task-1", "trace-1", &event.TaskInitiatedPayload{
		ProjectID:    "p1",
		Requirements: "todo app",
		FirstAgent:   event.ActorPlanner,
	})
}

func newTestPublisher(fc *fakeConn, sleeps *[]time.Duration) *JetStreamPublisher {
	dials := 0
	return NewJetStreamPublisher(DefaultPublisherConfig(),
		withConnect(func(context.Context) (conn, error) {
			dials++
			return fc, nil
		}),
		withSleep(func(_ context.Context, d time.Duration) bool {
			*sleeps = append(*sleeps, d)
			return true
		}),
	)
}

func TestNoopPublisherAlwaysSucceeds(t *testing.T) {
	var p Publisher = NoopPublisher{}
	if !p.Publish(context.Background(), testEvent()) {
		t.Error("disabled publisher must report success")
	}
}

func TestPublishFirstAttemptSuccess(t *testing.T) {
	fc := &fakeConn{healthy: true}
	var sleeps []time.Duration
	p := newTestPublisher(fc, &sleeps)

	ok := p.Publish(context.Background(), testEvent())
	require.True(t, ok)
	assert.Equal(t, 1, fc.attempts)
	assert.Empty(t, sleeps, "no backoff on first-attempt success")
	assert.Equal(t, "forgeline.task.initiated", fc.subjects[0])
}

func TestPublishSetsAddressableHeaders(t *testing.T) {
	fc := &fakeConn{healthy: true}
	var sleeps []time.Duration
	p := newTestPublisher(fc, &sleeps)

	ev := testEvent()
	require.True(t, p.Publish(context.Background(), ev))

	h := fc.headers[0]
	assert.Equal(t, ev.TraceID, h.Get(HeaderTraceID))
	assert.Equal(t, ev.TaskID, h.Get(HeaderTaskID))
	assert.Equal(t, string(ev.Actor), h.Get(HeaderActor))
	assert.Equal(t, ev.Type, h.Get(HeaderEventType))
}

func TestPublishRetriesWithLinearBackoffThenFails(t *testing.T) {
	fc := &fakeConn{failures: -1, healthy: true}
	var sleeps []time.Duration
	p := newTestPublisher(fc, &sleeps)

	ok := p.Publish(context.Background(), testEvent())
	assert.False(t, ok, "exhausted retries must report false, not panic")

	// First attempt plus exactly three retries.
	assert.Equal(t, 4, fc.attempts)

	// Strictly increasing linear backoff: 0.5s, 1.0s, 1.5s.
	require.Equal(t, []time.Duration{
		500 * time.Millisecond,
		1000 * time.Millisecond,
		1500 * time.Millisecond,
	}, sleeps)

	// The connection is closed after every failed attempt and recreated on
	// the next one.
	assert.Equal(t, 4, fc.closed)
}

func TestPublishRecoversOnRetry(t *testing.T) {
	fc := &fakeConn{failures: 2, healthy: true}
	var sleeps []time.Duration
	p := newTestPublisher(fc, &sleeps)

	ok := p.Publish(context.Background(), testEvent())
	require.True(t, ok)
	assert.Equal(t, 3, fc.attempts)
	assert.Len(t, sleeps, 2)
}

func TestPublishReconnectsStaleConnection(t *testing.T) {
	stale := &fakeConn{healthy: false}
	fresh := &fakeConn{healthy: true}

	var sleeps []time.Duration
	p := NewJetStreamPublisher(DefaultPublisherConfig(),
		withConnect(func(context.Context) (conn, error) {
			return fresh, nil
		}),
		withSleep(func(_ context.Context, d time.Duration) bool {
			sleeps = append(sleeps, d)
			return true
		}),
	)

	// Seed the stale connection, then publish: the liveness check must
	// replace it before the attempt.
	p.live = stale

	ok := p.Publish(context.Background(), testEvent())
	require.True(t, ok)
	assert.Equal(t, 0, stale.attempts, "stale connection must not be used")
	assert.Equal(t, 1, stale.closed)
	assert.Equal(t, 1, fresh.attempts)
}

func TestPublishRejectsMalformedEventWithoutIO(t *testing.T) {
	fc := &fakeConn{healthy: true}
	var sleeps []time.Duration
	p := newTestPublisher(fc, &sleeps)

	bad := event.NewReviewDecision("task-1", "trace-1", event.Artifact{},
		&event.ReviewDecisionPayload{Decision: event.Decision("maybe")})

	assert.False(t, p.Publish(context.Background(), bad))
	assert.Equal(t, 0, fc.attempts, "malformed events must not reach the wire")
}

func TestPublishStopsOnCanceledContext(t *testing.T) {
	fc := &fakeConn{failures: -1, healthy: true}
	p := NewJetStreamPublisher(DefaultPublisherConfig(),
		withConnect(func(context.Context) (conn, error) { return fc, nil }),
		withSleep(func(context.Context, time.Duration) bool { return false }), // canceled mid-backoff
	)

	assert.False(t, p.Publish(context.Background(), testEvent()))
	assert.Equal(t, 1, fc.attempts, "cancellation during backoff must stop retrying")
}
