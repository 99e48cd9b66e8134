package bus

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/forgeline/forgeline/event"
)

// Header keys carried on every published message so consumers and
// observability layers can filter without deserializing the body.
const (
	HeaderTraceID   = "Forgeline-Trace-Id"
	HeaderTaskID    = "Forgeline-Task-Id"
	HeaderActor     = "Forgeline-Actor"
	HeaderEventType = "Forgeline-Event-Type"
)

// Publisher puts events onto the bus. Publish reports delivery as a bool:
// false means "event not delivered, caller must react". Transport trouble
// is a fallback trigger for callers, never a crash.
type Publisher interface {
	Publish(ctx context.Context, ev *event.Event) bool
}

// NoopPublisher is the disabled-bus publisher used in sequential mode. It
// always reports success so callers never branch on bus availability.
type NoopPublisher struct{}

// Publish implements Publisher as a no-op.
func (NoopPublisher) Publish(context.Context, *event.Event) bool { return true }

// conn is the slice of a live bus connection the publisher needs. Narrow so
// tests can stand in for the network.
type conn interface {
	Publish(ctx context.Context, subject string, data []byte, header nats.Header) error
	Healthy() bool
	Close()
}

// ConnectFunc establishes a bus connection.
type ConnectFunc func(ctx context.Context) (conn, error)

// PublisherConfig configures the JetStream publisher.
type PublisherConfig struct {
	URL       string
	Namespace string

	// MaxRetries is how many times a failed publish is retried after the
	// first attempt. Retry k backs off k*BackoffStep (linear).
	MaxRetries  int
	BackoffStep time.Duration
}

// DefaultPublisherConfig returns production publish defaults: three retries
// at 0.5s, 1.0s, 1.5s.
func DefaultPublisherConfig() PublisherConfig {
	return PublisherConfig{
		Namespace:   DefaultNamespace,
		MaxRetries:  3,
		BackoffStep: 500 * time.Millisecond,
	}
}

// JetStreamPublisher publishes events onto the JetStream event stream with
// persistent delivery, reconnect-on-staleness, and bounded linear-backoff
// retry. The connection is owned by this publisher and guarded by its lock;
// it is not shared.
type JetStreamPublisher struct {
	cfg     PublisherConfig
	connect ConnectFunc
	logger  *slog.Logger
	sleep   func(ctx context.Context, d time.Duration) bool

	mu   sync.Mutex
	live conn
}

// PublisherOption configures a JetStreamPublisher.
type PublisherOption func(*JetStreamPublisher)

// WithPublisherLogger sets the logger.
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *JetStreamPublisher) { p.logger = logger }
}

// withConnect replaces the connection factory (test seam).
func withConnect(fn ConnectFunc) PublisherOption {
	return func(p *JetStreamPublisher) { p.connect = fn }
}

// withSleep replaces the backoff sleeper (test seam).
func withSleep(fn func(ctx context.Context, d time.Duration) bool) PublisherOption {
	return func(p *JetStreamPublisher) { p.sleep = fn }
}

// NewJetStreamPublisher creates a publisher that dials cfg.URL lazily on
// first publish.
func NewJetStreamPublisher(cfg PublisherConfig, opts ...PublisherOption) *JetStreamPublisher {
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BackoffStep == 0 {
		cfg.BackoffStep = 500 * time.Millisecond
	}

	p := &JetStreamPublisher{
		cfg:    cfg,
		logger: slog.Default(),
		sleep:  sleepCtx,
	}
	p.connect = func(ctx context.Context) (conn, error) {
		return dialNATS(ctx, cfg.URL)
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish implements Publisher. A malformed event is a caller bug and fails
// immediately; transport failures retry with linear backoff, closing and
// recreating the connection between attempts. Exhausted retries report
// false.
func (p *JetStreamPublisher) Publish(ctx context.Context, ev *event.Event) bool {
	data, err := ev.Marshal()
	if err != nil {
		p.logger.Error("Refusing to publish malformed event",
			"event_type", ev.Type,
			"task_id", ev.TaskID,
			"error", err)
		return false
	}

	subject := ev.RoutingKey(p.cfg.Namespace)
	header := eventHeader(ev)

	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * p.cfg.BackoffStep
			p.logger.Warn("Publish failed, retrying",
				"subject", subject,
				"retry", attempt,
				"max_retries", p.cfg.MaxRetries,
				"backoff", backoff)
			publishRetries.WithLabelValues(string(ev.Actor)).Inc()
			if !p.sleep(ctx, backoff) {
				return false
			}
		}

		live, err := p.ensureConn(ctx)
		if err != nil {
			p.dropConn()
			continue
		}

		if err := live.Publish(ctx, subject, data, header); err != nil {
			p.logger.Warn("Publish attempt failed",
				"subject", subject,
				"error", err)
			p.dropConn()
			continue
		}

		eventsPublished.WithLabelValues(string(ev.Actor), ev.Type).Inc()
		return true
	}

	publishFailures.WithLabelValues(string(ev.Actor), ev.Type).Inc()
	p.logger.Error("Publish retries exhausted",
		"subject", subject,
		"task_id", ev.TaskID,
		"trace_id", ev.TraceID)
	return false
}

// Close releases the underlying connection.
func (p *JetStreamPublisher) Close() {
	p.dropConn()
}

// ensureConn returns a healthy connection, dialing a fresh one when the
// cached connection has gone stale.
func (p *JetStreamPublisher) ensureConn(ctx context.Context) (conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.live != nil && p.live.Healthy() {
		return p.live, nil
	}
	if p.live != nil {
		p.live.Close()
		p.live = nil
	}

	live, err := p.connect(ctx)
	if err != nil {
		return nil, err
	}
	p.live = live
	return live, nil
}

func (p *JetStreamPublisher) dropConn() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.live != nil {
		p.live.Close()
		p.live = nil
	}
}

// eventHeader exposes the event's addressable attributes as headers.
func eventHeader(ev *event.Event) nats.Header {
	h := nats.Header{}
	h.Set(HeaderTraceID, ev.TraceID)
	h.Set(HeaderTaskID, ev.TaskID)
	h.Set(HeaderActor, string(ev.Actor))
	h.Set(HeaderEventType, ev.Type)
	return h
}

// sleepCtx waits for d or until the context is done; it reports whether the
// full backoff elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// natsConn adapts a real NATS connection to the conn interface.
type natsConn struct {
	nc *nats.Conn
	js jetstream.JetStream
}

// dialNATS connects to the bus and opens a JetStream context.
func dialNATS(_ context.Context, url string) (conn, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, err
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, err
	}
	return &natsConn{nc: nc, js: js}, nil
}

// Publish delivers with JetStream persistence.
func (c *natsConn) Publish(ctx context.Context, subject string, data []byte, header nats.Header) error {
	_, err := c.js.PublishMsg(ctx, &nats.Msg{
		Subject: subject,
		Data:    data,
		Header:  header,
	})
	return err
}

func (c *natsConn) Healthy() bool {
	return c.nc.IsConnected()
}

func (c *natsConn) Close() {
	c.nc.Close()
}
