package bus

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/forgeline/forgeline/event"
)

// Dead-letter reasons recorded on parked messages.
const (
	deadLetterReasonSchema  = "schema"
	deadLetterReasonHandler = "handler"

	// Header keys describing why and where a message was parked.
	HeaderDeadLetterReason  = "Forgeline-Deadletter-Reason"
	HeaderDeadLetterSubject = "Forgeline-Deadletter-Origin"
)

// Handler processes one well-formed event. A returned error dead-letters
// the delivery; it is never requeued blindly.
type Handler func(ctx context.Context, ev *event.Event) error

// ConsumerConfig configures a per-role durable subscription.
type ConsumerConfig struct {
	Namespace  string
	StreamName string

	// AckWait allows time for the role's LLM call before redelivery kicks in.
	AckWait time.Duration
}

// DefaultConsumerConfig returns production consumer defaults.
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Namespace:  DefaultNamespace,
		StreamName: DefaultStreamName,
		AckWait:    180 * time.Second, // Allow time for LLM
	}
}

// delivery is the slice of a JetStream message the consumer logic needs.
// jetstream.Msg satisfies it; tests use a fake.
type delivery interface {
	Data() []byte
	Subject() string
	Headers() nats.Header
	Ack() error
	Term() error
}

// deadLetterFunc parks a failed message on the dead-letter subject.
type deadLetterFunc func(ctx context.Context, msg delivery, reason string) error

// Consumer binds one role to its durable queue. Prefetch is capped at one
// in-flight message so each role processes its queue strictly serially.
// When the bus is disabled, StartConsuming is a no-op.
type Consumer struct {
	role   event.Actor
	cfg    ConsumerConfig
	js     jetstream.JetStream // nil means the bus is disabled
	logger *slog.Logger
	park   deadLetterFunc
}

// ConsumerOption configures a Consumer.
type ConsumerOption func(*Consumer)

// WithConsumerLogger sets the logger.
func WithConsumerLogger(logger *slog.Logger) ConsumerOption {
	return func(c *Consumer) { c.logger = logger }
}

// NewConsumer creates a consumer for one role. Pass a nil JetStream context
// to build a disabled consumer.
func NewConsumer(role event.Actor, js jetstream.JetStream, cfg ConsumerConfig, opts ...ConsumerOption) *Consumer {
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace
	}
	if cfg.StreamName == "" {
		cfg.StreamName = DefaultStreamName
	}
	if cfg.AckWait == 0 {
		cfg.AckWait = 180 * time.Second
	}

	c := &Consumer{
		role:   role,
		cfg:    cfg,
		js:     js,
		logger: slog.Default(),
	}
	c.park = c.publishDeadLetter
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DurableName is the role's durable consumer identity on the stream.
func (c *Consumer) DurableName() string {
	return fmt.Sprintf("%s-%s", c.cfg.Namespace, c.role)
}

// StartConsuming blocks, fetching one message at a time from the role's
// durable queue until the context is canceled. With the bus disabled it
// returns immediately.
func (c *Consumer) StartConsuming(ctx context.Context, handler Handler) error {
	if c.js == nil {
		c.logger.Debug("Bus disabled, consumer is a no-op", "role", c.role)
		return nil
	}

	stream, err := c.js.Stream(ctx, c.cfg.StreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", c.cfg.StreamName, err)
	}

	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:        c.DurableName(),
		FilterSubjects: TriggerSubjects(c.cfg.Namespace, c.role),
		AckPolicy:      jetstream.AckExplicitPolicy,
		AckWait:        c.cfg.AckWait,
		MaxAckPending:  1, // one in-flight message per role
		MaxDeliver:     1, // failed messages go to the dead letter, not back on the queue
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", c.DurableName(), err)
	}

	c.logger.Info("Consumer started",
		"role", c.role,
		"durable", c.DurableName(),
		"subjects", TriggerSubjects(c.cfg.Namespace, c.role))

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msgs, err := consumer.Fetch(1, jetstream.FetchMaxWait(5*time.Second))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Debug("Fetch timeout or error", "role", c.role, "error", err)
			continue
		}

		for msg := range msgs.Messages() {
			c.handleMessage(ctx, msg, handler)
		}

		if err := msgs.Error(); err != nil && err != context.DeadlineExceeded {
			c.logger.Warn("Message fetch error", "role", c.role, "error", err)
		}
	}
}

// handleMessage runs one delivery through deserialize → handle → ack.
// Malformed payloads and handler failures are parked on the dead-letter
// subject and terminated so poison messages never loop.
func (c *Consumer) handleMessage(ctx context.Context, msg delivery, handler Handler) {
	ev, err := event.Unmarshal(msg.Data())
	if err != nil {
		c.logger.Error("Dropping malformed message to dead letter",
			"role", c.role,
			"subject", msg.Subject(),
			"error", err)
		c.deadLetter(ctx, msg, deadLetterReasonSchema)
		return
	}

	if err := handler(ctx, ev); err != nil {
		handlerFailures.WithLabelValues(string(c.role)).Inc()
		c.logger.Error("Handler failed, routing message to dead letter",
			"role", c.role,
			"event_type", ev.Type,
			"task_id", ev.TaskID,
			"trace_id", ev.TraceID,
			"error", err)
		c.deadLetter(ctx, msg, deadLetterReasonHandler)
		return
	}

	eventsConsumed.WithLabelValues(string(c.role)).Inc()
	if err := msg.Ack(); err != nil {
		c.logger.Warn("Failed to ACK message", "role", c.role, "error", err)
	}
}

// deadLetter parks the raw message bytes, then terminates the delivery so
// the stream never redelivers it.
func (c *Consumer) deadLetter(ctx context.Context, msg delivery, reason string) {
	deadLettered.WithLabelValues(string(c.role), reason).Inc()

	if err := c.park(ctx, msg, reason); err != nil {
		c.logger.Error("Failed to park message on dead letter",
			"role", c.role,
			"reason", reason,
			"error", err)
	}
	if err := msg.Term(); err != nil {
		c.logger.Warn("Failed to terminate message", "role", c.role, "error", err)
	}
}

// publishDeadLetter copies the message onto the shared dead-letter subject,
// preserving its headers and recording the failure reason and origin.
func (c *Consumer) publishDeadLetter(ctx context.Context, msg delivery, reason string) error {
	header := nats.Header{}
	for k, vs := range msg.Headers() {
		for _, v := range vs {
			header.Add(k, v)
		}
	}
	header.Set(HeaderDeadLetterReason, reason)
	header.Set(HeaderDeadLetterSubject, msg.Subject())

	_, err := c.js.PublishMsg(ctx, &nats.Msg{
		Subject: DeadLetterSubject(c.cfg.Namespace),
		Data:    msg.Data(),
		Header:  header,
	})
	return err
}
