// Package events provides durable named-event dispatch between the web tier
// and the background pipeline, backed by a Redis list. Publish pushes a JSON
// envelope; the consumer moves each envelope to a processing list before
// handling it, so a crashed worker leaves the event recoverable rather than
// lost.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/myoussoffi-svg/athena-portal-sub002/internal/logger"
	"github.com/redis/go-redis/v9"
)

// EventInterviewSubmitted is published after a submission commits; the
// payload carries only the attempt ID and the pipeline re-reads the row.
const EventInterviewSubmitted = "interview.submitted"

// Envelope wraps a named event and its JSON payload on the wire.
type Envelope struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// SubmittedPayload is the payload of EventInterviewSubmitted.
type SubmittedPayload struct {
	AttemptID string `json:"attempt_id"`
}

// Dispatcher publishes events onto the queue.
type Dispatcher struct {
	rdb   *redis.Client
	queue string
}

// NewDispatcher creates a new Dispatcher.
// Parameters:
//   - rdb: redis client.
//   - queue: list key events are pushed onto.
// Returns:
//   - *Dispatcher: dispatcher bound to the queue.
func NewDispatcher(rdb *redis.Client, queue string) *Dispatcher {
	return &Dispatcher{rdb: rdb, queue: queue}
}

// Publish enqueues a named event with a JSON payload.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - name: event name.
//   - payload: payload value, marshaled to JSON.
// Returns:
//   - error: non-nil if marshaling or the push fails.
func (d *Dispatcher) Publish(ctx context.Context, name string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	env := Envelope{
		ID:         uuid.New().String(),
		Name:       name,
		Payload:    raw,
		EnqueuedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal event envelope: %w", err)
	}

	if err := d.rdb.LPush(ctx, d.queue, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue event %s: %w", name, err)
	}
	return nil
}

// Handler processes one event payload. A non-nil error sends the envelope to
// the dead-letter list instead of retrying forever.
type Handler func(ctx context.Context, payload json.RawMessage) error

// Consumer pops events from the queue and dispatches them to registered
// handlers.
type Consumer struct {
	rdb      *redis.Client
	queue    string
	handlers map[string]Handler
}

// NewConsumer creates a new Consumer for the given queue.
func NewConsumer(rdb *redis.Client, queue string) *Consumer {
	return &Consumer{
		rdb:      rdb,
		queue:    queue,
		handlers: make(map[string]Handler),
	}
}

// Handle registers a handler for the named event. Not safe to call after Run
// has started.
func (c *Consumer) Handle(name string, h Handler) {
	c.handlers[name] = h
}

func (c *Consumer) processingKey() string { return c.queue + ":processing" }
func (c *Consumer) deadKey() string       { return c.queue + ":dead" }

// Run consumes events until ctx is cancelled.
// Parameters:
//   - ctx: context bounding the consume loop.
// Returns:
//   - error: ctx.Err() on cancellation, or a non-recoverable redis error.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		data, err := c.rdb.BRPopLPush(ctx, c.queue, c.processingKey(), 5*time.Second).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return ctx.Err()
			}
			logger.CtxError(ctx, "Event pop failed: %v", err)
			// Back off briefly so a down redis doesn't spin the loop
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		c.dispatch(ctx, data)
	}
}

// dispatch handles one envelope and settles it on the processing list.
func (c *Consumer) dispatch(ctx context.Context, data string) {
	var env Envelope
	if err := json.Unmarshal([]byte(data), &env); err != nil {
		logger.CtxError(ctx, "Malformed event envelope, dead-lettering: %v", err)
		c.settle(ctx, data, false)
		return
	}

	h, ok := c.handlers[env.Name]
	if !ok {
		logger.CtxWarn(ctx, "No handler for event %s, dead-lettering", env.Name)
		c.settle(ctx, data, false)
		return
	}

	start := time.Now()
	err := h(ctx, env.Payload)
	if err != nil {
		logger.With(logger.Fields{
			"event":    env.Name,
			"event_id": env.ID,
		}).WithError(err).Errorf("Event handler failed")
		c.settle(ctx, data, false)
		return
	}

	logger.With(logger.Fields{
		"event":                env.Name,
		"event_id":             env.ID,
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
	}).Infof("Event handled")
	c.settle(ctx, data, true)
}

// settle removes the envelope from the processing list, dead-lettering it
// when handling failed.
func (c *Consumer) settle(ctx context.Context, data string, ok bool) {
	if !ok {
		if err := c.rdb.LPush(ctx, c.deadKey(), data).Err(); err != nil {
			logger.CtxError(ctx, "Failed to dead-letter event: %v", err)
		}
	}
	if err := c.rdb.LRem(ctx, c.processingKey(), 1, data).Err(); err != nil {
		logger.CtxError(ctx, "Failed to ack event: %v", err)
	}
}
