package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) (*Dispatcher, *Consumer, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	const queue = "test:events"
	return NewDispatcher(rdb, queue), NewConsumer(rdb, queue), rdb
}

func TestPublishConsume(t *testing.T) {
	dispatcher, consumer, rdb := newTestQueue(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan SubmittedPayload, 1)
	consumer.Handle(EventInterviewSubmitted, func(_ context.Context, payload json.RawMessage) error {
		var p SubmittedPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		received <- p
		return nil
	})

	require.NoError(t, dispatcher.Publish(ctx, EventInterviewSubmitted, SubmittedPayload{AttemptID: "att-1"}))

	go consumer.Run(ctx)

	select {
	case p := <-received:
		assert.Equal(t, "att-1", p.AttemptID)
	case <-time.After(5 * time.Second):
		t.Fatal("event was not delivered")
	}

	// Ack removes the envelope from both lists.
	require.Eventually(t, func() bool {
		n, err := rdb.LLen(ctx, "test:events:processing").Result()
		return err == nil && n == 0
	}, 2*time.Second, 10*time.Millisecond)

	n, err := rdb.LLen(ctx, "test:events").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestHandlerFailureDeadLetters(t *testing.T) {
	dispatcher, consumer, rdb := newTestQueue(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handled := make(chan struct{}, 1)
	consumer.Handle(EventInterviewSubmitted, func(context.Context, json.RawMessage) error {
		handled <- struct{}{}
		return errors.New("downstream unavailable")
	})

	require.NoError(t, dispatcher.Publish(ctx, EventInterviewSubmitted, SubmittedPayload{AttemptID: "att-1"}))

	go consumer.Run(ctx)

	select {
	case <-handled:
	case <-time.After(5 * time.Second):
		t.Fatal("handler was not invoked")
	}

	require.Eventually(t, func() bool {
		n, err := rdb.LLen(ctx, "test:events:dead").Result()
		return err == nil && n == 1
	}, 2*time.Second, 10*time.Millisecond)

	data, err := rdb.LIndex(ctx, "test:events:dead", 0).Result()
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(data), &env))
	assert.Equal(t, EventInterviewSubmitted, env.Name)
}

func TestUnknownEventDeadLetters(t *testing.T) {
	dispatcher, consumer, rdb := newTestQueue(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, dispatcher.Publish(ctx, "interview.renamed", SubmittedPayload{AttemptID: "att-1"}))

	go consumer.Run(ctx)

	require.Eventually(t, func() bool {
		n, err := rdb.LLen(ctx, "test:events:dead").Result()
		return err == nil && n == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestEnvelopeShape(t *testing.T) {
	dispatcher, _, rdb := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, dispatcher.Publish(ctx, EventInterviewSubmitted, SubmittedPayload{AttemptID: "att-9"}))

	data, err := rdb.LIndex(ctx, "test:events", 0).Result()
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(data), &env))
	assert.NotEmpty(t, env.ID)
	assert.Equal(t, EventInterviewSubmitted, env.Name)
	assert.False(t, env.EnqueuedAt.IsZero())

	var p SubmittedPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Equal(t, "att-9", p.AttemptID)
}
