package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aura-community/gatekeeper/internal/platform"
)

const (
	// QueueEvents is the Redis list key for gateway event envelopes.
	QueueEvents = "gatekeeper:events"
	// PollTimeout bounds each blocking pop so shutdown is noticed promptly.
	PollTimeout = 5 * time.Second
	// ErrorBackoff is the delay after a failed pop.
	ErrorBackoff = 2 * time.Second
)

// Job is the envelope stored in Redis. Payload is the JSON-encoded event.
type Job struct {
	ID        string             `json:"id"`
	Type      platform.EventType `json:"type"`
	Payload   json.RawMessage    `json:"payload"`
	CreatedAt time.Time          `json:"created_at"`
}

// Queue enqueues and dequeues gateway events via a Redis list.
type Queue struct {
	client *redis.Client
	key    string
	logger *zap.Logger
}

// NewQueue creates a Redis-backed event queue on QueueEvents.
func NewQueue(client *redis.Client, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, key: QueueEvents, logger: logger}
}

// Encode wraps ev in a job envelope.
func Encode(ev platform.Event) ([]byte, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	job := Job{ID: ev.ID, Type: ev.Type, Payload: body, CreatedAt: time.Now().UTC()}
	raw, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal job: %w", err)
	}
	return raw, nil
}

// Decode unwraps a job envelope back into its event.
func Decode(raw []byte) (*platform.Event, error) {
	var job Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	var ev platform.Event
	if err := json.Unmarshal(job.Payload, &ev); err != nil {
		return nil, fmt.Errorf("unmarshal event %s: %w", job.ID, err)
	}
	if ev.Type != job.Type {
		return nil, fmt.Errorf("job %s: envelope type %q does not match event type %q", job.ID, job.Type, ev.Type)
	}
	return &ev, nil
}

// Enqueue appends ev to the queue.
func (q *Queue) Enqueue(ctx context.Context, ev platform.Event) error {
	raw, err := Encode(ev)
	if err != nil {
		return err
	}
	if err := q.client.RPush(ctx, q.key, raw).Err(); err != nil {
		return fmt.Errorf("rpush: %w", err)
	}
	q.logger.Debug("enqueued event", zap.String("event_id", ev.ID), zap.String("type", string(ev.Type)))
	return nil
}

// Dequeue waits up to PollTimeout for an event. It returns (nil, nil) when
// the wait expires or the entry is malformed; malformed entries are dropped.
func (q *Queue) Dequeue(ctx context.Context) (*platform.Event, error) {
	result, err := q.client.BLPop(ctx, PollTimeout, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if len(result) < 2 {
		return nil, nil
	}
	ev, err := Decode([]byte(result[1]))
	if err != nil {
		q.logger.Warn("invalid queued event", zap.String("raw", result[1]), zap.Error(err))
		return nil, nil
	}
	return ev, nil
}

// Len reports the number of queued events.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}
