package dispatch

import (
	"context"

	"github.com/aura-community/gatekeeper/internal/platform"
)

// Enqueuer is the producer side of the event queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, ev platform.Event) error
}

// QueueSink hands events to the Redis queue instead of handling them in
// process. A worker process drains the queue with its own Dispatcher.
type QueueSink struct {
	q Enqueuer
}

// NewQueueSink creates a sink that enqueues every event.
func NewQueueSink(q Enqueuer) *QueueSink {
	return &QueueSink{q: q}
}

func (s *QueueSink) Dispatch(ctx context.Context, ev platform.Event) error {
	return s.q.Enqueue(ctx, ev)
}
