package dispatch

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/aura-community/gatekeeper/internal/platform"
)

// Dequeuer is the consumer side of the event queue. A nil event with a nil
// error means nothing was available.
type Dequeuer interface {
	Dequeue(ctx context.Context) (*platform.Event, error)
}

// Worker drains the event queue into a Sink. Failed events are logged by the
// dispatcher and dropped; the reconciler repairs state on the next event.
type Worker struct {
	source  Dequeuer
	sink    Sink
	backoff time.Duration
	logger  *zap.Logger
}

// NewWorker creates a queue worker. backoff is the pause after a dequeue error.
func NewWorker(source Dequeuer, sink Sink, backoff time.Duration, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if backoff <= 0 {
		backoff = 2 * time.Second
	}
	return &Worker{source: source, sink: sink, backoff: backoff, logger: logger}
}

// Run starts the worker loop: dequeue, dispatch, repeat until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("event worker stopping")
			return
		default:
		}

		ev, err := w.source.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.logger.Warn("dequeue error", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(w.backoff):
			}
			continue
		}
		if ev == nil {
			continue
		}

		w.logger.Debug("dispatching queued event", zap.String("event_id", ev.ID), zap.String("type", string(ev.Type)))
		if err := w.sink.Dispatch(ctx, *ev); err != nil {
			w.logger.Error("dispatch failed", zap.String("event_id", ev.ID), zap.Error(err))
		}
	}
}
