// Package dispatch routes inbound gateway events to their handlers, either
// inline in bounded goroutines or through the Redis event queue.
package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/aura-community/gatekeeper/internal/platform"
)

const (
	DefaultMaxConcurrentEvents = 64
	DefaultEventTimeout        = 30 * time.Second
)

// Reconciler handles the events that move members through the gate.
type Reconciler interface {
	HandleJoin(ctx context.Context, ev platform.MemberJoined) error
	HandleReaction(ctx context.Context, ev platform.ReactionAdded) error
}

// CommandHandler handles prefix commands in guild messages.
type CommandHandler interface {
	Handle(ctx context.Context, ev platform.MessageCreated) error
}

// Sink accepts events from the gateway. Dispatch must not block on handler work.
type Sink interface {
	Dispatch(ctx context.Context, ev platform.Event) error
}

// Options tunes a Dispatcher.
type Options struct {
	MaxConcurrentEvents int
	EventTimeout        time.Duration
}

// Dispatcher runs each event in its own goroutine under a concurrency cap.
type Dispatcher struct {
	reconciler Reconciler
	commands   CommandHandler
	sem        *semaphore.Weighted
	timeout    time.Duration
	wg         sync.WaitGroup
	logger     *zap.Logger
}

// New creates a dispatcher. commands may be nil to ignore messages.
func New(reconciler Reconciler, commands CommandHandler, opts Options, logger *zap.Logger) *Dispatcher {
	if opts.MaxConcurrentEvents <= 0 {
		opts.MaxConcurrentEvents = DefaultMaxConcurrentEvents
	}
	if opts.EventTimeout <= 0 {
		opts.EventTimeout = DefaultEventTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		reconciler: reconciler,
		commands:   commands,
		sem:        semaphore.NewWeighted(int64(opts.MaxConcurrentEvents)),
		timeout:    opts.EventTimeout,
		logger:     logger,
	}
}

// Dispatch starts handling ev and returns immediately. The semaphore is
// acquired inside the goroutine so a burst never stalls the gateway reader.
func (d *Dispatcher) Dispatch(ctx context.Context, ev platform.Event) error {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.sem.Acquire(ctx, 1); err != nil {
			d.logger.Warn("event dropped before start", zap.String("event_id", ev.ID), zap.String("type", string(ev.Type)), zap.Error(err))
			return
		}
		defer d.sem.Release(1)
		d.handle(ctx, ev)
	}()
	return nil
}

// Run dispatches events until ctx is done or events is closed, then waits
// for in-flight handlers.
func (d *Dispatcher) Run(ctx context.Context, events <-chan platform.Event) {
	defer d.Wait()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			_ = d.Dispatch(ctx, ev)
		}
	}
}

// Wait blocks until every dispatched event has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) handle(parent context.Context, ev platform.Event) {
	ctx, cancel := context.WithTimeout(parent, d.timeout)
	defer cancel()

	log := d.logger.With(
		zap.String("event_id", ev.ID),
		zap.String("type", string(ev.Type)),
		zap.String("guild_id", ev.GuildID()),
	)
	defer func() {
		if r := recover(); r != nil {
			log.Error("event handler panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
		}
	}()

	start := time.Now()
	err := d.route(ctx, ev)
	if err != nil {
		log.Error("event failed", zap.Error(err), zap.String("kind", platform.KindOf(err)), zap.Duration("duration", time.Since(start)))
		return
	}
	log.Debug("event handled", zap.Duration("duration", time.Since(start)))
}

func (d *Dispatcher) route(ctx context.Context, ev platform.Event) error {
	switch {
	case ev.MemberJoined != nil:
		return d.reconciler.HandleJoin(ctx, *ev.MemberJoined)
	case ev.ReactionAdded != nil:
		return d.reconciler.HandleReaction(ctx, *ev.ReactionAdded)
	case ev.MessageCreated != nil:
		if d.commands == nil {
			return nil
		}
		return d.commands.Handle(ctx, *ev.MessageCreated)
	default:
		return fmt.Errorf("event %s has no payload for type %q", ev.ID, ev.Type)
	}
}
