package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aura-community/gatekeeper/internal/platform"
)

type fakeReconciler struct {
	mu        sync.Mutex
	joins     []platform.MemberJoined
	reactions []platform.ReactionAdded
	block     chan struct{}
	panicOn   string
	running   atomic.Int32
	peak      atomic.Int32
}

func (f *fakeReconciler) enter() func() {
	n := f.running.Add(1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	return func() { f.running.Add(-1) }
}

func (f *fakeReconciler) HandleJoin(ctx context.Context, ev platform.MemberJoined) error {
	defer f.enter()()
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if ev.Member.UserID == f.panicOn {
		panic("boom")
	}
	f.mu.Lock()
	f.joins = append(f.joins, ev)
	f.mu.Unlock()
	return nil
}

func (f *fakeReconciler) HandleReaction(ctx context.Context, ev platform.ReactionAdded) error {
	f.mu.Lock()
	f.reactions = append(f.reactions, ev)
	f.mu.Unlock()
	return errors.New("reaction failed")
}

type fakeCommands struct {
	calls atomic.Int32
}

func (f *fakeCommands) Handle(ctx context.Context, ev platform.MessageCreated) error {
	f.calls.Add(1)
	return nil
}

func join(userID string) platform.Event {
	return platform.NewMemberJoinedEvent(platform.MemberJoined{
		GuildID: "g1",
		Member:  platform.Member{GuildID: "g1", UserID: userID},
	})
}

func TestDispatchRoutesByType(t *testing.T) {
	rec := &fakeReconciler{}
	cmds := &fakeCommands{}
	d := New(rec, cmds, Options{}, nil)
	ctx := context.Background()

	_ = d.Dispatch(ctx, join("u1"))
	_ = d.Dispatch(ctx, platform.NewReactionAddedEvent(platform.ReactionAdded{GuildID: "g1", UserID: "u1"}))
	_ = d.Dispatch(ctx, platform.NewMessageCreatedEvent(platform.MessageCreated{GuildID: "g1", Content: "--tag 7x"}))
	_ = d.Dispatch(ctx, platform.Event{ID: "empty", Type: "unknown"})
	d.Wait()

	if len(rec.joins) != 1 || len(rec.reactions) != 1 || cmds.calls.Load() != 1 {
		t.Fatalf("routing mismatch: joins=%d reactions=%d commands=%d", len(rec.joins), len(rec.reactions), cmds.calls.Load())
	}
}

func TestDispatchDoesNotBlockAndCapsConcurrency(t *testing.T) {
	rec := &fakeReconciler{block: make(chan struct{})}
	d := New(rec, nil, Options{MaxConcurrentEvents: 2}, nil)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			_ = d.Dispatch(context.Background(), join("u"))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Dispatch blocked while handlers were busy")
	}

	close(rec.block)
	d.Wait()
	if got := len(rec.joins); got != 10 {
		t.Fatalf("expected 10 handled joins, got %d", got)
	}
	if peak := rec.peak.Load(); peak > 2 {
		t.Fatalf("concurrency cap exceeded: %d", peak)
	}
}

func TestDispatchRecoversPanics(t *testing.T) {
	rec := &fakeReconciler{panicOn: "bad"}
	d := New(rec, nil, Options{}, nil)
	_ = d.Dispatch(context.Background(), join("bad"))
	_ = d.Dispatch(context.Background(), join("good"))
	d.Wait()
	if len(rec.joins) != 1 || rec.joins[0].Member.UserID != "good" {
		t.Fatalf("expected the healthy event to complete, got %+v", rec.joins)
	}
}

func TestDispatchAppliesEventTimeout(t *testing.T) {
	rec := &fakeReconciler{block: make(chan struct{})}
	d := New(rec, nil, Options{EventTimeout: 20 * time.Millisecond}, nil)
	_ = d.Dispatch(context.Background(), join("slow"))

	waited := make(chan struct{})
	go func() {
		d.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(time.Second):
		t.Fatal("event timeout did not cancel the handler")
	}
}

func TestRunStopsWhenChannelCloses(t *testing.T) {
	rec := &fakeReconciler{}
	d := New(rec, nil, Options{}, nil)
	events := make(chan platform.Event, 3)
	events <- join("u1")
	events <- join("u2")
	close(events)

	d.Run(context.Background(), events)
	if len(rec.joins) != 2 {
		t.Fatalf("expected 2 joins after Run, got %d", len(rec.joins))
	}
}
