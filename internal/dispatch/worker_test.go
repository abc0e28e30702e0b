package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aura-community/gatekeeper/internal/platform"
)

type scriptedQueue struct {
	mu     sync.Mutex
	items  []*platform.Event
	errs   []error
	pushed []platform.Event
}

func (q *scriptedQueue) Enqueue(ctx context.Context, ev platform.Event) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pushed = append(q.pushed, ev)
	return nil
}

func (q *scriptedQueue) Dequeue(ctx context.Context) (*platform.Event, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.errs) > 0 {
		err := q.errs[0]
		q.errs = q.errs[1:]
		return nil, err
	}
	if len(q.items) == 0 {
		return nil, nil
	}
	ev := q.items[0]
	q.items = q.items[1:]
	return ev, nil
}

type recordingSink struct {
	mu  sync.Mutex
	got []string
}

func (s *recordingSink) Dispatch(ctx context.Context, ev platform.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, ev.ID)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.got)
}

func TestQueueSinkEnqueues(t *testing.T) {
	q := &scriptedQueue{}
	sink := NewQueueSink(q)
	ev := join("u1")
	if err := sink.Dispatch(context.Background(), ev); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(q.pushed) != 1 || q.pushed[0].ID != ev.ID {
		t.Fatalf("expected event enqueued, got %+v", q.pushed)
	}
}

func TestWorkerDrainsQueueAndSurvivesErrors(t *testing.T) {
	a, b := join("u1"), join("u2")
	q := &scriptedQueue{
		errs:  []error{errors.New("redis down")},
		items: []*platform.Event{&a, &b},
	}
	sink := &recordingSink{}
	w := NewWorker(q, sink, time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(stopped)
	}()

	deadline := time.After(time.Second)
	for sink.count() < 2 {
		select {
		case <-deadline:
			t.Fatalf("worker drained %d of 2 events", sink.count())
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on cancel")
	}
}
