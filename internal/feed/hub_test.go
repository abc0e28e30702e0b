package feed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/aura-community/gatekeeper/internal/verification"
)

func newTestClient(h *Hub, id, guildID string) *Client {
	c := &Client{ID: id, GuildID: guildID, hub: h, send: make(chan WSMessage, 4)}
	h.Register(c)
	return c
}

func transition(guildID, userID string) verification.Transition {
	return verification.Transition{
		ID:      "t-" + userID,
		GuildID: guildID,
		UserID:  userID,
		From:    verification.StateUnverified,
		To:      verification.StateVerified,
		Trigger: verification.TriggerReaction,
		At:      time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC),
	}
}

func received(c *Client) []verification.Transition {
	var out []verification.Transition
	for {
		select {
		case msg := <-c.send:
			var t verification.Transition
			if err := json.Unmarshal(msg.Data, &t); err == nil {
				out = append(out, t)
			}
		default:
			return out
		}
	}
}

func TestRecordBroadcastsToGuildAndUnfilteredClients(t *testing.T) {
	h := NewHub(nil, nil, nil)
	g1 := newTestClient(h, "a", "g1")
	g2 := newTestClient(h, "b", "g2")
	all := newTestClient(h, "c", "")

	h.Record(transition("g1", "u1"))

	if got := received(g1); len(got) != 1 || got[0].UserID != "u1" {
		t.Fatalf("g1 client got %+v", got)
	}
	if got := received(g2); len(got) != 0 {
		t.Fatalf("g2 client must not see g1 transitions, got %+v", got)
	}
	if got := received(all); len(got) != 1 {
		t.Fatalf("unfiltered client got %+v", got)
	}
}

func TestUnregisterClosesSendAndDropsClient(t *testing.T) {
	h := NewHub(nil, nil, nil)
	c := newTestClient(h, "a", "g1")
	h.Unregister(c)
	h.Unregister(c)
	if h.ClientCount() != 0 {
		t.Fatalf("expected no clients, got %d", h.ClientCount())
	}
	if _, ok := <-c.send; ok {
		t.Fatal("send channel should be closed")
	}
	h.Record(transition("g1", "u1"))
}

func TestSlowClientDoesNotBlockRecord(t *testing.T) {
	h := NewHub(nil, nil, nil)
	c := newTestClient(h, "a", "g1")
	done := make(chan struct{})
	go func() {
		for i := 0; i < 20; i++ {
			h.Record(transition("g1", "u"))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Record blocked on a full client buffer")
	}
	if got := len(received(c)); got != cap(c.send) {
		t.Fatalf("expected %d buffered messages, got %d", cap(c.send), got)
	}
}

// loopback stands in for Redis pub/sub: publishes reach every subscriber.
type loopback struct {
	mu       sync.Mutex
	handlers []func([]byte)
	fail     error
}

func (l *loopback) Publish(ctx context.Context, payload []byte) error {
	if l.fail != nil {
		return l.fail
	}
	l.mu.Lock()
	hs := append([]func([]byte){}, l.handlers...)
	l.mu.Unlock()
	for _, h := range hs {
		h(payload)
	}
	return nil
}

func (l *loopback) Subscribe(ctx context.Context, handler func([]byte)) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers = append(l.handlers, handler)
	return func() {}, nil
}

func TestBridgeFansOutAcrossHubs(t *testing.T) {
	bus := &loopback{}
	producer := NewHub(nil, bus, bus)
	consumer := NewHub(nil, bus, bus)
	for _, h := range []*Hub{producer, consumer} {
		if err := h.Start(context.Background()); err != nil {
			t.Fatalf("Start: %v", err)
		}
	}
	local := newTestClient(producer, "a", "g1")
	remote := newTestClient(consumer, "b", "g1")

	producer.Record(transition("g1", "u1"))

	if got := received(local); len(got) != 1 {
		t.Fatalf("local client expected exactly one delivery, got %d", len(got))
	}
	if got := received(remote); len(got) != 1 {
		t.Fatalf("remote client expected exactly one delivery, got %d", len(got))
	}
}

func TestPublishFailureIsSwallowed(t *testing.T) {
	bus := &loopback{fail: errors.New("redis down")}
	h := NewHub(nil, bus, nil)
	c := newTestClient(h, "a", "g1")
	h.Record(transition("g1", "u1"))
	if got := received(c); len(got) != 0 {
		t.Fatalf("publish-only hub must not deliver locally, got %+v", got)
	}
}

func TestServeWsStreamsTransitions(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHub(nil, nil, nil)
	validate := func(token string) (string, error) {
		if token != "good" {
			return "", errors.New("bad token")
		}
		return "ops", nil
	}
	router := gin.New()
	router.GET("/ws", ServeWs(h, zap.NewNop(), validate))
	srv := httptest.NewServer(router)
	defer srv.Close()

	base := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	if _, resp, err := websocket.DefaultDialer.Dial(base+"?token=bad", nil); err == nil {
		t.Fatal("expected dial with bad token to fail")
	} else if resp != nil && resp.StatusCode != 401 {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}

	conn, _, err := websocket.DefaultDialer.Dial(base+"?token=good&guild_id=g1", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(time.Second)
	for h.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	h.Record(transition("g1", "u9"))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	var got verification.Transition
	if err := json.Unmarshal(msg.Data, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Event != EventTransition || got.UserID != "u9" || got.To != verification.StateVerified {
		t.Fatalf("unexpected message %+v / %+v", msg, got)
	}
}
