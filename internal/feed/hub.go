// Package feed streams applied role transitions to websocket subscribers.
// With a Redis bridge, every bot or worker process publishes to one channel
// and each process fans out to its own clients.
package feed

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/aura-community/gatekeeper/internal/verification"
)

const (
	// PingInterval and PongWait are used for heartbeat, in seconds.
	PingInterval = 30
	PongWait     = 60

	// EventTransition is the websocket event name for a role transition.
	EventTransition = "transition"
)

// allGuilds is the room for clients that did not pick a guild.
const allGuilds = ""

// Publisher sends encoded transitions to other processes.
type Publisher interface {
	Publish(ctx context.Context, payload []byte) error
}

// Subscriber delivers encoded transitions published by any process.
type Subscriber interface {
	Subscribe(ctx context.Context, handler func(payload []byte)) (cancel func(), err error)
}

// Hub maintains guild -> set of connections and broadcasts transitions.
type Hub struct {
	rooms  map[string]map[string]*Client
	mu     sync.RWMutex
	pub    Publisher
	sub    Subscriber
	cancel func()
	logger *zap.Logger
}

// NewHub creates a hub. pub and sub may be nil for a single-process feed.
func NewHub(logger *zap.Logger, pub Publisher, sub Subscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		rooms:  make(map[string]map[string]*Client),
		pub:    pub,
		sub:    sub,
		logger: logger,
	}
}

// Start subscribes to the shared channel when a subscriber is configured.
func (h *Hub) Start(ctx context.Context) error {
	if h.sub == nil {
		return nil
	}
	cancel, err := h.sub.Subscribe(ctx, func(payload []byte) {
		var t verification.Transition
		if err := json.Unmarshal(payload, &t); err != nil {
			h.logger.Warn("invalid transition on feed channel", zap.Error(err))
			return
		}
		h.broadcast(t.GuildID, payload)
	})
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.cancel = cancel
	h.mu.Unlock()
	return nil
}

// Stop cancels the shared subscription.
func (h *Hub) Stop() {
	h.mu.Lock()
	cancel := h.cancel
	h.cancel = nil
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Record implements verification.Recorder. With a publisher the transition
// is only published, so the subscription broadcasts it once everywhere,
// this process included.
func (h *Hub) Record(t verification.Transition) {
	data, err := json.Marshal(t)
	if err != nil {
		return
	}
	if h.pub != nil {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := h.pub.Publish(ctx, data); err != nil {
			h.logger.Warn("publish transition failed", zap.String("transition_id", t.ID), zap.Error(err))
		}
		return
	}
	h.broadcast(t.GuildID, data)
}

// Register adds a client to its guild room.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.rooms[c.GuildID] == nil {
		h.rooms[c.GuildID] = make(map[string]*Client)
	}
	h.rooms[c.GuildID][c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("feed client connected", zap.String("client_id", c.ID), zap.String("guild_id", c.GuildID))
}

// Unregister removes a client and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if m, ok := h.rooms[c.GuildID]; ok {
		if _, ok := m[c.ID]; ok {
			delete(m, c.ID)
			close(c.send)
		}
		if len(m) == 0 {
			delete(h.rooms, c.GuildID)
		}
	}
	h.mu.Unlock()
	h.logger.Debug("feed client disconnected", zap.String("client_id", c.ID), zap.String("guild_id", c.GuildID))
}

// ClientCount returns the number of connected clients across all rooms.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, m := range h.rooms {
		n += len(m)
	}
	return n
}

// broadcast delivers to the guild's room and to unfiltered clients. Slow
// clients drop messages rather than stalling the reconciler.
func (h *Hub) broadcast(guildID string, data []byte) {
	msg := WSMessage{Event: EventTransition, Data: data}
	h.mu.RLock()
	defer h.mu.RUnlock()
	deliver := func(room map[string]*Client) {
		for _, c := range room {
			select {
			case c.send <- msg:
			default:
				// buffer full, skip
			}
		}
	}
	deliver(h.rooms[allGuilds])
	if guildID != allGuilds {
		deliver(h.rooms[guildID])
	}
}
