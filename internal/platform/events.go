package platform

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies the kind of inbound gateway event.
type EventType string

const (
	EventMemberJoined   EventType = "member_joined"
	EventReactionAdded  EventType = "reaction_added"
	EventMessageCreated EventType = "message_created"
)

// MemberJoined is delivered when a user joins a guild.
type MemberJoined struct {
	GuildID string `json:"guild_id"`
	Member  Member `json:"member"`
}

// Emoji identifies a reaction. ID is set only for custom guild emoji.
type Emoji struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// ReactionAdded is a raw reaction event. GuildID is empty for direct messages.
type ReactionAdded struct {
	GuildID   string `json:"guild_id,omitempty"`
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
	UserID    string `json:"user_id"`
	Emoji     Emoji  `json:"emoji"`
}

// MessageCreated is a guild text message, used for prefix commands.
type MessageCreated struct {
	GuildID       string   `json:"guild_id,omitempty"`
	ChannelID     string   `json:"channel_id"`
	MessageID     string   `json:"message_id"`
	AuthorID      string   `json:"author_id"`
	AuthorBot     bool     `json:"author_bot"`
	AuthorIsAdmin bool     `json:"author_is_admin"`
	Content       string   `json:"content"`
	MentionIDs    []string `json:"mention_ids,omitempty"`
}

// Event is the envelope the dispatcher and the event queue carry. Exactly one
// of the payload pointers is set, matching Type.
type Event struct {
	ID             string          `json:"id"`
	Type           EventType       `json:"type"`
	ReceivedAt     time.Time       `json:"received_at"`
	MemberJoined   *MemberJoined   `json:"member_joined,omitempty"`
	ReactionAdded  *ReactionAdded  `json:"reaction_added,omitempty"`
	MessageCreated *MessageCreated `json:"message_created,omitempty"`
}

// GuildID returns the guild the event belongs to, or "" for DM events.
func (e Event) GuildID() string {
	switch {
	case e.MemberJoined != nil:
		return e.MemberJoined.GuildID
	case e.ReactionAdded != nil:
		return e.ReactionAdded.GuildID
	case e.MessageCreated != nil:
		return e.MessageCreated.GuildID
	}
	return ""
}

func newEvent(t EventType) Event {
	return Event{ID: uuid.New().String(), Type: t, ReceivedAt: time.Now().UTC()}
}

// NewMemberJoinedEvent wraps a join in an envelope with a fresh correlation ID.
func NewMemberJoinedEvent(p MemberJoined) Event {
	ev := newEvent(EventMemberJoined)
	ev.MemberJoined = &p
	return ev
}

// NewReactionAddedEvent wraps a reaction in an envelope with a fresh correlation ID.
func NewReactionAddedEvent(p ReactionAdded) Event {
	ev := newEvent(EventReactionAdded)
	ev.ReactionAdded = &p
	return ev
}

// NewMessageCreatedEvent wraps a message in an envelope with a fresh correlation ID.
func NewMessageCreatedEvent(p MessageCreated) Event {
	ev := newEvent(EventMessageCreated)
	ev.MessageCreated = &p
	return ev
}
