package verification

import (
	"time"

	"github.com/google/uuid"
)

// State is a member's gating state within one guild.
type State string

const (
	StateUnknown    State = "unknown"
	StateUnverified State = "unverified"
	StateVerified   State = "verified"
)

// Trigger names what caused a transition.
const (
	TriggerJoin     = "member_join"
	TriggerReaction = "reaction"
)

// Transition is the ephemeral record of one applied role change. It is never
// stored; recorders only forward it.
type Transition struct {
	ID      string    `json:"id"`
	GuildID string    `json:"guild_id"`
	UserID  string    `json:"user_id"`
	From    State     `json:"from"`
	To      State     `json:"to"`
	Trigger string    `json:"trigger"`
	At      time.Time `json:"at"`
}

func newTransition(guildID, userID string, from, to State, trigger string, at time.Time) Transition {
	return Transition{
		ID:      uuid.New().String(),
		GuildID: guildID,
		UserID:  userID,
		From:    from,
		To:      to,
		Trigger: trigger,
		At:      at,
	}
}

// Recorder receives applied transitions.
type Recorder interface {
	Record(t Transition)
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(t Transition)

// Record calls f(t).
func (f RecorderFunc) Record(t Transition) { f(t) }

type nopRecorder struct{}

func (nopRecorder) Record(Transition) {}
