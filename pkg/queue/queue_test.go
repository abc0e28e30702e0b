package queue

import (
	"encoding/json"
	"testing"

	"github.com/aura-community/gatekeeper/internal/platform"
)

func TestEncodeDecodeKeepsPayload(t *testing.T) {
	ev := platform.NewReactionAddedEvent(platform.ReactionAdded{
		GuildID:   "g1",
		ChannelID: "c1",
		MessageID: "m1",
		UserID:    "u1",
		Emoji:     platform.Emoji{Name: "✅"},
	})
	raw, err := Encode(ev)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.ID != ev.ID || got.Type != platform.EventReactionAdded {
		t.Fatalf("envelope mismatch: %+v", got)
	}
	if got.ReactionAdded == nil || got.ReactionAdded.UserID != "u1" || got.GuildID() != "g1" {
		t.Fatalf("payload mismatch: %+v", got.ReactionAdded)
	}
}

func TestDecodeRejectsMismatchedType(t *testing.T) {
	ev := platform.NewMemberJoinedEvent(platform.MemberJoined{GuildID: "g1"})
	body, _ := json.Marshal(ev)
	raw, _ := json.Marshal(Job{ID: ev.ID, Type: platform.EventMessageCreated, Payload: body})
	if _, err := Decode(raw); err == nil {
		t.Fatal("expected type mismatch error")
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode([]byte("not json")); err == nil {
		t.Fatal("expected error")
	}
}
