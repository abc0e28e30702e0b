package commands

import (
	"context"
	"strings"
	"testing"

	"github.com/aura-community/gatekeeper/internal/guildlock"
	"github.com/aura-community/gatekeeper/internal/onboarding"
	"github.com/aura-community/gatekeeper/internal/platform"
	"github.com/aura-community/gatekeeper/internal/platform/platformtest"
)

func newTestHandler(gw *platformtest.Gateway) *Handler {
	pub := onboarding.NewPublisher(gw, guildlock.NewLocal(), onboarding.Config{}, nil)
	return NewHandler(gw, pub, "", nil)
}

func lastContent(gw *platformtest.Gateway, channelID string) string {
	msgs := gw.Messages(channelID)
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1].Content
}

func TestParse(t *testing.T) {
	h := NewHandler(nil, nil, "--", nil)
	cases := []struct {
		in       string
		name     string
		arg      string
		expectOK bool
	}{
		{in: "--tag 7x", name: "tag", arg: "7x", expectOK: true},
		{in: "  --GREET  <@1> ", name: "greet", arg: "<@1>", expectOK: true},
		{in: "--tag", name: "tag", arg: "", expectOK: true},
		{in: "hello --tag", expectOK: false},
		{in: "--", expectOK: false},
	}
	for _, tc := range cases {
		name, arg, ok := h.Parse(tc.in)
		if ok != tc.expectOK || name != tc.name || arg != tc.arg {
			t.Fatalf("Parse(%q) = (%q, %q, %v), want (%q, %q, %v)", tc.in, name, arg, ok, tc.name, tc.arg, tc.expectOK)
		}
	}
}

func TestTagCommand(t *testing.T) {
	gw := platformtest.New()
	general := gw.SeedChannel("g1", "general")
	h := newTestHandler(gw)
	ctx := context.Background()

	ev := platform.MessageCreated{GuildID: "g1", ChannelID: general.ID, AuthorID: "u1", Content: "--tag 7X"}
	if err := h.Handle(ctx, ev); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if got := lastContent(gw, general.ID); !strings.Contains(got, "7x Gang on Top") {
		t.Fatalf("unexpected reply %q", got)
	}

	ev.Content = "--tag nope"
	if err := h.Handle(ctx, ev); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if got := lastContent(gw, general.ID); got != "⚡ No tag found for 'nope'" {
		t.Fatalf("unexpected reply %q", got)
	}
}

func TestGreetCommandRequiresAdmin(t *testing.T) {
	gw := platformtest.New()
	general := gw.SeedChannel("g1", "general")
	gw.SeedChannel("g1", onboarding.DefaultWelcomeChannelName)
	h := newTestHandler(gw)

	ev := platform.MessageCreated{GuildID: "g1", ChannelID: general.ID, AuthorID: "u1", Content: "--greet"}
	if err := h.Handle(context.Background(), ev); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if gw.Mutations() != 0 {
		t.Fatalf("non-admin greet must not post, calls %v", gw.Calls())
	}
}

func TestGreetCommandWelcomesMentionedMember(t *testing.T) {
	gw := platformtest.New()
	gw.AddGuild(platform.Guild{ID: "g1", Name: "Sakura"})
	general := gw.SeedChannel("g1", "general")
	welcome := gw.SeedChannel("g1", onboarding.DefaultWelcomeChannelName)
	gw.AddMember(platform.Member{GuildID: "g1", UserID: "admin"})
	gw.AddMember(platform.Member{GuildID: "g1", UserID: "u2"})
	h := newTestHandler(gw)

	ev := platform.MessageCreated{
		GuildID:       "g1",
		ChannelID:     general.ID,
		AuthorID:      "admin",
		AuthorIsAdmin: true,
		Content:       "--greet <@u2>",
		MentionIDs:    []string{"u2"},
	}
	if err := h.Handle(context.Background(), ev); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	msgs := gw.Messages(welcome.ID)
	if len(msgs) != 1 || !strings.Contains(msgs[0].Embeds[0].Description, "<@u2>") {
		t.Fatalf("expected welcome for mentioned member, got %+v", msgs)
	}
	if got := lastContent(gw, general.ID); got != "✅ Test welcome message sent!" {
		t.Fatalf("unexpected acknowledgement %q", got)
	}
}

func TestGreetCommandWithoutWelcomeChannel(t *testing.T) {
	gw := platformtest.New()
	general := gw.SeedChannel("g1", "general")
	gw.AddMember(platform.Member{GuildID: "g1", UserID: "admin"})
	h := newTestHandler(gw)

	ev := platform.MessageCreated{GuildID: "g1", ChannelID: general.ID, AuthorID: "admin", AuthorIsAdmin: true, Content: "--greet"}
	if err := h.Handle(context.Background(), ev); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if got := lastContent(gw, general.ID); got != "⚠️ No welcome channel found." {
		t.Fatalf("unexpected reply %q", got)
	}
	if gw.CallCount(platformtest.OpCreateChannel) != 0 {
		t.Fatalf("greet must never create channels")
	}
}
