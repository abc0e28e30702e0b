package onboarding

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aura-community/gatekeeper/internal/guildlock"
	"github.com/aura-community/gatekeeper/internal/platform"
	"github.com/aura-community/gatekeeper/internal/platform/platformtest"
)

func newTestPublisher(gw *platformtest.Gateway, cfg Config) *Publisher {
	return NewPublisher(gw, guildlock.NewLocal(), cfg, nil)
}

func countPrompts(gw *platformtest.Gateway, channelID string) int {
	n := 0
	for _, msg := range gw.Messages(channelID) {
		if IsPrompt(msg) {
			n++
		}
	}
	return n
}

func TestResolveChannelsPrefersConfiguredID(t *testing.T) {
	gw := platformtest.New()
	byName := gw.SeedChannel("g1", DefaultVerifyChannelName)
	configured := gw.SeedChannel("g1", "gate")
	p := newTestPublisher(gw, Config{VerifyChannelID: configured.ID})

	ch, err := p.LookupChannels(context.Background(), "g1")
	if ch.Verify == nil || ch.Verify.ID != configured.ID {
		t.Fatalf("expected configured channel %s, got %+v (err %v)", configured.ID, ch.Verify, err)
	}
	if ch.Verify.ID == byName.ID {
		t.Fatalf("name match must not win over configured ID")
	}
}

func TestResolveChannelsFallsBackToName(t *testing.T) {
	gw := platformtest.New()
	welcome := gw.SeedChannel("g1", DefaultWelcomeChannelName)
	verify := gw.SeedChannel("g1", DefaultVerifyChannelName)
	p := newTestPublisher(gw, Config{VerifyChannelID: "999999", WelcomeChannelID: "999998"})

	ch, err := p.LookupChannels(context.Background(), "g1")
	if err != nil {
		t.Fatalf("LookupChannels: %v", err)
	}
	if ch.Welcome.ID != welcome.ID || ch.Verify.ID != verify.ID {
		t.Fatalf("unexpected channels %+v", ch)
	}
}

func TestResolveChannelsCreatesOnlyWhenAllowed(t *testing.T) {
	gw := platformtest.New()

	strict := newTestPublisher(gw, Config{})
	ch, err := strict.ResolveChannels(context.Background(), "g1")
	if !platform.IsNotFound(err) {
		t.Fatalf("expected not found without create policy, got %v", err)
	}
	if ch.Welcome != nil || ch.Verify != nil {
		t.Fatalf("no channels should resolve: %+v", ch)
	}
	if gw.CallCount(platformtest.OpCreateChannel) != 0 {
		t.Fatalf("channel creation must be opt-in")
	}

	lenient := newTestPublisher(gw, Config{AllowChannelCreate: true})
	ch, err = lenient.ResolveChannels(context.Background(), "g1")
	if err != nil {
		t.Fatalf("ResolveChannels: %v", err)
	}
	if ch.Welcome == nil || ch.Verify == nil {
		t.Fatalf("expected both channels created, got %+v", ch)
	}
	if _, err := lenient.ResolveChannels(context.Background(), "g1"); err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if n := len(gw.ChannelsNamed("g1", DefaultVerifyChannelName)); n != 1 {
		t.Fatalf("expected one verify channel, got %d", n)
	}
}

func TestGreetMemberMentionsMemberAndVerifyChannel(t *testing.T) {
	gw := platformtest.New()
	welcome := gw.SeedChannel("g1", DefaultWelcomeChannelName)
	verify := gw.SeedChannel("g1", DefaultVerifyChannelName)
	p := newTestPublisher(gw, Config{})

	guild := &platform.Guild{ID: "g1", Name: "Sakura", IconURL: "https://cdn/icon.png", MemberCount: 42}
	member := &platform.Member{GuildID: "g1", UserID: "u1"}
	err := p.GreetMember(context.Background(), guild, member, Channels{Welcome: &welcome, Verify: &verify})
	if err != nil {
		t.Fatalf("GreetMember: %v", err)
	}
	msgs := gw.Messages(welcome.ID)
	if len(msgs) != 1 || len(msgs[0].Embeds) != 1 {
		t.Fatalf("expected one welcome embed, got %+v", msgs)
	}
	embed := msgs[0].Embeds[0]
	if !strings.Contains(embed.Description, "<@u1>") || !strings.Contains(embed.Description, verify.Mention()) {
		t.Fatalf("welcome should mention member and verify channel: %q", embed.Description)
	}
	if embed.ThumbnailURL != guild.IconURL {
		t.Fatalf("expected guild icon fallback, got %q", embed.ThumbnailURL)
	}
	if embed.Footer != "Member #42 • Sakura" {
		t.Fatalf("unexpected footer %q", embed.Footer)
	}
}

func TestGreetMemberFailureIsReturnedNotPanicked(t *testing.T) {
	gw := platformtest.New()
	welcome := gw.SeedChannel("g1", DefaultWelcomeChannelName)
	gw.Fail(platformtest.OpSendMessage, welcome.ID, platform.ErrPermissionDenied)
	p := newTestPublisher(gw, Config{})

	err := p.GreetMember(context.Background(), &platform.Guild{ID: "g1"}, &platform.Member{UserID: "u1"}, Channels{Welcome: &welcome})
	if !platform.IsPermissionDenied(err) {
		t.Fatalf("expected permission denied, got %v", err)
	}
	if err := p.GreetMember(context.Background(), &platform.Guild{ID: "g1"}, &platform.Member{UserID: "u1"}, Channels{}); !platform.IsNotFound(err) {
		t.Fatalf("expected not found without welcome channel, got %v", err)
	}
}

func TestEnsureVerificationPromptPostsOnceWithReaction(t *testing.T) {
	gw := platformtest.New()
	verify := gw.SeedChannel("g1", DefaultVerifyChannelName)
	p := newTestPublisher(gw, Config{})

	for i := 0; i < 3; i++ {
		if err := p.EnsureVerificationPrompt(context.Background(), "g1", &verify); err != nil {
			t.Fatalf("EnsureVerificationPrompt #%d: %v", i, err)
		}
	}
	msgs := gw.Messages(verify.ID)
	if len(msgs) != 1 || !IsPrompt(msgs[0]) {
		t.Fatalf("expected a single prompt, got %+v", msgs)
	}
	if got := gw.Reactors(verify.ID, msgs[0].ID, "✅"); len(got) != 1 {
		t.Fatalf("expected the marker reaction, got %v", got)
	}
}

func TestEnsureVerificationPromptConcurrent(t *testing.T) {
	gw := platformtest.New()
	gw.Delay = time.Millisecond
	verify := gw.SeedChannel("g1", DefaultVerifyChannelName)
	p := newTestPublisher(gw, Config{})

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.EnsureVerificationPrompt(context.Background(), "g1", &verify); err != nil {
				t.Errorf("EnsureVerificationPrompt: %v", err)
			}
		}()
	}
	wg.Wait()
	if n := countPrompts(gw, verify.ID); n != 1 {
		t.Fatalf("expected exactly one prompt, got %d", n)
	}
}

func TestEnsureVerificationPromptRecognizesExistingPrompt(t *testing.T) {
	gw := platformtest.New()
	verify := gw.SeedChannel("g1", DefaultVerifyChannelName)
	gw.SeedMessage(verify.ID, platform.Message{Embeds: []platform.Embed{*PromptEmbed("✅")}})
	for i := 0; i < 4; i++ {
		gw.SeedMessage(verify.ID, platform.Message{Content: "chatter"})
	}
	p := newTestPublisher(gw, Config{})

	if err := p.EnsureVerificationPrompt(context.Background(), "g1", &verify); err != nil {
		t.Fatalf("EnsureVerificationPrompt: %v", err)
	}
	if n := countPrompts(gw, verify.ID); n != 1 {
		t.Fatalf("prompt within scan depth must be reused, got %d", n)
	}
}

func TestEnsureVerificationPromptReactionFailureIsNonFatal(t *testing.T) {
	gw := platformtest.New()
	verify := gw.SeedChannel("g1", DefaultVerifyChannelName)
	gw.Fail(platformtest.OpAddReaction, "*", platform.ErrPermissionDenied)
	p := newTestPublisher(gw, Config{})

	if err := p.EnsureVerificationPrompt(context.Background(), "g1", &verify); err != nil {
		t.Fatalf("reaction failure should not fail the prompt: %v", err)
	}
	if n := countPrompts(gw, verify.ID); n != 1 {
		t.Fatalf("expected prompt to be posted, got %d", n)
	}
}

func TestIsVerifyChannel(t *testing.T) {
	gw := platformtest.New()
	verify := gw.SeedChannel("g1", "✅ Verify")
	general := gw.SeedChannel("g1", "general")
	other := gw.SeedChannel("g2", DefaultVerifyChannelName)
	p := newTestPublisher(gw, Config{})

	cases := []struct {
		guild, channel string
		want           bool
	}{
		{"g1", verify.ID, true},
		{"g1", general.ID, false},
		{"g1", other.ID, false},
		{"g2", other.ID, true},
	}
	for _, tc := range cases {
		got, err := p.IsVerifyChannel(context.Background(), tc.guild, tc.channel)
		if err != nil {
			t.Fatalf("IsVerifyChannel(%s, %s): %v", tc.guild, tc.channel, err)
		}
		if got != tc.want {
			t.Fatalf("IsVerifyChannel(%s, %s) = %v, want %v", tc.guild, tc.channel, got, tc.want)
		}
	}

	pinned := newTestPublisher(gw, Config{VerifyChannelID: general.ID})
	if ok, _ := pinned.IsVerifyChannel(context.Background(), "g1", general.ID); !ok {
		t.Fatalf("configured ID must match")
	}
	if ok, _ := pinned.IsVerifyChannel(context.Background(), "g1", verify.ID); ok {
		t.Fatalf("name match must not apply in the configured channel's guild")
	}
}
