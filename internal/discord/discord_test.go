package discord

import (
	"errors"
	"net/http"
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/aura-community/gatekeeper/internal/platform"
)

func restError(status int) error {
	return &discordgo.RESTError{Response: &http.Response{StatusCode: status}}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		kind string
	}{
		{restError(http.StatusForbidden), "permission_denied"},
		{restError(http.StatusNotFound), "not_found"},
		{restError(http.StatusInternalServerError), "transient"},
		{discordgo.ErrStateNotFound, "not_found"},
		{errors.New("connection reset"), "transient"},
	}
	for _, tc := range cases {
		if got := platform.KindOf(classify("op", tc.err)); got != tc.kind {
			t.Fatalf("classify(%v) = %s, want %s", tc.err, got, tc.kind)
		}
	}
	if classify("op", nil) != nil {
		t.Fatal("nil error must stay nil")
	}
}

func TestMessageSendRoundTrip(t *testing.T) {
	send := toMessageSend(platform.OutgoingMessage{
		Content: "hi",
		Embed:   &platform.Embed{Title: "T", Description: "D", Color: 7, Footer: "F", ThumbnailURL: "https://x/y.png"},
	})
	got := toMessage(&discordgo.Message{ID: "m1", ChannelID: "c1", Content: send.Content, Embeds: send.Embeds, Author: &discordgo.User{ID: "bot"}})
	if got.AuthorID != "bot" || len(got.Embeds) != 1 {
		t.Fatalf("unexpected message %+v", got)
	}
	e := got.Embeds[0]
	if e.Title != "T" || e.Footer != "F" || e.ThumbnailURL != "https://x/y.png" || e.Color != 7 {
		t.Fatalf("embed fields lost: %+v", e)
	}

	plain := toMessageSend(platform.OutgoingMessage{Content: "only text"})
	if len(plain.Embeds) != 0 {
		t.Fatal("no embed expected")
	}
}

func TestMemberJoinedConversion(t *testing.T) {
	ev, ok := memberJoined(&discordgo.GuildMemberAdd{Member: &discordgo.Member{
		GuildID: "g1",
		User:    &discordgo.User{ID: "u1", Username: "hana", Bot: false},
		Roles:   []string{"r1"},
	}})
	if !ok || ev.Type != platform.EventMemberJoined {
		t.Fatalf("expected member_joined event, got %+v", ev)
	}
	m := ev.MemberJoined.Member
	if ev.GuildID() != "g1" || m.UserID != "u1" || m.Username != "hana" || !m.HasRole("r1") {
		t.Fatalf("unexpected member %+v", m)
	}

	if _, ok := memberJoined(&discordgo.GuildMemberAdd{Member: &discordgo.Member{GuildID: "g1"}}); ok {
		t.Fatal("member without user must be dropped")
	}
}

func TestReactionConversionKeepsCustomEmojiID(t *testing.T) {
	ev, ok := reactionAdded(&discordgo.MessageReactionAdd{MessageReaction: &discordgo.MessageReaction{
		UserID: "u1", MessageID: "m1", ChannelID: "c1", GuildID: "g1",
		Emoji: discordgo.Emoji{ID: "555", Name: "✅"},
	}})
	if !ok {
		t.Fatal("expected event")
	}
	if ev.ReactionAdded.Emoji.Matches("✅") {
		t.Fatal("custom emoji named like the marker must not match")
	}
}

func TestMessageCreatedFilters(t *testing.T) {
	admin := func(userID, channelID string) bool { return userID == "boss" }
	msg := func(author *discordgo.User, guildID string) *discordgo.MessageCreate {
		return &discordgo.MessageCreate{Message: &discordgo.Message{
			ID: "m1", ChannelID: "c1", GuildID: guildID, Content: "--greet",
			Author: author, Mentions: []*discordgo.User{{ID: "u2"}},
		}}
	}

	ev, ok := messageCreated(msg(&discordgo.User{ID: "boss"}, "g1"), admin)
	if !ok || !ev.MessageCreated.AuthorIsAdmin || len(ev.MessageCreated.MentionIDs) != 1 {
		t.Fatalf("unexpected event %+v", ev.MessageCreated)
	}
	if _, ok := messageCreated(msg(&discordgo.User{ID: "b", Bot: true}, "g1"), admin); ok {
		t.Fatal("bot messages must be dropped")
	}
	if _, ok := messageCreated(msg(&discordgo.User{ID: "boss"}, ""), admin); ok {
		t.Fatal("direct messages must be dropped")
	}
}
