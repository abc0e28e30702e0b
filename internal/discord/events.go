package discord

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/aura-community/gatekeeper/internal/dispatch"
	"github.com/aura-community/gatekeeper/internal/platform"
)

// Intents are the gateway intents the bot needs. GuildMembers and
// MessageContent are privileged and must be enabled in the developer portal.
const Intents = discordgo.IntentGuilds |
	discordgo.IntentGuildMembers |
	discordgo.IntentGuildMessages |
	discordgo.IntentGuildMessageReactions |
	discordgo.IntentMessageContent

// Bind registers session handlers that convert gateway events and hand them
// to sink. It returns a function that removes the handlers.
func Bind(s *discordgo.Session, gw *Gateway, sink dispatch.Sink, logger *zap.Logger) func() {
	if logger == nil {
		logger = zap.NewNop()
	}
	deliver := func(ev platform.Event) {
		if err := sink.Dispatch(context.Background(), ev); err != nil {
			logger.Error("event delivery failed", zap.String("event_id", ev.ID), zap.String("type", string(ev.Type)), zap.Error(err))
		}
	}

	removers := []func(){
		s.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
			logger.Info("gateway ready", zap.String("user", r.User.Username), zap.Int("guilds", len(r.Guilds)))
		}),
		s.AddHandler(func(_ *discordgo.Session, m *discordgo.GuildMemberAdd) {
			if ev, ok := memberJoined(m); ok {
				deliver(ev)
			}
		}),
		s.AddHandler(func(_ *discordgo.Session, r *discordgo.MessageReactionAdd) {
			if ev, ok := reactionAdded(r); ok {
				deliver(ev)
			}
		}),
		s.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
			if ev, ok := messageCreated(m, gw.IsAdmin); ok {
				deliver(ev)
			}
		}),
	}
	return func() {
		for _, remove := range removers {
			remove()
		}
	}
}

func memberJoined(m *discordgo.GuildMemberAdd) (platform.Event, bool) {
	if m == nil || m.Member == nil || m.User == nil {
		return platform.Event{}, false
	}
	return platform.NewMemberJoinedEvent(platform.MemberJoined{
		GuildID: m.GuildID,
		Member:  toMember(m.GuildID, m.Member),
	}), true
}

func reactionAdded(r *discordgo.MessageReactionAdd) (platform.Event, bool) {
	if r == nil || r.MessageReaction == nil {
		return platform.Event{}, false
	}
	return platform.NewReactionAddedEvent(platform.ReactionAdded{
		GuildID:   r.GuildID,
		ChannelID: r.ChannelID,
		MessageID: r.MessageID,
		UserID:    r.UserID,
		Emoji:     platform.Emoji{ID: r.Emoji.ID, Name: r.Emoji.Name},
	}), true
}

// messageCreated only forwards guild messages from humans; everything else
// is noise for the command handler.
func messageCreated(m *discordgo.MessageCreate, isAdmin func(userID, channelID string) bool) (platform.Event, bool) {
	if m == nil || m.Message == nil || m.Author == nil || m.GuildID == "" || m.Author.Bot {
		return platform.Event{}, false
	}
	mentions := make([]string, 0, len(m.Mentions))
	for _, u := range m.Mentions {
		if u != nil {
			mentions = append(mentions, u.ID)
		}
	}
	return platform.NewMessageCreatedEvent(platform.MessageCreated{
		GuildID:       m.GuildID,
		ChannelID:     m.ChannelID,
		MessageID:     m.ID,
		AuthorID:      m.Author.ID,
		AuthorIsAdmin: isAdmin(m.Author.ID, m.ChannelID),
		Content:       m.Content,
		MentionIDs:    mentions,
	}), true
}
