// Package commands handles the prefix commands moderators use alongside the
// gate: --greet re-sends a welcome, --tag answers community tags.
package commands

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/aura-community/gatekeeper/internal/onboarding"
	"github.com/aura-community/gatekeeper/internal/platform"
)

// DefaultPrefix is the command prefix when none is configured.
const DefaultPrefix = "--"

// Greeter is the part of the onboarding publisher --greet needs.
type Greeter interface {
	LookupChannels(ctx context.Context, guildID string) (onboarding.Channels, error)
	GreetMember(ctx context.Context, guild *platform.Guild, member *platform.Member, ch onboarding.Channels) error
}

// Handler parses and runs prefix commands.
type Handler struct {
	gw      platform.Gateway
	greeter Greeter
	prefix  string
	tags    map[string]string
	logger  *zap.Logger
}

// NewHandler creates a command handler.
func NewHandler(gw platform.Gateway, greeter Greeter, prefix string, logger *zap.Logger) *Handler {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		gw:      gw,
		greeter: greeter,
		prefix:  prefix,
		tags:    map[string]string{"7x": "🌸 **7x Gang on Top!** ✨"},
		logger:  logger,
	}
}

// Parse splits content into a command name and its argument string. ok is
// false when content does not start with the prefix.
func (h *Handler) Parse(content string) (name, arg string, ok bool) {
	rest, found := strings.CutPrefix(strings.TrimSpace(content), h.prefix)
	if !found || rest == "" {
		return "", "", false
	}
	name, arg, _ = strings.Cut(rest, " ")
	return strings.ToLower(name), strings.TrimSpace(arg), true
}

// Handle runs the command in ev, if any. Unknown commands are ignored.
func (h *Handler) Handle(ctx context.Context, ev platform.MessageCreated) error {
	if ev.AuthorBot || ev.GuildID == "" {
		return nil
	}
	name, arg, ok := h.Parse(ev.Content)
	if !ok {
		return nil
	}
	switch name {
	case "tag":
		return h.tag(ctx, ev, arg)
	case "greet":
		return h.greet(ctx, ev)
	default:
		return nil
	}
}

func (h *Handler) reply(ctx context.Context, channelID, content string) error {
	_, err := h.gw.SendMessage(ctx, channelID, platform.OutgoingMessage{Content: content})
	return err
}

func (h *Handler) tag(ctx context.Context, ev platform.MessageCreated, arg string) error {
	if arg == "" {
		return h.reply(ctx, ev.ChannelID, fmt.Sprintf("Usage: `%stag <name>`", h.prefix))
	}
	if text, ok := h.tags[strings.ToLower(arg)]; ok {
		return h.reply(ctx, ev.ChannelID, text)
	}
	return h.reply(ctx, ev.ChannelID, fmt.Sprintf("⚡ No tag found for '%s'", arg))
}

// greet re-sends the welcome for the first mentioned member, or the author.
// Only administrators may use it.
func (h *Handler) greet(ctx context.Context, ev platform.MessageCreated) error {
	if !ev.AuthorIsAdmin {
		h.logger.Debug("greet refused for non-admin", zap.String("guild_id", ev.GuildID), zap.String("user_id", ev.AuthorID))
		return nil
	}
	target := ev.AuthorID
	if len(ev.MentionIDs) > 0 {
		target = ev.MentionIDs[0]
	}
	member, ok := h.gw.CachedMember(ev.GuildID, target)
	if !ok {
		fetched, err := h.gw.FetchMember(ctx, ev.GuildID, target)
		if err != nil {
			return fmt.Errorf("greet: resolve member: %w", err)
		}
		member = fetched
	}

	channels, err := h.greeter.LookupChannels(ctx, ev.GuildID)
	if channels.Welcome == nil {
		h.logger.Debug("greet without welcome channel", zap.String("guild_id", ev.GuildID), zap.Error(err))
		return h.reply(ctx, ev.ChannelID, "⚠️ No welcome channel found.")
	}
	guild, err := h.gw.Guild(ctx, ev.GuildID)
	if err != nil {
		guild = &platform.Guild{ID: ev.GuildID}
	}
	if err := h.greeter.GreetMember(ctx, guild, member, channels); err != nil {
		return err
	}
	return h.reply(ctx, ev.ChannelID, "✅ Test welcome message sent!")
}
