// Package discord adapts a discordgo session to platform.Gateway and turns
// gateway events into platform events.
package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/aura-community/gatekeeper/internal/platform"
)

// Gateway implements platform.Gateway on top of a discordgo session.
type Gateway struct {
	s      *discordgo.Session
	logger *zap.Logger
}

// NewGateway wraps s. The session's state cache backs CachedMember.
func NewGateway(s *discordgo.Session, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{s: s, logger: logger}
}

// classify maps a discordgo failure onto the platform error taxonomy.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Response != nil {
		switch rest.Response.StatusCode {
		case http.StatusForbidden:
			return platform.NewError(op, platform.ErrPermissionDenied, err)
		case http.StatusNotFound:
			return platform.NewError(op, platform.ErrNotFound, err)
		}
	}
	if errors.Is(err, discordgo.ErrStateNotFound) {
		return platform.NewError(op, platform.ErrNotFound, err)
	}
	return platform.NewError(op, platform.ErrTransient, err)
}

func (g *Gateway) Roles(ctx context.Context, guildID string) ([]platform.Role, error) {
	roles, err := g.s.GuildRoles(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, classify("list roles", err)
	}
	out := make([]platform.Role, 0, len(roles))
	for _, r := range roles {
		out = append(out, toRole(guildID, r))
	}
	return out, nil
}

func (g *Gateway) CreateRole(ctx context.Context, guildID, name string) (*platform.Role, error) {
	r, err := g.s.GuildRoleCreate(guildID, &discordgo.RoleParams{Name: name}, discordgo.WithContext(ctx))
	if err != nil {
		return nil, classify("create role", err)
	}
	role := toRole(guildID, r)
	g.logger.Info("created role", zap.String("guild_id", guildID), zap.String("role", name), zap.String("role_id", role.ID))
	return &role, nil
}

// AddRole is idempotent on Discord's side: adding a held role returns 204.
func (g *Gateway) AddRole(ctx context.Context, guildID, userID, roleID string) error {
	return classify("add role", g.s.GuildMemberRoleAdd(guildID, userID, roleID, discordgo.WithContext(ctx)))
}

func (g *Gateway) RemoveRole(ctx context.Context, guildID, userID, roleID string) error {
	return classify("remove role", g.s.GuildMemberRoleRemove(guildID, userID, roleID, discordgo.WithContext(ctx)))
}

func (g *Gateway) GetChannel(ctx context.Context, channelID string) (*platform.Channel, error) {
	if ch, err := g.s.State.Channel(channelID); err == nil {
		out := toChannel(ch)
		return &out, nil
	}
	ch, err := g.s.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, classify("get channel", err)
	}
	out := toChannel(ch)
	return &out, nil
}

// FindChannelByName prefers an exact match and falls back to a
// case-insensitive one. Only text channels are considered.
func (g *Gateway) FindChannelByName(ctx context.Context, guildID, name string) (*platform.Channel, error) {
	channels, err := g.s.GuildChannels(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, classify("list channels", err)
	}
	var folded *discordgo.Channel
	for _, ch := range channels {
		if ch.Type != discordgo.ChannelTypeGuildText {
			continue
		}
		if ch.Name == name {
			out := toChannel(ch)
			return &out, nil
		}
		if folded == nil && strings.EqualFold(ch.Name, name) {
			folded = ch
		}
	}
	if folded != nil {
		out := toChannel(folded)
		return &out, nil
	}
	return nil, platform.NewError("find channel", platform.ErrNotFound, fmt.Errorf("no channel named %q in guild %s", name, guildID))
}

// CreateChannel creates a text channel. readOnly lets @everyone read and
// react but not send.
func (g *Gateway) CreateChannel(ctx context.Context, guildID, name string, readOnly bool) (*platform.Channel, error) {
	data := discordgo.GuildChannelCreateData{Name: name, Type: discordgo.ChannelTypeGuildText}
	if readOnly {
		data.PermissionOverwrites = []*discordgo.PermissionOverwrite{{
			// The @everyone role shares the guild's ID.
			ID:    guildID,
			Type:  discordgo.PermissionOverwriteTypeRole,
			Allow: discordgo.PermissionViewChannel | discordgo.PermissionReadMessageHistory | discordgo.PermissionAddReactions,
			Deny:  discordgo.PermissionSendMessages,
		}}
	}
	ch, err := g.s.GuildChannelCreateComplex(guildID, data, discordgo.WithContext(ctx))
	if err != nil {
		return nil, classify("create channel", err)
	}
	out := toChannel(ch)
	g.logger.Info("created channel", zap.String("guild_id", guildID), zap.String("channel", name), zap.String("channel_id", out.ID))
	return &out, nil
}

func (g *Gateway) SendMessage(ctx context.Context, channelID string, msg platform.OutgoingMessage) (*platform.Message, error) {
	sent, err := g.s.ChannelMessageSendComplex(channelID, toMessageSend(msg), discordgo.WithContext(ctx))
	if err != nil {
		return nil, classify("send message", err)
	}
	out := toMessage(sent)
	return &out, nil
}

// FetchRecentMessages relies on Discord returning history newest first.
func (g *Gateway) FetchRecentMessages(ctx context.Context, channelID string, limit int) ([]platform.Message, error) {
	msgs, err := g.s.ChannelMessages(channelID, limit, "", "", "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, classify("fetch messages", err)
	}
	out := make([]platform.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessage(m))
	}
	return out, nil
}

func (g *Gateway) AddReaction(ctx context.Context, channelID, messageID, emoji string) error {
	return classify("add reaction", g.s.MessageReactionAdd(channelID, messageID, emoji, discordgo.WithContext(ctx)))
}

func (g *Gateway) RemoveReaction(ctx context.Context, channelID, messageID, emoji, userID string) error {
	return classify("remove reaction", g.s.MessageReactionRemove(channelID, messageID, emoji, userID, discordgo.WithContext(ctx)))
}

func (g *Gateway) Guild(ctx context.Context, guildID string) (*platform.Guild, error) {
	if guild, err := g.s.State.Guild(guildID); err == nil {
		out := toGuild(guild)
		return &out, nil
	}
	guild, err := g.s.Guild(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, classify("get guild", err)
	}
	out := toGuild(guild)
	return &out, nil
}

func (g *Gateway) CachedMember(guildID, userID string) (*platform.Member, bool) {
	m, err := g.s.State.Member(guildID, userID)
	if err != nil || m == nil || m.User == nil {
		return nil, false
	}
	out := toMember(guildID, m)
	return &out, true
}

func (g *Gateway) FetchMember(ctx context.Context, guildID, userID string) (*platform.Member, error) {
	m, err := g.s.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, classify("fetch member", err)
	}
	if m.User == nil {
		return nil, platform.NewError("fetch member", platform.ErrNotFound, fmt.Errorf("member %s has no user", userID))
	}
	out := toMember(guildID, m)
	return &out, nil
}

// SendDirectMessage fails with ErrPermissionDenied when the user has DMs closed.
func (g *Gateway) SendDirectMessage(ctx context.Context, userID string, msg platform.OutgoingMessage) error {
	ch, err := g.s.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return classify("open dm", err)
	}
	_, err = g.s.ChannelMessageSendComplex(ch.ID, toMessageSend(msg), discordgo.WithContext(ctx))
	return classify("send dm", err)
}

// IsAdmin reports whether userID holds Administrator in channelID, using
// the state cache only.
func (g *Gateway) IsAdmin(userID, channelID string) bool {
	perms, err := g.s.State.UserChannelPermissions(userID, channelID)
	if err != nil {
		return false
	}
	return perms&discordgo.PermissionAdministrator != 0
}
