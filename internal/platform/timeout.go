package platform

import (
	"context"
	"time"
)

// WithTimeout bounds every blocking call on gw so a stalled request cannot
// wedge a worker. A non-positive d returns gw unchanged.
func WithTimeout(gw Gateway, d time.Duration) Gateway {
	if d <= 0 {
		return gw
	}
	return &timeoutGateway{next: gw, d: d}
}

type timeoutGateway struct {
	next Gateway
	d    time.Duration
}

func (t *timeoutGateway) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, t.d)
}

func (t *timeoutGateway) Roles(ctx context.Context, guildID string) ([]Role, error) {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.next.Roles(ctx, guildID)
}

func (t *timeoutGateway) CreateRole(ctx context.Context, guildID, name string) (*Role, error) {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.next.CreateRole(ctx, guildID, name)
}

func (t *timeoutGateway) AddRole(ctx context.Context, guildID, userID, roleID string) error {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.next.AddRole(ctx, guildID, userID, roleID)
}

func (t *timeoutGateway) RemoveRole(ctx context.Context, guildID, userID, roleID string) error {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.next.RemoveRole(ctx, guildID, userID, roleID)
}

func (t *timeoutGateway) GetChannel(ctx context.Context, channelID string) (*Channel, error) {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.next.GetChannel(ctx, channelID)
}

func (t *timeoutGateway) FindChannelByName(ctx context.Context, guildID, name string) (*Channel, error) {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.next.FindChannelByName(ctx, guildID, name)
}

func (t *timeoutGateway) CreateChannel(ctx context.Context, guildID, name string, readOnly bool) (*Channel, error) {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.next.CreateChannel(ctx, guildID, name, readOnly)
}

func (t *timeoutGateway) SendMessage(ctx context.Context, channelID string, msg OutgoingMessage) (*Message, error) {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.next.SendMessage(ctx, channelID, msg)
}

func (t *timeoutGateway) FetchRecentMessages(ctx context.Context, channelID string, limit int) ([]Message, error) {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.next.FetchRecentMessages(ctx, channelID, limit)
}

func (t *timeoutGateway) AddReaction(ctx context.Context, channelID, messageID, emoji string) error {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.next.AddReaction(ctx, channelID, messageID, emoji)
}

func (t *timeoutGateway) RemoveReaction(ctx context.Context, channelID, messageID, emoji, userID string) error {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.next.RemoveReaction(ctx, channelID, messageID, emoji, userID)
}

func (t *timeoutGateway) Guild(ctx context.Context, guildID string) (*Guild, error) {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.next.Guild(ctx, guildID)
}

func (t *timeoutGateway) CachedMember(guildID, userID string) (*Member, bool) {
	return t.next.CachedMember(guildID, userID)
}

func (t *timeoutGateway) FetchMember(ctx context.Context, guildID, userID string) (*Member, error) {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.next.FetchMember(ctx, guildID, userID)
}

func (t *timeoutGateway) SendDirectMessage(ctx context.Context, userID string, msg OutgoingMessage) error {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.next.SendDirectMessage(ctx, userID, msg)
}
