package onboarding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/aura-community/gatekeeper/internal/platform"
)

// Channels are the resolved onboarding channels for one event. Either may be
// nil when it could not be resolved.
type Channels struct {
	Welcome *platform.Channel
	Verify  *platform.Channel
}

// ResolveChannels finds the welcome and verify channels, creating them when
// AllowChannelCreate is set. Partial results come back with the error.
func (p *Publisher) ResolveChannels(ctx context.Context, guildID string) (Channels, error) {
	return p.channels(ctx, guildID, p.cfg.AllowChannelCreate)
}

// LookupChannels is ResolveChannels without ever creating a channel.
func (p *Publisher) LookupChannels(ctx context.Context, guildID string) (Channels, error) {
	return p.channels(ctx, guildID, false)
}

func (p *Publisher) channels(ctx context.Context, guildID string, create bool) (Channels, error) {
	var out Channels
	var errs []error
	welcome, err := p.resolve(ctx, guildID, p.cfg.WelcomeChannelID, p.cfg.WelcomeChannelName, create)
	if err != nil {
		errs = append(errs, fmt.Errorf("welcome channel: %w", err))
	}
	out.Welcome = welcome
	verify, err := p.resolve(ctx, guildID, p.cfg.VerifyChannelID, p.cfg.VerifyChannelName, create)
	if err != nil {
		errs = append(errs, fmt.Errorf("verify channel: %w", err))
	}
	out.Verify = verify
	return out, errors.Join(errs...)
}

// resolve tries the configured ID, then the name, then creation.
func (p *Publisher) resolve(ctx context.Context, guildID, id, name string, create bool) (*platform.Channel, error) {
	if id != "" {
		ch, err := p.api.GetChannel(ctx, id)
		switch {
		case err == nil && ch.GuildID == guildID:
			return ch, nil
		case err != nil && !platform.IsNotFound(err):
			return nil, err
		}
	}
	ch, err := p.api.FindChannelByName(ctx, guildID, name)
	if err == nil {
		return ch, nil
	}
	if !platform.IsNotFound(err) || !create {
		return nil, err
	}

	unlock, err := p.locks.Lock(ctx, "channels:"+guildID)
	if err != nil {
		return nil, fmt.Errorf("lock channels: %w", err)
	}
	defer unlock()
	if ch, err := p.api.FindChannelByName(ctx, guildID, name); err == nil {
		return ch, nil
	}
	ch, err = p.api.CreateChannel(ctx, guildID, name, true)
	if err != nil {
		return nil, err
	}
	p.logger.Info("onboarding channel created",
		zap.String("guild_id", guildID),
		zap.String("channel", name),
		zap.String("channel_id", ch.ID),
	)
	return ch, nil
}

// IsVerifyChannel reports whether channelID is the guild's verify channel.
// A configured ID that lives in another guild falls back to the name match.
func (p *Publisher) IsVerifyChannel(ctx context.Context, guildID, channelID string) (bool, error) {
	if p.cfg.VerifyChannelID != "" {
		if channelID == p.cfg.VerifyChannelID {
			return true, nil
		}
		configured, err := p.api.GetChannel(ctx, p.cfg.VerifyChannelID)
		if err == nil && configured.GuildID == guildID {
			return false, nil
		}
	}
	ch, err := p.api.GetChannel(ctx, channelID)
	if err != nil {
		return false, err
	}
	return ch.GuildID == guildID && strings.EqualFold(ch.Name, p.cfg.VerifyChannelName), nil
}
