// Package onboarding posts the welcome notice for new members and keeps a
// single verification prompt alive in the verify channel.
package onboarding

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/aura-community/gatekeeper/internal/guildlock"
	"github.com/aura-community/gatekeeper/internal/platform"
)

// Defaults mirror the channel names the community has always used.
const (
	DefaultWelcomeChannelName = "👋│𝐰𝐞𝐥𝐜𝐨𝐦𝐞"
	DefaultVerifyChannelName  = "✅ verify"
	DefaultPromptScanDepth    = 5
)

// Config controls channel resolution and prompt detection.
type Config struct {
	WelcomeChannelID   string
	WelcomeChannelName string
	VerifyChannelID    string
	VerifyChannelName  string
	AllowChannelCreate bool
	PromptScanDepth    int
	Emoji              string
}

func (c Config) withDefaults() Config {
	if c.WelcomeChannelName == "" {
		c.WelcomeChannelName = DefaultWelcomeChannelName
	}
	if c.VerifyChannelName == "" {
		c.VerifyChannelName = DefaultVerifyChannelName
	}
	if c.PromptScanDepth <= 0 {
		c.PromptScanDepth = DefaultPromptScanDepth
	}
	if c.Emoji == "" {
		c.Emoji = platform.DefaultVerificationEmoji
	}
	return c
}

// API is the slice of the gateway the publisher needs.
type API interface {
	platform.ChannelAPI
	platform.MessageAPI
}

// Publisher owns the onboarding artifacts: welcome posts and the verification prompt.
type Publisher struct {
	api    API
	locks  guildlock.Locker
	flight singleflight.Group
	cfg    Config
	logger *zap.Logger
}

// NewPublisher creates an onboarding publisher.
func NewPublisher(api API, locks guildlock.Locker, cfg Config, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if locks == nil {
		locks = guildlock.NewLocal()
	}
	return &Publisher{api: api, locks: locks, cfg: cfg.withDefaults(), logger: logger}
}

// GreetMember posts the welcome notice. The error is informational: the join
// flow carries on without it.
func (p *Publisher) GreetMember(ctx context.Context, guild *platform.Guild, member *platform.Member, ch Channels) error {
	if ch.Welcome == nil {
		return fmt.Errorf("greet %s: welcome channel: %w", member.UserID, platform.ErrNotFound)
	}
	verifyRef := "**#" + p.cfg.VerifyChannelName + "**"
	if ch.Verify != nil {
		verifyRef = ch.Verify.Mention()
	}
	msg := platform.OutgoingMessage{Embed: WelcomeEmbed(guild, member, verifyRef)}
	if _, err := p.api.SendMessage(ctx, ch.Welcome.ID, msg); err != nil {
		p.logger.Warn("welcome message failed",
			zap.String("guild_id", guild.ID),
			zap.String("user_id", member.UserID),
			zap.String("channel_id", ch.Welcome.ID),
			zap.String("kind", platform.KindOf(err)),
			zap.Error(err),
		)
		return fmt.Errorf("greet %s: %w", member.UserID, err)
	}
	p.logger.Debug("welcome message sent", zap.String("guild_id", guild.ID), zap.String("user_id", member.UserID))
	return nil
}

// EnsureVerificationPrompt posts the prompt unless one is already among the
// most recent PromptScanDepth messages. Concurrent calls for a guild collapse
// into one, and the scan-then-create runs under the guild's prompt lock so
// separate processes sharing a Redis locker cannot double post either.
func (p *Publisher) EnsureVerificationPrompt(ctx context.Context, guildID string, verify *platform.Channel) error {
	if verify == nil {
		return fmt.Errorf("verification prompt: verify channel: %w", platform.ErrNotFound)
	}
	_, err, _ := p.flight.Do(guildID, func() (interface{}, error) {
		return nil, p.ensurePrompt(ctx, guildID, verify)
	})
	return err
}

func (p *Publisher) ensurePrompt(ctx context.Context, guildID string, verify *platform.Channel) error {
	unlock, err := p.locks.Lock(ctx, "prompt:"+guildID)
	if err != nil {
		return fmt.Errorf("lock prompt: %w", err)
	}
	defer unlock()

	recent, err := p.api.FetchRecentMessages(ctx, verify.ID, p.cfg.PromptScanDepth)
	if err != nil {
		return fmt.Errorf("scan verify channel: %w", err)
	}
	for _, msg := range recent {
		if IsPrompt(msg) {
			return nil
		}
	}

	posted, err := p.api.SendMessage(ctx, verify.ID, platform.OutgoingMessage{Embed: PromptEmbed(p.cfg.Emoji)})
	if err != nil {
		return fmt.Errorf("post verification prompt: %w", err)
	}
	p.logger.Info("verification prompt posted",
		zap.String("guild_id", guildID),
		zap.String("channel_id", verify.ID),
		zap.String("message_id", posted.ID),
	)
	if err := p.api.AddReaction(ctx, verify.ID, posted.ID, p.cfg.Emoji); err != nil {
		p.logger.Warn("marker reaction failed",
			zap.String("guild_id", guildID),
			zap.String("message_id", posted.ID),
			zap.String("kind", platform.KindOf(err)),
			zap.Error(err),
		)
	}
	return nil
}
