// Package app wires the gatekeeper components from configuration. Both the
// bot and the queue worker build their handling pipeline here.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aura-community/gatekeeper/config"
	"github.com/aura-community/gatekeeper/internal/commands"
	"github.com/aura-community/gatekeeper/internal/dispatch"
	"github.com/aura-community/gatekeeper/internal/feed"
	"github.com/aura-community/gatekeeper/internal/guildlock"
	"github.com/aura-community/gatekeeper/internal/onboarding"
	"github.com/aura-community/gatekeeper/internal/platform"
	"github.com/aura-community/gatekeeper/internal/roles"
	"github.com/aura-community/gatekeeper/internal/verification"
)

// minLockTTL bounds how long a crashed holder can block a guild.
const minLockTTL = 30 * time.Second

// lockCallBudget is the most gateway calls made under one lock: role
// provisioning lists then creates up to two roles, and a promotion
// refetches, grants, revokes then DMs.
const lockCallBudget = 5

// lockTTL keeps a Redis lock alive for a holder whose every call runs to
// the timeout.
func lockTTL(callTimeout time.Duration) time.Duration {
	return max(minLockTTL, lockCallBudget*callTimeout)
}

// Engine is the in-process handling pipeline.
type Engine struct {
	Dispatcher *dispatch.Dispatcher
	Reconciler *verification.Reconciler
	Commands   *commands.Handler
	Hub        *feed.Hub
}

// NewLogger builds the production zap logger at the given level.
func NewLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// NewEngine wires provisioner, publisher, reconciler, commands and the
// dispatcher around gw. rdb is required only when cfg asks for Redis locks
// or the cross-process feed; it may be nil otherwise.
func NewEngine(cfg *config.Config, gw platform.Gateway, rdb *redis.Client, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	gw = platform.WithTimeout(gw, cfg.Dispatch.CallTimeout)

	var locks guildlock.Locker = guildlock.NewLocal()
	if cfg.Dispatch.LockBackend == config.LockRedis {
		if rdb == nil {
			return nil, fmt.Errorf("lock backend %q needs a redis client", config.LockRedis)
		}
		locks = guildlock.NewRedis(rdb, lockTTL(cfg.Dispatch.CallTimeout), logger.Named("lock"))
	}

	var hub *feed.Hub
	if rdb != nil {
		bridge := feed.NewRedisBridge(rdb, logger.Named("feed"))
		hub = feed.NewHub(logger.Named("feed"), bridge, bridge)
	} else {
		hub = feed.NewHub(logger.Named("feed"), nil, nil)
	}

	provisioner := roles.NewProvisioner(gw, locks, roles.Config{
		UnverifiedName: cfg.Gate.UnverifiedRoleName,
		VerifiedName:   cfg.Gate.VerifiedRoleName,
	}, logger.Named("roles"))

	publisher := onboarding.NewPublisher(gw, locks, onboarding.Config{
		WelcomeChannelID:   cfg.Gate.WelcomeChannelID,
		WelcomeChannelName: cfg.Gate.WelcomeChannelName,
		VerifyChannelID:    cfg.Gate.VerifyChannelID,
		VerifyChannelName:  cfg.Gate.VerifyChannelName,
		AllowChannelCreate: cfg.Gate.AllowChannelCreate,
		PromptScanDepth:    cfg.Gate.PromptScanDepth,
		Emoji:              cfg.Gate.Emoji,
	}, logger.Named("onboarding"))

	reconciler := verification.NewReconciler(gw, provisioner, publisher, hub, verification.Config{
		Emoji:            cfg.Gate.Emoji,
		CleanupReactions: cfg.Gate.CleanupReactions,
		GateBots:         cfg.Gate.GateBots,
		WarningCooldown:  cfg.Gate.WarningCooldown,
		Locks:            locks,
	}, logger.Named("verification"))

	cmds := commands.NewHandler(gw, publisher, cfg.Gate.CommandPrefix, logger.Named("commands"))

	dispatcher := dispatch.New(reconciler, cmds, dispatch.Options{
		MaxConcurrentEvents: cfg.Dispatch.MaxConcurrentEvents,
		EventTimeout:        cfg.Dispatch.EventTimeout,
	}, logger.Named("dispatch"))

	return &Engine{
		Dispatcher: dispatcher,
		Reconciler: reconciler,
		Commands:   cmds,
		Hub:        hub,
	}, nil
}

// Start begins the feed subscription, if any.
func (e *Engine) Start(ctx context.Context) error {
	return e.Hub.Start(ctx)
}

// Shutdown waits for in-flight events and stops the feed.
func (e *Engine) Shutdown() {
	e.Dispatcher.Wait()
	e.Hub.Stop()
}
