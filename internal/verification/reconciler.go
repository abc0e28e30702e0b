// Package verification is the gating state machine: joins move members to
// Unverified, a marker reaction on the verify prompt moves them to Verified.
// The reconciler keeps no state of its own; every decision re-reads the
// platform, and every role mutation is idempotent so duplicate or racing
// events settle on the same end state.
package verification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/aura-community/gatekeeper/internal/guildlock"
	"github.com/aura-community/gatekeeper/internal/onboarding"
	"github.com/aura-community/gatekeeper/internal/platform"
	"github.com/aura-community/gatekeeper/internal/roles"
)

const (
	defaultWarningCooldown = 10 * time.Minute
	defaultVerifiedDM      = "✅ You're now verified! Enjoy the server 💫"
)

// RoleEnsurer provisions the gating roles.
type RoleEnsurer interface {
	EnsureRoles(ctx context.Context, guildID string) (roles.Set, error)
}

// Onboarder resolves onboarding channels and publishes onboarding artifacts.
type Onboarder interface {
	ResolveChannels(ctx context.Context, guildID string) (onboarding.Channels, error)
	GreetMember(ctx context.Context, guild *platform.Guild, member *platform.Member, ch onboarding.Channels) error
	EnsureVerificationPrompt(ctx context.Context, guildID string, verify *platform.Channel) error
	IsVerifyChannel(ctx context.Context, guildID, channelID string) (bool, error)
}

// Config tunes the reconciler.
type Config struct {
	Emoji            string
	CleanupReactions bool
	GateBots         bool
	WarningCooldown  time.Duration
	VerifiedDM       string
	// Locks serializes the read-decide-mutate step per member. Defaults to
	// an in-process locker.
	Locks guildlock.Locker
}

// Reconciler applies role transitions for join and reaction events.
type Reconciler struct {
	gw       platform.Gateway
	roles    RoleEnsurer
	onboard  Onboarder
	recorder Recorder
	warnings *warningLimiter
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time
}

// NewReconciler wires the state machine. A nil recorder discards transitions.
func NewReconciler(gw platform.Gateway, roleEnsurer RoleEnsurer, onboard Onboarder, recorder Recorder, cfg Config, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if cfg.Emoji == "" {
		cfg.Emoji = platform.DefaultVerificationEmoji
	}
	if cfg.WarningCooldown <= 0 {
		cfg.WarningCooldown = defaultWarningCooldown
	}
	if cfg.VerifiedDM == "" {
		cfg.VerifiedDM = defaultVerifiedDM
	}
	if cfg.Locks == nil {
		cfg.Locks = guildlock.NewLocal()
	}
	return &Reconciler{
		gw:       gw,
		roles:    roleEnsurer,
		onboard:  onboard,
		recorder: recorder,
		warnings: newWarningLimiter(cfg.WarningCooldown),
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// HandleJoin moves a new member from Unknown to Unverified, then greets them
// and makes sure the verify prompt exists. Only a failure to assign
// Unverified is returned; greeting and prompt failures are logged.
func (r *Reconciler) HandleJoin(ctx context.Context, ev platform.MemberJoined) error {
	member := ev.Member
	if member.GuildID == "" {
		member.GuildID = ev.GuildID
	}
	log := r.logger.With(zap.String("guild_id", ev.GuildID), zap.String("user_id", member.UserID))
	if member.Bot && !r.cfg.GateBots {
		log.Debug("bot join not gated")
		return nil
	}

	set, err := r.roles.EnsureRoles(ctx, ev.GuildID)
	if err != nil {
		log.Warn("gating roles incomplete", zap.String("kind", platform.KindOf(err)), zap.Error(err))
	}
	channels, err := r.onboard.ResolveChannels(ctx, ev.GuildID)
	if err != nil {
		log.Warn("onboarding channels incomplete", zap.String("kind", platform.KindOf(err)), zap.Error(err))
	}
	warnChannel := ""
	if channels.Welcome != nil {
		warnChannel = channels.Welcome.ID
	}
	for _, name := range set.Denied {
		r.warnPermission(ctx, ev.GuildID, warnChannel, OpCreateRole, name)
	}

	// A replayed join must not demote a member who already verified.
	if cur, ok := r.gw.CachedMember(ev.GuildID, member.UserID); ok && set.Verified != nil && cur.HasRole(set.Verified.ID) {
		log.Debug("join replay for verified member ignored")
		return nil
	}

	var assignErr error
	switch {
	case set.Unverified == nil:
		assignErr = errors.New("assign unverified: role unavailable")
	default:
		if err := r.gw.AddRole(ctx, ev.GuildID, member.UserID, set.Unverified.ID); err != nil {
			assignErr = r.roleMutationFailed(ctx, OpAddRole, ev.GuildID, member.UserID, set.Unverified.Name, warnChannel, err)
		} else {
			r.recorder.Record(newTransition(ev.GuildID, member.UserID, StateUnknown, StateUnverified, TriggerJoin, r.now()))
			log.Info("member gated")
		}
	}

	guild, err := r.gw.Guild(ctx, ev.GuildID)
	if err != nil {
		log.Debug("guild lookup failed, greeting without guild details", zap.Error(err))
		guild = &platform.Guild{ID: ev.GuildID}
	}
	if err := r.onboard.GreetMember(ctx, guild, &member, channels); err != nil {
		log.Warn("greeting skipped", zap.Error(err))
	}
	if err := r.onboard.EnsureVerificationPrompt(ctx, ev.GuildID, channels.Verify); err != nil {
		log.Warn("verification prompt not ensured", zap.String("kind", platform.KindOf(err)), zap.Error(err))
	}
	return assignErr
}

// HandleReaction promotes the reacting member to Verified when the reaction
// is the marker emoji on the verify channel. Events failing the filters are
// dropped without any platform mutation.
func (r *Reconciler) HandleReaction(ctx context.Context, ev platform.ReactionAdded) error {
	if ev.GuildID == "" || !ev.Emoji.Matches(r.cfg.Emoji) {
		return nil
	}
	ok, err := r.onboard.IsVerifyChannel(ctx, ev.GuildID, ev.ChannelID)
	if err != nil {
		if platform.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("check verify channel: %w", err)
	}
	if !ok {
		return nil
	}

	member, fresh, err := r.resolveMember(ctx, ev.GuildID, ev.UserID)
	if err != nil {
		if platform.IsNotFound(err) {
			r.logger.Debug("reacting user is no longer a member", zap.String("guild_id", ev.GuildID), zap.String("user_id", ev.UserID))
			return nil
		}
		return fmt.Errorf("resolve member: %w", err)
	}
	if member.Bot {
		return nil
	}
	log := r.logger.With(zap.String("guild_id", ev.GuildID), zap.String("user_id", member.UserID))

	set, err := r.roles.EnsureRoles(ctx, ev.GuildID)
	for _, name := range set.Denied {
		r.warnPermission(ctx, ev.GuildID, ev.ChannelID, OpCreateRole, name)
	}
	if set.Verified == nil {
		if err == nil {
			err = errors.New("verified role unavailable")
		}
		return fmt.Errorf("ensure roles: %w", err)
	}
	if err != nil {
		log.Warn("gating roles incomplete", zap.Error(err))
	}

	verifyErr := r.promote(ctx, ev, member, fresh, set, log)
	r.cleanupReaction(ctx, ev)
	return verifyErr
}

// promote moves member to Verified. The role read, the mutations and the DM
// run under the member's lock against freshly fetched roles, so concurrent
// or replayed deliveries of one reaction notify the member once.
func (r *Reconciler) promote(ctx context.Context, ev platform.ReactionAdded, member *platform.Member, fresh bool, set roles.Set, log *zap.Logger) error {
	unlock, err := r.cfg.Locks.Lock(ctx, "member:"+ev.GuildID+":"+member.UserID)
	if err != nil {
		return fmt.Errorf("lock member: %w", err)
	}
	defer unlock()

	if !fresh {
		current, err := r.gw.FetchMember(ctx, ev.GuildID, member.UserID)
		if err != nil {
			if platform.IsNotFound(err) {
				log.Debug("reacting user left before promotion")
				return nil
			}
			return fmt.Errorf("refresh member: %w", err)
		}
		member = current
	}

	wasVerified := member.HasRole(set.Verified.ID)
	heldUnverified := set.Unverified != nil && member.HasRole(set.Unverified.ID)
	if wasVerified && !heldUnverified {
		log.Debug("member already verified")
		return nil
	}

	// Grant before revoking so a failed grant leaves the member Unverified
	// rather than holding neither role.
	if err := r.gw.AddRole(ctx, ev.GuildID, member.UserID, set.Verified.ID); err != nil {
		return r.roleMutationFailed(ctx, OpAddRole, ev.GuildID, member.UserID, set.Verified.Name, ev.ChannelID, err)
	}
	if heldUnverified {
		// Holding both roles is not verified yet: the next reaction retries
		// the revoke and only then notifies.
		if err := r.gw.RemoveRole(ctx, ev.GuildID, member.UserID, set.Unverified.ID); err != nil {
			return r.roleMutationFailed(ctx, OpRemoveRole, ev.GuildID, member.UserID, set.Unverified.Name, ev.ChannelID, err)
		}
	}

	from := StateUnknown
	if heldUnverified {
		from = StateUnverified
	}
	r.recorder.Record(newTransition(ev.GuildID, member.UserID, from, StateVerified, TriggerReaction, r.now()))
	log.Info("member verified")
	r.notifyVerified(ctx, member)
	return nil
}

// resolveMember prefers the local cache and falls back to a platform fetch,
// since large guilds do not keep every member warm. fresh reports whether
// the member came from the platform rather than the cache.
func (r *Reconciler) resolveMember(ctx context.Context, guildID, userID string) (m *platform.Member, fresh bool, err error) {
	if m, ok := r.gw.CachedMember(guildID, userID); ok {
		return m, false, nil
	}
	m, err = r.gw.FetchMember(ctx, guildID, userID)
	return m, true, err
}

func (r *Reconciler) notifyVerified(ctx context.Context, member *platform.Member) {
	err := r.gw.SendDirectMessage(ctx, member.UserID, platform.OutgoingMessage{Content: r.cfg.VerifiedDM})
	if err != nil {
		r.logger.Info("verification DM not delivered",
			zap.String("guild_id", member.GuildID),
			zap.String("user_id", member.UserID),
			zap.String("kind", platform.KindOf(err)),
			zap.Error(err),
		)
	}
}

func (r *Reconciler) cleanupReaction(ctx context.Context, ev platform.ReactionAdded) {
	if !r.cfg.CleanupReactions {
		return
	}
	if err := r.gw.RemoveReaction(ctx, ev.ChannelID, ev.MessageID, ev.Emoji.Name, ev.UserID); err != nil {
		r.logger.Debug("reaction cleanup failed",
			zap.String("guild_id", ev.GuildID),
			zap.String("message_id", ev.MessageID),
			zap.String("kind", platform.KindOf(err)),
			zap.Error(err),
		)
	}
}
