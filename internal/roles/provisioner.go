// Package roles ensures the two gating roles exist in a guild.
package roles

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/aura-community/gatekeeper/internal/guildlock"
	"github.com/aura-community/gatekeeper/internal/platform"
)

// Default gating role names.
const (
	DefaultUnverifiedName = "Unverified"
	DefaultVerifiedName   = "Verified"
)

// Config names the gating roles.
type Config struct {
	UnverifiedName string
	VerifiedName   string
}

func (c Config) withDefaults() Config {
	if c.UnverifiedName == "" {
		c.UnverifiedName = DefaultUnverifiedName
	}
	if c.VerifiedName == "" {
		c.VerifiedName = DefaultVerifiedName
	}
	return c
}

// Set holds the resolved gating roles. A nil pointer means the role could not
// be found or created; Denied lists the names whose creation the platform refused.
type Set struct {
	Unverified *platform.Role
	Verified   *platform.Role
	Denied     []string
}

// Complete reports whether both roles are available.
func (s Set) Complete() bool {
	return s.Unverified != nil && s.Verified != nil
}

// Provisioner creates missing gating roles, serialized per guild.
type Provisioner struct {
	api    platform.RoleAPI
	locks  guildlock.Locker
	cfg    Config
	logger *zap.Logger
}

// NewProvisioner creates a role provisioner.
func NewProvisioner(api platform.RoleAPI, locks guildlock.Locker, cfg Config, logger *zap.Logger) *Provisioner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if locks == nil {
		locks = guildlock.NewLocal()
	}
	return &Provisioner{api: api, locks: locks, cfg: cfg.withDefaults(), logger: logger}
}

// Names returns the configured role names.
func (p *Provisioner) Names() Config {
	return p.cfg
}

// EnsureRoles returns both gating roles, creating whichever is missing. A
// partially successful Set is returned together with the error.
func (p *Provisioner) EnsureRoles(ctx context.Context, guildID string) (Set, error) {
	unlock, err := p.locks.Lock(ctx, "roles:"+guildID)
	if err != nil {
		return Set{}, fmt.Errorf("lock roles: %w", err)
	}
	defer unlock()

	existing, err := p.api.Roles(ctx, guildID)
	if err != nil {
		return Set{}, fmt.Errorf("list roles: %w", err)
	}

	set := Set{
		Unverified: Pick(existing, p.cfg.UnverifiedName),
		Verified:   Pick(existing, p.cfg.VerifiedName),
	}
	var errs []error
	if set.Unverified == nil {
		set.Unverified, err = p.create(ctx, guildID, p.cfg.UnverifiedName)
		if err != nil {
			errs = append(errs, err)
			if platform.IsPermissionDenied(err) {
				set.Denied = append(set.Denied, p.cfg.UnverifiedName)
			}
		}
	}
	if set.Verified == nil {
		set.Verified, err = p.create(ctx, guildID, p.cfg.VerifiedName)
		if err != nil {
			errs = append(errs, err)
			if platform.IsPermissionDenied(err) {
				set.Denied = append(set.Denied, p.cfg.VerifiedName)
			}
		}
	}
	return set, errors.Join(errs...)
}

func (p *Provisioner) create(ctx context.Context, guildID, name string) (*platform.Role, error) {
	role, err := p.api.CreateRole(ctx, guildID, name)
	if err == nil {
		p.logger.Info("gating role created",
			zap.String("guild_id", guildID),
			zap.String("role", name),
			zap.String("role_id", role.ID),
		)
		return role, nil
	}
	if platform.IsPermissionDenied(err) {
		p.logger.Warn("gating role creation denied",
			zap.String("guild_id", guildID),
			zap.String("role", name),
			zap.Error(err),
		)
		return nil, fmt.Errorf("create role %q: %w", name, err)
	}

	// Another process may have created it between our list and create.
	if again, lerr := p.api.Roles(ctx, guildID); lerr == nil {
		if found := Pick(again, name); found != nil {
			return found, nil
		}
	}
	return nil, fmt.Errorf("create role %q: %w", name, err)
}

// Pick returns the role called name. When several share the name, the oldest
// (smallest snowflake) wins so every event resolves the same one.
func Pick(roles []platform.Role, name string) *platform.Role {
	var best *platform.Role
	for i := range roles {
		r := roles[i]
		if r.Name != name {
			continue
		}
		if best == nil || OlderID(r.ID, best.ID) {
			best = &r
		}
	}
	return best
}

// OlderID compares two snowflake IDs numerically without parsing them.
func OlderID(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}
