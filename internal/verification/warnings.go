package verification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aura-community/gatekeeper/internal/platform"
)

// Role mutation operations, used in logs and warning text.
const (
	OpCreateRole = "create_role"
	OpAddRole    = "add_role"
	OpRemoveRole = "remove_role"
)

// warningLimiter lets one permission warning per key through per cooldown.
type warningLimiter struct {
	mu       sync.Mutex
	cooldown time.Duration
	last     map[string]time.Time
}

func newWarningLimiter(cooldown time.Duration) *warningLimiter {
	return &warningLimiter{cooldown: cooldown, last: make(map[string]time.Time)}
}

func (w *warningLimiter) allow(key string, now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if at, ok := w.last[key]; ok && now.Sub(at) < w.cooldown {
		return false
	}
	w.last[key] = now
	for k, at := range w.last {
		if now.Sub(at) >= w.cooldown {
			delete(w.last, k)
		}
	}
	return true
}

// PermissionWarning is the in-channel text explaining a role-hierarchy problem.
func PermissionWarning(op, roleName string) string {
	var action string
	switch op {
	case OpCreateRole:
		action = fmt.Sprintf("create the **%s** role", roleName)
	case OpRemoveRole:
		action = fmt.Sprintf("remove the **%s** role", roleName)
	default:
		action = fmt.Sprintf("give out the **%s** role", roleName)
	}
	return fmt.Sprintf("⚠️ I couldn't %s because I'm missing permissions. "+
		"Grant my role **Manage Roles** and drag it above **%s** in Server Settings → Roles.", action, roleName)
}

// roleMutationFailed logs a failed role operation with full context and, for
// permission failures, posts a rate-limited warning to channelID.
func (r *Reconciler) roleMutationFailed(ctx context.Context, op, guildID, userID, roleName, channelID string, err error) error {
	r.logger.Error("role mutation failed",
		zap.String("guild_id", guildID),
		zap.String("user_id", userID),
		zap.String("role", roleName),
		zap.String("op", op),
		zap.String("kind", platform.KindOf(err)),
		zap.Error(err),
	)
	if platform.IsPermissionDenied(err) {
		r.warnPermission(ctx, guildID, channelID, op, roleName)
	}
	return fmt.Errorf("%s %q: %w", op, roleName, err)
}

func (r *Reconciler) warnPermission(ctx context.Context, guildID, channelID, op, roleName string) {
	if channelID == "" {
		return
	}
	if !r.warnings.allow(guildID+"|"+op+"|"+roleName, r.now()) {
		return
	}
	msg := platform.OutgoingMessage{Content: PermissionWarning(op, roleName)}
	if _, err := r.gw.SendMessage(ctx, channelID, msg); err != nil {
		r.logger.Warn("permission warning not delivered",
			zap.String("guild_id", guildID),
			zap.String("channel_id", channelID),
			zap.Error(err),
		)
	}
}
