// Package ops serves the bot's operational HTTP surface: health checks and
// the token-protected transition feed.
package ops

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aura-community/gatekeeper/internal/feed"
	"github.com/aura-community/gatekeeper/pkg/response"
)

// Check reports the health of one dependency.
type Check func(ctx context.Context) error

// Options wires the router.
type Options struct {
	Tokens *TokenService
	Hub    *feed.Hub
	// Checks are run on every /health request, keyed by dependency name.
	Checks map[string]Check
	Logger *zap.Logger
}

// NewRouter builds the ops gin engine.
func NewRouter(opts Options) *gin.Engine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(Logger(logger))

	router.GET("/health", health(opts.Checks))

	if opts.Tokens != nil && opts.Hub != nil {
		router.GET("/ws", feed.ServeWs(opts.Hub, logger, opts.Tokens.Subject))

		api := router.Group("")
		api.Use(RequireToken(opts.Tokens))
		api.GET("/feed/stats", func(c *gin.Context) {
			response.OK(c, gin.H{"clients": opts.Hub.ClientCount()})
		})
	}
	return router
}

func health(checks map[string]Check) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		status := make(map[string]string, len(checks))
		healthy := true
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status[name] = err.Error()
				healthy = false
				continue
			}
			status[name] = "ok"
		}
		if !healthy {
			response.ServiceUnavailable(c, "unhealthy", gin.H{"status": "degraded", "checks": status})
			return
		}
		response.OK(c, gin.H{"status": "ok", "checks": status})
	}
}
