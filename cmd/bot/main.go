// Package main runs the gatekeeper bot: gateway connection, event handling
// (inline or via the Redis queue) and the ops HTTP surface.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aura-community/gatekeeper/config"
	"github.com/aura-community/gatekeeper/internal/app"
	"github.com/aura-community/gatekeeper/internal/discord"
	"github.com/aura-community/gatekeeper/internal/dispatch"
	"github.com/aura-community/gatekeeper/internal/ops"
	"github.com/aura-community/gatekeeper/pkg/queue"
	"github.com/aura-community/gatekeeper/pkg/redis"
)

var errGatewayNotReady = errors.New("gateway not ready")

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger, err := app.NewLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if cfg.Discord.Token == "" {
		logger.Fatal("DISCORD_TOKEN is required")
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	var rdb *redis.Client
	if cfg.NeedsRedis() {
		rdb, err = redis.NewClient(ctx, cfg.Redis, logger)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		defer rdb.Close()
	}

	session, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		logger.Fatal("discord session", zap.Error(err))
	}
	session.Identify.Intents = discord.Intents
	gw := discord.NewGateway(session, logger.Named("discord"))

	engine, err := app.NewEngine(cfg, gw, redisOrNil(rdb), logger)
	if err != nil {
		logger.Fatal("engine", zap.Error(err))
	}
	if err := engine.Start(ctx); err != nil {
		logger.Fatal("feed", zap.Error(err))
	}

	var sink dispatch.Sink = engine.Dispatcher
	if cfg.Dispatch.Mode == config.DispatchQueue {
		sink = dispatch.NewQueueSink(queue.NewQueue(rdb.Client, logger.Named("queue")))
		logger.Info("events will be queued for workers")
	}
	unbind := discord.Bind(session, gw, sink, logger.Named("events"))

	if err := session.Open(); err != nil {
		logger.Fatal("discord gateway", zap.Error(err))
	}
	logger.Info("bot connected", zap.String("dispatch_mode", cfg.Dispatch.Mode), zap.String("lock_backend", cfg.Dispatch.LockBackend))

	var srv *http.Server
	if cfg.Ops.Port != "" {
		checks := map[string]ops.Check{
			"discord": func(context.Context) error {
				if session.DataReady {
					return nil
				}
				return errGatewayNotReady
			},
		}
		if rdb != nil {
			checks["redis"] = rdb.Check
		}
		router := ops.NewRouter(ops.Options{
			Tokens: ops.NewTokenService(cfg.Ops.JWTSecret, cfg.Ops.JWTExpireHours),
			Hub:    engine.Hub,
			Checks: checks,
			Logger: logger.Named("ops"),
		})
		srv = &http.Server{
			Addr:              ":" + cfg.Ops.Port,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("ops server listening", zap.String("port", cfg.Ops.Port))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Fatal("ops server", zap.Error(err))
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	unbind()
	if err := session.Close(); err != nil {
		logger.Warn("discord close", zap.Error(err))
	}
	stop()
	engine.Shutdown()

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("ops server shutdown", zap.Error(err))
		}
	}
	logger.Info("bot stopped")
}

func redisOrNil(c *redis.Client) *goredis.Client {
	if c == nil {
		return nil
	}
	return c.Client
}
