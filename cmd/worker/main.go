// Package main runs the queue worker: it drains gateway events enqueued by
// the bot in queue mode and handles them with the same pipeline.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/aura-community/gatekeeper/config"
	"github.com/aura-community/gatekeeper/internal/app"
	"github.com/aura-community/gatekeeper/internal/discord"
	"github.com/aura-community/gatekeeper/internal/dispatch"
	"github.com/aura-community/gatekeeper/pkg/queue"
	"github.com/aura-community/gatekeeper/pkg/redis"
)

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

	ctx := context.Background()
	rdb, err := redis.NewClient(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	// REST only: the worker never opens a gateway connection, so member
	// lookups miss the state cache and fall back to fetches.
	session, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		logger.Fatal("discord session", zap.Error(err))
	}
	gw := discord.NewGateway(session, logger.Named("discord"))

	engine, err := app.NewEngine(cfg, gw, rdb.Client, logger)
	if err != nil {
		logger.Fatal("engine", zap.Error(err))
	}

	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := engine.Start(workerCtx); err != nil {
		logger.Fatal("feed", zap.Error(err))
	}

	worker := dispatch.NewWorker(queue.NewQueue(rdb.Client, logger.Named("queue")), engine.Dispatcher, queue.ErrorBackoff, logger.Named("worker"))
	done := make(chan struct{})
	go func() {
		worker.Run(workerCtx)
		close(done)
	}()
	logger.Info("worker started", zap.String("queue", queue.QueueEvents))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	<-done
	engine.Shutdown()
	logger.Info("worker stopped")
}
