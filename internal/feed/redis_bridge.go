package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// Channel is the Redis pub/sub channel carrying encoded transitions.
	Channel        = "gatekeeper:transitions"
	publishTimeout = 5 * time.Second
)

// RedisBridge implements Publisher and Subscriber over Redis pub/sub.
type RedisBridge struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisBridge creates a Redis pub/sub bridge for the transition feed.
func NewRedisBridge(client *redis.Client, logger *zap.Logger) *RedisBridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBridge{client: client, logger: logger}
}

// Publish publishes an encoded transition.
func (r *RedisBridge) Publish(ctx context.Context, payload []byte) error {
	return r.client.Publish(ctx, Channel, payload).Err()
}

// Subscribe calls handler for each published transition until cancel is
// called or ctx is done.
func (r *RedisBridge) Subscribe(ctx context.Context, handler func(payload []byte)) (cancel func(), err error) {
	ctx, cancelCtx := context.WithCancel(ctx)
	pubsub := r.client.Subscribe(ctx, Channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		cancelCtx()
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				handler([]byte(msg.Payload))
			}
		}
	}()
	r.logger.Info("subscribed to transition feed", zap.String("channel", Channel))
	return cancelCtx, nil
}
