package notify

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisOptions configures a RedisFeed
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// RedisFeed subscribes to a redis pub/sub channel carrying notifications.
// go-redis re-establishes the subscription after connection loss.
type RedisFeed struct {
	opts   RedisOptions
	client *redis.Client
	hub    *Hub
}

// NewRedisFeed creates a feed for opts.Channel
func NewRedisFeed(opts RedisOptions, hub *Hub) *RedisFeed {
	return &RedisFeed{
		opts: opts,
		client: redis.NewClient(&redis.Options{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		}),
		hub: hub,
	}
}

// Run subscribes and dispatches messages until ctx is cancelled
func (f *RedisFeed) Run(ctx context.Context) error {
	defer func() { _ = f.client.Close() }()

	pubsub := f.client.Subscribe(ctx, f.opts.Channel)
	defer func() { _ = pubsub.Close() }()

	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to subscribe to %s: %w", f.opts.Channel, err)
	}

	f.hub.SetConnected(true)
	defer f.hub.SetConnected(false)
	log().Info().Str("channel", f.opts.Channel).Msg("Notification redis subscription active")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			dispatch(f.hub, []byte(msg.Payload))
		}
	}
}
