package notify

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/stwalsh4118/marquee/internal/config"
	"github.com/stwalsh4118/marquee/internal/logger"
)

// Feed pushes notifications from an external channel into a Hub until ctx ends
type Feed interface {
	Run(ctx context.Context) error
}

func log() *zerolog.Logger {
	l := logger.Component("notify")
	return &l
}

// OpenFeed builds the feed selected by cfg. It returns nil for the "none" source.
func OpenFeed(cfg *config.NotificationsConfig, hub *Hub) (Feed, error) {
	switch cfg.Source {
	case "", "none":
		return nil, nil
	case "websocket":
		return NewWebSocketFeed(cfg.WebSocketURL, hub, cfg.ReconnectMaxDelay), nil
	case "redis":
		return NewRedisFeed(RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Channel:  cfg.RedisChannel,
		}, hub), nil
	default:
		return nil, fmt.Errorf("unknown notification source: %s", cfg.Source)
	}
}
