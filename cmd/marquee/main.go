// Command marquee runs the playback orchestration daemon.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/stwalsh4118/marquee/internal/analytics"
	"github.com/stwalsh4118/marquee/internal/config"
	"github.com/stwalsh4118/marquee/internal/device"
	"github.com/stwalsh4118/marquee/internal/logger"
	"github.com/stwalsh4118/marquee/internal/notify"
	"github.com/stwalsh4118/marquee/internal/playback"
	"github.com/stwalsh4118/marquee/internal/player"
	"github.com/stwalsh4118/marquee/internal/resume"
	"github.com/stwalsh4118/marquee/internal/server"
	"github.com/stwalsh4118/marquee/internal/siteapi"
)

func main() {
	if err := run(); err != nil {
		logger.Log.Error().Err(err).Msg("marquee exited with error")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger.Init(cfg.Logging.Level, cfg.Logging.Pretty)
	log := logger.Component("main")

	store, err := resume.Open(&cfg.Resume)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close resume store")
		}
	}()

	hub := notify.NewHub()
	feed, err := notify.OpenFeed(&cfg.Notifications, hub)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	reporter, metrics := analytics.Build(&cfg.Analytics, reg)
	reporter.Start()
	defer reporter.Stop()

	elements, err := player.ElementFactory(&cfg.Player)
	if err != nil {
		return err
	}

	manager := player.NewManager(&cfg.Manager, &cfg.Player, player.NewBuilder(playback.Dependencies{
		Client:    siteapi.New(&cfg.Site),
		Elements:  elements,
		Bridge:    hub,
		Resume:    store,
		Analytics: reporter,
		Filter:    device.NewFilter(device.Parse(cfg.Player.Device)),
	}))
	if metrics != nil {
		manager.OnClose(metrics.Forget)
	}
	if err := manager.Start(); err != nil {
		return err
	}

	// health reports notifications as disabled without a feed
	var bridge notify.Bridge
	if feed != nil {
		bridge = hub
	}
	srv := server.New(cfg, manager, store, bridge, reg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	if feed != nil {
		g.Go(func() error {
			err := feed.Run(gctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	log.Info().
		Str("engine", cfg.Player.Engine).
		Str("device", cfg.Player.Device).
		Str("notifications", cfg.Notifications.Source).
		Str("resume_backend", cfg.Resume.Backend).
		Msg("marquee started")

	err = g.Wait()
	log.Info().Msg("marquee stopped")
	return err
}
