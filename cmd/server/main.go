package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/tyeom/zeroquant-sub005/internal/auth"
	"github.com/tyeom/zeroquant-sub005/internal/broadcast"
	"github.com/tyeom/zeroquant-sub005/internal/feed"
	"github.com/tyeom/zeroquant-sub005/internal/httpserver"
	"github.com/tyeom/zeroquant-sub005/internal/metrics"
	"github.com/tyeom/zeroquant-sub005/internal/platform/config"
	"github.com/tyeom/zeroquant-sub005/internal/platform/logging"
	"github.com/tyeom/zeroquant-sub005/internal/platform/version"
)

const relayRestartDelay = 5 * time.Second

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

// startFeeds launches the market data producers and returns a function that
// stops them and waits for them to exit.
func startFeeds(cfg *config.Config, registry *broadcast.Registry, clock clockwork.Clock, logger *slog.Logger) func() {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	if cfg.MockFeedEnabled {
		simulator := feed.NewSimulator(registry, registry,
			feed.WithClock(clock),
			feed.WithInterval(cfg.MockFeedInterval),
			feed.WithLogger(logger),
		)
		wg.Add(1)
		go func() {
			defer wg.Done()
			simulator.Run(ctx)
		}()
	}

	if cfg.UpstreamFeedURL != "" {
		stream := feed.NewWebSocketStream(feed.StreamConfig{
			URL:      cfg.UpstreamFeedURL,
			Token:    cfg.UpstreamFeedToken,
			Channels: cfg.UpstreamFeedChannels,
		}, clock, logger)
		relay := feed.NewRelay(registry, logger)

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { _ = stream.Close() }()
			for {
				if err := relay.Run(ctx, stream); err != nil {
					logger.Error("Market data relay failed", "error", err)
				}
				select {
				case <-ctx.Done():
					return
				case <-clock.After(relayRestartDelay):
				}
			}
		}()
	}

	return func() {
		cancel()
		wg.Wait()
	}
}

func runGracefulShutdown(srv *httpserver.Server, stopFeeds func(), timeout time.Duration) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		stopFeeds()

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logger := logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	info := version.Get()
	logger.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "version", info.String())
	metrics.BuildInfo.WithLabelValues(info.Version, info.Commit, info.BuildTime, info.GoVersion).Set(1)

	registry := broadcast.NewRegistry(broadcast.NewBus(cfg.BusCapacity))

	verifier, err := auth.NewJWTVerifier(cfg.JWTSecret, auth.WithClock(clock), auth.WithLeeway(5*time.Second))
	if err != nil {
		slog.Error("Failed to create token verifier", "error", err)
		os.Exit(1)
	}

	stopFeeds := startFeeds(cfg, registry, clock, logger)

	srv := httpserver.NewServer(cfg, registry, verifier,
		httpserver.WithClock(clock),
		httpserver.WithLogger(logger),
	)

	done := runGracefulShutdown(srv, stopFeeds, cfg.ShutdownTimeout)

	if err := srv.Start(); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
