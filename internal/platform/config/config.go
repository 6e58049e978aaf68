package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"8080"`
	AppURL    string `env:"APP_URL" default:"http://localhost:8080"`
	JWTSecret string `env:"JWT_SECRET"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	BusCapacity int `env:"BUS_CAPACITY" default:"1024"`

	MaxWebSocketConnections int     `env:"MAX_WEBSOCKET_CONNECTIONS" default:"10000"`
	MaxConnectionsPerIP     int     `env:"MAX_CONNECTIONS_PER_IP" default:"50"`
	ConnectionRate          float64 `env:"CONNECTION_RATE" default:"10"`
	ConnectionBurst         int     `env:"CONNECTION_BURST" default:"20"`

	// Per-IP request rate on the publish ingress.
	PublishRate  float64 `env:"PUBLISH_RATE" default:"500"`
	PublishBurst int     `env:"PUBLISH_BURST" default:"1000"`

	MockFeedEnabled  bool          `env:"MOCK_FEED_ENABLED" default:"true"`
	MockFeedInterval time.Duration `env:"MOCK_FEED_INTERVAL" default:"1s"`

	// UpstreamFeedURL enables the relay from an exchange gateway speaking the
	// same wire protocol. Channels are space-separated.
	UpstreamFeedURL      string   `env:"UPSTREAM_FEED_URL"`
	UpstreamFeedToken    string   `env:"UPSTREAM_FEED_TOKEN"`
	UpstreamFeedChannels []string `env:"UPSTREAM_FEED_CHANNELS" default:"all_markets"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// IsDevelopment reports whether the server runs in development mode,
// which relaxes the WebSocket origin check.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if len(cfg.JWTSecret) < 16 {
		return errors.New("JWT_SECRET must be at least 16 characters")
	}

	if cfg.BusCapacity < 1 {
		return fmt.Errorf("BUS_CAPACITY must be positive, got %d", cfg.BusCapacity)
	}
	if cfg.MaxWebSocketConnections < 1 {
		return fmt.Errorf("MAX_WEBSOCKET_CONNECTIONS must be positive, got %d", cfg.MaxWebSocketConnections)
	}
	if cfg.MaxConnectionsPerIP < 1 {
		return fmt.Errorf("MAX_CONNECTIONS_PER_IP must be positive, got %d", cfg.MaxConnectionsPerIP)
	}
	if cfg.ConnectionRate <= 0 || cfg.ConnectionBurst < 1 {
		return errors.New("CONNECTION_RATE and CONNECTION_BURST must be positive")
	}
	if cfg.PublishRate <= 0 || cfg.PublishBurst < 1 {
		return errors.New("PUBLISH_RATE and PUBLISH_BURST must be positive")
	}
	if cfg.MockFeedInterval <= 0 {
		return fmt.Errorf("MOCK_FEED_INTERVAL must be positive, got %s", cfg.MockFeedInterval)
	}

	if cfg.UpstreamFeedURL != "" {
		u, err := url.Parse(cfg.UpstreamFeedURL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			return fmt.Errorf("UPSTREAM_FEED_URL must be a ws:// or wss:// URL, got %q", cfg.UpstreamFeedURL)
		}
	}

	return nil
}
