package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-jwt-secret-0123456789")
}

func TestLoad_AllRequiredVarsSet(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "test-jwt-secret-0123456789", cfg.JWTSecret)
}

func TestLoad_MissingJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
	assert.Equal(t, "JWT_SECRET is required", err.Error())
}

func TestLoad_ShortJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "too-short")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 16 characters")
}

func TestLoad_DefaultValues(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 1024, cfg.BusCapacity)
	assert.Equal(t, 10000, cfg.MaxWebSocketConnections)
	assert.Equal(t, 50, cfg.MaxConnectionsPerIP)
	assert.InDelta(t, 10.0, cfg.ConnectionRate, 0.0001)
	assert.Equal(t, 20, cfg.ConnectionBurst)
	assert.InDelta(t, 500.0, cfg.PublishRate, 0.0001)
	assert.Equal(t, 1000, cfg.PublishBurst)
	assert.True(t, cfg.MockFeedEnabled)
	assert.Equal(t, time.Second, cfg.MockFeedInterval)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Empty(t, cfg.UpstreamFeedURL)
	assert.Equal(t, []string{"all_markets"}, cfg.UpstreamFeedChannels)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_CustomValues(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("APP_ENV", "production")
	t.Setenv("BUS_CAPACITY", "64")
	t.Setenv("MOCK_FEED_ENABLED", "false")
	t.Setenv("MOCK_FEED_INTERVAL", "250ms")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "production", cfg.AppEnv)
	assert.Equal(t, 64, cfg.BusCapacity)
	assert.False(t, cfg.MockFeedEnabled)
	assert.Equal(t, 250*time.Millisecond, cfg.MockFeedInterval)
	assert.False(t, cfg.IsDevelopment())
}

func TestLoad_InvalidLimits(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{"zero bus capacity", "BUS_CAPACITY", "0", "BUS_CAPACITY must be positive"},
		{"zero max connections", "MAX_WEBSOCKET_CONNECTIONS", "0", "MAX_WEBSOCKET_CONNECTIONS must be positive"},
		{"zero per-ip limit", "MAX_CONNECTIONS_PER_IP", "0", "MAX_CONNECTIONS_PER_IP must be positive"},
		{"zero rate", "CONNECTION_RATE", "0", "CONNECTION_RATE and CONNECTION_BURST must be positive"},
		{"zero publish burst", "PUBLISH_BURST", "0", "PUBLISH_RATE and PUBLISH_BURST must be positive"},
		{"http upstream", "UPSTREAM_FEED_URL", "http://gateway:9000/ws", "UPSTREAM_FEED_URL must be a ws:// or wss:// URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_UpstreamFeed(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("UPSTREAM_FEED_URL", "wss://gateway.internal/ws")
	t.Setenv("UPSTREAM_FEED_TOKEN", "feed-token")
	t.Setenv("UPSTREAM_FEED_CHANNELS", "market:BTC-USDT market:ETH-USDT")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "wss://gateway.internal/ws", cfg.UpstreamFeedURL)
	assert.Equal(t, "feed-token", cfg.UpstreamFeedToken)
	assert.Equal(t, []string{"market:BTC-USDT", "market:ETH-USDT"}, cfg.UpstreamFeedChannels)
}
