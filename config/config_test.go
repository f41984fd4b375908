package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"candlesync/internal/candle"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// go test -v --run TestLoadRepoConfig
func TestLoadRepoConfig(t *testing.T) {
	cfg, err := Load("config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", cfg.Symbol)
	assert.Equal(t, 1000, cfg.Engine.EvictionBound)
	assert.Equal(t, 2*time.Second, cfg.Binance.REST.RateLimitWait)

	tfs, err := cfg.Engine.ParsedTimeframes()
	require.NoError(t, err)
	assert.Equal(t, candle.DefaultTimeframes, tfs)

	lookbacks, err := cfg.Backfill.ParsedLookbacks()
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, lookbacks[candle.Timeframe1Min])
	assert.Equal(t, 43800*time.Hour, lookbacks[candle.Timeframe1Day])
	assert.Equal(t, 5*time.Second, cfg.Backfill.RetryMin)
	assert.Equal(t, 5*time.Minute, cfg.Backfill.RetryMax)
}

func TestLoadDefaultsAndEnv(t *testing.T) {
	path := writeConfig(t, "symbol: ETHUSDT\nengine:\n  timeframes: [\"1m\", \"15m\"]\n")
	t.Setenv(EnvConfigPath, path)
	t.Setenv("CANDLESYNC_ENGINE_QUEUE_SIZE", "16")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "ETHUSDT", cfg.Symbol)
	assert.Equal(t, []string{"1m", "15m"}, cfg.Engine.Timeframes)
	assert.Equal(t, 16, cfg.Engine.QueueSize)
	assert.Equal(t, "cumulative", cfg.Engine.VolumeMode)
	assert.Equal(t, 5*time.Second, cfg.Binance.WS.ReconnectDelay)
	assert.Equal(t, "Asia/Jakarta", cfg.HTTP.DisplayTimezone)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown timeframe", "engine:\n  timeframes: [\"1m\", \"1w\"]\n"},
		{"duplicate timeframe", "engine:\n  timeframes: [\"1m\", \"1m\"]\n"},
		{"zero bound", "engine:\n  eviction_bound: 0\n"},
		{"zero queue", "engine:\n  queue_size: 0\n"},
		{"volume mode", "engine:\n  volume_mode: weird\n"},
		{"lookback key", "backfill:\n  lookbacks:\n    7m: 1h\n"},
		{"retry bounds", "backfill:\n  retry_min: 10m\n  retry_max: 1m\n"},
		{"timezone", "http:\n  display_timezone: Mars/Olympus\n"},
		{"log level", "log:\n  level: loud\n"},
		{"empty symbol", "symbol: \"\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestPostgresDSN(t *testing.T) {
	cfg := PostgresConfig{
		Host: "localhost", Port: 5432, User: "postgres", Password: "pw",
		DBName: "candlesync", SSLMode: "disable", TimeZone: "UTC",
	}
	assert.Equal(t,
		"host=localhost port=5432 user=postgres password=pw dbname=candlesync sslmode=disable TimeZone=UTC",
		cfg.DSN("dev"))
	assert.Equal(t,
		"host=localhost port=5432 user=postgres password=pw dbname=postgres sslmode=disable TimeZone=UTC",
		cfg.AdminDSN("dev"))
}
