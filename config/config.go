package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"candlesync/internal/candle"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// EnvConfigPath names the environment variable holding an explicit config file path.
const EnvConfigPath = "CANDLESYNC_CONFIG"

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Symbol   string         `mapstructure:"symbol"`
	Binance  BinanceConfig  `mapstructure:"binance"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Backfill BackfillConfig `mapstructure:"backfill"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Log      LogConfig      `mapstructure:"log"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type BinanceConfig struct {
	REST RESTConfig `mapstructure:"rest"`
	WS   WSConfig   `mapstructure:"ws"`
}

type RESTConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	PageDelay     time.Duration `mapstructure:"page_delay"`
	RateLimitWait time.Duration `mapstructure:"rate_limit_wait"`
	ErrorWait     time.Duration `mapstructure:"error_wait"`
	MaxRetries    int           `mapstructure:"max_retries"`
}

type WSConfig struct {
	URL            string        `mapstructure:"url"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
}

type EngineConfig struct {
	Timeframes    []string `mapstructure:"timeframes"`
	EvictionBound int      `mapstructure:"eviction_bound"`
	QueueSize     int      `mapstructure:"queue_size"`
	VolumeMode    string   `mapstructure:"volume_mode"` // "cumulative" or "incremental"
}

type BackfillConfig struct {
	Enabled   bool                     `mapstructure:"enabled"`
	Lookbacks map[string]time.Duration `mapstructure:"lookbacks"`
	RetryMin  time.Duration            `mapstructure:"retry_min"`
	RetryMax  time.Duration            `mapstructure:"retry_max"`
}

type HTTPConfig struct {
	Addr            string `mapstructure:"addr"`
	DisplayTimezone string `mapstructure:"display_timezone"`
	PushBuffer      int    `mapstructure:"push_buffer"`
}

type ArchiveConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	CreateDB  bool          `mapstructure:"create_db"`
	Retention time.Duration `mapstructure:"retention"`
	QueueSize int           `mapstructure:"queue_size"`
}

// Options defines the logger configuration options.
type LogConfig struct {
	Level       string `mapstructure:"level"`       // log level: "debug", "info", "warn", "error"
	Format      string `mapstructure:"format"`      // log format: "json" or "console"
	OutputFile  string `mapstructure:"output_file"` // file path to store logs (optional)
	Environment string `mapstructure:"environment"` // environment: "dev" or "prod"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("symbol", "BTCUSDT")

	v.SetDefault("binance.rest.base_url", "https://api.binance.com")
	v.SetDefault("binance.rest.timeout", 10*time.Second)
	v.SetDefault("binance.rest.page_delay", 300*time.Millisecond)
	v.SetDefault("binance.rest.rate_limit_wait", 2*time.Second)
	v.SetDefault("binance.rest.error_wait", time.Second)
	v.SetDefault("binance.rest.max_retries", 5)
	v.SetDefault("binance.ws.url", "wss://stream.binance.com:9443/ws")
	v.SetDefault("binance.ws.reconnect_delay", 5*time.Second)

	v.SetDefault("engine.timeframes", []string{"1m", "5m", "1h", "1d"})
	v.SetDefault("engine.eviction_bound", 1000)
	v.SetDefault("engine.queue_size", 1024)
	v.SetDefault("engine.volume_mode", string(candle.VolumeCumulative))

	v.SetDefault("backfill.enabled", true)
	v.SetDefault("backfill.retry_min", 5*time.Second)
	v.SetDefault("backfill.retry_max", 5*time.Minute)

	v.SetDefault("http.addr", ":3000")
	v.SetDefault("http.display_timezone", "Asia/Jakarta")
	v.SetDefault("http.push_buffer", 64)

	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.create_db", false)
	v.SetDefault("archive.retention", 30*24*time.Hour)
	v.SetDefault("archive.queue_size", 256)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output_file", "")
	v.SetDefault("log.environment", "dev")

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.dbname", "candlesync")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.timezone", "UTC")
	v.SetDefault("postgres.max_open_conns", 10)
	v.SetDefault("postgres.max_idle_conns", 5)
	v.SetDefault("postgres.conn_max_lifetime", time.Hour)
	v.SetDefault("postgres.ssm.host", "CANDLESYNC_DB_HOST")
	v.SetDefault("postgres.ssm.user", "CANDLESYNC_DB_USER")
	v.SetDefault("postgres.ssm.password", "CANDLESYNC_DB_PASSWORD")
}

// Load loads application configuration using Viper.
// A .env file is applied to the environment first. The config file is path,
// else $CANDLESYNC_CONFIG, else config.yaml searched next to the executable.
// Environment variables override file values (e.g. CANDLESYNC_ENGINE_QUEUE_SIZE).
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config") // config.yaml
		v.SetConfigType("yaml")
		for _, dir := range searchPaths() {
			v.AddConfigPath(dir)
		}
	}

	// Support environment variables with dot notation (e.g., CANDLESYNC_BINANCE_WS_URL)
	v.SetEnvPrefix("CANDLESYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func searchPaths() []string {
	paths := []string{".", "./config"}
	ex, err := os.Executable()
	if err != nil {
		return paths
	}
	if strings.Contains(ex, "go-build") {
		pwd, _ := os.Getwd()
		return append(paths, filepath.Join(pwd, "../../config"))
	}
	return append(paths, filepath.Join(filepath.Dir(ex), "../config"))
}

// Validate checks the values the engine cannot run without.
func (c *Config) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("%w: symbol is empty", ErrInvalidConfig)
	}
	if _, err := c.Engine.ParsedTimeframes(); err != nil {
		return fmt.Errorf("%w: engine.timeframes: %w", ErrInvalidConfig, err)
	}
	if c.Engine.EvictionBound < 1 {
		return fmt.Errorf("%w: engine.eviction_bound must be >= 1, got %d", ErrInvalidConfig, c.Engine.EvictionBound)
	}
	if c.Engine.QueueSize < 1 {
		return fmt.Errorf("%w: engine.queue_size must be >= 1, got %d", ErrInvalidConfig, c.Engine.QueueSize)
	}
	if _, err := candle.ParseVolumeMode(c.Engine.VolumeMode); err != nil {
		return fmt.Errorf("%w: engine.volume_mode: %w", ErrInvalidConfig, err)
	}
	if _, err := c.Backfill.ParsedLookbacks(); err != nil {
		return fmt.Errorf("%w: backfill.lookbacks: %w", ErrInvalidConfig, err)
	}
	if c.Backfill.RetryMin <= 0 || c.Backfill.RetryMax < c.Backfill.RetryMin {
		return fmt.Errorf("%w: backfill.retry_min must be > 0 and <= retry_max", ErrInvalidConfig)
	}
	if _, err := c.HTTP.Location(); err != nil {
		return fmt.Errorf("%w: http.display_timezone: %w", ErrInvalidConfig, err)
	}
	if c.Binance.REST.MaxRetries < 0 {
		return fmt.Errorf("%w: binance.rest.max_retries must be >= 0", ErrInvalidConfig)
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return fmt.Errorf("%w: log.level: %w", ErrInvalidConfig, err)
	}
	return nil
}

func (e EngineConfig) ParsedTimeframes() ([]candle.Timeframe, error) {
	return candle.ParseTimeframes(e.Timeframes)
}

// ParsedLookbacks returns the configured lookbacks keyed by timeframe. Nil
// means none were configured.
func (b BackfillConfig) ParsedLookbacks() (map[candle.Timeframe]time.Duration, error) {
	if len(b.Lookbacks) == 0 {
		return nil, nil
	}
	out := make(map[candle.Timeframe]time.Duration, len(b.Lookbacks))
	for k, d := range b.Lookbacks {
		tf, err := candle.ParseTimeframe(k)
		if err != nil {
			return nil, err
		}
		if d <= 0 {
			return nil, fmt.Errorf("lookback for %s must be positive", tf)
		}
		out[tf] = d
	}
	return out, nil
}

func (h HTTPConfig) Location() (*time.Location, error) {
	if h.DisplayTimezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(h.DisplayTimezone)
}
