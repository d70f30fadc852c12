package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"bidstack/internal/logging"
	"bidstack/internal/pricebins"
	"bidstack/internal/query"
)

// Backend names accepted by query.backend.
const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Bins     BinsConfig     `mapstructure:"bins"`
	Query    QueryConfig    `mapstructure:"query"`
	Redis    RedisConfig    `mapstructure:"redis"`
	API      APIConfig      `mapstructure:"api"`
	Alerting AlertingConfig `mapstructure:"alerting"`
	Export   ExportConfig   `mapstructure:"export"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	BatchSize       int           `mapstructure:"batch_size"`
}

// CacheConfig locates cached raw extracts.
type CacheConfig struct {
	Dir string `mapstructure:"dir"`
}

// BinsConfig defines the price bin table. File, when set, overrides Edges.
type BinsConfig struct {
	Edges []float64 `mapstructure:"edges"`
	File  string    `mapstructure:"file"`
}

// QueryConfig selects the default backend and parity tolerance.
type QueryConfig struct {
	Backend   string  `mapstructure:"backend"`
	Tolerance float64 `mapstructure:"tolerance"`
}

// RedisConfig configures the optional query result cache.
type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
	Prefix   string        `mapstructure:"prefix"`
}

// APIConfig configures the HTTP query surface.
type APIConfig struct {
	Listen         string        `mapstructure:"listen"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// AlertingConfig routes backend divergence reports.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// IngestConfig controls backfill chunking.
type IngestConfig struct {
	Chunk string `mapstructure:"chunk"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BIDSTACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "bidstack")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stderr")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.advisory_lock_key", int64(0x62696473))
	v.SetDefault("database.batch_size", 1000)

	v.SetDefault("cache.dir", "data/raw")

	v.SetDefault("bins.edges", pricebins.DefaultEdges)

	v.SetDefault("query.backend", BackendPostgres)
	v.SetDefault("query.tolerance", query.DefaultTolerance)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.ttl", "10m")
	v.SetDefault("redis.prefix", "bidstack:")

	v.SetDefault("api.listen", ":8080")
	v.SetDefault("api.allowed_origins", []string{"*"})
	v.SetDefault("api.request_timeout", "30s")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("ingest.chunk", "month")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
		dc.WeaklyTypedInput = true
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	switch c.Query.Backend {
	case BackendPostgres, BackendMemory:
	default:
		return fmt.Errorf("query.backend must be %q or %q, got %q", BackendPostgres, BackendMemory, c.Query.Backend)
	}
	if c.Query.Tolerance < 0 {
		return fmt.Errorf("query.tolerance cannot be negative")
	}
	switch c.Ingest.Chunk {
	case "month", "day":
	default:
		return fmt.Errorf("ingest.chunk must be month or day, got %q", c.Ingest.Chunk)
	}
	if c.Bins.File == "" && len(c.Bins.Edges) < 2 {
		return fmt.Errorf("bins.edges needs at least two edges")
	}
	if c.Database.BatchSize <= 0 {
		return fmt.Errorf("database.batch_size must be greater than zero")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}

// PriceBins builds the bin table once for the lifetime of a run.
func (c *Config) PriceBins() (*pricebins.Table, error) {
	if c.Bins.File != "" {
		return pricebins.LoadFile(c.Bins.File)
	}
	return pricebins.New(c.Bins.Edges)
}
