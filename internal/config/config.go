package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/baxromumarov/catalog-scraper/internal/httpx"
	"github.com/baxromumarov/catalog-scraper/internal/normalize"
	"github.com/baxromumarov/catalog-scraper/internal/pipeline"
)

const (
	EngineColly    = "colly"
	EngineDocument = "document"

	DedupMemory = "memory"
	DedupRedis  = "redis"
)

// Config holds all configuration for the scraper and the API server.
type Config struct {
	Catalog CatalogConfig `mapstructure:"catalog"`
	Crawl   CrawlConfig   `mapstructure:"crawl"`
	Dedup   DedupConfig   `mapstructure:"dedup"`
	Store   StoreConfig   `mapstructure:"store"`
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
}

// CatalogConfig holds the normalization and pipeline settings.
type CatalogConfig struct {
	BaseURL         string   `mapstructure:"base_url"`
	StartURL        string   `mapstructure:"start_url"`
	ExchangeRate    string   `mapstructure:"exchange_rate"`
	Currency        string   `mapstructure:"currency"`
	RequiredFields  []string `mapstructure:"required_fields"`
	NumericDiscount bool     `mapstructure:"numeric_discount"`
}

// CrawlConfig holds extraction and transport settings.
type CrawlConfig struct {
	Engine       string        `mapstructure:"engine"`
	Workers      int           `mapstructure:"workers"`
	MaxPages     int           `mapstructure:"max_pages"`
	Interval     time.Duration `mapstructure:"interval"`
	UserAgent    string        `mapstructure:"user_agent"`
	Timeout      time.Duration `mapstructure:"timeout"`
	PerHost      time.Duration `mapstructure:"per_host"`
	Burst        int           `mapstructure:"burst"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	IgnoreRobots bool          `mapstructure:"ignore_robots"`
}

// DedupConfig selects where the seen-name set of a run lives.
type DedupConfig struct {
	Backend  string        `mapstructure:"backend"`
	RedisURL string        `mapstructure:"redis_url"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type StoreConfig struct {
	DatabaseURL string        `mapstructure:"database_url"`
	Retention   time.Duration `mapstructure:"retention"`
}

type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from defaults, an optional YAML file and
// SCRAPER_* environment variables, in increasing priority. An empty path
// searches ./config.yaml and ./config/config.yaml.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("SCRAPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("catalog.base_url", normalize.DefaultBaseURL)
	v.SetDefault("catalog.start_url", normalize.DefaultBaseURL+"/smartphones/")
	v.SetDefault("catalog.exchange_rate", "0.15")
	v.SetDefault("catalog.currency", "ZAR")
	v.SetDefault("catalog.required_fields", pipeline.DefaultConfig().RequiredFields)
	v.SetDefault("catalog.numeric_discount", false)

	v.SetDefault("crawl.engine", EngineColly)
	v.SetDefault("crawl.workers", 1)
	v.SetDefault("crawl.max_pages", 50)
	v.SetDefault("crawl.interval", "6h")
	v.SetDefault("crawl.user_agent", httpx.DefaultUserAgent)
	v.SetDefault("crawl.timeout", "15s")
	v.SetDefault("crawl.per_host", "1s")
	v.SetDefault("crawl.burst", 2)
	v.SetDefault("crawl.max_attempts", 3)
	v.SetDefault("crawl.ignore_robots", false)

	v.SetDefault("dedup.backend", DedupMemory)
	v.SetDefault("dedup.redis_url", "")
	v.SetDefault("dedup.prefix", "catalog")
	v.SetDefault("dedup.ttl", "24h")

	v.SetDefault("store.database_url", "")
	v.SetDefault("store.retention", "720h")

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

func validate(cfg *Config) error {
	rate, err := decimal.NewFromString(cfg.Catalog.ExchangeRate)
	if err != nil {
		return fmt.Errorf("exchange rate %q is not a number", cfg.Catalog.ExchangeRate)
	}
	if !rate.IsPositive() {
		return fmt.Errorf("exchange rate must be positive, got: %s", cfg.Catalog.ExchangeRate)
	}
	if strings.TrimSpace(cfg.Catalog.Currency) == "" {
		return errors.New("target currency is required")
	}
	if cfg.Catalog.BaseURL == "" {
		return errors.New("catalog base URL is required")
	}

	if cfg.Crawl.Engine != EngineColly && cfg.Crawl.Engine != EngineDocument {
		return fmt.Errorf("crawl engine must be 'colly' or 'document', got: %s", cfg.Crawl.Engine)
	}
	if cfg.Crawl.Workers < 1 {
		return fmt.Errorf("crawl workers must be at least 1, got: %d", cfg.Crawl.Workers)
	}
	if cfg.Crawl.MaxPages < 0 {
		return fmt.Errorf("crawl max pages cannot be negative, got: %d", cfg.Crawl.MaxPages)
	}

	if cfg.Dedup.Backend != DedupMemory && cfg.Dedup.Backend != DedupRedis {
		return fmt.Errorf("dedup backend must be 'memory' or 'redis', got: %s", cfg.Dedup.Backend)
	}
	if cfg.Dedup.Backend == DedupRedis && cfg.Dedup.RedisURL == "" {
		return errors.New("redis URL is required when dedup backend is 'redis'")
	}

	switch cfg.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log format must be 'text' or 'json', got: %s", cfg.Log.Format)
	}
	return nil
}

// Pipeline returns the stage settings. Load has already validated the rate.
func (c *Config) Pipeline() pipeline.Config {
	return pipeline.Config{
		ExchangeRate:   decimal.RequireFromString(c.Catalog.ExchangeRate),
		Currency:       strings.ToUpper(strings.TrimSpace(c.Catalog.Currency)),
		RequiredFields: c.Catalog.RequiredFields,
	}
}

func (c *Config) Normalizer() normalize.Options {
	return normalize.Options{BaseURL: c.Catalog.BaseURL, NumericDiscount: c.Catalog.NumericDiscount}
}

func (c *Config) HTTP() httpx.Options {
	return httpx.Options{
		UserAgent:    c.Crawl.UserAgent,
		Timeout:      c.Crawl.Timeout,
		PerHost:      c.Crawl.PerHost,
		Burst:        c.Crawl.Burst,
		MaxAttempts:  c.Crawl.MaxAttempts,
		IgnoreRobots: c.Crawl.IgnoreRobots,
	}
}
