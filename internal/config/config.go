// Package config loads and validates scraper configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/sitescrape/internal/crawler"
)

// EnvPrefix prefixes every environment override, e.g. SITESCRAPE_CRAWLER_WORKERS.
const EnvPrefix = "SITESCRAPE"

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Output   OutputConfig   `mapstructure:"output"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
}

// CrawlerConfig governs the worker pool and crawl limits.
type CrawlerConfig struct {
	Workers            int           `mapstructure:"workers"`
	MaxPages           int           `mapstructure:"max_pages"`
	UserAgent          string        `mapstructure:"user_agent"`
	IdleBackoffInitial time.Duration `mapstructure:"idle_backoff_initial"`
	IdleBackoffMax     time.Duration `mapstructure:"idle_backoff_max"`
}

// HTTPConfig configures the fetcher.
type HTTPConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	MaxBodyBytes   int `mapstructure:"max_body_bytes"`
}

// OutputConfig sets where the JSON result is written. A gs://bucket/object
// path targets Cloud Storage; anything else is a local file.
type OutputConfig struct {
	Path        string `mapstructure:"path"`
	ContentType string `mapstructure:"content_type"`
}

// LoggingConfig toggles zap development features and the minimum level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// PostgresConfig enables the page-row sink when DSN is set.
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int    `mapstructure:"max_conns"`
}

// PubSubConfig enables the crawl-completed event when Topic is set.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// flagKeys maps CLI flag names onto configuration keys.
var flagKeys = map[string]string{
	"workers":      "crawler.workers",
	"max-pages":    "crawler.max_pages",
	"timeout":      "http.timeout_seconds",
	"output":       "output.path",
	"metrics-addr": "metrics.addr",
	"dev":          "logging.development",
}

// Load builds a Config from defaults, an optional file, the environment and
// any flags in flags. With an empty path, ./sitescrape.{yaml,json,toml} is read
// if present.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := readConfigFile(v, path); err != nil {
		return Config{}, err
	}
	if err := bindFlags(v, flags); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func readConfigFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
		return nil
	}
	v.SetConfigName("sitescrape")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	if flags == nil {
		return nil
	}
	for name, key := range flagKeys {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("crawler.workers", 8)
	v.SetDefault("crawler.max_pages", 0)
	v.SetDefault("crawler.user_agent", crawler.DefaultUserAgent)
	v.SetDefault("crawler.idle_backoff_initial", 10*time.Millisecond)
	v.SetDefault("crawler.idle_backoff_max", 200*time.Millisecond)
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.max_body_bytes", 10*1024*1024)
	v.SetDefault("output.path", "site_content.json")
	v.SetDefault("output.content_type", "application/json; charset=utf-8")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.table", "pages")
	v.SetDefault("postgres.max_conns", 4)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Crawler.Workers <= 0 {
		return fmt.Errorf("crawler.workers must be > 0")
	}
	if c.Crawler.MaxPages < 0 {
		return fmt.Errorf("crawler.max_pages must be >= 0")
	}
	if c.Crawler.IdleBackoffInitial <= 0 {
		return fmt.Errorf("crawler.idle_backoff_initial must be > 0")
	}
	if c.Crawler.IdleBackoffMax < c.Crawler.IdleBackoffInitial {
		return fmt.Errorf("crawler.idle_backoff_max must be >= crawler.idle_backoff_initial")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxBodyBytes < 0 {
		return fmt.Errorf("http.max_body_bytes must be >= 0")
	}
	if strings.TrimSpace(c.Output.Path) == "" {
		return fmt.Errorf("output.path must be set")
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level must be a zap level: %w", err)
	}
	if c.Postgres.DSN != "" && c.Postgres.MaxConns <= 0 {
		return fmt.Errorf("postgres.max_conns must be > 0 when postgres.dsn is set")
	}
	if c.PubSub.Topic != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic is set")
	}
	return nil
}

// RequestTimeout converts http.timeout_seconds into a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// CrawlerConfig derives the per-crawl knobs handed to the dispatcher.
func (c Config) CrawlerConfig() crawler.Config {
	return crawler.Config{
		Workers:            c.Crawler.Workers,
		MaxPages:           c.Crawler.MaxPages,
		UserAgent:          c.Crawler.UserAgent,
		RequestTimeout:     c.RequestTimeout(),
		IdleBackoffInitial: c.Crawler.IdleBackoffInitial,
		IdleBackoffMax:     c.Crawler.IdleBackoffMax,
	}
}
