// Package config loads and validates crawlfleet configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Rabbit   RabbitConfig   `mapstructure:"rabbit"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Ops      OpsConfig      `mapstructure:"ops"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// CrawlerConfig governs agent fan-out and crawl behavior.
type CrawlerConfig struct {
	Agents        int      `mapstructure:"agents"`
	MaxDepth      int      `mapstructure:"max_depth"`
	RespectRobots bool     `mapstructure:"respect_robots"`
	UserAgent     string   `mapstructure:"user_agent"`
	Keywords      []string `mapstructure:"keywords"`
	Seeds         []string `mapstructure:"seeds"`
}

// HTTPConfig configures the plain HTTP fetcher.
type HTTPConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// Timeout returns the fetch timeout as a duration.
func (c HTTPConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// HeadlessConfig configures the headless rendering fetcher.
type HeadlessConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxParallel   int  `mapstructure:"max_parallel"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
}

// NavTimeout returns the navigation timeout as a duration.
func (c HeadlessConfig) NavTimeout() time.Duration {
	return time.Duration(c.NavTimeoutSec) * time.Second
}

// RabbitConfig holds broker connection and queue parameters.
type RabbitConfig struct {
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	Queue         string `mapstructure:"queue"`
	ConsumerLabel string `mapstructure:"consumer_label"`
	ContentType   string `mapstructure:"content_type"`
}

// RedisConfig controls access to the dedup store.
type RedisConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	DB   int    `mapstructure:"db"`
}

// PostgresConfig controls the consumer's page archive.
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int    `mapstructure:"max_conns"`
}

// OpsConfig controls the health/metrics listener.
type OpsConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLFLEET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
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

func setDefaults(v *viper.Viper) {
	v.SetDefault("crawler.agents", 4)
	v.SetDefault("crawler.max_depth", 2)
	v.SetDefault("crawler.respect_robots", true)
	v.SetDefault("crawler.user_agent", "crawlfleet/0.1")
	v.SetDefault("crawler.keywords", []string{"news", "article", "blog"})
	v.SetDefault("crawler.seeds", []string{
		"https://en.wikipedia.org/wiki/Main_Page",
		"https://www.bbc.com",
		"https://news.ycombinator.com/",
		"https://arxiv.org/",
		"https://scholar.google.com/",
		"https://data.gov/",
		"https://github.com/trending",
		"https://stackoverflow.com/",
		"https://www.producthunt.com/",
		"https://www.reddit.com/r/technology/",
		"https://medium.com/",
		"https://www.amazon.com/",
		"https://www.ebay.com/",
	})
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("rabbit.user", "guest")
	v.SetDefault("rabbit.password", "guest")
	v.SetDefault("rabbit.host", "127.0.0.1")
	v.SetDefault("rabbit.port", 5672)
	v.SetDefault("rabbit.queue", "crawled_pages")
	v.SetDefault("rabbit.consumer_label", "fleet")
	v.SetDefault("rabbit.content_type", "application/json")
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	// AutomaticEnv only sees keys viper knows about, so even valueless
	// keys need a default registered for their env override to land.
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.max_conns", 4)
	v.SetDefault("ops.port", 9090)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Crawler.Agents <= 0 {
		return fmt.Errorf("crawler.agents must be > 0")
	}
	if c.Crawler.MaxDepth < 0 {
		return fmt.Errorf("crawler.max_depth must be >= 0")
	}
	if len(c.Crawler.Seeds) == 0 {
		return fmt.Errorf("crawler.seeds must not be empty")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Rabbit.Queue == "" {
		return fmt.Errorf("rabbit.queue must be set")
	}
	if c.Rabbit.Port <= 0 {
		return fmt.Errorf("rabbit.port must be > 0")
	}
	if c.Redis.Port <= 0 {
		return fmt.Errorf("redis.port must be > 0")
	}
	if c.Ops.Port <= 0 {
		return fmt.Errorf("ops.port must be > 0")
	}
	return nil
}
