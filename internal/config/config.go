// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/docs-crawler/internal/crawler"
)

// EnvPrefix prefixes every environment override, e.g. DOCSCRAWLER_CRAWLER_RATE_LIMIT_SECONDS.
const EnvPrefix = "DOCSCRAWLER"

// Output backends.
const (
	BackendLocal  = "local"
	BackendGCS    = "gcs"
	BackendMemory = "memory"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Crawler CrawlerConfig `mapstructure:"crawler"`
	Menu    MenuConfig    `mapstructure:"menu"`
	Fetch   FetchConfig   `mapstructure:"fetch"`
	Output  OutputConfig  `mapstructure:"output"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// CrawlerConfig governs politeness and crawl pipeline behavior.
type CrawlerConfig struct {
	RateLimitSeconds  float64     `mapstructure:"rate_limit_seconds"`
	ConcurrentLimit   int         `mapstructure:"concurrent_limit"`
	MaxDepth          int         `mapstructure:"max_depth"`
	SitemapMaxDepth   int         `mapstructure:"sitemap_max_depth"`
	UserAgent         string      `mapstructure:"user_agent"`
	TimeoutSeconds    int         `mapstructure:"timeout_seconds"`
	RespectRobots     bool        `mapstructure:"respect_robots"`
	ExclusionPatterns []string    `mapstructure:"exclusion_patterns"`
	SameHostOnly      bool        `mapstructure:"same_host_only"`
	MaxBodyBytes      int         `mapstructure:"max_body_bytes"`
	Retry             RetryConfig `mapstructure:"retry"`
}

// RetryConfig configures the optional retry wrapper around fetches.
type RetryConfig struct {
	MaxAttempts int `mapstructure:"max_attempts"`
	BaseDelayMs int `mapstructure:"base_delay_ms"`
	MaxDelayMs  int `mapstructure:"max_delay_ms"`
}

// MenuConfig lists the CSS selectors that identify navigation links.
type MenuConfig struct {
	Selectors []string `mapstructure:"selectors"`
}

// FetchConfig picks the page-fetch primitive.
type FetchConfig struct {
	Mode     string         `mapstructure:"mode"`
	Headless HeadlessConfig `mapstructure:"headless"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	MaxParallel        int     `mapstructure:"max_parallel"`
	WaitSelector       string  `mapstructure:"wait_selector"`
	SettleDelayMs      int     `mapstructure:"settle_delay_ms"`
	RenderQPS          float64 `mapstructure:"render_qps"`
	ExecPath           string  `mapstructure:"exec_path"`
	PromotionThreshold int     `mapstructure:"promotion_threshold"`
}

// OutputConfig selects where documents and per-URL results are persisted.
type OutputConfig struct {
	Dir           string `mapstructure:"dir"`
	Backend       string `mapstructure:"backend"`
	GCSBucket     string `mapstructure:"gcs_bucket"`
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	PostgresTable string `mapstructure:"postgres_table"`
	PubSubProject string `mapstructure:"pubsub_project"`
	PubSubTopic   string `mapstructure:"pubsub_topic"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int    `mapstructure:"port"`
	APIKey                string `mapstructure:"api_key"`
	RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// New returns a Viper instance with defaults and environment overrides
// applied. Commands bind their flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// Load reads the optional config file at path into v, then unmarshals and
// validates the result.
func Load(v *viper.Viper, path string) (Config, error) {
	if v == nil {
		v = New()
	}
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
	v.SetDefault("crawler.rate_limit_seconds", crawler.DefaultRateLimit.Seconds())
	v.SetDefault("crawler.concurrent_limit", crawler.DefaultConcurrentLimit)
	v.SetDefault("crawler.max_depth", crawler.DefaultMaxDepth)
	v.SetDefault("crawler.sitemap_max_depth", crawler.DefaultSitemapDepth)
	v.SetDefault("crawler.user_agent", crawler.DefaultUserAgent)
	v.SetDefault("crawler.timeout_seconds", int(crawler.DefaultTimeout/time.Second))
	v.SetDefault("crawler.respect_robots", true)
	v.SetDefault("crawler.exclusion_patterns", []string{})
	v.SetDefault("crawler.same_host_only", true)
	v.SetDefault("crawler.max_body_bytes", 10<<20)
	v.SetDefault("crawler.retry.max_attempts", 1)
	v.SetDefault("crawler.retry.base_delay_ms", 250)
	v.SetDefault("crawler.retry.max_delay_ms", 5000)
	v.SetDefault("menu.selectors", crawler.DefaultMenuSelectors())
	v.SetDefault("fetch.mode", "http")
	v.SetDefault("fetch.headless.max_parallel", 2)
	v.SetDefault("fetch.headless.wait_selector", "")
	v.SetDefault("fetch.headless.exec_path", "")
	v.SetDefault("fetch.headless.settle_delay_ms", 1000)
	v.SetDefault("fetch.headless.render_qps", 1.0)
	v.SetDefault("fetch.headless.promotion_threshold", 2048)
	v.SetDefault("output.dir", "scraped_docs")
	v.SetDefault("output.backend", BackendLocal)
	v.SetDefault("output.gcs_bucket", "")
	v.SetDefault("output.postgres_dsn", "")
	v.SetDefault("output.postgres_table", "crawl_results")
	v.SetDefault("output.pubsub_project", "")
	v.SetDefault("output.pubsub_topic", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.api_key", "")
	v.SetDefault("server.request_timeout_seconds", 120)
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits. Every failure
// wraps crawler.ErrConfig.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Crawler.RateLimitSeconds > 0, "crawler.rate_limit_seconds must be > 0")
	check(c.Crawler.ConcurrentLimit > 0, "crawler.concurrent_limit must be > 0")
	check(c.Crawler.MaxDepth >= 0, "crawler.max_depth must be >= 0")
	check(c.Crawler.SitemapMaxDepth >= 0, "crawler.sitemap_max_depth must be >= 0")
	check(c.Crawler.TimeoutSeconds > 0, "crawler.timeout_seconds must be > 0")
	check(c.Crawler.MaxBodyBytes >= 0, "crawler.max_body_bytes must be >= 0")
	check(c.Crawler.Retry.MaxAttempts >= 1, "crawler.retry.max_attempts must be >= 1")
	check(c.Crawler.Retry.BaseDelayMs >= 0 && c.Crawler.Retry.MaxDelayMs >= 0, "crawler.retry delays must be >= 0")
	if _, err := crawler.CompilePatterns(c.Crawler.ExclusionPatterns); err != nil {
		errs = append(errs, fmt.Errorf("crawler.exclusion_patterns: %w", err))
	}
	check(len(c.Menu.Selectors) > 0, "menu.selectors must not be empty")

	switch c.Fetch.Mode {
	case "http", "headless", "auto":
	default:
		errs = append(errs, fmt.Errorf("fetch.mode must be http, headless, or auto, got %q", c.Fetch.Mode))
	}
	if c.Fetch.Mode != "http" {
		check(c.Fetch.Headless.MaxParallel > 0, "fetch.headless.max_parallel must be > 0 when headless rendering is used")
	}
	check(c.Fetch.Headless.RenderQPS >= 0, "fetch.headless.render_qps must be >= 0")

	switch c.Output.Backend {
	case BackendLocal:
		check(c.Output.Dir != "", "output.dir must be set for the local backend")
	case BackendGCS:
		check(c.Output.GCSBucket != "", "output.gcs_bucket must be set for the gcs backend")
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("output.backend must be local, gcs, or memory, got %q", c.Output.Backend))
	}
	check((c.Output.PubSubProject == "") == (c.Output.PubSubTopic == ""),
		"output.pubsub_project and output.pubsub_topic must be set together")

	check(c.Server.Port > 0, "server.port must be > 0")
	check(c.Server.RequestTimeoutSeconds > 0, "server.request_timeout_seconds must be > 0")

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", crawler.ErrConfig, errors.Join(errs...))
	}
	return nil
}

// ToOptions converts the crawler sections into session options.
func (c Config) ToOptions() (crawler.Options, error) {
	patterns, err := crawler.CompilePatterns(c.Crawler.ExclusionPatterns)
	if err != nil {
		return crawler.Options{}, err
	}
	opts := crawler.Options{
		RateLimit:       time.Duration(c.Crawler.RateLimitSeconds * float64(time.Second)),
		ConcurrentLimit: c.Crawler.ConcurrentLimit,
		MaxDepth:        c.Crawler.MaxDepth,
		SitemapMaxDepth: c.Crawler.SitemapMaxDepth,
		UserAgent:       c.Crawler.UserAgent,
		Timeout:         time.Duration(c.Crawler.TimeoutSeconds) * time.Second,
		RespectRobots:   c.Crawler.RespectRobots,
		Exclusions:      patterns,
		MenuSelectors:   append([]string(nil), c.Menu.Selectors...),
		Retry: crawler.NewExponentialRetryPolicy(
			c.Crawler.Retry.MaxAttempts,
			time.Duration(c.Crawler.Retry.BaseDelayMs)*time.Millisecond,
			time.Duration(c.Crawler.Retry.MaxDelayMs)*time.Millisecond,
		),
	}
	if c.Fetch.Mode != "http" {
		opts.WaitSelector = c.Fetch.Headless.WaitSelector
		opts.SettleDelay = time.Duration(c.Fetch.Headless.SettleDelayMs) * time.Millisecond
	}
	if err := opts.Validate(); err != nil {
		return crawler.Options{}, err
	}
	return opts, nil
}

// RequestTimeout is the per-request budget for API and MCP crawls.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}
