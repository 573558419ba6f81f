package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/docs-crawler/internal/crawler"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(New(), "")
	require.NoError(t, err)

	assert.InDelta(t, 1.0, cfg.Crawler.RateLimitSeconds, 1e-9)
	assert.Equal(t, 5, cfg.Crawler.ConcurrentLimit)
	assert.Equal(t, 3, cfg.Crawler.MaxDepth)
	assert.Equal(t, 5, cfg.Crawler.SitemapMaxDepth)
	assert.Equal(t, "DocsCrawler/1.0", cfg.Crawler.UserAgent)
	assert.Equal(t, 30, cfg.Crawler.TimeoutSeconds)
	assert.True(t, cfg.Crawler.RespectRobots)
	assert.True(t, cfg.Crawler.SameHostOnly)
	assert.Equal(t, 1, cfg.Crawler.Retry.MaxAttempts)
	assert.Equal(t, crawler.DefaultMenuSelectors(), cfg.Menu.Selectors)
	assert.Equal(t, "http", cfg.Fetch.Mode)
	assert.Equal(t, "scraped_docs", cfg.Output.Dir)
	assert.Equal(t, BackendLocal, cfg.Output.Backend)
	assert.Equal(t, "crawl_results", cfg.Output.PostgresTable)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 120*time.Second, cfg.RequestTimeout())
	assert.False(t, cfg.Logging.Development)
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
crawler:
  rate_limit_seconds: 0.5
  concurrent_limit: 8
  max_depth: 2
  user_agent: test-agent
  respect_robots: false
  exclusion_patterns: ["/blog/", "\\.pdf$"]
  retry:
    max_attempts: 3
    base_delay_ms: 100
    max_delay_ms: 400
menu:
  selectors: ["nav a"]
fetch:
  mode: auto
  headless:
    max_parallel: 1
    wait_selector: "nav"
    settle_delay_ms: 200
output:
  backend: gcs
  gcs_bucket: docs-bucket
  pubsub_project: proj
  pubsub_topic: runs
server:
  port: 9090
  api_key: secret
logging:
  development: true
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(New(), path)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Crawler.ConcurrentLimit)
	assert.False(t, cfg.Crawler.RespectRobots)
	assert.Equal(t, []string{"nav a"}, cfg.Menu.Selectors)
	assert.Equal(t, "auto", cfg.Fetch.Mode)
	assert.Equal(t, "docs-bucket", cfg.Output.GCSBucket)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "secret", cfg.Server.APIKey)
	assert.True(t, cfg.Logging.Development)

	opts, err := cfg.ToOptions()
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, opts.RateLimit)
	assert.Equal(t, 8, opts.ConcurrentLimit)
	assert.Equal(t, "test-agent", opts.UserAgent)
	assert.False(t, opts.RespectRobots)
	require.Len(t, opts.Exclusions, 2)
	assert.True(t, crawler.Excluded("https://docs.example/guide.pdf", opts.Exclusions))
	assert.Equal(t, "nav", opts.WaitSelector)
	assert.Equal(t, 200*time.Millisecond, opts.SettleDelay)
	retry, ok := opts.Retry.(*crawler.ExponentialRetryPolicy)
	require.True(t, ok)
	assert.Equal(t, 3, retry.MaxAttempts())
}

func TestLoadEnvironmentOverride(t *testing.T) {
	t.Setenv("DOCSCRAWLER_CRAWLER_CONCURRENT_LIMIT", "11")
	t.Setenv("DOCSCRAWLER_SERVER_API_KEY", "from-env")

	cfg, err := Load(New(), "")
	require.NoError(t, err)
	assert.Equal(t, 11, cfg.Crawler.ConcurrentLimit)
	assert.Equal(t, "from-env", cfg.Server.APIKey)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(New(), filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestHTTPModeIgnoresHeadlessWaits(t *testing.T) {
	t.Parallel()

	cfg := validConfig(t)
	cfg.Fetch.Headless.WaitSelector = "nav"
	opts, err := cfg.ToOptions()
	require.NoError(t, err)
	assert.Empty(t, opts.WaitSelector)
	assert.Zero(t, opts.SettleDelay)
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"rate limit", func(c *Config) { c.Crawler.RateLimitSeconds = 0 }, "crawler.rate_limit_seconds"},
		{"concurrency", func(c *Config) { c.Crawler.ConcurrentLimit = 0 }, "crawler.concurrent_limit"},
		{"negative depth", func(c *Config) { c.Crawler.MaxDepth = -1 }, "crawler.max_depth"},
		{"timeout", func(c *Config) { c.Crawler.TimeoutSeconds = 0 }, "crawler.timeout_seconds"},
		{"bad pattern", func(c *Config) { c.Crawler.ExclusionPatterns = []string{"("} }, "crawler.exclusion_patterns"},
		{"retry attempts", func(c *Config) { c.Crawler.Retry.MaxAttempts = 0 }, "crawler.retry.max_attempts"},
		{"no selectors", func(c *Config) { c.Menu.Selectors = nil }, "menu.selectors"},
		{"fetch mode", func(c *Config) { c.Fetch.Mode = "ftp" }, "fetch.mode"},
		{"headless parallel", func(c *Config) {
			c.Fetch.Mode = "headless"
			c.Fetch.Headless.MaxParallel = 0
		}, "fetch.headless.max_parallel"},
		{"gcs bucket", func(c *Config) { c.Output.Backend = BackendGCS }, "output.gcs_bucket"},
		{"backend", func(c *Config) { c.Output.Backend = "s3" }, "output.backend"},
		{"pubsub pair", func(c *Config) { c.Output.PubSubTopic = "runs" }, "output.pubsub_project"},
		{"port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig(t)
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, crawler.ErrConfig), "expected ErrConfig, got %v", err)
			assert.True(t, strings.Contains(err.Error(), tt.want), "expected %q in %v", tt.want, err)
		})
	}
}

func validConfig(t *testing.T) Config {
	t.Helper()
	cfg, err := Load(New(), "")
	require.NoError(t, err)
	return cfg
}
