// Package cmd defines the CLI commands of the docs-crawler executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/docs-crawler/internal/app"
	"github.com/JakeFAU/docs-crawler/internal/config"
	"github.com/JakeFAU/docs-crawler/internal/crawler"
	"github.com/JakeFAU/docs-crawler/internal/logging"
	"github.com/JakeFAU/docs-crawler/internal/server"
)

// Runtime is what commands need from the built application.
type Runtime interface {
	Service() *app.Service
	Serve(ctx context.Context) error
	ServeMCP(ctx context.Context) error
	Close(ctx context.Context) error
}

// buildRuntime is the application factory. Tests replace it to avoid real
// sinks.
var buildRuntime = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (Runtime, error) {
	return server.Build(ctx, cfg, logger)
}

// rootState is shared by every subcommand of one root command.
type rootState struct {
	v       *viper.Viper
	cfgFile string
	cfg     config.Config
	logger  *zap.Logger
}

// flagBindings maps persistent flags to configuration keys.
var flagBindings = map[string]string{
	"rate-limit":       "crawler.rate_limit_seconds",
	"concurrent-limit": "crawler.concurrent_limit",
	"max-depth":        "crawler.max_depth",
	"user-agent":       "crawler.user_agent",
	"timeout":          "crawler.timeout_seconds",
	"respect-robots":   "crawler.respect_robots",
	"exclude":          "crawler.exclusion_patterns",
	"fetch-mode":       "fetch.mode",
	"output-dir":       "output.dir",
	"backend":          "output.backend",
	"log-dev":          "logging.development",
}

// NewRootCmd creates the root command and its subcommands.
func NewRootCmd() *cobra.Command {
	state := &rootState{v: config.New()}

	cmd := &cobra.Command{
		Use:   "docs-crawler",
		Short: "Polite concurrent crawler for documentation sites",
		Long: `docs-crawler fetches documentation pages while honouring robots.txt and
per-host rate limits, and writes them out as a single Markdown document.

Pages can come from an explicit URL list, a site's sitemap.xml, or its
navigation menu. The same crawls are available over HTTP (serve) and as
Model Context Protocol tools (mcp).`,
		Version:       server.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return state.load()
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&state.cfgFile, "config", "c", "", "config file (YAML)")
	flags.Float64("rate-limit", crawler.DefaultRateLimit.Seconds(), "minimum seconds between requests to the same host")
	flags.Int("concurrent-limit", crawler.DefaultConcurrentLimit, "maximum concurrent requests")
	flags.Int("max-depth", crawler.DefaultMaxDepth, "menu expansion depth")
	flags.String("user-agent", crawler.DefaultUserAgent, "User-Agent header and robots.txt agent")
	flags.Int("timeout", int(crawler.DefaultTimeout.Seconds()), "per-request timeout in seconds")
	flags.Bool("respect-robots", true, "honour robots.txt")
	flags.StringSlice("exclude", nil, "regular expression for URLs to skip (repeatable)")
	flags.String("fetch-mode", "http", "page fetcher: http, headless, or auto")
	flags.StringP("output-dir", "o", "scraped_docs", "directory (or GCS folder) documents are written to")
	flags.String("backend", config.BackendLocal, "output backend: local, gcs, or memory")
	flags.Bool("log-dev", false, "human-readable development logging")
	bindFlags(state.v, flags)

	cmd.AddCommand(newCrawlCmd(state))
	cmd.AddCommand(newSiteCmd(state))
	cmd.AddCommand(newSitemapCmd(state))
	cmd.AddCommand(newMenuCmd(state))
	cmd.AddCommand(newServeCmd(state))
	cmd.AddCommand(newMCPCmd(state))
	return cmd
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) {
	for name, key := range flagBindings {
		if f := flags.Lookup(name); f != nil {
			// BindPFlag only fails on a nil flag.
			_ = v.BindPFlag(key, f)
		}
	}
}

func (s *rootState) load() error {
	cfg, err := config.Load(s.v, s.cfgFile)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("logger init failed: %w", err)
	}
	s.cfg = cfg
	s.logger = logger
	return nil
}

// withRuntime builds the application, runs fn, and tears everything down.
func (s *rootState) withRuntime(ctx context.Context, fn func(Runtime) error) error {
	rt, err := buildRuntime(ctx, s.cfg, s.logger)
	if err != nil {
		return err
	}
	runErr := fn(rt)
	closeErr := rt.Close(context.WithoutCancel(ctx))
	_ = s.logger.Sync()
	if runErr != nil {
		return runErr
	}
	return closeErr
}

// Execute runs the root command and exits non-zero on failure. Configuration
// errors exit with status 2.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := NewRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if errors.Is(err, crawler.ErrConfig) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
