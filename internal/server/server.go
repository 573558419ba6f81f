// Package server builds the application's dependencies from configuration
// and runs the long-lived HTTP and MCP front ends.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/docs-crawler/internal/api"
	"github.com/JakeFAU/docs-crawler/internal/app"
	"github.com/JakeFAU/docs-crawler/internal/config"
	"github.com/JakeFAU/docs-crawler/internal/crawler"
	"github.com/JakeFAU/docs-crawler/internal/extract"
	"github.com/JakeFAU/docs-crawler/internal/fetcher"
	collyfetcher "github.com/JakeFAU/docs-crawler/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/docs-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/docs-crawler/internal/headless/detector"
	"github.com/JakeFAU/docs-crawler/internal/id/uuid"
	"github.com/JakeFAU/docs-crawler/internal/mcpserver"
	memorypublisher "github.com/JakeFAU/docs-crawler/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/docs-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/docs-crawler/internal/storage"
	gcsstorage "github.com/JakeFAU/docs-crawler/internal/storage/gcs"
	localstorage "github.com/JakeFAU/docs-crawler/internal/storage/local"
	memorystorage "github.com/JakeFAU/docs-crawler/internal/storage/memory"
	pgstore "github.com/JakeFAU/docs-crawler/internal/storage/postgres"
)

// Version is reported by the MCP server and set at build time.
var Version = "dev"

const shutdownTimeout = 10 * time.Second

// App contains the application's dependencies.
type App struct {
	cfg     config.Config
	logger  *zap.Logger
	service *app.Service
	closers []func(context.Context) error
}

// Build creates the application's dependencies. Call Close when done.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}

	opts, err := cfg.ToOptions()
	if err != nil {
		return nil, err
	}

	page, err := a.setupFetcher()
	if err != nil {
		a.closeQuietly(ctx)
		return nil, err
	}
	deps := app.Dependencies{
		Page:      page,
		Extractor: extract.New(),
		IDs:       uuid.New(),
		Logger:    logger.Named("app"),
	}
	if deps.Blobs, err = a.setupStorage(ctx); err != nil {
		a.closeQuietly(ctx)
		return nil, err
	}
	if deps.Results, err = a.setupDatabase(ctx); err != nil {
		a.closeQuietly(ctx)
		return nil, err
	}
	if deps.Publisher, err = a.setupPublisher(ctx); err != nil {
		a.closeQuietly(ctx)
		return nil, err
	}

	a.service, err = app.New(opts, cfg.Crawler.SameHostOnly, deps)
	if err != nil {
		a.closeQuietly(ctx)
		return nil, fmt.Errorf("app init failed: %w", err)
	}
	logger.Info("application built",
		zap.String("fetch_mode", cfg.Fetch.Mode),
		zap.String("output_backend", cfg.Output.Backend),
		zap.Bool("postgres", cfg.Output.PostgresDSN != ""),
		zap.Bool("pubsub", cfg.Output.PubSubTopic != ""),
	)
	return a, nil
}

// Service returns the crawl service.
func (a *App) Service() *app.Service {
	return a.service
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Serve runs the HTTP API on the configured port until ctx is canceled.
func (a *App) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", a.cfg.Server.Port))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return a.serve(ctx, ln)
}

func (a *App) serve(ctx context.Context, ln net.Listener) error {
	handler := api.NewServer(a.service, a.cfg.Server, a.logger.Named("api")).Handler()
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

// ServeMCP runs the MCP tools over stdio until ctx is canceled.
func (a *App) ServeMCP(ctx context.Context) error {
	server := mcpserver.New(a.service, mcpserver.Config{
		Name:        "docs-crawler",
		Version:     Version,
		CallTimeout: a.cfg.RequestTimeout(),
		Logger:      a.logger.Named("mcp"),
	})
	a.logger.Info("mcp server started on stdio")
	return mcpserver.Run(ctx, server)
}

// Close releases every resource Build acquired, newest first.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("shutdown completed with errors", zap.Error(err))
		return err
	}
	a.logger.Debug("shutdown complete")
	return nil
}

func (a *App) closeQuietly(ctx context.Context) {
	_ = a.Close(ctx)
}

func (a *App) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

func (a *App) setupFetcher() (crawler.PageFetcher, error) {
	cfg := a.cfg
	probe := collyfetcher.New(collyfetcher.Config{
		UserAgent:   cfg.Crawler.UserAgent,
		Timeout:     time.Duration(cfg.Crawler.TimeoutSeconds) * time.Second,
		MaxBodySize: cfg.Crawler.MaxBodyBytes,
		Logger:      a.logger.Named("colly"),
	})
	a.logger.Info("using colly probe fetcher", zap.String("user_agent", cfg.Crawler.UserAgent))

	var renderer crawler.PageFetcher
	if cfg.Fetch.Mode != fetcher.ModeHTTP {
		headless, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       cfg.Fetch.Headless.MaxParallel,
			RenderQPS:         cfg.Fetch.Headless.RenderQPS,
			UserAgent:         cfg.Crawler.UserAgent,
			NavigationTimeout: time.Duration(cfg.Crawler.TimeoutSeconds) * time.Second,
			ExecPath:          cfg.Fetch.Headless.ExecPath,
			Logger:            a.logger.Named("headless"),
		})
		if err != nil {
			return nil, fmt.Errorf("headless fetcher init failed: %v: %w", err, crawler.ErrConfig)
		}
		a.onClose(func(context.Context) error {
			headless.Close()
			return nil
		})
		renderer = headless
		a.logger.Info("using headless fetcher",
			zap.Int("max_parallel", cfg.Fetch.Headless.MaxParallel),
			zap.Float64("render_qps", cfg.Fetch.Headless.RenderQPS),
		)
	}

	detect := detector.NewHeuristic(cfg.Fetch.Headless.PromotionThreshold)
	page, err := fetcher.Select(cfg.Fetch.Mode, probe, renderer, detect, a.logger.Named("fetcher"))
	if err != nil {
		return nil, err
	}
	return page, nil
}

func (a *App) setupStorage(ctx context.Context) (storage.BlobStore, error) {
	out := a.cfg.Output
	switch out.Backend {
	case config.BackendGCS:
		a.logger.Info("using GCS storage backend", zap.String("bucket", out.GCSBucket))
		store, err := gcsstorage.Open(ctx, gcsstorage.Config{Bucket: out.GCSBucket, Prefix: out.Dir})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.onClose(func(context.Context) error { return store.Close() })
		return store, nil
	case config.BackendMemory:
		a.logger.Info("using in-memory storage backend; documents are not persisted")
		return memorystorage.NewBlobStore(), nil
	default:
		a.logger.Info("using local storage backend", zap.String("path", out.Dir))
		store, err := localstorage.New(localstorage.Config{BaseDir: out.Dir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		return store, nil
	}
}

func (a *App) setupDatabase(ctx context.Context) (storage.ResultStore, error) {
	out := a.cfg.Output
	if out.PostgresDSN == "" {
		if out.Backend == config.BackendMemory {
			return memorystorage.NewResultStore(), nil
		}
		a.logger.Debug("no postgres dsn configured, skipping result store")
		return nil, nil
	}
	store, err := pgstore.New(ctx, pgstore.Config{DSN: out.PostgresDSN, Table: out.PostgresTable})
	if err != nil {
		return nil, fmt.Errorf("result store init failed: %w", err)
	}
	a.onClose(func(context.Context) error {
		store.Close()
		return nil
	})
	a.logger.Info("result store initialized", zap.String("table", out.PostgresTable))
	return store, nil
}

func (a *App) setupPublisher(ctx context.Context) (app.Publisher, error) {
	out := a.cfg.Output
	if out.PubSubProject == "" || out.PubSubTopic == "" {
		if out.Backend == config.BackendMemory {
			return memorypublisher.New(), nil
		}
		a.logger.Debug("no pubsub topic configured, skipping run notifications")
		return nil, nil
	}
	pub, err := gcppublisher.Open(ctx, out.PubSubProject, out.PubSubTopic)
	if err != nil {
		return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	a.onClose(func(context.Context) error { return pub.Close() })
	a.logger.Info("pubsub publisher initialized",
		zap.String("project", out.PubSubProject),
		zap.String("topic", out.PubSubTopic),
	)
	return pub, nil
}
