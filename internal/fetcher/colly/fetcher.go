// Package collyfetcher implements crawler.PageFetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/docs-crawler/internal/crawler"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultMaxBodySize = 10 << 20
)

// Config controls collector behavior.
type Config struct {
	UserAgent   string
	Timeout     time.Duration
	MaxBodySize int
	Logger      *zap.Logger
}

// Fetcher is the plain HTTP page primitive. Robots handling, throttling, and
// retries live in the crawler package, so the collector itself never consults
// robots.txt or its visited set.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

type visitOutcome struct {
	resp crawler.PageResponse
	err  error
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = defaultMaxBodySize
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.AllowURLRevisit = true
	c.ParseHTTPErrorResponse = true
	c.MaxBodySize = cfg.MaxBodySize
	// Clones share the HTTP backend, so the client timeout is fixed here and
	// per-request deadlines come from the context.
	c.SetRequestTimeout(cfg.Timeout)
	c.WithTransport(newRobotsRetryTransport(newHTTPTransport(), cfg.Logger))

	return &Fetcher{cfg: cfg, baseCollector: c}
}

// FetchPage executes a single GET. Error statuses are returned as responses,
// only transport failures produce an error.
func (f *Fetcher) FetchPage(ctx context.Context, req crawler.PageRequest) (crawler.PageResponse, error) {
	collector := f.buildCollector(ctx, req)

	done := make(chan visitOutcome, 1)
	go func() {
		var out visitOutcome
		f.configureCollectorHooks(collector, req, &out)
		if err := collector.Visit(req.URL); err != nil && out.err == nil {
			out.err = err
		}
		done <- out
	}()

	select {
	case <-ctx.Done():
		return crawler.PageResponse{}, fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case out := <-done:
		if err := ctx.Err(); err != nil {
			return crawler.PageResponse{}, fmt.Errorf("colly fetch canceled: %w", err)
		}
		if out.err != nil {
			return crawler.PageResponse{}, fmt.Errorf("colly visit failed: %w", out.err)
		}
		return out.resp, nil
	}
}

// buildCollector clones the base collector and binds it to ctx so a canceled
// fetch also aborts the underlying HTTP request.
func (f *Fetcher) buildCollector(ctx context.Context, req crawler.PageRequest) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.Context = ctx
	collector.UserAgent = f.cfg.UserAgent
	if req.UserAgent != "" {
		collector.UserAgent = req.UserAgent
	}
	return collector
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, req crawler.PageRequest, out *visitOutcome) {
	hooks.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	})

	hooks.OnResponse(func(r *colly.Response) {
		finalURL := req.URL
		if r.Request != nil && r.Request.URL != nil {
			finalURL = r.Request.URL.String()
		}
		var headers http.Header
		if r.Headers != nil {
			headers = r.Headers.Clone()
		}
		out.resp = crawler.PageResponse{
			URL:        finalURL,
			StatusCode: r.StatusCode,
			Headers:    headers,
			Body:       append([]byte(nil), r.Body...),
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		out.err = err
	})
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
