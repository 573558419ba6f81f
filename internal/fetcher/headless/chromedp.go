// Package headless contains page fetchers that execute JavaScript via a
// headless browser.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/docs-crawler/internal/crawler"
)

const (
	defaultNavigationTimeout = 45 * time.Second
	defaultWaitSelector      = "body"
)

// Config controls the behavior of the headless fetcher.
type Config struct {
	// MaxParallel caps concurrent browser tabs. Zero means unlimited.
	MaxParallel int
	// RenderQPS caps new navigations per second across all tabs. Zero
	// disables the limit.
	RenderQPS         float64
	UserAgent         string
	NavigationTimeout time.Duration
	// ExecPath points at a Chrome binary. Empty uses chromedp's lookup.
	ExecPath string
	Logger   *zap.Logger
}

// Fetcher implements crawler.PageFetcher using chromedp and headless Chrome.
type Fetcher struct {
	cfg         Config
	limiter     chan struct{}
	renderRate  *rate.Limiter
	allocator   context.Context
	allocCancel context.CancelFunc
	logger      *zap.Logger
}

// NewChromedp creates a headless fetcher backed by chromedp. The browser is
// started lazily on the first fetch.
func NewChromedp(cfg Config) (*Fetcher, error) {
	if cfg.MaxParallel < 0 {
		return nil, errors.New("max parallel must be >= 0")
	}
	if cfg.RenderQPS < 0 {
		return nil, errors.New("render qps must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavigationTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}
	var renderRate *rate.Limiter
	if cfg.RenderQPS > 0 {
		renderRate = rate.NewLimiter(rate.Limit(cfg.RenderQPS), 1)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Fetcher{
		cfg:         cfg,
		limiter:     limiter,
		renderRate:  renderRate,
		allocator:   allocCtx,
		allocCancel: allocCancel,
		logger:      logger,
	}, nil
}

// Close shuts down the browser.
func (f *Fetcher) Close() {
	f.allocCancel()
}

// FetchPage navigates with a headless browser and returns the rendered DOM.
// It waits for req.WaitSelector (or body) and then for req.SettleDelay so
// client-side navigation has a chance to populate.
func (f *Fetcher) FetchPage(ctx context.Context, req crawler.PageRequest) (crawler.PageResponse, error) {
	if err := f.acquire(ctx); err != nil {
		return crawler.PageResponse{}, err
	}
	defer f.release()

	if f.renderRate != nil {
		if err := f.renderRate.Wait(ctx); err != nil {
			return crawler.PageResponse{}, fmt.Errorf("headless render rate wait: %w", err)
		}
	}

	taskCtx, taskCancel := chromedp.NewContext(f.allocator)
	defer taskCancel()
	stop := context.AfterFunc(ctx, taskCancel)
	defer stop()

	taskCtx, cancel := context.WithTimeout(taskCtx, f.navTimeout(req))
	defer cancel()

	meta := newResponseMeta()
	chromedp.ListenTarget(taskCtx, meta.captureEvent)

	html, finalURL, err := f.runHeadless(taskCtx, req)
	if err != nil {
		if ctx.Err() != nil {
			return crawler.PageResponse{}, fmt.Errorf("headless fetch canceled: %w", ctx.Err())
		}
		return crawler.PageResponse{}, err
	}

	status, headers, responseURL := meta.snapshotWithFallbacks(req.URL, finalURL)
	f.logger.Debug("rendered page",
		zap.String("url", req.URL),
		zap.String("final_url", responseURL),
		zap.Int("status", status),
		zap.Int("bytes", len(html)),
	)
	return crawler.PageResponse{
		URL:        responseURL,
		StatusCode: status,
		Headers:    headers,
		Body:       []byte(html),
		Rendered:   true,
	}, nil
}

func (f *Fetcher) runHeadless(ctx context.Context, req crawler.PageRequest) (string, string, error) {
	var (
		html     string
		finalURL string
	)
	actions := []chromedp.Action{
		f.networkSetupAction(req.UserAgent),
		chromedp.Navigate(req.URL),
		chromedp.WaitReady(waitSelector(req), chromedp.ByQuery),
	}
	if req.SettleDelay > 0 {
		actions = append(actions, chromedp.Sleep(req.SettleDelay))
	}
	actions = append(actions,
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err := chromedp.Run(ctx, actions...); err != nil {
		return "", "", fmt.Errorf("chromedp run: %w", err)
	}
	return html, finalURL, nil
}

func (f *Fetcher) networkSetupAction(userAgent string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if userAgent != "" && userAgent != f.cfg.UserAgent {
			if err := emulation.SetUserAgentOverride(userAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func waitSelector(req crawler.PageRequest) string {
	if req.WaitSelector != "" {
		return req.WaitSelector
	}
	return defaultWaitSelector
}

func (f *Fetcher) acquire(ctx context.Context) error {
	if f.limiter == nil {
		return nil
	}
	select {
	case f.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (f *Fetcher) release() {
	if f.limiter == nil {
		return
	}
	select {
	case <-f.limiter:
	default:
	}
}

func (f *Fetcher) navTimeout(req crawler.PageRequest) time.Duration {
	if req.Timeout > 0 {
		return req.Timeout
	}
	if f.cfg.NavigationTimeout > 0 {
		return f.cfg.NavigationTimeout
	}
	return defaultNavigationTimeout
}

// responseMeta records the status and headers of the first document
// response seen by the tab. Frames that load later do not overwrite it.
type responseMeta struct {
	mu      sync.RWMutex
	seen    bool
	status  int
	headers http.Header
	url     string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{headers: http.Header{}}
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	headers := http.Header{}
	for key, value := range event.Response.Headers {
		switch v := value.(type) {
		case string:
			headers.Add(key, v)
		case []string:
			for _, entry := range v {
				headers.Add(key, entry)
			}
		case []interface{}:
			for _, entry := range v {
				headers.Add(key, fmt.Sprint(entry))
			}
		default:
			headers.Add(key, fmt.Sprint(v))
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen {
		return
	}
	m.seen = true
	m.status = int(event.Response.Status)
	m.headers = headers
	m.url = event.Response.URL
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

func (m *responseMeta) snapshotWithFallbacks(requestURL, finalURL string) (int, http.Header, string) {
	m.mu.RLock()
	status, headers, url := m.status, m.headers.Clone(), m.url
	m.mu.RUnlock()

	switch {
	case url != "":
	case finalURL != "":
		url = finalURL
	default:
		url = requestURL
	}
	if status == 0 {
		status = http.StatusOK
	}
	if headers == nil {
		headers = http.Header{}
	}
	return status, headers, url
}
