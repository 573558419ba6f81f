package crawler

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/docs-crawler/internal/metrics"
)

// Fetcher issues one politeness-checked GET per call. It never returns an
// error: every outcome is reported on the FetchResult.
type Fetcher struct {
	page     PageFetcher
	throttle *DomainThrottle
	robots   *RobotsGate
	opts     Options
	logger   *zap.Logger
}

func newFetcher(page PageFetcher, throttle *DomainThrottle, opts Options, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		page:     page,
		throttle: throttle,
		opts:     opts,
		logger:   logger,
	}
}

// Fetch consults robots.txt, waits for a throttle permit, and performs the GET.
// Disallowed URLs never consume a permit.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) FetchResult {
	if _, err := parseFetchURL(rawURL); err != nil {
		return failureResult(rawURL, FailureFormat, 0, err.Error())
	}
	if f.opts.RespectRobots && f.robots != nil && !f.robots.Allowed(ctx, rawURL) {
		metrics.ObserveFetch(rawURL, string(FailurePolicy), 0, 0)
		return failureResult(rawURL, FailurePolicy, 0, errDisallowedByRobots)
	}
	return f.fetchUnchecked(ctx, rawURL)
}

// fetchUnchecked is the throttled GET without the robots check. RobotsGate
// uses it to load robots.txt.
func (f *Fetcher) fetchUnchecked(ctx context.Context, rawURL string) FetchResult {
	parsed, err := parseFetchURL(rawURL)
	if err != nil {
		return failureResult(rawURL, FailureFormat, 0, err.Error())
	}

	permit, err := f.throttle.Acquire(ctx, parsed.Host)
	if err != nil {
		metrics.ObserveFetch(rawURL, "canceled", 0, 0)
		return failureResult(rawURL, FailureNetwork, 0, "canceled: "+err.Error())
	}
	defer permit.Release()

	reqCtx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := f.page.FetchPage(reqCtx, PageRequest{
		URL:          rawURL,
		UserAgent:    f.opts.UserAgent,
		Timeout:      f.opts.Timeout,
		WaitSelector: f.opts.WaitSelector,
		SettleDelay:  f.opts.SettleDelay,
	})
	elapsed := time.Since(start)
	if err != nil {
		msg := describeTransportError(ctx, reqCtx, err)
		metrics.ObserveFetch(rawURL, string(FailureNetwork), elapsed, 0)
		f.logger.Debug("fetch failed", zap.String("url", rawURL), zap.String("error", msg), zap.Duration("elapsed", elapsed))
		return failureResult(rawURL, FailureNetwork, 0, msg)
	}

	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	if status >= http.StatusBadRequest {
		metrics.ObserveFetch(rawURL, string(FailureHTTP), elapsed, len(resp.Body))
		f.logger.Debug("fetch returned error status", zap.String("url", rawURL), zap.Int("status", status))
		return failureResult(rawURL, FailureHTTP, status, fmt.Sprintf("HTTP %d", status))
	}

	metrics.ObserveFetch(rawURL, "success", elapsed, len(resp.Body))
	f.logger.Debug("fetched",
		zap.String("url", rawURL),
		zap.Int("status", status),
		zap.Int("bytes", len(resp.Body)),
		zap.Bool("rendered", resp.Rendered),
		zap.Duration("elapsed", elapsed),
	)
	return successResult(rawURL, status, resp.Body)
}

func parseFetchURL(rawURL string) (*url.URL, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("invalid url: unsupported scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return nil, errors.New("invalid url: missing host")
	}
	return parsed, nil
}

func describeTransportError(parent, reqCtx context.Context, err error) string {
	if parent.Err() != nil {
		return "canceled: " + parent.Err().Error()
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
		return errRequestTimedOut
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errRequestTimedOut
	}
	return "request failed: " + err.Error()
}
