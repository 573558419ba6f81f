package crawler

import (
	"context"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubPage struct {
	status int
	body   string
	err    error
}

// stubSite is an instrumented PageFetcher that records calls and the peak
// number of concurrent FetchPage entries.
type stubSite struct {
	mu        sync.Mutex
	pages     map[string]stubPage
	calls     map[string]int
	delay     time.Duration
	active    atomic.Int32
	maxActive atomic.Int32
}

func newStubSite(pages map[string]stubPage) *stubSite {
	if pages == nil {
		pages = map[string]stubPage{}
	}
	return &stubSite{pages: pages, calls: map[string]int{}}
}

func (s *stubSite) set(url string, page stubPage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[url] = page
}

func (s *stubSite) callCount(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[url]
}

func (s *stubSite) FetchPage(ctx context.Context, req PageRequest) (PageResponse, error) {
	current := s.active.Add(1)
	defer s.active.Add(-1)
	for {
		peak := s.maxActive.Load()
		if current <= peak || s.maxActive.CompareAndSwap(peak, current) {
			break
		}
	}

	s.mu.Lock()
	s.calls[req.URL]++
	page, ok := s.pages[req.URL]
	s.mu.Unlock()

	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return PageResponse{}, ctx.Err()
		case <-time.After(s.delay):
		}
	}
	if !ok {
		return PageResponse{URL: req.URL, StatusCode: http.StatusNotFound, Body: []byte("not found")}, nil
	}
	if page.err != nil {
		return PageResponse{}, page.err
	}
	status := page.status
	if status == 0 {
		status = http.StatusOK
	}
	return PageResponse{URL: req.URL, StatusCode: status, Body: []byte(page.body)}, nil
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.RateLimit = time.Millisecond
	opts.ConcurrentLimit = 4
	opts.Timeout = 2 * time.Second
	opts.RespectRobots = false
	return opts
}

func newTestSession(t *testing.T, opts Options, page PageFetcher) *Session {
	t.Helper()
	s, err := NewSession(opts, page, nil)
	require.NoError(t, err)
	return s
}

// httpPageFetcher is a minimal net/http primitive for httptest-backed tests.
type httpPageFetcher struct {
	client *http.Client
}

func (f httpPageFetcher) FetchPage(ctx context.Context, req PageRequest) (PageResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return PageResponse{}, err
	}
	httpReq.Header.Set("User-Agent", req.UserAgent)
	resp, err := f.client.Do(httpReq)
	if err != nil {
		return PageResponse{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return PageResponse{}, err
	}
	return PageResponse{URL: req.URL, StatusCode: resp.StatusCode, Headers: resp.Header, Body: body}, nil
}
