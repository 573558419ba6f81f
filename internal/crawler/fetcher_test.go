package crawler

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetcherClassifiesOutcomes(t *testing.T) {
	t.Parallel()

	site := newStubSite(map[string]stubPage{
		"https://docs.example/ok":       {body: "<h1>ok</h1>"},
		"https://docs.example/redirect": {status: http.StatusFound, body: "moved"},
		"https://docs.example/missing":  {status: http.StatusNotFound},
		"https://docs.example/broken":   {status: http.StatusInternalServerError},
		"https://docs.example/refused":  {err: errors.New("connection refused")},
	})
	session := newTestSession(t, testOptions(), site)
	fetcher := session.Fetcher()

	testCases := []struct {
		url     string
		success bool
		status  int
		errText string
		kind    FailureKind
	}{
		{"https://docs.example/ok", true, http.StatusOK, "", FailureNone},
		{"https://docs.example/redirect", true, http.StatusFound, "", FailureNone},
		{"https://docs.example/missing", false, http.StatusNotFound, "HTTP 404", FailureHTTP},
		{"https://docs.example/broken", false, http.StatusInternalServerError, "HTTP 500", FailureHTTP},
		{"https://docs.example/refused", false, 0, "request failed: connection refused", FailureNetwork},
		{"ftp://docs.example/file", false, 0, `invalid url: unsupported scheme "ftp"`, FailureFormat},
	}

	for _, tc := range testCases {
		t.Run(tc.url, func(t *testing.T) {
			result := fetcher.Fetch(context.Background(), tc.url)
			assert.Equal(t, tc.url, result.URL)
			assert.Equal(t, tc.success, result.Success)
			assert.Equal(t, tc.status, result.StatusCode)
			assert.Equal(t, tc.errText, result.Error)
			assert.Equal(t, tc.kind, result.Kind)
		})
	}

	ok := fetcher.Fetch(context.Background(), "https://docs.example/ok")
	assert.Equal(t, "<h1>ok</h1>", ok.Content)
	assert.NoError(t, ok.Err())
}

func TestFetcherReportsTimeouts(t *testing.T) {
	t.Parallel()

	site := newStubSite(map[string]stubPage{"https://slow.example/": {body: "late"}})
	site.delay = time.Second
	opts := testOptions()
	opts.Timeout = 30 * time.Millisecond
	session := newTestSession(t, opts, site)

	result := session.Fetcher().Fetch(context.Background(), "https://slow.example/")
	assert.False(t, result.Success)
	assert.Equal(t, "request timed out", result.Error)
	assert.ErrorIs(t, result.Err(), ErrNetwork)
}

func TestFetcherReportsCancellation(t *testing.T) {
	t.Parallel()

	session := newTestSession(t, testOptions(), newStubSite(nil))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := session.Fetcher().Fetch(ctx, "https://docs.example/")
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "canceled")
	assert.Equal(t, FailureNetwork, result.Kind)
}

func TestFetcherSkipsDisallowedURLsWithoutFetching(t *testing.T) {
	t.Parallel()

	site := newStubSite(map[string]stubPage{
		"https://docs.example/robots.txt":  {body: "User-agent: *\nDisallow: /private\n"},
		"https://docs.example/private/key": {body: "secret"},
		"https://docs.example/public":      {body: "hello"},
	})
	opts := testOptions()
	opts.RespectRobots = true
	session := newTestSession(t, opts, site)
	fetcher := session.Fetcher()

	blocked := fetcher.Fetch(context.Background(), "https://docs.example/private/key")
	assert.False(t, blocked.Success)
	assert.Equal(t, "disallowed by robots.txt", blocked.Error)
	assert.Equal(t, FailurePolicy, blocked.Kind)
	assert.ErrorIs(t, blocked.Err(), ErrPolicy)
	assert.Zero(t, site.callCount("https://docs.example/private/key"))

	allowed := fetcher.Fetch(context.Background(), "https://docs.example/public")
	assert.True(t, allowed.Success)
	assert.Equal(t, 1, site.callCount("https://docs.example/robots.txt"))
}

func TestFetcherPassesRenderOptionsToPrimitive(t *testing.T) {
	t.Parallel()

	var got PageRequest
	page := PageFetcherFunc(func(_ context.Context, req PageRequest) (PageResponse, error) {
		got = req
		return PageResponse{StatusCode: http.StatusOK, Body: []byte("ok")}, nil
	})
	opts := testOptions()
	opts.UserAgent = "DocsCrawler/test"
	opts.WaitSelector = "nav"
	opts.SettleDelay = 250 * time.Millisecond
	session := newTestSession(t, opts, page)

	result := session.Fetcher().Fetch(context.Background(), "https://docs.example/")
	require.True(t, result.Success)
	assert.Equal(t, "DocsCrawler/test", got.UserAgent)
	assert.Equal(t, "nav", got.WaitSelector)
	assert.Equal(t, 250*time.Millisecond, got.SettleDelay)
	assert.Equal(t, opts.Timeout, got.Timeout)
}
