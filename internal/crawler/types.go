package crawler

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Error taxonomy. Per-URL failures are reported as data on FetchResult; only
// configuration errors abort a run.
var (
	ErrNetwork = errors.New("network error")
	ErrPolicy  = errors.New("policy error")
	ErrFormat  = errors.New("format error")
	ErrConfig  = errors.New("config error")
)

// FailureKind classifies an unsuccessful FetchResult.
type FailureKind string

// Failure kinds carried on FetchResult.Kind.
const (
	FailureNone    FailureKind = ""
	FailureNetwork FailureKind = "network"
	FailurePolicy  FailureKind = "policy"
	FailureFormat  FailureKind = "format"
	FailureHTTP    FailureKind = "http"
)

// Error strings shared by every fetch path.
const (
	errDisallowedByRobots = "disallowed by robots.txt"
	errRequestTimedOut    = "request timed out"
)

// CrawlTarget is a URL scheduled by a resolver together with its discovery depth.
type CrawlTarget struct {
	URL   string `json:"url"`
	Depth int    `json:"depth"`
}

// FetchResult is the immutable outcome of fetching one URL.
type FetchResult struct {
	URL        string      `json:"url"`
	Success    bool        `json:"success"`
	StatusCode int         `json:"status_code,omitempty"`
	Content    string      `json:"content,omitempty"`
	Error      string      `json:"error,omitempty"`
	Kind       FailureKind `json:"kind,omitempty"`
}

// HasResponse reports whether a server response was received.
func (r FetchResult) HasResponse() bool {
	return r.StatusCode != 0
}

// Err converts a failed result into an error wrapping the matching taxonomy
// sentinel. It returns nil for successful results.
func (r FetchResult) Err() error {
	if r.Success {
		return nil
	}
	switch r.Kind {
	case FailurePolicy:
		return fmt.Errorf("%s: %w", r.Error, ErrPolicy)
	case FailureFormat:
		return fmt.Errorf("%s: %w", r.Error, ErrFormat)
	default:
		return fmt.Errorf("%s: %w", r.Error, ErrNetwork)
	}
}

func successResult(url string, status int, body []byte) FetchResult {
	return FetchResult{URL: url, Success: true, StatusCode: status, Content: string(body)}
}

func failureResult(url string, kind FailureKind, status int, msg string) FetchResult {
	return FetchResult{URL: url, StatusCode: status, Error: msg, Kind: kind}
}

// MenuLink is a navigation link discovered by MenuResolver.
type MenuLink struct {
	URL   string `json:"url"`
	Text  string `json:"text"`
	Depth int    `json:"depth"`
}

// Header is a heading found in a page body.
type Header struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
}

// ParsedPage is the structured view a ContentExtractor produces for a page.
type ParsedPage struct {
	URL         string   `json:"url"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Text        string   `json:"text"`
	Markdown    string   `json:"markdown"`
	Links       []string `json:"links"`
	Headers     []Header `json:"headers"`
}

// PageRequest describes a single call to the page-fetch primitive.
type PageRequest struct {
	URL       string
	UserAgent string
	Timeout   time.Duration
	// WaitSelector and SettleDelay tune client-side rendering waits for
	// primitives that execute JavaScript. Plain HTTP primitives ignore them.
	WaitSelector string
	SettleDelay  time.Duration
}

// PageResponse is what the page-fetch primitive returns for a request.
type PageResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Rendered   bool
}
