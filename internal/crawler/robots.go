package crawler

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/JakeFAU/docs-crawler/internal/metrics"
)

// robotsLoader fetches robots.txt without consulting the gate itself.
type robotsLoader func(ctx context.Context, rawURL string) FetchResult

// RobotsGate caches robots.txt rules per host for the lifetime of a session.
//
// When robots.txt cannot be fetched or parsed the host is treated as fully
// allowed. The decision is logged, counted, and cached like a real rule set.
type RobotsGate struct {
	load      robotsLoader
	userAgent string
	logger    *zap.Logger

	inflight singleflight.Group
	mu       sync.RWMutex
	cache    map[string]*robotsRules
}

type robotsRules struct {
	data      *robotstxt.RobotsData
	failOpen  bool
	reason    string
	fetchedAt time.Time
}

// NewRobotsGate builds a gate around the given loader.
func NewRobotsGate(load robotsLoader, userAgent string, logger *zap.Logger) *RobotsGate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RobotsGate{
		load:      load,
		userAgent: userAgent,
		logger:    logger,
		cache:     make(map[string]*robotsRules),
	}
}

// Allowed reports whether the configured user agent may fetch rawURL.
func (g *RobotsGate) Allowed(ctx context.Context, rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return false
	}
	rules := g.rules(ctx, parsed)
	if rules.data == nil {
		metrics.ObserveRobotsDecision("fail_open")
		return true
	}
	allowed := rules.data.TestAgent(robotsPath(parsed), g.userAgent)
	if allowed {
		metrics.ObserveRobotsDecision("allowed")
	} else {
		metrics.ObserveRobotsDecision("disallowed")
		g.logger.Debug("robots.txt disallows url", zap.String("url", rawURL), zap.String("user_agent", g.userAgent))
	}
	return allowed
}

// Sitemaps returns the Sitemap directives advertised by the host of rawURL.
func (g *RobotsGate) Sitemaps(ctx context.Context, rawURL string) []string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return nil
	}
	rules := g.rules(ctx, parsed)
	if rules.data == nil {
		return nil
	}
	return append([]string(nil), rules.data.Sitemaps...)
}

func (g *RobotsGate) rules(ctx context.Context, parsed *url.URL) *robotsRules {
	key := strings.ToLower(parsed.Host)
	for {
		if cached, ok := g.cached(key); ok {
			return cached
		}
		value, err, _ := g.inflight.Do(key, func() (any, error) {
			if cached, ok := g.cached(key); ok {
				return cached, nil
			}
			rules := g.fetch(ctx, parsed)
			// A canceled lookup says nothing about the host.
			if err := ctx.Err(); err != nil {
				return rules, err
			}
			g.mu.Lock()
			g.cache[key] = rules
			g.mu.Unlock()
			return rules, nil
		})
		// The shared lookup belonged to a caller that gave up; look again
		// under this caller's context.
		if err != nil && ctx.Err() == nil {
			continue
		}
		rules, ok := value.(*robotsRules)
		if !ok {
			return &robotsRules{failOpen: true, reason: "robots lookup failed"}
		}
		return rules
	}
}

func (g *RobotsGate) cached(key string) (*robotsRules, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	rules, ok := g.cache[key]
	return rules, ok
}

func (g *RobotsGate) fetch(ctx context.Context, parsed *url.URL) *robotsRules {
	robotsURL := url.URL{Scheme: parsed.Scheme, Host: parsed.Host, Path: "/robots.txt"}
	if robotsURL.Scheme == "" {
		robotsURL.Scheme = "https"
	}
	result := g.load(ctx, robotsURL.String())

	var reason string
	switch {
	case !result.Success:
		reason = result.Error
	case result.StatusCode != http.StatusOK:
		reason = "unexpected status " + http.StatusText(result.StatusCode)
	default:
		data, err := robotstxt.FromString(result.Content)
		if err == nil {
			return &robotsRules{data: data, fetchedAt: time.Now()}
		}
		reason = "parse robots.txt: " + err.Error()
	}

	g.logger.Warn("robots.txt unavailable; allowing all paths",
		zap.String("host", parsed.Host),
		zap.String("robots_url", robotsURL.String()),
		zap.String("reason", reason),
	)
	return &robotsRules{failOpen: true, reason: reason, fetchedAt: time.Now()}
}

func robotsPath(u *url.URL) string {
	p := u.EscapedPath()
	if p == "" {
		p = "/"
	}
	if u.RawQuery != "" {
		p += "?" + u.RawQuery
	}
	return p
}
