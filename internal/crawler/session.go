package crawler

import (
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"
)

// Defaults applied by Options.withDefaults.
const (
	DefaultRateLimit       = time.Second
	DefaultConcurrentLimit = 5
	DefaultMaxDepth        = 3
	DefaultSitemapDepth    = 5
	DefaultUserAgent       = "DocsCrawler/1.0"
	DefaultTimeout         = 30 * time.Second
)

// Options configures a crawl session.
type Options struct {
	RateLimit       time.Duration
	ConcurrentLimit int
	MaxDepth        int
	SitemapMaxDepth int
	UserAgent       string
	Timeout         time.Duration
	RespectRobots   bool
	Exclusions      []*regexp.Regexp
	MenuSelectors   []string
	WaitSelector    string
	SettleDelay     time.Duration
	Retry           RetryPolicy
}

// DefaultOptions returns options matching the documented defaults.
func DefaultOptions() Options {
	return Options{
		RateLimit:       DefaultRateLimit,
		ConcurrentLimit: DefaultConcurrentLimit,
		MaxDepth:        DefaultMaxDepth,
		SitemapMaxDepth: DefaultSitemapDepth,
		UserAgent:       DefaultUserAgent,
		Timeout:         DefaultTimeout,
		RespectRobots:   true,
		MenuSelectors:   DefaultMenuSelectors(),
		Retry:           NoRetry(),
	}
}

// Validate rejects options that cannot drive a crawl.
func (o Options) Validate() error {
	switch {
	case o.RateLimit <= 0:
		return fmt.Errorf("rate limit must be > 0: %w", ErrConfig)
	case o.ConcurrentLimit <= 0:
		return fmt.Errorf("concurrent limit must be > 0: %w", ErrConfig)
	case o.MaxDepth < 0:
		return fmt.Errorf("max depth must be >= 0: %w", ErrConfig)
	case o.SitemapMaxDepth < 0:
		return fmt.Errorf("sitemap max depth must be >= 0: %w", ErrConfig)
	case o.Timeout <= 0:
		return fmt.Errorf("timeout must be > 0: %w", ErrConfig)
	case o.UserAgent == "":
		return fmt.Errorf("user agent is required: %w", ErrConfig)
	}
	return nil
}

// Session owns every piece of mutable state for one crawl invocation.
type Session struct {
	opts     Options
	logger   *zap.Logger
	throttle *DomainThrottle
	robots   *RobotsGate
	fetcher  *Fetcher
}

// NewSession wires a throttle, robots gate and fetcher around the primitive.
func NewSession(opts Options, page PageFetcher, logger *zap.Logger) (*Session, error) {
	if page == nil {
		return nil, fmt.Errorf("page fetcher is required: %w", ErrConfig)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(opts.MenuSelectors) == 0 {
		opts.MenuSelectors = DefaultMenuSelectors()
	}
	if opts.Retry == nil {
		opts.Retry = NoRetry()
	}

	s := &Session{
		opts:     opts,
		logger:   logger,
		throttle: NewDomainThrottle(opts.RateLimit, opts.ConcurrentLimit),
	}
	s.fetcher = newFetcher(page, s.throttle, opts, logger)
	s.robots = NewRobotsGate(s.fetcher.fetchUnchecked, opts.UserAgent, logger)
	s.fetcher.robots = s.robots
	return s, nil
}

// Options returns the session configuration.
func (s *Session) Options() Options { return s.opts }

// Logger returns the session logger.
func (s *Session) Logger() *zap.Logger { return s.logger }

// Throttle returns the session's DomainThrottle.
func (s *Session) Throttle() *DomainThrottle { return s.throttle }

// Robots returns the session's RobotsGate.
func (s *Session) Robots() *RobotsGate { return s.robots }

// Fetcher returns the politeness-checked fetcher, wrapped with the configured
// retry policy.
func (s *Session) Fetcher() URLFetcher {
	return Retrying(s.fetcher, s.opts.Retry, s.logger)
}

// Batch returns a BatchCrawler bound to this session.
func (s *Session) Batch() *BatchCrawler {
	return NewBatchCrawler(s.Fetcher(), s.opts.ConcurrentLimit, s.logger)
}

// Sitemaps returns a SitemapResolver bound to this session.
func (s *Session) Sitemaps() *SitemapResolver {
	return NewSitemapResolver(s.Fetcher(), s.robots, s.logger)
}

// Menus returns a MenuResolver bound to this session.
func (s *Session) Menus() *MenuResolver {
	return NewMenuResolver(s.Batch(), MenuConfig{
		Selectors:  s.opts.MenuSelectors,
		Exclusions: s.opts.Exclusions,
	}, s.logger)
}
