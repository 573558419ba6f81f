// Package app runs complete crawls: it builds a fresh session per run,
// selects targets, fetches them, renders the Markdown document, and fans the
// outcome out to the configured sinks.
package app

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/docs-crawler/internal/crawler"
	"github.com/JakeFAU/docs-crawler/internal/metrics"
	"github.com/JakeFAU/docs-crawler/internal/storage"
)

// Run modes reported in Report.Mode and metrics.
const (
	ModeCrawl   = "crawl"
	ModeSingle  = "single"
	ModeSitemap = "sitemap"
	ModeMenu    = "menu"
)

// Publisher announces finished runs.
type Publisher interface {
	Publish(ctx context.Context, attrs map[string]string, payload any) (string, error)
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// Dependencies are the collaborators a Service needs. Page, Extractor and
// Blobs are required; the rest are optional.
type Dependencies struct {
	Page      crawler.PageFetcher
	Extractor crawler.ContentExtractor
	Blobs     storage.BlobStore
	Results   storage.ResultStore
	Publisher Publisher
	IDs       IDGenerator
	Now       func() time.Time
	Logger    *zap.Logger
}

// Service executes crawl runs against a shared set of sinks. Each run gets
// its own crawler.Session, so concurrent runs never share throttle or
// robots state.
type Service struct {
	base         crawler.Options
	sameHostOnly bool
	deps         Dependencies
	logger       *zap.Logger
}

// New validates the base options and dependencies.
func New(base crawler.Options, sameHostOnly bool, deps Dependencies) (*Service, error) {
	if err := base.Validate(); err != nil {
		return nil, err
	}
	switch {
	case deps.Page == nil:
		return nil, fmt.Errorf("page fetcher is required: %w", crawler.ErrConfig)
	case deps.Extractor == nil:
		return nil, fmt.Errorf("content extractor is required: %w", crawler.ErrConfig)
	case deps.Blobs == nil:
		return nil, fmt.Errorf("blob store is required: %w", crawler.ErrConfig)
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Service{base: base, sameHostOnly: sameHostOnly, deps: deps, logger: deps.Logger}, nil
}

// Overrides adjust the base options for a single run. Zero values keep the
// configured setting.
type Overrides struct {
	RateLimit         time.Duration
	ConcurrentLimit   int
	MaxDepth          *int
	ExclusionPatterns []string
	MenuSelectors     []string
}

func (s *Service) options(ov Overrides) (crawler.Options, error) {
	opts := s.base
	if ov.RateLimit != 0 {
		opts.RateLimit = ov.RateLimit
	}
	if ov.ConcurrentLimit != 0 {
		opts.ConcurrentLimit = ov.ConcurrentLimit
	}
	if ov.MaxDepth != nil {
		opts.MaxDepth = *ov.MaxDepth
	}
	if len(ov.ExclusionPatterns) > 0 {
		extra, err := crawler.CompilePatterns(ov.ExclusionPatterns)
		if err != nil {
			return crawler.Options{}, err
		}
		opts.Exclusions = append(append([]*regexp.Regexp(nil), s.base.Exclusions...), extra...)
	}
	if len(ov.MenuSelectors) > 0 {
		opts.MenuSelectors = append([]string(nil), ov.MenuSelectors...)
	}
	if err := opts.Validate(); err != nil {
		return crawler.Options{}, err
	}
	return opts, nil
}

// run carries the state of one invocation from start to report.
type run struct {
	id      string
	mode    string
	source  string
	started time.Time
	session *crawler.Session
}

func (s *Service) begin(mode, source string, ov Overrides) (*run, error) {
	opts, err := s.options(ov)
	if err != nil {
		return nil, err
	}
	id := ""
	if s.deps.IDs != nil {
		if id, err = s.deps.IDs.NewID(); err != nil {
			return nil, fmt.Errorf("generate run id: %w", err)
		}
	}
	logger := s.logger.With(zap.String("run_id", id), zap.String("mode", mode))
	sess, err := crawler.NewSession(opts, s.deps.Page, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("crawl run started", zap.String("source", source))
	return &run{id: id, mode: mode, source: source, started: s.deps.Now(), session: sess}, nil
}

// CrawlURLs fetches an explicit URL list. Invalid URLs are kept so they show
// up as failures; duplicates and excluded URLs are dropped.
func (s *Service) CrawlURLs(ctx context.Context, urls []string, ov Overrides) (*Report, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("at least one url is required: %w", crawler.ErrConfig)
	}
	r, err := s.begin(ModeCrawl, fmt.Sprintf("%d urls", len(urls)), ov)
	if err != nil {
		return nil, err
	}
	targets := selectTargets(urls, crawler.TargetFilter{Exclusions: r.session.Options().Exclusions})
	results := r.session.Batch().CrawlAll(ctx, targets)
	return s.finish(ctx, r, results, nil)
}

// CrawlSite fetches seed and follows same-host links found in its content up
// to depth levels. Depth zero fetches only the seed.
func (s *Service) CrawlSite(ctx context.Context, seed string, depth int, ov Overrides) (*Report, error) {
	if depth < 0 {
		return nil, fmt.Errorf("depth must be >= 0: %w", crawler.ErrConfig)
	}
	r, err := s.begin(ModeSingle, seed, ov)
	if err != nil {
		return nil, err
	}
	opts := r.session.Options()
	filter := crawler.TargetFilter{SeedURL: seed, SameHostOnly: true, Exclusions: opts.Exclusions}
	frontier := selectTargets([]string{seed}, crawler.TargetFilter{})
	seen := make(map[string]struct{}, len(frontier))
	for _, u := range frontier {
		seen[crawler.URLKey(u)] = struct{}{}
	}

	batch := r.session.Batch()
	var results []crawler.FetchResult
	for level := 0; len(frontier) > 0; level++ {
		fetched := batch.CrawlAll(ctx, frontier)
		results = append(results, fetched...)
		if level >= depth || ctx.Err() != nil {
			break
		}
		var next []string
		for _, res := range fetched {
			if !res.Success {
				continue
			}
			page, err := s.deps.Extractor.Extract(res.URL, []byte(res.Content))
			if err != nil {
				continue
			}
			for _, link := range crawler.FilterTargets(page.Links, filter) {
				key := crawler.URLKey(link)
				if _, ok := seen[key]; ok {
					continue
				}
				seen[key] = struct{}{}
				next = append(next, link)
			}
		}
		frontier = next
	}
	return s.finish(ctx, r, results, nil)
}

// CrawlSitemap resolves sitemapURL (or the sitemaps discovered for baseURL
// when empty) and fetches every page it lists.
func (s *Service) CrawlSitemap(ctx context.Context, baseURL, sitemapURL string, ov Overrides) (*Report, error) {
	if baseURL == "" && sitemapURL == "" {
		return nil, fmt.Errorf("base url or sitemap url is required: %w", crawler.ErrConfig)
	}
	source := sitemapURL
	if source == "" {
		source = baseURL
	}
	r, err := s.begin(ModeSitemap, source, ov)
	if err != nil {
		return nil, err
	}
	opts := r.session.Options()
	pages, err := r.session.Sitemaps().ResolveSite(ctx, baseURL, sitemapURL, opts.SitemapMaxDepth)
	if err != nil {
		s.observeFailure(r, err)
		return nil, fmt.Errorf("resolve sitemap: %w", err)
	}
	seed := baseURL
	if seed == "" {
		seed = sitemapURL
	}
	targets := crawler.FilterTargets(pages, crawler.TargetFilter{
		SeedURL:      seed,
		SameHostOnly: s.sameHostOnly,
		Exclusions:   opts.Exclusions,
	})
	r.session.Logger().Info("sitemap resolved", zap.Int("listed", len(pages)), zap.Int("targets", len(targets)))
	results := r.session.Batch().CrawlAll(ctx, targets)
	return s.finish(ctx, r, results, nil)
}

// CrawlMenu discovers navigation links from seed and exports them as JSON.
// With crawlPages set, every discovered page is fetched and rendered too.
func (s *Service) CrawlMenu(ctx context.Context, seed string, ov Overrides, crawlPages bool) (*Report, error) {
	r, err := s.begin(ModeMenu, seed, ov)
	if err != nil {
		return nil, err
	}
	opts := r.session.Options()
	links, err := r.session.Menus().Resolve(ctx, seed, opts.MaxDepth)
	if err != nil {
		s.observeFailure(r, err)
		return nil, fmt.Errorf("resolve menu: %w", err)
	}

	var results []crawler.FetchResult
	if crawlPages {
		urls := make([]string, 0, len(links))
		for _, l := range links {
			urls = append(urls, l.URL)
		}
		results = r.session.Batch().CrawlAll(ctx, urls)
	}
	return s.finish(ctx, r, results, links)
}

func (s *Service) observeFailure(r *run, err error) {
	metrics.ObserveRun(r.mode, StatusFailed)
	r.session.Logger().Warn("crawl run failed", zap.Error(err))
}

// selectTargets applies filter one URL at a time so unparsable inputs can be
// passed through untouched and reported by the fetcher.
func selectTargets(urls []string, filter crawler.TargetFilter) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		kept := crawler.FilterTargets([]string{u}, filter)
		if len(kept) == 0 {
			if crawler.IsFetchable(u) {
				continue
			}
			kept = []string{u}
		}
		key := crawler.URLKey(kept[0])
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, kept[0])
	}
	return out
}
