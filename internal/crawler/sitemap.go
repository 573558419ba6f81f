package crawler

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/url"
	"slices"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html/charset"

	"github.com/JakeFAU/docs-crawler/internal/metrics"
)

// SitemapResolver expands sitemaps and sitemap indexes into page URLs.
type SitemapResolver struct {
	fetcher URLFetcher
	robots  *RobotsGate
	logger  *zap.Logger
}

// NewSitemapResolver builds a resolver. robots may be nil, in which case
// discovery only tries the conventional /sitemap.xml location.
func NewSitemapResolver(fetcher URLFetcher, robots *RobotsGate, logger *zap.Logger) *SitemapResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SitemapResolver{fetcher: fetcher, robots: robots, logger: logger}
}

type sitemapNode struct {
	index bool
	locs  []string
}

type sitemapFrame struct {
	url   string
	depth int
}

// Resolve returns every page URL reachable from sitemapURL in document order.
// Index entries deeper than maxDepth are not followed. A failing nested
// sitemap contributes nothing; a failing root returns an error.
func (r *SitemapResolver) Resolve(ctx context.Context, sitemapURL string, maxDepth int) ([]string, error) {
	stack := []sitemapFrame{{url: sitemapURL, depth: 0}}
	visited := make(map[string]struct{})
	var urls []string

	for len(stack) > 0 {
		frame := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		key := stripFragment(frame.url)
		if _, seen := visited[key]; seen {
			metrics.ObserveSitemapDocument("skipped")
			continue
		}
		visited[key] = struct{}{}

		node, err := r.load(ctx, frame.url)
		if err != nil {
			metrics.ObserveSitemapDocument("failed")
			if frame.depth == 0 {
				return nil, err
			}
			r.logger.Warn("skipping nested sitemap", zap.String("sitemap", frame.url), zap.Int("depth", frame.depth), zap.Error(err))
			continue
		}
		if !node.index {
			metrics.ObserveSitemapDocument("urlset")
			urls = append(urls, node.locs...)
			continue
		}

		metrics.ObserveSitemapDocument("index")
		if frame.depth >= maxDepth {
			r.logger.Warn("sitemap index depth limit reached",
				zap.String("sitemap", frame.url),
				zap.Int("max_depth", maxDepth),
				zap.Int("skipped_children", len(node.locs)),
			)
			continue
		}
		for i := len(node.locs) - 1; i >= 0; i-- {
			stack = append(stack, sitemapFrame{url: node.locs[i], depth: frame.depth + 1})
		}
	}
	return urls, nil
}

// Discover lists candidate sitemap URLs for a site: robots.txt Sitemap
// directives first, then the conventional /sitemap.xml.
func (r *SitemapResolver) Discover(ctx context.Context, baseURL string) []string {
	var candidates []string
	if r.robots != nil {
		candidates = append(candidates, r.robots.Sitemaps(ctx, baseURL)...)
	}
	if len(candidates) > 0 {
		return candidates
	}
	if fallback := defaultSitemapURL(baseURL); fallback != "" {
		return []string{fallback}
	}
	return nil
}

// ResolveSite resolves sitemapURL, or every discovered sitemap of baseURL
// when sitemapURL is empty. When every advertised sitemap fails, the
// conventional /sitemap.xml is tried before giving up.
func (r *SitemapResolver) ResolveSite(ctx context.Context, baseURL, sitemapURL string, maxDepth int) ([]string, error) {
	if sitemapURL != "" {
		return r.Resolve(ctx, sitemapURL, maxDepth)
	}
	candidates := r.Discover(ctx, baseURL)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no sitemap candidates for %q: %w", baseURL, ErrFormat)
	}
	urls, errs := r.resolveAll(ctx, candidates, maxDepth)
	if len(errs) < len(candidates) {
		return urls, nil
	}

	fallback := defaultSitemapURL(baseURL)
	if fallback == "" || slices.Contains(candidates, fallback) || ctx.Err() != nil {
		return nil, errors.Join(errs...)
	}
	r.logger.Warn("advertised sitemaps failed; trying default location",
		zap.String("base_url", baseURL),
		zap.Int("advertised", len(candidates)),
		zap.String("sitemap", fallback),
	)
	found, err := r.Resolve(ctx, fallback, maxDepth)
	if err != nil {
		return nil, errors.Join(append(errs, err)...)
	}
	return found, nil
}

func (r *SitemapResolver) resolveAll(ctx context.Context, candidates []string, maxDepth int) ([]string, []error) {
	var (
		urls []string
		errs []error
	)
	for _, candidate := range candidates {
		found, err := r.Resolve(ctx, candidate, maxDepth)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		urls = append(urls, found...)
	}
	return urls, errs
}

func defaultSitemapURL(baseURL string) string {
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Host == "" {
		return ""
	}
	return (&url.URL{Scheme: parsed.Scheme, Host: parsed.Host, Path: "/sitemap.xml"}).String()
}

func (r *SitemapResolver) load(ctx context.Context, sitemapURL string) (sitemapNode, error) {
	result := r.fetcher.Fetch(ctx, sitemapURL)
	if !result.Success {
		return sitemapNode{}, fmt.Errorf("fetch sitemap %s: %w", sitemapURL, result.Err())
	}
	node, err := parseSitemap([]byte(result.Content))
	if err != nil {
		return sitemapNode{}, fmt.Errorf("parse sitemap %s: %w", sitemapURL, err)
	}
	return node, nil
}

type locEntry struct {
	Loc string `xml:"loc"`
}

// parseSitemap decodes a urlset or sitemapindex document. Element names are
// matched on their local part so any namespace is accepted.
func parseSitemap(body []byte) (sitemapNode, error) {
	body, err := maybeGunzip(body)
	if err != nil {
		return sitemapNode{}, err
	}
	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.CharsetReader = charset.NewReaderLabel

	var (
		node   sitemapNode
		entry  string
		rooted bool
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return sitemapNode{}, fmt.Errorf("malformed xml: %v: %w", err, ErrFormat)
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if !rooted {
			switch se.Name.Local {
			case "urlset":
				entry = "url"
			case "sitemapindex":
				node.index = true
				entry = "sitemap"
			default:
				return sitemapNode{}, fmt.Errorf("unexpected root element %q: %w", se.Name.Local, ErrFormat)
			}
			rooted = true
			continue
		}
		if se.Name.Local != entry {
			continue
		}
		var e locEntry
		if err := dec.DecodeElement(&e, &se); err != nil {
			return sitemapNode{}, fmt.Errorf("decode <%s>: %v: %w", entry, err, ErrFormat)
		}
		if loc := strings.TrimSpace(e.Loc); loc != "" {
			node.locs = append(node.locs, loc)
		}
	}
	if !rooted {
		return sitemapNode{}, fmt.Errorf("empty sitemap document: %w", ErrFormat)
	}
	return node, nil
}

func maybeGunzip(body []byte) ([]byte, error) {
	if len(body) < 2 || body[0] != 0x1f || body[1] != 0x8b {
		return body, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("open gzip sitemap: %v: %w", err, ErrFormat)
	}
	defer func() { _ = zr.Close() }()
	out, err := io.ReadAll(io.LimitReader(zr, 50<<20))
	if err != nil {
		return nil, fmt.Errorf("read gzip sitemap: %v: %w", err, ErrFormat)
	}
	return out, nil
}
