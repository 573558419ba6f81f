package crawler

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/docs-crawler/internal/metrics"
)

var defaultMenuSelectors = []string{
	"nav a",
	"[role='navigation'] a",
	".sidebar a",
	"[class*='nav'] a",
	"[class*='menu'] a",
	"aside a",
	".toc a",
	"[class*='sidebar'] [role='navigation'] [class*='group'] a",
	"[class*='sidebar'] [role='navigation'] [class*='item'] a",
	"[class*='sidebar'] [role='navigation'] [class*='link'] a",
	"[class*='sidebar'] [role='navigation'] div[role] a",
	"[class*='sidebar'] [role='navigation'] [class*='flex'] a",
	"[class*='sidebar'] [role='navigation'] div[class*='text']",
	"[class*='sidebar'] [role='navigation'] [class*='nav-item']",
	"[class*='docs-'] a",
	"[class*='navigation'] a",
	"[class*='toc'] a",
	".docNavigation a",
	"[class*='menu-item'] a",
	"[class*='sidebar'] a[href]",
	"[class*='sidebar'] [role='link']",
	"[class*='sidebar'] [role='menuitem']",
	"[class*='sidebar'] [role='treeitem']",
	"[class*='sidebar'] [onclick]",
	"[class*='sidebar'] [class*='link']",
	"a[href^='/']",
	"a[href^='./']",
	"a[href^='../']",
}

// DefaultMenuSelectors returns the built-in navigation selector list.
func DefaultMenuSelectors() []string {
	return append([]string(nil), defaultMenuSelectors...)
}

// MenuConfig controls which elements count as navigation.
type MenuConfig struct {
	Selectors  []string
	Exclusions []*regexp.Regexp
}

// MenuResolver walks a documentation site's navigation breadth-first.
type MenuResolver struct {
	batch  *BatchCrawler
	cfg    MenuConfig
	logger *zap.Logger
}

// NewMenuResolver builds a resolver that fetches each level through batch.
func NewMenuResolver(batch *BatchCrawler, cfg MenuConfig, logger *zap.Logger) *MenuResolver {
	if len(cfg.Selectors) == 0 {
		cfg.Selectors = DefaultMenuSelectors()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MenuResolver{batch: batch, cfg: cfg, logger: logger}
}

// Resolve returns the seed and every same-host navigation link reachable
// within maxDepth expansions, deduplicated by normalized URL and sorted.
// Pages at depth maxDepth are reported but never fetched. Relative links are
// resolved against the URL of the page they appear on.
func (m *MenuResolver) Resolve(ctx context.Context, seedURL string, maxDepth int) ([]MenuLink, error) {
	seedURL = stripFragment(strings.TrimSpace(seedURL))
	seedParsed, err := parseFetchURL(seedURL)
	if err != nil {
		return nil, fmt.Errorf("seed url: %v: %w", err, ErrConfig)
	}
	seed, err := NormalizeURL(seedURL)
	if err != nil {
		return nil, fmt.Errorf("seed url: %v: %w", err, ErrConfig)
	}
	host := strings.ToLower(seedParsed.Host)
	if hostOnly, err := url.Parse(seed); err == nil {
		host = hostOnly.Host
	}

	seen := map[string]MenuLink{seed: {URL: seed, Depth: 0}}
	frontier := []string{seedURL}

	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		results := m.batch.CrawlAll(ctx, frontier)
		var next []string
		for i, res := range results {
			page := frontier[i]
			if !res.Success {
				if depth == 0 {
					return nil, fmt.Errorf("fetch seed %s: %w", seedURL, res.Err())
				}
				m.logger.Warn("menu expansion fetch failed", zap.String("url", page), zap.String("error", res.Error))
				continue
			}
			candidates, err := m.extract(page, res.Content, host)
			if err != nil {
				if depth == 0 {
					return nil, err
				}
				m.logger.Warn("menu expansion parse failed", zap.String("url", page), zap.Error(err))
				continue
			}
			for _, c := range candidates {
				if _, dup := seen[c.link.URL]; dup {
					continue
				}
				c.link.Depth = depth + 1
				seen[c.link.URL] = c.link
				next = append(next, c.fetchURL)
			}
		}
		m.logger.Debug("menu level expanded", zap.Int("depth", depth), zap.Int("pages", len(frontier)), zap.Int("new_links", len(next)))
		frontier = next
	}

	out := make([]MenuLink, 0, len(seen))
	for _, link := range seen {
		out = append(out, link)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	metrics.AddMenuLinks(len(out))
	return out, nil
}

type menuCandidate struct {
	link     MenuLink
	fetchURL string
}

// extract returns the page's navigation links in selector order.
func (m *MenuResolver) extract(pageURL, body, host string) ([]menuCandidate, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("page url %s: %v: %w", pageURL, err, ErrFormat)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html %s: %v: %w", pageURL, err, ErrFormat)
	}

	var out []menuCandidate
	local := make(map[string]struct{})
	for _, selector := range m.cfg.Selectors {
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			href, ok := s.Attr("href")
			if !ok {
				href, ok = s.Find("a[href]").First().Attr("href")
			}
			if !ok {
				return
			}
			fetchURL, normalized, keep := resolveMenuHref(base, href, host)
			if !keep || Excluded(normalized, m.cfg.Exclusions) {
				return
			}
			if _, dup := local[normalized]; dup {
				return
			}
			local[normalized] = struct{}{}
			out = append(out, menuCandidate{
				link:     MenuLink{URL: normalized, Text: strings.Join(strings.Fields(s.Text()), " ")},
				fetchURL: fetchURL,
			})
		})
	}
	return out, nil
}

// resolveMenuHref resolves href against base. It returns the absolute URL
// without its fragment, its normalized form, and whether it is a same-host
// http(s) page link.
func resolveMenuHref(base *url.URL, href, host string) (string, string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", "", false
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", "", false
	}
	abs.Fragment = ""
	abs.RawFragment = ""
	normalized, err := NormalizeURL(abs.String())
	if err != nil {
		return "", "", false
	}
	parsed, err := url.Parse(normalized)
	if err != nil || !strings.EqualFold(parsed.Host, host) {
		return "", "", false
	}
	return abs.String(), normalized, true
}
