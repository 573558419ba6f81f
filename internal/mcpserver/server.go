// Package mcpserver exposes the crawl modes as Model Context Protocol tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/JakeFAU/docs-crawler/internal/app"
	"github.com/JakeFAU/docs-crawler/internal/crawler"
)

// Tool names.
const (
	ToolSingleURL = "single_url_crawler"
	ToolMultiURL  = "multi_url_crawler"
	ToolSitemap   = "sitemap_crawler"
	ToolMenu      = "menu_crawler"
)

// Crawler runs crawls on behalf of tool calls.
type Crawler interface {
	CrawlURLs(ctx context.Context, urls []string, ov app.Overrides) (*app.Report, error)
	CrawlSite(ctx context.Context, seed string, depth int, ov app.Overrides) (*app.Report, error)
	CrawlSitemap(ctx context.Context, baseURL, sitemapURL string, ov app.Overrides) (*app.Report, error)
	CrawlMenu(ctx context.Context, seed string, ov app.Overrides, crawlPages bool) (*app.Report, error)
}

// Config names the server and bounds each tool call.
type Config struct {
	Name    string
	Version string
	// CallTimeout caps one tool invocation; zero means no extra limit.
	CallTimeout time.Duration
	Logger      *zap.Logger
}

// SingleURLInput are the arguments of single_url_crawler.
type SingleURLInput struct {
	URL               string   `json:"url" jsonschema:"target URL to crawl"`
	Depth             int      `json:"depth,omitempty" jsonschema:"how many levels of links to follow; 0 fetches only the URL"`
	ExclusionPatterns []string `json:"exclusion_patterns,omitempty" jsonschema:"regular expressions for URLs to skip"`
	RateLimit         *float64 `json:"rate_limit,omitempty" jsonschema:"minimum seconds between requests to the same host"`
}

// MultiURLInput are the arguments of multi_url_crawler.
type MultiURLInput struct {
	URLs              []string `json:"urls" jsonschema:"URLs to crawl"`
	ConcurrentLimit   *int     `json:"concurrent_limit,omitempty" jsonschema:"maximum concurrent requests"`
	ExclusionPatterns []string `json:"exclusion_patterns,omitempty" jsonschema:"regular expressions for URLs to skip"`
	RateLimit         *float64 `json:"rate_limit,omitempty" jsonschema:"minimum seconds between requests to the same host"`
}

// SitemapInput are the arguments of sitemap_crawler.
type SitemapInput struct {
	BaseURL           string   `json:"base_url" jsonschema:"base URL of the site"`
	SitemapURL        string   `json:"sitemap_url,omitempty" jsonschema:"explicit sitemap URL; discovered from robots.txt or /sitemap.xml when empty"`
	ConcurrentLimit   *int     `json:"concurrent_limit,omitempty" jsonschema:"maximum concurrent requests"`
	ExclusionPatterns []string `json:"exclusion_patterns,omitempty" jsonschema:"regular expressions for URLs to skip"`
	RateLimit         *float64 `json:"rate_limit,omitempty" jsonschema:"minimum seconds between requests to the same host"`
}

// MenuInput are the arguments of menu_crawler.
type MenuInput struct {
	BaseURL           string   `json:"base_url" jsonschema:"base URL of the site"`
	MenuSelector      string   `json:"menu_selector" jsonschema:"CSS selector matching navigation links"`
	ConcurrentLimit   *int     `json:"concurrent_limit,omitempty" jsonschema:"maximum concurrent requests"`
	ExclusionPatterns []string `json:"exclusion_patterns,omitempty" jsonschema:"regular expressions for URLs to skip"`
	RateLimit         *float64 `json:"rate_limit,omitempty" jsonschema:"minimum seconds between requests to the same host"`
}

// Stats summarises a tool run.
type Stats struct {
	URLsCrawled int    `json:"urls_crawled"`
	URLsFailed  int    `json:"urls_failed"`
	MenuLinks   int    `json:"menu_links,omitempty"`
	Status      string `json:"status,omitempty"`
	DocumentURI string `json:"document_uri,omitempty"`
	ExportURI   string `json:"export_uri,omitempty"`
}

// Result is the JSON body returned by every tool.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Content string `json:"content,omitempty"`
	Stats   Stats  `json:"stats"`
}

type handler struct {
	crawler Crawler
	timeout time.Duration
	logger  *zap.Logger
}

// New registers the crawl tools on a fresh MCP server.
func New(c Crawler, cfg Config) *mcp.Server {
	if cfg.Name == "" {
		cfg.Name = "docs-crawler"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	h := &handler{crawler: c, timeout: cfg.CallTimeout, logger: cfg.Logger}

	server := mcp.NewServer(&mcp.Implementation{Name: cfg.Name, Version: cfg.Version}, nil)
	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolSingleURL,
		Description: "Crawl a single URL and optionally follow same-host links up to a depth. Returns the page content as Markdown.",
	}, h.singleURL)
	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolMultiURL,
		Description: "Crawl several URLs concurrently with per-host rate limiting. Returns the combined Markdown document.",
	}, h.multiURL)
	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolSitemap,
		Description: "Crawl every page listed in a site's sitemap.xml, following nested sitemap indexes.",
	}, h.sitemap)
	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolMenu,
		Description: "Discover pages through a site's navigation menu and crawl them.",
	}, h.menu)
	return server
}

// Run serves the tools over stdio until ctx ends or the client disconnects.
func Run(ctx context.Context, server *mcp.Server) error {
	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}

func (h *handler) singleURL(ctx context.Context, _ *mcp.CallToolRequest, in SingleURLInput) (*mcp.CallToolResult, any, error) {
	ov, err := overrides(in.RateLimit, nil, in.ExclusionPatterns)
	if err == nil && in.Depth < 0 {
		err = errors.New("depth must be >= 0")
	}
	if err == nil {
		err = requireURL("url", in.URL)
	}
	if err != nil {
		return h.failed(ToolSingleURL, err)
	}
	ctx, cancel := h.callContext(ctx)
	defer cancel()
	rep, err := h.crawler.CrawlSite(ctx, in.URL, in.Depth, ov)
	return h.finish(ToolSingleURL, rep, err)
}

func (h *handler) multiURL(ctx context.Context, _ *mcp.CallToolRequest, in MultiURLInput) (*mcp.CallToolResult, any, error) {
	ov, err := overrides(in.RateLimit, in.ConcurrentLimit, in.ExclusionPatterns)
	if err == nil && len(in.URLs) == 0 {
		err = errors.New("urls must contain at least one URL")
	}
	for _, u := range in.URLs {
		if err != nil {
			break
		}
		err = requireURL("urls", u)
	}
	if err != nil {
		return h.failed(ToolMultiURL, err)
	}
	ctx, cancel := h.callContext(ctx)
	defer cancel()
	rep, err := h.crawler.CrawlURLs(ctx, in.URLs, ov)
	return h.finish(ToolMultiURL, rep, err)
}

func (h *handler) sitemap(ctx context.Context, _ *mcp.CallToolRequest, in SitemapInput) (*mcp.CallToolResult, any, error) {
	ov, err := overrides(in.RateLimit, in.ConcurrentLimit, in.ExclusionPatterns)
	if err == nil {
		err = requireURL("base_url", in.BaseURL)
	}
	if err == nil && in.SitemapURL != "" {
		err = requireURL("sitemap_url", in.SitemapURL)
	}
	if err != nil {
		return h.failed(ToolSitemap, err)
	}
	ctx, cancel := h.callContext(ctx)
	defer cancel()
	rep, err := h.crawler.CrawlSitemap(ctx, in.BaseURL, in.SitemapURL, ov)
	return h.finish(ToolSitemap, rep, err)
}

func (h *handler) menu(ctx context.Context, _ *mcp.CallToolRequest, in MenuInput) (*mcp.CallToolResult, any, error) {
	ov, err := overrides(in.RateLimit, in.ConcurrentLimit, in.ExclusionPatterns)
	if err == nil {
		err = requireURL("base_url", in.BaseURL)
	}
	if err == nil && strings.TrimSpace(in.MenuSelector) == "" {
		err = errors.New("menu_selector must not be empty")
	}
	if err != nil {
		return h.failed(ToolMenu, err)
	}
	ov.MenuSelectors = []string{in.MenuSelector}
	ctx, cancel := h.callContext(ctx)
	defer cancel()
	rep, err := h.crawler.CrawlMenu(ctx, in.BaseURL, ov, true)
	return h.finish(ToolMenu, rep, err)
}

func (h *handler) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if h.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, h.timeout)
}

func overrides(rateLimit *float64, concurrentLimit *int, patterns []string) (app.Overrides, error) {
	var ov app.Overrides
	if rateLimit != nil {
		if *rateLimit <= 0 {
			return ov, errors.New("rate_limit must be > 0")
		}
		ov.RateLimit = time.Duration(*rateLimit * float64(time.Second))
	}
	if concurrentLimit != nil {
		if *concurrentLimit <= 0 {
			return ov, errors.New("concurrent_limit must be > 0")
		}
		ov.ConcurrentLimit = *concurrentLimit
	}
	if _, err := crawler.CompilePatterns(patterns); err != nil {
		return ov, err
	}
	ov.ExclusionPatterns = patterns
	return ov, nil
}

func requireURL(field, raw string) error {
	if !crawler.IsFetchable(raw) {
		return fmt.Errorf("%s: %q is not an http(s) URL", field, raw)
	}
	return nil
}

// failed reports a validation or crawl error as a tool-level failure so the
// client sees the message instead of a protocol error.
func (h *handler) failed(tool string, err error) (*mcp.CallToolResult, any, error) {
	h.logger.Warn("tool call failed", zap.String("tool", tool), zap.Error(err))
	res, encErr := toolResult(Result{Success: false, Error: err.Error()})
	if encErr != nil {
		return nil, nil, encErr
	}
	res.IsError = true
	return res, nil, nil
}

func (h *handler) finish(tool string, rep *app.Report, err error) (*mcp.CallToolResult, any, error) {
	if err != nil {
		return h.failed(tool, err)
	}
	out := Result{
		Success: rep.Succeeded > 0 || (rep.Mode == app.ModeMenu && len(rep.MenuLinks) > 0),
		Content: rep.Document,
		Stats: Stats{
			URLsCrawled: rep.Succeeded,
			URLsFailed:  rep.Failed,
			MenuLinks:   len(rep.MenuLinks),
			Status:      rep.Status,
			DocumentURI: rep.DocumentURI,
			ExportURI:   rep.ExportURI,
		},
	}
	if !out.Success {
		out.Error = "no pages were crawled successfully"
	}
	h.logger.Info("tool call finished",
		zap.String("tool", tool),
		zap.Bool("success", out.Success),
		zap.Int("urls_crawled", out.Stats.URLsCrawled),
		zap.Int("urls_failed", out.Stats.URLsFailed),
	)
	res, encErr := toolResult(out)
	if encErr != nil {
		return nil, nil, encErr
	}
	return res, nil, nil
}

func toolResult(r Result) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: string(data)}}}, nil
}
