package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/nao1215/markdown"
	"go.uber.org/zap"

	"github.com/JakeFAU/docs-crawler/internal/crawler"
)

// Section is one successfully extracted page.
type Section struct {
	URL      string
	Title    string
	Markdown string
}

// Summary describes a finished crawl for the document footer.
type Summary struct {
	RunID       string
	Mode        string
	Source      string
	Requested   int
	Failures    []crawler.FetchResult
	GeneratedAt time.Time
}

// Sections runs the extractor over every successful result in input order.
// Pages the extractor rejects are returned as format failures alongside the
// original fetch failures.
func Sections(results []crawler.FetchResult, extractor crawler.ContentExtractor, logger *zap.Logger) ([]Section, []crawler.FetchResult) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var (
		sections []Section
		failures []crawler.FetchResult
	)
	for _, r := range results {
		if !r.Success {
			failures = append(failures, r)
			continue
		}
		page, err := extractor.Extract(r.URL, []byte(r.Content))
		if err != nil {
			logger.Warn("content extraction failed", zap.String("url", r.URL), zap.Error(err))
			failures = append(failures, crawler.FetchResult{
				URL:        r.URL,
				StatusCode: r.StatusCode,
				Error:      "extract: " + err.Error(),
				Kind:       crawler.FailureFormat,
			})
			continue
		}
		sections = append(sections, Section{URL: r.URL, Title: page.Title, Markdown: page.Markdown})
	}
	return sections, failures
}

// WriteDocument renders all sections separated by horizontal rules followed
// by a crawl summary.
func WriteDocument(w io.Writer, sections []Section, summary Summary) error {
	md := markdown.NewMarkdown(w)
	for _, s := range sections {
		md.PlainText(ProcessMarkdown(s.Markdown, s.URL))
		md.PlainText("")
		md.HorizontalRule()
		md.PlainText("")
	}

	md.H2("Crawl Summary")
	md.PlainText("")
	rows := [][]string{
		{"Pages requested", strconv.Itoa(summary.Requested)},
		{"Pages written", strconv.Itoa(len(sections))},
		{"Pages failed", strconv.Itoa(len(summary.Failures))},
	}
	if summary.Mode != "" {
		rows = append(rows, []string{"Mode", summary.Mode})
	}
	if summary.Source != "" {
		rows = append(rows, []string{"Source", summary.Source})
	}
	if summary.RunID != "" {
		rows = append(rows, []string{"Run ID", "`" + summary.RunID + "`"})
	}
	if !summary.GeneratedAt.IsZero() {
		rows = append(rows, []string{"Generated", summary.GeneratedAt.UTC().Format(time.RFC3339)})
	}
	md.Table(markdown.TableSet{Header: []string{"Property", "Value"}, Rows: rows})
	md.PlainText("")

	if len(summary.Failures) > 0 {
		md.H3("Failed URLs")
		md.PlainText("")
		items := make([]string, 0, len(summary.Failures))
		for _, f := range summary.Failures {
			items = append(items, fmt.Sprintf("%s (%s)", f.URL, f.Error))
		}
		md.BulletList(items...)
		md.PlainText("")
	}

	if err := md.Build(); err != nil {
		return fmt.Errorf("build markdown document: %w", err)
	}
	return nil
}

// DocumentPrefix picks a file prefix from the first successful result.
func DocumentPrefix(results []crawler.FetchResult) string {
	for _, r := range results {
		if r.Success {
			return FilenamePrefix(r.URL)
		}
	}
	return "docs"
}

// FileName returns "<prefix>_<YYYYMMDD_HHMMSS>.md".
func FileName(prefix string, at time.Time) string {
	if prefix == "" {
		prefix = "docs"
	}
	return prefix + "_" + at.Format("20060102_150405") + ".md"
}

// MenuExport is the JSON shape written for menu traversals. It can be fed
// back into a crawl as a URL list.
type MenuExport struct {
	StartURL        string   `json:"start_url"`
	TotalLinksFound int      `json:"total_links_found"`
	MenuLinks       []string `json:"menu_links"`
}

// NewMenuExport flattens menu links in their resolved order.
func NewMenuExport(startURL string, links []crawler.MenuLink) MenuExport {
	urls := make([]string, 0, len(links))
	for _, l := range links {
		urls = append(urls, l.URL)
	}
	return MenuExport{StartURL: startURL, TotalLinksFound: len(urls), MenuLinks: urls}
}

// WriteMenuExport writes the export as indented JSON.
func WriteMenuExport(w io.Writer, export MenuExport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(export); err != nil {
		return fmt.Errorf("encode menu export: %w", err)
	}
	return nil
}
