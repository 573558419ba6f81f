// Package extract turns fetched HTML into structured page data and Markdown.
package extract

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/JakeFAU/docs-crawler/internal/crawler"
)

var defaultContentSelectors = []string{
	"main",
	"article",
	"[role='main']",
	".markdown-body",
	".content",
	"#content",
	".docs-content",
}

// Chrome that never belongs in extracted documentation text.
const boilerplateSelector = "script, style, noscript, template, svg, iframe, form, button, nav, header, footer, aside, [role='navigation'], [aria-hidden='true']"

// Extractor implements crawler.ContentExtractor with goquery.
type Extractor struct {
	ContentSelectors []string
}

// New returns an Extractor using the default content selectors.
func New() *Extractor {
	return &Extractor{ContentSelectors: append([]string(nil), defaultContentSelectors...)}
}

var _ crawler.ContentExtractor = (*Extractor)(nil)

// Extract parses body and returns its title, description, text, Markdown,
// same-host links, and headings.
func (e *Extractor) Extract(pageURL string, body []byte) (crawler.ParsedPage, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return crawler.ParsedPage{}, fmt.Errorf("parse page url: %v: %w", err, crawler.ErrFormat)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return crawler.ParsedPage{}, fmt.Errorf("parse html: %v: %w", err, crawler.ErrFormat)
	}

	page := crawler.ParsedPage{
		URL:         pageURL,
		Title:       title(doc),
		Description: description(doc),
		Links:       links(doc, base),
	}

	root := e.contentRoot(doc)
	root.Find(boilerplateSelector).Remove()

	page.Headers = headers(root)
	page.Text = visibleText(root)
	page.Markdown = ToMarkdown(root, base)
	return page, nil
}

func (e *Extractor) contentRoot(doc *goquery.Document) *goquery.Selection {
	selectors := e.ContentSelectors
	if len(selectors) == 0 {
		selectors = defaultContentSelectors
	}
	for _, sel := range selectors {
		found := doc.Find(sel).First()
		if found.Length() > 0 && strings.TrimSpace(found.Text()) != "" {
			return found
		}
	}
	return doc.Find("body").First()
}

func title(doc *goquery.Document) string {
	if t := collapse(doc.Find("head title").First().Text()); t != "" {
		return t
	}
	if t, ok := doc.Find("meta[property='og:title']").Attr("content"); ok && strings.TrimSpace(t) != "" {
		return strings.TrimSpace(t)
	}
	return collapse(doc.Find("h1").First().Text())
}

func description(doc *goquery.Document) string {
	for _, sel := range []string{"meta[name='description']", "meta[property='og:description']"} {
		if d, ok := doc.Find(sel).Attr("content"); ok && strings.TrimSpace(d) != "" {
			return strings.TrimSpace(d)
		}
	}
	return ""
}

func links(doc *goquery.Document, base *url.URL) []string {
	seen := make(map[string]struct{})
	var out []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		if (abs.Scheme != "http" && abs.Scheme != "https") || !strings.EqualFold(abs.Hostname(), base.Hostname()) {
			return
		}
		abs.Fragment = ""
		abs.RawFragment = ""
		key := crawler.URLKey(abs.String())
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, abs.String())
	})
	return out
}

func headers(root *goquery.Selection) []crawler.Header {
	var out []crawler.Header
	root.Find("h1, h2, h3, h4, h5, h6").Each(func(_ int, s *goquery.Selection) {
		text := collapse(s.Text())
		if text == "" {
			return
		}
		level, err := strconv.Atoi(strings.TrimPrefix(goquery.NodeName(s), "h"))
		if err != nil {
			return
		}
		out = append(out, crawler.Header{Level: level, Text: text})
	})
	return out
}

// visibleText joins text nodes with spaces so adjacent blocks do not run together.
func visibleText(sel *goquery.Selection) string {
	var parts []string
	for _, n := range sel.Nodes {
		parts = append(parts, textNodes(n)...)
	}
	return collapse(strings.Join(parts, " "))
}

func textNodes(n *html.Node) []string {
	if n.Type == html.TextNode {
		return []string{n.Data}
	}
	var out []string
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, textNodes(c)...)
	}
	return out
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
