// Package render turns crawl results into Markdown documents and file names.
package render

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	firstH1      = regexp.MustCompile(`(?m)^# .+$`)
	helpfulLine  = regexp.MustCompile(`(?im)^(#+\s*)?was this (page )?helpful\?.*$`)
	nonAlnumRuns = regexp.MustCompile(`[^a-z0-9]+`)
)

// ProcessMarkdown trims page Markdown to start at its first H1, cuts any
// "Was this page helpful?" footer, and records the source URL under the title.
func ProcessMarkdown(content, sourceURL string) string {
	loc := firstH1.FindStringIndex(content)
	if loc == nil {
		return "# No Title Found\n\n## Source\n" + sourceURL + "\n\n" + content
	}
	body := content[loc[0]:]
	if cut := helpfulLine.FindStringIndex(body); cut != nil {
		body = strings.TrimSpace(body[:cut[0]])
	}

	h1, rest, _ := strings.Cut(body, "\n")
	return h1 + "\n\n## Source\n" + sourceURL + "\n\n" + rest
}

// FilenamePrefix derives a file name prefix from a URL: host labels reversed
// without com, org, net, or www, then path segments, all lowercased with
// non-alphanumerics collapsed to underscores. docs.example.com/guide/intro
// yields example_docs_guide_intro.
func FilenamePrefix(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Hostname() == "" {
		return "default"
	}

	labels := strings.Split(parsed.Hostname(), ".")
	var parts []string
	for i := len(labels) - 1; i >= 0; i-- {
		switch strings.ToLower(labels[i]) {
		case "com", "org", "net", "www":
			continue
		}
		parts = append(parts, labels[i])
	}
	for _, seg := range strings.Split(parsed.Path, "/") {
		if seg != "" {
			parts = append(parts, seg)
		}
	}

	cleaned := make([]string, 0, len(parts))
	for _, p := range parts {
		if c := strings.Trim(nonAlnumRuns.ReplaceAllString(strings.ToLower(p), "_"), "_"); c != "" {
			cleaned = append(cleaned, c)
		}
	}
	if len(cleaned) == 0 {
		return "default"
	}
	return strings.Join(cleaned, "_")
}
