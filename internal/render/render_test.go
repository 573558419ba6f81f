package render

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/docs-crawler/internal/crawler"
)

func TestProcessMarkdown(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "starts at first h1",
			content: "Skip to content\nMenu\n# Getting Started\nIntro text\n## Install\nSteps",
			want:    "# Getting Started\n\n## Source\nhttps://docs.example/start\n\nIntro text\n## Install\nSteps",
		},
		{
			name:    "drops helpful footer",
			content: "# Title\nBody\n\n### Was this page helpful?\nYes No\nFooter",
			want:    "# Title\n\n## Source\nhttps://docs.example/start\n\nBody",
		},
		{
			name:    "short helpful variant is case insensitive",
			content: "# Title\nBody\nWAS THIS HELPFUL?\nthumbs",
			want:    "# Title\n\n## Source\nhttps://docs.example/start\n\nBody",
		},
		{
			name:    "no title",
			content: "Just text\n## Sub",
			want:    "# No Title Found\n\n## Source\nhttps://docs.example/start\n\nJust text\n## Sub",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, ProcessMarkdown(tc.content, "https://docs.example/start"))
		})
	}
}

func TestFilenamePrefix(t *testing.T) {
	t.Parallel()

	testCases := map[string]string{
		"https://docs.literalai.com/page":      "literalai_docs_page",
		"https://literalai.com/docs/page":      "literalai_docs_page",
		"https://api.example.com/path/to/page": "example_api_path_to_page",
		"https://www.Example.org/Guide/v2.1/":  "example_guide_v2_1",
		"https://example.com":                  "example",
		"https://www.com/":                     "default",
		"not a url":                            "default",
	}
	for in, want := range testCases {
		assert.Equal(t, want, FilenamePrefix(in), in)
	}
}

func TestFileNameAndPrefix(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
	assert.Equal(t, "example_docs_20240309_140507.md", FileName("example_docs", at))
	assert.Equal(t, "docs_20240309_140507.md", FileName("", at))

	results := []crawler.FetchResult{
		{URL: "https://down.example/x", Error: "HTTP 500"},
		{URL: "https://docs.example.com/guide", Success: true},
	}
	assert.Equal(t, "example_docs_guide", DocumentPrefix(results))
	assert.Equal(t, "docs", DocumentPrefix(results[:1]))
}

type fakeExtractor struct{}

func (fakeExtractor) Extract(url string, body []byte) (crawler.ParsedPage, error) {
	if strings.Contains(string(body), "broken") {
		return crawler.ParsedPage{}, errors.New("unparsable")
	}
	return crawler.ParsedPage{URL: url, Title: "T", Markdown: string(body)}, nil
}

func TestSectionsAndWriteDocument(t *testing.T) {
	t.Parallel()

	results := []crawler.FetchResult{
		{URL: "https://docs.example/a", Success: true, StatusCode: 200, Content: "# Page A\nAlpha"},
		{URL: "https://docs.example/b", Error: "disallowed by robots.txt", Kind: crawler.FailurePolicy},
		{URL: "https://docs.example/c", Success: true, StatusCode: 200, Content: "broken"},
		{URL: "https://docs.example/d", Success: true, StatusCode: 200, Content: "# Page D\nDelta"},
	}

	sections, failures := Sections(results, fakeExtractor{}, nil)
	require.Len(t, sections, 2)
	require.Len(t, failures, 2)
	assert.Equal(t, "https://docs.example/a", sections[0].URL)
	assert.Equal(t, "https://docs.example/d", sections[1].URL)
	assert.Equal(t, crawler.FailurePolicy, failures[0].Kind)
	assert.Equal(t, crawler.FailureFormat, failures[1].Kind)
	assert.Contains(t, failures[1].Error, "extract: unparsable")

	var buf bytes.Buffer
	require.NoError(t, WriteDocument(&buf, sections, Summary{
		RunID:     "run-1",
		Mode:      "crawl",
		Requested: len(results),
		Failures:  failures,
	}))
	doc := buf.String()

	assert.Contains(t, doc, "# Page A\n\n## Source\nhttps://docs.example/a\n\nAlpha\n\n---\n\n# Page D")
	assert.Less(t, strings.Index(doc, "# Page A"), strings.Index(doc, "# Page D"))
	assert.Contains(t, doc, "## Crawl Summary")
	assert.Contains(t, doc, "Pages requested")
	assert.Contains(t, doc, "https://docs.example/b (disallowed by robots.txt)")
}

func TestWriteMenuExport(t *testing.T) {
	t.Parallel()

	links := []crawler.MenuLink{
		{URL: "https://docs.example/a", Depth: 1},
		{URL: "https://docs.example/b", Depth: 1},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteMenuExport(&buf, NewMenuExport("https://docs.example/", links)))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "https://docs.example/", decoded["start_url"])
	assert.EqualValues(t, 2, decoded["total_links_found"])
	assert.Len(t, decoded["menu_links"], 2)
}
