package detector

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/docs-crawler/internal/crawler"
)

func TestHeuristic_ShouldPromote_EmptyBody(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	require.True(t, h.ShouldPromote(crawler.PageResponse{StatusCode: 200}))
}

func TestHeuristic_ShouldPromote_SPAMarkers(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	for _, body := range []string{
		`<div id="__next"></div>`,
		`<div id="__nuxt"></div>`,
		`<app-root ng-version="17.0.0"></app-root>`,
		`<NOSCRIPT>You need to enable JavaScript to run this app.</NOSCRIPT>`,
	} {
		require.True(t, h.ShouldPromote(crawler.PageResponse{StatusCode: 200, Body: []byte(body)}), body)
	}
}

func TestHeuristic_ShouldPromote_ScriptHeavyShell(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(4096)
	body := "<html><body><script>" + strings.Repeat("x", 400) + "</script><p>hi</p></body></html>"
	require.True(t, h.ShouldPromote(crawler.PageResponse{StatusCode: 200, Body: []byte(body)}))
}

func TestHeuristic_ShouldPromote_StaticDocsPage(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(0)
	require.Equal(t, 2048, h.BodyLengthThreshold)
	body := "<html><body><main><h1>Install</h1><p>" + strings.Repeat("text ", 100) + "</p></main></body></html>"
	require.False(t, h.ShouldPromote(crawler.PageResponse{StatusCode: 200, Body: []byte(body)}))
}

func TestHeuristic_ShouldPromote_SkipsErrorsAndRendered(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	require.False(t, h.ShouldPromote(crawler.PageResponse{StatusCode: 404}))
	require.False(t, h.ShouldPromote(crawler.PageResponse{StatusCode: 200, Rendered: true}))
}

func TestScriptDensityHighUnclosedTag(t *testing.T) {
	t.Parallel()

	require.True(t, scriptDensityHigh([]byte("<p>a</p><script>var x = 1;")))
	require.False(t, scriptDensityHigh([]byte("<p>plain</p>")))
	require.False(t, scriptDensityHigh(nil))
}
