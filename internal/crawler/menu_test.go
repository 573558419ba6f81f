package crawler

import (
	"context"
	"net/url"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seedPage = `<html><body>
<nav class="sidebar">
  <a href="/docs/intro">Intro</a>
  <a href="/docs/guide/">Guide</a>
  <a href="getting-started">Getting   started</a>
  <a href="#section">Anchor only</a>
  <a href="/docs/intro#install">Intro again</a>
  <a href="https://elsewhere.example/docs">External</a>
  <a href="mailto:docs@docs.example">Mail</a>
  <a href="javascript:void(0)">Toggle</a>
  <a href="/blog/post">Blog</a>
</nav>
<main><p>Welcome</p></main>
</body></html>`

const guidePage = `<html><body>
<aside><a href="/docs/guide/advanced">Advanced</a><a href="/docs/intro">Intro</a></aside>
</body></html>`

const advancedPage = `<html><body>
<nav><a href="/docs/guide/advanced/deep">Deep</a></nav>
</body></html>`

func menuSite() *stubSite {
	return newStubSite(map[string]stubPage{
		"https://docs.example/docs/":                {body: seedPage},
		"https://docs.example/docs/intro":           {body: "<html><body><p>intro</p></body></html>"},
		"https://docs.example/docs/guide/":          {body: guidePage},
		"https://docs.example/docs/getting-started": {body: "<html></html>"},
		"https://docs.example/blog/post":            {body: "<html></html>"},
		"https://docs.example/docs/guide/advanced":  {body: advancedPage},
	})
}

func linkURLs(links []MenuLink) []string {
	out := make([]string, 0, len(links))
	for _, l := range links {
		out = append(out, l.URL)
	}
	return out
}

func TestMenuResolverCollectsSameHostLinks(t *testing.T) {
	t.Parallel()

	menus := newTestSession(t, testOptions(), menuSite()).Menus()
	links, err := menus.Resolve(context.Background(), "https://docs.example/docs/", 1)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"https://docs.example/blog/post",
		"https://docs.example/docs",
		"https://docs.example/docs/getting-started",
		"https://docs.example/docs/guide",
		"https://docs.example/docs/intro",
	}, linkURLs(links))

	byURL := map[string]MenuLink{}
	for _, l := range links {
		byURL[l.URL] = l
	}
	assert.Equal(t, 0, byURL["https://docs.example/docs"].Depth)
	assert.Equal(t, "Getting started", byURL["https://docs.example/docs/getting-started"].Text)
	assert.Equal(t, "Intro", byURL["https://docs.example/docs/intro"].Text)
	assert.Equal(t, 1, byURL["https://docs.example/docs/guide"].Depth)
}

func TestMenuResolverNeverLeavesSeedHost(t *testing.T) {
	t.Parallel()

	menus := newTestSession(t, testOptions(), menuSite()).Menus()
	links, err := menus.Resolve(context.Background(), "https://docs.example/docs/", 3)
	require.NoError(t, err)

	for _, l := range links {
		parsed, err := url.Parse(l.URL)
		require.NoError(t, err)
		assert.Equal(t, "docs.example", parsed.Host, l.URL)
		assert.Empty(t, parsed.Fragment, l.URL)
	}
}

func TestMenuResolverDepthIsAHardCeiling(t *testing.T) {
	t.Parallel()

	site := menuSite()
	menus := newTestSession(t, testOptions(), site).Menus()

	one, err := menus.Resolve(context.Background(), "https://docs.example/docs/", 1)
	require.NoError(t, err)
	assert.NotContains(t, linkURLs(one), "https://docs.example/docs/guide/advanced")
	assert.Zero(t, site.callCount("https://docs.example/docs/guide/"))

	two, err := menus.Resolve(context.Background(), "https://docs.example/docs/", 2)
	require.NoError(t, err)
	assert.Contains(t, linkURLs(two), "https://docs.example/docs/guide/advanced")
	assert.NotContains(t, linkURLs(two), "https://docs.example/docs/guide/advanced/deep")

	three, err := menus.Resolve(context.Background(), "https://docs.example/docs/", 3)
	require.NoError(t, err)
	assert.Contains(t, linkURLs(three), "https://docs.example/docs/guide/advanced/deep")

	zero, err := menus.Resolve(context.Background(), "https://docs.example/docs/", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://docs.example/docs"}, linkURLs(zero))
}

func TestMenuResolverAppliesExclusionsAndCustomSelectors(t *testing.T) {
	t.Parallel()

	opts := testOptions()
	opts.Exclusions = []*regexp.Regexp{regexp.MustCompile(`/blog/`)}
	opts.MenuSelectors = []string{"nav a", "[[invalid"}
	menus := newTestSession(t, opts, menuSite()).Menus()

	links, err := menus.Resolve(context.Background(), "https://docs.example/docs/", 1)
	require.NoError(t, err)
	assert.NotContains(t, linkURLs(links), "https://docs.example/blog/post")
	assert.Contains(t, linkURLs(links), "https://docs.example/docs/intro")
}

func TestMenuResolverMatchesNonAnchorItems(t *testing.T) {
	t.Parallel()

	const treePage = `<html><body><div class="docs-sidebar"><ul role="tree">
  <li role="treeitem"><a href="/docs/config">Configuration</a></li>
  <li role="treeitem">Section heading</li>
  <div onclick="open('/docs/api')"><a href="/docs/api">API</a></div>
  <span role="menuitem"><a href="https://elsewhere.example/x">Elsewhere</a></span>
</ul></div></body></html>`
	site := newStubSite(map[string]stubPage{
		"https://docs.example/docs/": {body: treePage},
	})
	opts := testOptions()
	opts.MenuSelectors = []string{
		"[class*='sidebar'] [role='treeitem']",
		"[class*='sidebar'] [role='menuitem']",
		"[class*='sidebar'] [onclick]",
	}
	menus := newTestSession(t, opts, site).Menus()

	links, err := menus.Resolve(context.Background(), "https://docs.example/docs/", 1)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"https://docs.example/docs",
		"https://docs.example/docs/config",
		"https://docs.example/docs/api",
	}, linkURLs(links))
	for _, l := range links {
		if l.URL == "https://docs.example/docs/config" {
			assert.Equal(t, "Configuration", l.Text)
		}
	}

	defaults := DefaultMenuSelectors()
	for _, sel := range opts.MenuSelectors {
		assert.Contains(t, defaults, sel)
	}
}

func TestMenuResolverSeedFailureIsAnError(t *testing.T) {
	t.Parallel()

	menus := newTestSession(t, testOptions(), newStubSite(nil)).Menus()

	_, err := menus.Resolve(context.Background(), "https://docs.example/missing", 2)
	assert.ErrorIs(t, err, ErrNetwork)

	_, err = menus.Resolve(context.Background(), "not-a-url", 2)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestResolveMenuHref(t *testing.T) {
	t.Parallel()

	base, err := url.Parse("https://docs.example/docs/guide/")
	require.NoError(t, err)

	testCases := []struct {
		href  string
		fetch string
		want  string
		keep  bool
	}{
		{"../intro", "https://docs.example/docs/intro", "https://docs.example/docs/intro", true},
		{"./setup/#top", "https://docs.example/docs/guide/setup/", "https://docs.example/docs/guide/setup", true},
		{"HTTPS://DOCS.EXAMPLE:443/Case", "https://DOCS.EXAMPLE:443/Case", "https://docs.example/Case", true},
		{"#top", "", "", false},
		{"", "", "", false},
		{"//cdn.example/lib.js", "", "", false},
		{"tel:123", "", "", false},
	}
	for _, tc := range testCases {
		fetch, got, keep := resolveMenuHref(base, tc.href, "docs.example")
		assert.Equal(t, tc.keep, keep, tc.href)
		assert.Equal(t, tc.fetch, fetch, tc.href)
		assert.Equal(t, tc.want, got, tc.href)
	}
}
