package crawler

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// NormalizeURL standardizes a URL so equivalent spellings compare equal.
// It lowercases the scheme and host, removes default ports, sorts query
// parameters, drops the fragment, and trims a trailing slash from non-root paths.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" && strings.HasSuffix(u.Host, ":80") {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" && strings.HasSuffix(u.Host, ":443") {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""
	u.RawFragment = ""

	if u.RawQuery != "" {
		u.RawQuery = u.Query().Encode()
	}

	if len(u.Path) > 1 {
		u.Path = strings.TrimRight(u.Path, "/")
		if u.RawPath != "" {
			u.RawPath = strings.TrimRight(u.RawPath, "/")
		}
		if u.Path == "" {
			u.Path = "/"
			u.RawPath = ""
		}
	}

	return u.String(), nil
}

func stripFragment(rawURL string) string {
	if i := strings.IndexByte(rawURL, '#'); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}

// CompilePatterns compiles exclusion patterns, rejecting invalid expressions.
func CompilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		if strings.TrimSpace(p) == "" {
			continue
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid exclusion pattern %q: %v: %w", p, err, ErrConfig)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

// Excluded reports whether any pattern matches rawURL.
func Excluded(rawURL string, patterns []*regexp.Regexp) bool {
	for _, re := range patterns {
		if re.MatchString(rawURL) {
			return true
		}
	}
	return false
}

// IsFetchable reports whether rawURL is an absolute http(s) URL.
func IsFetchable(rawURL string) bool {
	_, err := parseFetchURL(rawURL)
	return err == nil
}

// TargetFilter describes how candidate URLs are screened before a batch.
type TargetFilter struct {
	// SeedURL scopes SameHostOnly; empty disables the host check.
	SeedURL      string
	SameHostOnly bool
	Exclusions   []*regexp.Regexp
}

// FilterTargets drops unparsable, excluded, off-host, and duplicate URLs
// while keeping first-seen order. Duplicates are detected on the normalized
// form, but the kept URL is the candidate as written minus its fragment.
func FilterTargets(candidates []string, filter TargetFilter) []string {
	var seedHost string
	if filter.SameHostOnly && filter.SeedURL != "" {
		if seed, err := url.Parse(filter.SeedURL); err == nil {
			seedHost = strings.ToLower(seed.Hostname())
		}
	}

	seen := make(map[string]struct{}, len(candidates))
	out := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		target := stripFragment(strings.TrimSpace(candidate))
		key, err := NormalizeURL(target)
		if err != nil {
			continue
		}
		parsed, err := parseFetchURL(target)
		if err != nil {
			continue
		}
		if seedHost != "" && !strings.EqualFold(parsed.Hostname(), seedHost) {
			continue
		}
		if Excluded(target, filter.Exclusions) {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, target)
	}
	return out
}

// URLKey returns the normalized form of rawURL for duplicate detection, or
// rawURL itself when it cannot be parsed.
func URLKey(rawURL string) string {
	key, err := NormalizeURL(stripFragment(strings.TrimSpace(rawURL)))
	if err != nil {
		return rawURL
	}
	return key
}
