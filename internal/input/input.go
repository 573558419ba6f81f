// Package input reads URL lists for batch crawls.
package input

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/docs-crawler/internal/crawler"
)

// LoadURLs reads a URL list from path. JSON files may hold an array of
// strings or an object with a "menu_links" or "urls" array, so menu exports
// can be fed straight back in. Anything else is read as one URL per line,
// skipping blank lines and lines starting with '#'.
func LoadURLs(path string) ([]string, error) {
	// #nosec G304 -- the path is supplied by the operator on the command line.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read url list: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return ParseJSON(data)
	}
	return ParseLines(bytes.NewReader(data))
}

// ParseJSON decodes a JSON URL list.
func ParseJSON(data []byte) ([]string, error) {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		return clean(list), nil
	}

	var obj struct {
		MenuLinks []string `json:"menu_links"`
		URLs      []string `json:"urls"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("decode url list: %v: %w", err, crawler.ErrFormat)
	}
	switch {
	case obj.MenuLinks != nil:
		return clean(obj.MenuLinks), nil
	case obj.URLs != nil:
		return clean(obj.URLs), nil
	default:
		return nil, fmt.Errorf("url list object needs a menu_links or urls array: %w", crawler.ErrFormat)
	}
}

// ParseLines reads one URL per line.
func ParseLines(r io.Reader) ([]string, error) {
	var urls []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan url list: %w", err)
	}
	return urls, nil
}

func clean(in []string) []string {
	out := make([]string, 0, len(in))
	for _, u := range in {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}
