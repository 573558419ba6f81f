package crawler

import "context"

// PageFetcher is the page-fetch primitive. Implementations return an error
// only when no HTTP response was obtained; non-2xx statuses are responses.
type PageFetcher interface {
	FetchPage(ctx context.Context, req PageRequest) (PageResponse, error)
}

// URLFetcher fetches one URL and reports the outcome as data.
type URLFetcher interface {
	Fetch(ctx context.Context, rawURL string) FetchResult
}

// ContentExtractor turns a fetched body into structured page data.
type ContentExtractor interface {
	Extract(url string, body []byte) (ParsedPage, error)
}

// PageFetcherFunc adapts a function to PageFetcher.
type PageFetcherFunc func(ctx context.Context, req PageRequest) (PageResponse, error)

// FetchPage implements PageFetcher.
func (f PageFetcherFunc) FetchPage(ctx context.Context, req PageRequest) (PageResponse, error) {
	return f(ctx, req)
}
