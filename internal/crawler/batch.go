package crawler

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// BatchCrawler fetches a list of URLs concurrently and returns results in
// input order.
type BatchCrawler struct {
	fetcher URLFetcher
	limit   int
	logger  *zap.Logger
}

// NewBatchCrawler builds a crawler that runs at most limit fetch tasks at once.
// The global in-flight cap is still enforced by the fetcher's throttle.
func NewBatchCrawler(fetcher URLFetcher, limit int, logger *zap.Logger) *BatchCrawler {
	if limit <= 0 {
		limit = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchCrawler{fetcher: fetcher, limit: limit, logger: logger}
}

// CrawlAll returns exactly one result per input URL, result i for urls[i].
// A failed URL never cancels its siblings.
func (b *BatchCrawler) CrawlAll(ctx context.Context, urls []string) []FetchResult {
	results := make([]FetchResult, len(urls))
	if len(urls) == 0 {
		return results
	}

	var g errgroup.Group
	g.SetLimit(b.limit)
	for i, u := range urls {
		g.Go(func() error {
			results[i] = b.fetcher.Fetch(ctx, u)
			return nil
		})
	}
	_ = g.Wait()

	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
		}
	}
	b.logger.Info("batch finished",
		zap.Int("urls", len(urls)),
		zap.Int("succeeded", succeeded),
		zap.Int("failed", len(urls)-succeeded),
	)
	return results
}
