// Package storage defines the sinks a finished crawl is persisted to.
package storage

import (
	"context"
	"io"
	"time"

	"github.com/JakeFAU/docs-crawler/internal/crawler"
)

// MarkdownContentType is used for assembled documents.
const MarkdownContentType = "text/markdown; charset=utf-8"

// JSONContentType is used for menu exports.
const JSONContentType = "application/json"

// BlobStore persists generated artifacts and returns a URI for them.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// ResultStore records the per-URL outcome of a crawl run.
type ResultStore interface {
	SaveResults(ctx context.Context, runID string, recordedAt time.Time, results []crawler.FetchResult) error
}
