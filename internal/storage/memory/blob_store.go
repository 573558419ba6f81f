// Package memory keeps crawl artifacts and results in memory for tests and
// dry runs.
package memory

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/JakeFAU/docs-crawler/internal/crawler"
)

// BlobStore stores artifacts in memory and returns pseudo URIs.
type BlobStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewBlobStore creates a new in-memory blob store.
func NewBlobStore() *BlobStore {
	return &BlobStore{data: make(map[string][]byte)}
}

// PutObject persists the content and returns a memory:// URI.
func (s *BlobStore) PutObject(_ context.Context, path string, _ string, data io.Reader) (string, error) {
	byteData, err := io.ReadAll(data)
	if err != nil {
		return "", fmt.Errorf("failed to read data from reader: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[path] = byteData
	return "memory://" + path, nil
}

// Get returns a copy of the object stored at path.
func (s *BlobStore) Get(path string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[path]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}

// Paths lists stored object paths.
func (s *BlobStore) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.data))
	for p := range s.data {
		out = append(out, p)
	}
	return out
}

// ResultStore keeps per-run fetch results.
type ResultStore struct {
	mu   sync.RWMutex
	runs map[string][]crawler.FetchResult
}

// NewResultStore constructs a ResultStore.
func NewResultStore() *ResultStore {
	return &ResultStore{runs: make(map[string][]crawler.FetchResult)}
}

// SaveResults appends results for runID.
func (s *ResultStore) SaveResults(_ context.Context, runID string, _ time.Time, results []crawler.FetchResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[runID] = append(s.runs[runID], results...)
	return nil
}

// Results returns a copy of the results recorded for runID.
func (s *ResultStore) Results(runID string) []crawler.FetchResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]crawler.FetchResult(nil), s.runs[runID]...)
}
