// Package fetcher selects the page-fetch primitive used by crawl sessions.
package fetcher

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/docs-crawler/internal/crawler"
)

// Fetch modes accepted by Select.
const (
	ModeHTTP     = "http"
	ModeHeadless = "headless"
	ModeAuto     = "auto"
)

// Detector decides whether a plain response needs a rendered re-fetch.
type Detector interface {
	ShouldPromote(resp crawler.PageResponse) bool
}

// Promoting fetches with the probe primitive first and re-fetches through
// the renderer when the detector flags the response.
type Promoting struct {
	probe    crawler.PageFetcher
	renderer crawler.PageFetcher
	detector Detector
	logger   *zap.Logger
}

// NewPromoting wires a probe, renderer, and detector together.
func NewPromoting(probe, renderer crawler.PageFetcher, detector Detector, logger *zap.Logger) *Promoting {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Promoting{probe: probe, renderer: renderer, detector: detector, logger: logger}
}

// FetchPage implements crawler.PageFetcher. A failed render falls back to
// the probe response.
func (p *Promoting) FetchPage(ctx context.Context, req crawler.PageRequest) (crawler.PageResponse, error) {
	resp, err := p.probe.FetchPage(ctx, req)
	if err != nil {
		return crawler.PageResponse{}, err
	}
	if p.renderer == nil || p.detector == nil || !p.detector.ShouldPromote(resp) {
		return resp, nil
	}

	p.logger.Debug("promoting to headless", zap.String("url", req.URL), zap.Int("probe_bytes", len(resp.Body)))
	rendered, err := p.renderer.FetchPage(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return crawler.PageResponse{}, fmt.Errorf("headless promotion canceled: %w", ctx.Err())
		}
		p.logger.Warn("headless promotion failed, using probe response", zap.String("url", req.URL), zap.Error(err))
		return resp, nil
	}
	return rendered, nil
}

// Select returns the primitive for mode. Headless and auto modes require a
// renderer.
func Select(mode string, probe, renderer crawler.PageFetcher, detector Detector, logger *zap.Logger) (crawler.PageFetcher, error) {
	switch mode {
	case "", ModeHTTP:
		return probe, nil
	case ModeHeadless:
		if renderer == nil {
			return nil, fmt.Errorf("fetch mode %q needs a headless renderer: %w", mode, crawler.ErrConfig)
		}
		return renderer, nil
	case ModeAuto:
		if renderer == nil {
			return nil, fmt.Errorf("fetch mode %q needs a headless renderer: %w", mode, crawler.ErrConfig)
		}
		return NewPromoting(probe, renderer, detector, logger), nil
	default:
		return nil, fmt.Errorf("unknown fetch mode %q: %w", mode, crawler.ErrConfig)
	}
}
