package app

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/docs-crawler/internal/crawler"
	"github.com/JakeFAU/docs-crawler/internal/metrics"
	"github.com/JakeFAU/docs-crawler/internal/render"
	"github.com/JakeFAU/docs-crawler/internal/storage"
)

// Run statuses.
const (
	StatusCompleted = "completed"
	StatusPartial   = "partial"
	StatusFailed    = "failed"
)

// EventRunCompleted is the Pub/Sub "event" attribute of run notifications.
const EventRunCompleted = "crawl.run.completed"

const sinkTimeout = 30 * time.Second

// Report summarises a finished run. Results carry no page bodies; the
// rendered Markdown is in Document.
type Report struct {
	RunID       string                `json:"run_id,omitempty"`
	Mode        string                `json:"mode"`
	Source      string                `json:"source"`
	Status      string                `json:"status"`
	Requested   int                   `json:"requested"`
	Succeeded   int                   `json:"succeeded"`
	Failed      int                   `json:"failed"`
	Results     []crawler.FetchResult `json:"results"`
	MenuLinks   []crawler.MenuLink    `json:"menu_links,omitempty"`
	Document    string                `json:"document,omitempty"`
	DocumentURI string                `json:"document_uri,omitempty"`
	ExportURI   string                `json:"export_uri,omitempty"`
	SinkErrors  []string              `json:"sink_errors,omitempty"`
	StartedAt   time.Time             `json:"started_at"`
	FinishedAt  time.Time             `json:"finished_at"`
}

// RunCompleted is the payload published when a run ends.
type RunCompleted struct {
	RunID       string    `json:"run_id,omitempty"`
	Mode        string    `json:"mode"`
	Source      string    `json:"source"`
	Status      string    `json:"status"`
	Requested   int       `json:"requested"`
	Succeeded   int       `json:"succeeded"`
	Failed      int       `json:"failed"`
	DocumentURI string    `json:"document_uri,omitempty"`
	ExportURI   string    `json:"export_uri,omitempty"`
	FinishedAt  time.Time `json:"finished_at"`
}

func (s *Service) finish(ctx context.Context, r *run, results []crawler.FetchResult, links []crawler.MenuLink) (*Report, error) {
	logger := r.session.Logger()
	finished := s.deps.Now()

	sections, failures := render.Sections(results, s.deps.Extractor, logger)
	rep := &Report{
		RunID:      r.id,
		Mode:       r.mode,
		Source:     r.source,
		Requested:  len(results),
		Succeeded:  len(sections),
		Failed:     len(failures),
		Results:    withoutContent(results),
		MenuLinks:  links,
		StartedAt:  r.started,
		FinishedAt: finished,
	}
	rep.Status = runStatus(rep)

	// Sinks still run when the caller's context has been canceled so a
	// partial crawl is not lost.
	sinkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
	defer cancel()

	if len(results) > 0 {
		var buf bytes.Buffer
		err := render.WriteDocument(&buf, sections, render.Summary{
			RunID:       r.id,
			Mode:        r.mode,
			Source:      r.source,
			Requested:   len(results),
			Failures:    failures,
			GeneratedAt: finished,
		})
		if err != nil {
			return nil, fmt.Errorf("render document: %w", err)
		}
		rep.Document = buf.String()
		name := render.FileName(render.DocumentPrefix(results), finished)
		rep.DocumentURI = s.put(sinkCtx, rep, name, storage.MarkdownContentType, buf.Bytes())
	}

	if r.mode == ModeMenu {
		var buf bytes.Buffer
		if err := render.WriteMenuExport(&buf, render.NewMenuExport(r.source, links)); err != nil {
			return nil, fmt.Errorf("render menu export: %w", err)
		}
		name := render.FilenamePrefix(r.source) + "_menu_links_" + finished.Format("20060102_150405") + ".json"
		rep.ExportURI = s.put(sinkCtx, rep, name, storage.JSONContentType, buf.Bytes())
	}

	if s.deps.Results != nil && len(results) > 0 {
		if err := s.deps.Results.SaveResults(sinkCtx, r.id, finished, results); err != nil {
			s.sinkFailed(logger, rep, "results", err)
		}
	}

	if s.deps.Publisher != nil {
		attrs := map[string]string{"event": EventRunCompleted, "mode": r.mode}
		if _, err := s.deps.Publisher.Publish(sinkCtx, attrs, rep.completedEvent()); err != nil {
			s.sinkFailed(logger, rep, "publish", err)
		}
	}

	metrics.ObserveRun(r.mode, rep.Status)
	logger.Info("crawl run finished",
		zap.String("status", rep.Status),
		zap.Int("requested", rep.Requested),
		zap.Int("succeeded", rep.Succeeded),
		zap.Int("failed", rep.Failed),
		zap.Int("menu_links", len(links)),
		zap.String("document_uri", rep.DocumentURI),
		zap.Duration("elapsed", finished.Sub(r.started)),
	)
	return rep, nil
}

func (s *Service) put(ctx context.Context, rep *Report, name, contentType string, data []byte) string {
	uri, err := s.deps.Blobs.PutObject(ctx, name, contentType, bytes.NewReader(data))
	if err != nil {
		s.sinkFailed(s.logger, rep, "blob "+name, err)
		return ""
	}
	return uri
}

func (s *Service) sinkFailed(logger *zap.Logger, rep *Report, sink string, err error) {
	logger.Warn("sink failed", zap.String("sink", sink), zap.Error(err))
	rep.SinkErrors = append(rep.SinkErrors, fmt.Sprintf("%s: %v", sink, err))
}

func (r *Report) completedEvent() RunCompleted {
	return RunCompleted{
		RunID:       r.RunID,
		Mode:        r.Mode,
		Source:      r.Source,
		Status:      r.Status,
		Requested:   r.Requested,
		Succeeded:   r.Succeeded,
		Failed:      r.Failed,
		DocumentURI: r.DocumentURI,
		ExportURI:   r.ExportURI,
		FinishedAt:  r.FinishedAt,
	}
}

func runStatus(r *Report) string {
	switch {
	case r.Requested == 0 || r.Failed == 0:
		return StatusCompleted
	case r.Succeeded == 0:
		return StatusFailed
	default:
		return StatusPartial
	}
}

func withoutContent(results []crawler.FetchResult) []crawler.FetchResult {
	out := make([]crawler.FetchResult, len(results))
	for i, r := range results {
		r.Content = ""
		out[i] = r
	}
	return out
}
