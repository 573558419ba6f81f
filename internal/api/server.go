package api

import (
	"bufio"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/docs-crawler/internal/app"
	"github.com/JakeFAU/docs-crawler/internal/config"
	"github.com/JakeFAU/docs-crawler/internal/crawler"
	"github.com/JakeFAU/docs-crawler/internal/metrics"
)

const maxRequestBody = 1 << 20

// Crawler runs crawls on behalf of HTTP callers.
type Crawler interface {
	CrawlURLs(ctx context.Context, urls []string, ov app.Overrides) (*app.Report, error)
	CrawlSite(ctx context.Context, seed string, depth int, ov app.Overrides) (*app.Report, error)
	CrawlSitemap(ctx context.Context, baseURL, sitemapURL string, ov app.Overrides) (*app.Report, error)
	CrawlMenu(ctx context.Context, seed string, ov app.Overrides, crawlPages bool) (*app.Report, error)
}

// Server wires HTTP handlers to the crawl service.
type Server struct {
	router  chi.Router
	crawler Crawler
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(c Crawler, cfg config.ServerConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{crawler: c, logger: logger}

	timeout := time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(timeout))
	if cfg.APIKey != "" {
		r.Use(s.apiKeyMiddleware(cfg.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/crawl", s.crawlURLs)
		r.Post("/site", s.crawlSite)
		r.Post("/sitemap", s.crawlSitemap)
		r.Post("/menu", s.crawlMenu)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// crawlOptions are the per-request tuning knobs shared by every crawl route.
type crawlOptions struct {
	RateLimit         *float64 `json:"rate_limit"`
	ConcurrentLimit   *int     `json:"concurrent_limit"`
	MaxDepth          *int     `json:"max_depth"`
	ExclusionPatterns []string `json:"exclusion_patterns"`
}

type crawlRequest struct {
	crawlOptions
	URLs []string `json:"urls"`
}

type siteRequest struct {
	crawlOptions
	URL   string `json:"url"`
	Depth int    `json:"depth"`
}

type sitemapRequest struct {
	crawlOptions
	BaseURL    string `json:"base_url"`
	SitemapURL string `json:"sitemap_url"`
}

type menuRequest struct {
	crawlOptions
	BaseURL      string   `json:"base_url"`
	MenuSelector string   `json:"menu_selector"`
	Selectors    []string `json:"selectors"`
	CrawlPages   bool     `json:"crawl_pages"`
}

func (s *Server) crawlURLs(w http.ResponseWriter, r *http.Request) {
	var req crawlRequest
	ov, ok := s.decodeRequest(w, r, &req, &req.crawlOptions)
	if !ok {
		return
	}
	if len(req.URLs) == 0 {
		s.writeError(w, http.StatusBadRequest, "urls required")
		return
	}
	rep, err := s.crawler.CrawlURLs(r.Context(), req.URLs, ov)
	s.respond(w, r, rep, err)
}

func (s *Server) crawlSite(w http.ResponseWriter, r *http.Request) {
	var req siteRequest
	ov, ok := s.decodeRequest(w, r, &req, &req.crawlOptions)
	if !ok {
		return
	}
	if req.URL == "" {
		s.writeError(w, http.StatusBadRequest, "url required")
		return
	}
	if req.Depth < 0 {
		s.writeError(w, http.StatusBadRequest, "depth must be >= 0")
		return
	}
	rep, err := s.crawler.CrawlSite(r.Context(), req.URL, req.Depth, ov)
	s.respond(w, r, rep, err)
}

func (s *Server) crawlSitemap(w http.ResponseWriter, r *http.Request) {
	var req sitemapRequest
	ov, ok := s.decodeRequest(w, r, &req, &req.crawlOptions)
	if !ok {
		return
	}
	if req.BaseURL == "" && req.SitemapURL == "" {
		s.writeError(w, http.StatusBadRequest, "base_url or sitemap_url required")
		return
	}
	rep, err := s.crawler.CrawlSitemap(r.Context(), req.BaseURL, req.SitemapURL, ov)
	s.respond(w, r, rep, err)
}

func (s *Server) crawlMenu(w http.ResponseWriter, r *http.Request) {
	var req menuRequest
	ov, ok := s.decodeRequest(w, r, &req, &req.crawlOptions)
	if !ok {
		return
	}
	if req.BaseURL == "" {
		s.writeError(w, http.StatusBadRequest, "base_url required")
		return
	}
	ov.MenuSelectors = req.Selectors
	if req.MenuSelector != "" {
		ov.MenuSelectors = append([]string{req.MenuSelector}, ov.MenuSelectors...)
	}
	rep, err := s.crawler.CrawlMenu(r.Context(), req.BaseURL, ov, req.CrawlPages)
	s.respond(w, r, rep, err)
}

// decodeRequest reads the JSON body into dst and converts the shared options.
// It writes a 400 and returns false on any problem.
func (s *Server) decodeRequest(w http.ResponseWriter, r *http.Request, dst any, opts *crawlOptions) (app.Overrides, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return app.Overrides{}, false
	}
	ov, err := opts.overrides()
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return app.Overrides{}, false
	}
	return ov, true
}

func (o crawlOptions) overrides() (app.Overrides, error) {
	var ov app.Overrides
	if o.RateLimit != nil {
		if *o.RateLimit <= 0 {
			return ov, errors.New("rate_limit must be > 0")
		}
		ov.RateLimit = time.Duration(*o.RateLimit * float64(time.Second))
	}
	if o.ConcurrentLimit != nil {
		if *o.ConcurrentLimit <= 0 {
			return ov, errors.New("concurrent_limit must be > 0")
		}
		ov.ConcurrentLimit = *o.ConcurrentLimit
	}
	if o.MaxDepth != nil {
		if *o.MaxDepth < 0 {
			return ov, errors.New("max_depth must be >= 0")
		}
		ov.MaxDepth = o.MaxDepth
	}
	ov.ExclusionPatterns = o.ExclusionPatterns
	return ov, nil
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, rep *app.Report, err error) {
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			s.logger.Warn("crawl request failed",
				zap.String("path", r.URL.Path),
				zap.String("request_id", requestID(r.Context())),
				zap.Error(err),
			)
		}
		s.writeError(w, status, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, rep)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, crawler.ErrConfig):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, crawler.ErrNetwork), errors.Is(err, crawler.ErrFormat), errors.Is(err, crawler.ErrPolicy):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.String("request_id", requestID(r.Context())),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec), zap.String("path", r.URL.Path))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func (s *Server) apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	want := []byte(expected)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if subtle.ConstantTimeCompare([]byte(key), want) != 1 {
				s.writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
