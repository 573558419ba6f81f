// Package api hosts the HTTP server, middleware, and REST handlers for
// on-demand crawls. Notable routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/crawl, /v1/site, /v1/sitemap and /v1/menu run a crawl
//     synchronously and return its report.
package api
