// Package crawler implements the politeness-aware fetch engine used by the
// documentation crawler: per-host throttling, robots.txt enforcement, bounded
// batch fetching, and URL discovery from sitemaps and navigation menus.
//
// All mutable crawl state lives in a Session so independent crawls never share
// rate-limit timestamps, robots caches, or visited sets.
package crawler
