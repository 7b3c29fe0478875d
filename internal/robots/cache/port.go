// Package cache holds the per-host robots.txt lookup cache: one raw
// robots.txt body keyed by host, consulted before internal/robots/fetcher.go
// issues a network request, so a crawl job touching hundreds of pages on
// the same domain fetches robots.txt exactly once. Unrelated to the
// Response Cache (§4.L), which caches rendered scrape results, not
// policy documents.
package cache

// Cache is the port the robots fetcher depends on; swap in a different
// adapter (e.g. Redis-backed, for sharing across worker processes)
// without touching fetcher.go.
type Cache interface {
	// Get returns the cached value for key and true, or ("", false)
	// on a miss. Read-only: must not mutate cache state.
	Get(key string) (string, bool)

	// Put stores value under key, overwriting any prior entry.
	Put(key string, value string)
}
