// Package cache is the fingerprint-keyed response cache (§4.L): a
// thin layer over the Job Store's scrape_cache table. Fingerprinting uses
// pkg/hashutil's blake3 branch over the normalized URL only; formats and
// other request options are not part of the key, so requests for the
// same page with different options share one entry. blake3 is used since blake3
// is already wired into the teacher's content-hash path and blake3's
// speed matters here where every scrape does a cache lookup first.
package cache

import (
	"net/url"
	"time"

	"github.com/webharvest/webharvest/internal/jobstore"
	"github.com/webharvest/webharvest/pkg/hashutil"
	"github.com/webharvest/webharvest/pkg/urlutil"
)

// Cache wraps a jobstore.Store's scrape_cache table.
type Cache struct {
	store *jobstore.Store
}

func New(store *jobstore.Store) Cache {
	return Cache{store: store}
}

// Fingerprint computes the cache key for a scrape request: the
// canonicalized URL hashed with blake3. ignoreQueryParams mirrors the
// request's own normalization setting so that cache keys and crawl
// dedup keys agree on what counts as "the same page".
func Fingerprint(target url.URL, ignoreQueryParams bool) (string, error) {
	canonical := urlutil.Canonicalize(target, ignoreQueryParams)
	return hashutil.HashBytes([]byte(canonical.String()), hashutil.HashAlgoBLAKE3)
}

// Lookup returns a cached payload for target if a non-expired entry
// exists. The second return reports whether the warning
// `served from cache` annotation should be attached (§4.L).
func (c Cache) Lookup(target url.URL, ignoreQueryParams bool) (payload []byte, hit bool, err error) {
	if c.store == nil {
		return nil, false, nil
	}
	fp, err := Fingerprint(target, ignoreQueryParams)
	if err != nil {
		return nil, false, err
	}
	entry, ok, err := c.store.GetCacheEntry(fp)
	if err != nil || !ok {
		return nil, false, err
	}
	return entry.Payload, true, nil
}

// Store inserts or replaces the cache entry for target. A maxAge of
// zero or less disables the write: Store then stores nothing and
// returns nil. Lookup does not take maxAge, so skipping the read for
// maxAge = 0 is left to the caller.
func (c Cache) Store(target url.URL, ignoreQueryParams bool, payload []byte, contentHash string, maxAge time.Duration) error {
	if c.store == nil || maxAge <= 0 {
		return nil
	}
	fp, err := Fingerprint(target, ignoreQueryParams)
	if err != nil {
		return err
	}
	canonical := urlutil.Canonicalize(target, ignoreQueryParams)
	return c.store.PutCacheEntry(jobstore.CacheEntry{
		Fingerprint:   fp,
		URL:           target.String(),
		NormalizedURL: canonical.String(),
		Payload:       payload,
		ContentHash:   contentHash,
		ExpiresAt:     time.Now().Add(maxAge),
	})
}
