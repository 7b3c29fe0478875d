// Package urlutil provides pure, stateless URL helpers shared by the
// scheduler, frontier and asset resolver: canonicalization, relative-link
// resolution, host filtering, and the validity/same-domain predicates the
// crawl scope checks are built from.
package urlutil

import (
	"net/url"
	"strings"
)

// Canonicalize applies a deterministic normalization to a URL, producing a
// canonical form used for both deduplication and display.
//
// The normalization follows these rules:
//   - Scheme and host are lowercased
//   - Path is cleaned (trailing slashes removed, except for root "/")
//   - Fragments are always removed
//   - Default ports are omitted (e.g., :80 for http, :443 for https)
//   - Query parameters are preserved, UNLESS ignoreQueryParams is true, in
//     which case they are stripped (two URLs differing only by tracking
//     params then canonicalize to the same page)
//
// Properties:
//   - Pure: no state, no memory
//   - Deterministic: same input always produces same output
//   - Idempotent: Canonicalize(Canonicalize(u, q), q) == Canonicalize(u, q)
//   - Context-free: does not depend on crawl history
func Canonicalize(sourceUrl url.URL, ignoreQueryParams bool) url.URL {
	// Create a copy to avoid mutating the original
	canonical := sourceUrl

	// Lowercase scheme and host
	canonical.Scheme = lowerASCII(canonical.Scheme)
	canonical.Host = lowerASCII(canonical.Host)

	// Remove default port if present
	if host, port := canonical.Hostname(), canonical.Port(); port != "" {
		if (canonical.Scheme == "http" && port == "80") ||
			(canonical.Scheme == "https" && port == "443") {
			canonical.Host = host
		}
	}

	// Clean the path: remove trailing slashes (except root)
	if len(canonical.Path) > 1 {
		canonical.Path = stripTrailingSlash(canonical.Path)
	}

	// Remove fragment (anchor)
	canonical.Fragment = ""
	canonical.RawFragment = ""

	if ignoreQueryParams {
		canonical.RawQuery = ""
		canonical.ForceQuery = false
	}

	return canonical
}

// Resolve converts a possibly-relative URL discovered on a page into an
// absolute URL, filling in the scheme/host of the page it was found on.
// Absolute links (ones that already carry their own scheme/host, e.g. a
// cross-domain anchor) are returned unchanged.
func Resolve(discovered url.URL, scheme string, host string) url.URL {
	resolved := discovered
	if resolved.Scheme == "" {
		resolved.Scheme = scheme
	}
	if resolved.Host == "" {
		resolved.Host = host
	}
	return resolved
}

// FilterByHost keeps only the URLs whose host matches host, case-insensitively.
func FilterByHost(host string, urls []url.URL) []url.URL {
	filtered := make([]url.URL, 0, len(urls))
	for _, u := range urls {
		if strings.EqualFold(u.Host, host) {
			filtered = append(filtered, u)
		}
	}
	return filtered
}

// IsValid reports whether u is a URL the crawler could ever fetch: it must
// carry an http(s) scheme and a non-empty host.
//
// Invariant: IsValid(u) implies IsValid(Canonicalize(u, ignoreQueryParams))
// for any ignoreQueryParams value, since canonicalization never touches
// scheme presence or host presence, only their spelling.
func IsValid(u url.URL) bool {
	scheme := lowerASCII(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return false
	}
	return u.Hostname() != ""
}

// SameDomain reports whether a and b belong to the same crawl scope.
// With allowSubdomains false, hosts must match exactly (case-insensitively,
// ignoring port). With allowSubdomains true, b also matches when it is a
// subdomain of a (e.g. a=example.com, b=docs.example.com).
//
// Invariant: SameDomain(a, a, allowSubdomains) is always true.
func SameDomain(a, b url.URL, allowSubdomains bool) bool {
	hostA := lowerASCII(a.Hostname())
	hostB := lowerASCII(b.Hostname())
	if hostA == "" || hostB == "" {
		return false
	}
	if hostA == hostB {
		return true
	}
	if !allowSubdomains {
		return false
	}
	return strings.HasSuffix(hostB, "."+hostA)
}

// lowerASCII converts ASCII characters to lowercase without allocating.
// This is faster than strings.ToLower for ASCII-only strings.
func lowerASCII(s string) string {
	var needsLower bool
	for i := 0; i < len(s); i++ {
		if s[i] >= 'A' && s[i] <= 'Z' {
			needsLower = true
			break
		}
	}
	if !needsLower {
		return s
	}
	b := make([]byte, len(s))
	copy(b, s)
	for i := 0; i < len(b); i++ {
		if b[i] >= 'A' && b[i] <= 'Z' {
			b[i] += 'a' - 'A'
		}
	}
	return string(b)
}

// stripTrailingSlash removes trailing slashes from a path.
func stripTrailingSlash(path string) string {
	for len(path) > 1 && path[len(path)-1] == '/' {
		path = path[:len(path)-1]
	}
	return path
}
