// Package frontier holds the crawl job's URL ordering state: the FIFO
// queue of admitted-but-not-yet-fetched URLs, the visited set that
// prevents re-fetching a page reachable via two different links, and the
// tokens/candidates that move between the scheduler and this package. It
// makes no admission decisions itself — robots.txt and scope checks
// happen upstream in the scheduler before a URL ever reaches here.
package frontier

import (
	"net/url"
	"time"
)

// CrawlToken is the frontier's answer to "what's next": this URL, at
// this depth, in this deterministic order. It carries no policy
// decisions — admission already happened before the token was minted.
type CrawlToken struct {
	url   url.URL
	depth int
}

// NewCrawlToken creates a new CrawlToken with the given URL and depth.
// This constructor is provided for testing and internal use.
func NewCrawlToken(u url.URL, depth int) CrawlToken {
	return CrawlToken{
		url:   u,
		depth: depth,
	}
}

func (c *CrawlToken) URL() url.URL {
	return c.url
}

func (c *CrawlToken) Depth() int {
	return c.depth
}

// CrawlAdmissionCandidate represents a URL that has already been
// admitted by the scheduler.
//
// Invariants:
// - Robots.txt checks have passed
// - Crawl scope and limits have been enforced
// - Frontier MUST treat this as an admitted URL
// - Frontier MUST NOT re-evaluate admission semantics
type CrawlAdmissionCandidate struct {
	// frontier MUST assume this URL is already admitted.
	targetURL url.URL

	// is it seed url or discovered during crawling?
	sourceContext SourceContext

	// additional information about the URL
	discoveryMetadata DiscoveryMetadata
}

func NewCrawlAdmissionCandidate(
	targetUrl url.URL,
	sourceContext SourceContext,
	discoveryMetadata DiscoveryMetadata,
) CrawlAdmissionCandidate {
	return CrawlAdmissionCandidate{
		targetURL:         targetUrl,
		sourceContext:     sourceContext,
		discoveryMetadata: discoveryMetadata,
	}
}

func (c *CrawlAdmissionCandidate) TargetURL() url.URL {
	return c.targetURL
}

func (c *CrawlAdmissionCandidate) SourceContext() SourceContext {
	return c.sourceContext
}

func (c *CrawlAdmissionCandidate) DiscoveryMetadata() DiscoveryMetadata {
	return c.discoveryMetadata
}

type SourceContext string

const (
	SourceSeed  = "Seed"
	SourceCrawl = "Crawl"
)

type DiscoveryMetadata struct {
	// the depth of the path relative to hostname where the url is found
	// hostname/root -> depth = 0
	// TODO: plumb delayOverride into internal/ratelimit so a single
	// discovered URL can demand wider per-domain spacing than its
	// siblings (e.g. a robots.txt Crawl-delay discovered mid-crawl).
	depth         int
	delayOverride *time.Duration
}

func NewDiscoveryMetadata(
	depth int,
	delayOverride *time.Duration,
) DiscoveryMetadata {
	return DiscoveryMetadata{
		depth:         depth,
		delayOverride: delayOverride,
	}
}

func (d DiscoveryMetadata) Depth() int {
	return d.depth
}

func (d DiscoveryMetadata) DelayOverride() *time.Duration {
	return d.delayOverride
}
