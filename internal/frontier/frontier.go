package frontier

import (
	"sync"

	"github.com/webharvest/webharvest/internal/config"
	"github.com/webharvest/webharvest/pkg/urlutil"
)

/*
Frontier Responsibilities
- Maintain BFS ordering
- Deduplicate URLs
- Track crawl depth
- Prevent infinite traversal
- Knows nothing about:
	- fetching
	- extraction
	- markdown
	- storage

It is a data structure + policy module, not a pipeline executor.

BFS is enforced by keeping one FIFO queue per depth level rather than a
single shared queue: Dequeue always drains the shallowest non-empty
depth before a deeper one becomes reachable, so a crawl can never race
ahead into depth N+1 while depth N still has pending work.
*/

// Frontier is the sole holder of admitted crawl state. It does not decide
// whether a candidate is *allowed* to be crawled (robots, scheduling
// policy); it only enforces structural admission rules: depth bounds, page
// budget, and URL-level deduplication.
type Frontier struct {
	mu sync.Mutex

	cfg config.Config

	queuesByDepth map[int]*FIFOQueue[CrawlToken]
	minDepth      int // -1 when no depth has pending tokens

	visited Set[string]
}

// NewCrawlFrontier constructs an empty Frontier. Callers must call Init
// before Submit/Dequeue are meaningful (Init establishes the depth/page
// limits from config).
func NewCrawlFrontier() Frontier {
	return Frontier{
		queuesByDepth: make(map[int]*FIFOQueue[CrawlToken]),
		minDepth:      -1,
		visited:       NewSet[string](),
	}
}

// Init (re)configures the frontier from cfg. It does not clear previously
// submitted state; it is expected to be called once, before any Submit.
func (f *Frontier) Init(cfg config.Config) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cfg = cfg
}

// Submit admits a candidate into the frontier, enforcing MaxDepth, MaxPages
// and URL-level deduplication. Candidates that fail admission are silently
// dropped: Submit has no error channel because non-admission is routine,
// not exceptional.
func (f *Frontier) Submit(candidate CrawlAdmissionCandidate) {
	target := candidate.TargetURL()
	if !urlutil.IsValid(target) {
		return
	}

	depth := candidate.DiscoveryMetadata().Depth()

	f.mu.Lock()
	defer f.mu.Unlock()

	if maxDepth := f.cfg.MaxDepth(); maxDepth > 0 && depth > maxDepth {
		return
	}
	if maxPages := f.cfg.MaxPages(); maxPages > 0 && f.visited.Size() >= maxPages {
		return
	}

	canonicalKey := urlutil.Canonicalize(target, true).String()
	if f.visited.Contains(canonicalKey) {
		return
	}
	f.visited.Add(canonicalKey)

	queue, ok := f.queuesByDepth[depth]
	if !ok {
		queue = NewFIFOQueue[CrawlToken]()
		f.queuesByDepth[depth] = queue
	}
	queue.Enqueue(NewCrawlToken(target, depth))

	if f.minDepth == -1 || depth < f.minDepth {
		f.minDepth = depth
	}
}

// Dequeue returns the next token in strict BFS order: the shallowest depth
// with a pending token always wins. It returns false once every known
// depth is exhausted.
func (f *Frontier) Dequeue() (CrawlToken, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.advanceMinDepthLocked()
	if f.minDepth == -1 {
		return CrawlToken{}, false
	}

	queue := f.queuesByDepth[f.minDepth]
	token, ok := queue.Dequeue()
	if !ok {
		return CrawlToken{}, false
	}

	f.advanceMinDepthLocked()
	return token, true
}

// advanceMinDepthLocked moves minDepth forward past any depth whose queue
// is nil or empty. Must be called with mu held.
func (f *Frontier) advanceMinDepthLocked() {
	if f.minDepth == -1 {
		return
	}
	for {
		queue, ok := f.queuesByDepth[f.minDepth]
		if ok && queue != nil && queue.Size() > 0 {
			return
		}
		f.minDepth = f.nextCandidateDepthLocked(f.minDepth + 1)
		if f.minDepth == -1 {
			return
		}
	}
}

// nextCandidateDepthLocked returns the smallest depth >= from that has a
// non-empty queue, or -1 if none exists.
func (f *Frontier) nextCandidateDepthLocked(from int) int {
	best := -1
	for depth, queue := range f.queuesByDepth {
		if depth < from || queue == nil || queue.Size() == 0 {
			continue
		}
		if best == -1 || depth < best {
			best = depth
		}
	}
	return best
}

// IsDepthExhausted reports whether depth has no pending tokens. Negative
// depths are always exhausted, since they can never hold real tokens.
func (f *Frontier) IsDepthExhausted(depth int) bool {
	if depth < 0 {
		return true
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	queue, ok := f.queuesByDepth[depth]
	return !ok || queue == nil || queue.Size() == 0
}

// CurrentMinDepth returns the shallowest depth with a pending token, or -1
// if the frontier is empty.
func (f *Frontier) CurrentMinDepth() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.advanceMinDepthLocked()
	return f.minDepth
}

// VisitedCount returns the number of unique canonical URLs ever admitted.
// It is append-only: dequeuing does not shrink it.
func (f *Frontier) VisitedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.visited.Size()
}
