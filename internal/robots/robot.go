package robots

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/webharvest/webharvest/internal/metadata"
	"github.com/webharvest/webharvest/internal/robots/cache"
)

/*
Responsibilities

- Fetch robots.txt per host
- Cache rules for crawl duration
- Enforce allow/disallow rules before enqueue

Robots checks occur before a URL enters the frontier.
*/

// Robot is the scheduler's view of robots.txt compliance: initialize once
// per crawl, then Decide before every admission.
type Robot interface {
	Init(userAgent string)
	InitWithCache(userAgent string, c cache.Cache)
	Decide(target url.URL) (Decision, *RobotsError)
}

// CachedRobot is the per-crawl robots.txt compliance gate. It holds a
// pointer to its mutable state so the zero value is a usable (if uninitialized)
// handle and InitWithCache/Init can be called on a value receiver.
type CachedRobot struct {
	state *robotState
}

type robotState struct {
	mu        sync.Mutex
	fetcher   *RobotsFetcher
	userAgent string
	respect   bool
	ruleSets  map[string]ruleSet
	sink      metadata.MetadataSink
}

// NewCachedRobot constructs a CachedRobot. Init or InitWithCache must be
// called before Decide is used.
func NewCachedRobot(sink metadata.MetadataSink) CachedRobot {
	if sink == nil {
		sink = metadata.NoopSink{}
	}
	return CachedRobot{
		state: &robotState{
			respect:  true,
			ruleSets: make(map[string]ruleSet),
			sink:     sink,
		},
	}
}

// Init wires a fresh in-memory cache scoped to this crawl's lifetime.
func (r CachedRobot) Init(userAgent string) {
	r.InitWithCache(userAgent, cache.NewMemoryCache())
}

// InitWithCache wires a caller-supplied robots.txt cache.
func (r CachedRobot) InitWithCache(userAgent string, c cache.Cache) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	r.state.userAgent = userAgent
	r.state.fetcher = NewRobotsFetcher(r.state.sink, userAgent, c)
}

// Respect controls whether robots.txt is consulted at all; defaults to true.
func (r CachedRobot) Respect(respect bool) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	r.state.respect = respect
}

// Decide evaluates whether target may be fetched, per §4.B: Allow wins on
// conflict, missing/unreachable robots.txt is permissive.
func (r CachedRobot) Decide(target url.URL) (Decision, *RobotsError) {
	r.state.mu.Lock()
	respect := r.state.respect
	fetcher := r.state.fetcher
	r.state.mu.Unlock()

	if !respect {
		return Decision{Url: target, Allowed: true, Reason: AllowedByRobots}, nil
	}
	if fetcher == nil {
		return Decision{}, &RobotsError{
			Message:   "robot not initialized: call Init or InitWithCache first",
			Retryable: false,
			Cause:     ErrCausePreFetchFailure,
		}
	}

	rs, err := r.ruleSetFor(context.Background(), target)
	if err != nil {
		r.state.sink.RecordError(time.Now(), "robots", "decide", mapRobotsErrorToMetadataCause(err), err.Error(), nil)
		return Decision{}, err
	}

	delay := crawlDelayValue(rs.CrawlDelay())

	if !rs.hasGroups {
		return Decision{Url: target, Allowed: true, Reason: EmptyRuleSet, CrawlDelay: delay}, nil
	}
	if !rs.matchedGroup {
		return Decision{Url: target, Allowed: true, Reason: UserAgentNotMatched, CrawlDelay: delay}, nil
	}

	allowed := rs.CanFetch(target.Path)
	reason := DisallowedByRobots
	if allowed {
		reason = AllowedByRobots
	}
	if len(rs.allowRules) == 0 && len(rs.disallowRules) == 0 {
		reason = NoMatchingRules
	}
	return Decision{Url: target, Allowed: allowed, Reason: reason, CrawlDelay: delay}, nil
}

func crawlDelayValue(d *time.Duration) time.Duration {
	if d == nil {
		return 0
	}
	return *d
}

func (r CachedRobot) ruleSetFor(ctx context.Context, target url.URL) (ruleSet, *RobotsError) {
	r.state.mu.Lock()
	if rs, ok := r.state.ruleSets[target.Host]; ok {
		r.state.mu.Unlock()
		return rs, nil
	}
	fetcher := r.state.fetcher
	userAgent := r.state.userAgent
	r.state.mu.Unlock()

	result, err := fetcher.Fetch(ctx, target.Scheme, target.Host)
	if err != nil {
		return ruleSet{}, err
	}

	rs := MapResponseToRuleSet(result.Response, userAgent, result.FetchedAt)

	r.state.mu.Lock()
	r.state.ruleSets[target.Host] = rs
	r.state.mu.Unlock()

	return rs, nil
}

// CanFetch evaluates this ruleSet against a request path. Allow rules win on
// conflict when both an allow and a disallow rule match, using longest-match
// precedence when allow/disallow lengths differ; ties favor Allow.
func (rs ruleSet) CanFetch(path string) bool {
	if !rs.hasGroups || !rs.matchedGroup {
		return true
	}

	allowLen := -1
	for _, rule := range rs.allowRules {
		if matchesRobotsPattern(path, rule.prefix) {
			if l := len(rule.prefix); l > allowLen {
				allowLen = l
			}
		}
	}

	disallowLen := -1
	for _, rule := range rs.disallowRules {
		if matchesRobotsPattern(path, rule.prefix) {
			if l := len(rule.prefix); l > disallowLen {
				disallowLen = l
			}
		}
	}

	if disallowLen < 0 {
		return true
	}
	if allowLen < 0 {
		return false
	}
	// Allow wins ties (spec §4.B: "Allow takes precedence over Disallow on conflict").
	return allowLen >= disallowLen
}

// matchesRobotsPattern implements robots.txt glob semantics: "*" -> ".*",
// trailing "$" anchors end-of-path, pattern is otherwise anchored at path
// start.
func matchesRobotsPattern(path, pattern string) bool {
	if pattern == "" || pattern == "/" {
		return true
	}
	anchoredEnd := strings.HasSuffix(pattern, "$")
	body := strings.TrimSuffix(pattern, "$")

	var sb strings.Builder
	sb.WriteString("^")
	parts := strings.Split(body, "*")
	for i, part := range parts {
		sb.WriteString(regexp.QuoteMeta(part))
		if i != len(parts)-1 {
			sb.WriteString(".*")
		}
	}
	reStr := sb.String()
	if anchoredEnd {
		reStr += "$"
	}

	re, err := regexp.Compile(reStr)
	if err != nil {
		return strings.HasPrefix(path, body)
	}
	return re.MatchString(path)
}
