// Package failure carries the severity classification every fetch,
// render, and rate-limit error in webharvest is required to report, so
// the scheduler, scrape executor, and batch orchestrator can each decide
// retry-vs-abandon without type-switching on concrete error types.
package failure

type Severity int

const (
	// SeverityFatal means the caller should give up on this URL/domain
	// without further attempts (e.g. 403, malformed URL, no renderer
	// configured for a render-required page).
	SeverityFatal Severity = iota
	// SeverityRecoverable means a retry or backoff-and-retry may succeed
	// (e.g. network timeout, 429, 5xx).
	SeverityRecoverable
)

// ClassifiedError is the contract every retryable operation's error must
// satisfy: an ordinary error plus the severity that decides what the
// caller does next.
type ClassifiedError interface {
	error
	Severity() Severity
}
