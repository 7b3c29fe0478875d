// Package scrapeexec is the Scrape Executor (§4.G): it composes the
// Rate Limiter (internal/ratelimit), Browser Pool (internal/browser),
// and the plain HTTP path (internal/fetcher) behind a single per-page
// entry point. Grounded on internal/fetcher/html.go's fetchWithRetry/
// performFetch composition: acquire a rate-limit token, attempt the
// fetch, classify any error, release the token on every exit path via
// a deferred call — the same discipline that file's retry wrapper
// follows around a single HTTP attempt, generalized here to also guard
// the browser-pool render path.
package scrapeexec

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/webharvest/webharvest/internal/browser"
	"github.com/webharvest/webharvest/internal/build"
	"github.com/webharvest/webharvest/internal/fetcher"
	"github.com/webharvest/webharvest/internal/metadata"
	"github.com/webharvest/webharvest/internal/ratelimit"
	"github.com/webharvest/webharvest/pkg/failure"
	"github.com/webharvest/webharvest/pkg/retry"
	"github.com/webharvest/webharvest/pkg/timeutil"
)

// Options configure the per-domain spacing and concurrency the
// Rate Limiter enforces around every Execute call (§4.F).
type Options struct {
	MaxConcurrentPerDomain int
	RequestDelay           time.Duration
	AcquireTimeout         time.Duration
	MaxBackoff             time.Duration
	UserAgent              string
	RetryParam             retry.RetryParam
}

// DefaultOptions matches §4.F's documented defaults: two in-flight
// requests per domain, a one-second minimum spacing, and a 30s wait
// for a free slot before giving up.
func DefaultOptions() Options {
	return Options{
		MaxConcurrentPerDomain: 2,
		RequestDelay:           time.Second,
		AcquireTimeout:         30 * time.Second,
		MaxBackoff:             5 * time.Minute,
		UserAgent:              build.UserAgent(),
		RetryParam: retry.NewRetryParam(
			500*time.Millisecond, 250*time.Millisecond, 1, 3,
			timeutil.NewBackoffParam(time.Second, 2.0, 30*time.Second),
		),
	}
}

// Executor is the composed G-layer entry point: every page fetch the
// scheduler drives, whether static or JS-rendered, passes through here
// so the Rate Limiter and Browser Pool are always exercised uniformly.
type Executor struct {
	limiter *ratelimit.Limiter
	pool    *browser.Pool
	fetch   fetcher.HtmlFetcher
	opts    Options
}

// New builds an Executor. pool may be nil; Execute then rejects any
// Request with Render set, since no browser engine is available.
func New(limiter *ratelimit.Limiter, pool *browser.Pool, opts Options) *Executor {
	return &Executor{
		limiter: limiter,
		pool:    pool,
		fetch:   fetcher.NewHtmlFetcher(metadata.NoopSink{}),
		opts:    opts,
	}
}

// Request describes one page fetch.
type Request struct {
	URL      string
	Render   bool // true routes through the Browser Pool instead of a plain HTTP GET
	Viewport browser.Viewport
	Depth    int
}

// Result is what Execute produces, collapsing the static and rendered
// paths into one shape the scheduler can sanitize/extract uniformly.
type Result struct {
	URL        string
	HTML       string
	StatusCode int
}

// Execute performs one rate-limited page fetch (§4.G step list):
// acquire a domain token, attempt the fetch (static or rendered),
// classify any failure via the Rate Limiter's HandleError so repeated
// 429/5xx responses extend that domain's backoff, and release the
// token unconditionally on every exit path.
func (e *Executor) Execute(ctx context.Context, req Request) (Result, failure.ClassifiedError) {
	parsed, err := url.Parse(req.URL)
	if err != nil || parsed.Host == "" {
		return Result{}, &ExecError{Message: fmt.Sprintf("invalid url %q", req.URL), Retryable: false}
	}
	domain := parsed.Hostname()

	token, err := e.limiter.Acquire(ctx, domain, e.opts.MaxConcurrentPerDomain, e.opts.RequestDelay, e.opts.AcquireTimeout)
	if err != nil {
		return Result{}, &ExecError{Message: err.Error(), Retryable: true}
	}
	defer token.Release(ctx)

	if req.Render {
		return e.executeRendered(ctx, domain, *parsed, req)
	}
	return e.executeStatic(ctx, domain, *parsed, req)
}

func (e *Executor) executeStatic(ctx context.Context, domain string, target url.URL, req Request) (Result, failure.ClassifiedError) {
	param := fetcher.NewFetchParam(target, e.opts.UserAgent)
	result, ferr := e.fetch.Fetch(ctx, req.Depth, param, e.opts.RetryParam)
	if ferr != nil {
		e.classify(ctx, domain, ferr)
		return Result{}, ferr
	}
	_ = e.limiter.ResetBackoff(ctx, domain)
	return Result{URL: req.URL, HTML: string(result.Body()), StatusCode: result.Code()}, nil
}

func (e *Executor) executeRendered(ctx context.Context, domain string, target url.URL, req Request) (Result, failure.ClassifiedError) {
	if e.pool == nil {
		return Result{}, &ExecError{Message: "scrapeexec: render requested but no browser pool configured", Retryable: false}
	}
	viewport := req.Viewport
	if viewport == (browser.Viewport{}) {
		viewport = browser.ViewportDesktop
	}

	rendered, err := e.pool.Render(ctx, browser.RenderRequest{URL: req.URL, Viewport: viewport})
	if err != nil {
		execErr := &ExecError{Message: err.Error(), Retryable: true}
		e.classify(ctx, domain, execErr)
		return Result{}, execErr
	}
	_ = e.limiter.ResetBackoff(ctx, domain)
	return Result{URL: req.URL, HTML: rendered.HTML, StatusCode: 200}, nil
}

// classify feeds a failed attempt's status back into the Rate Limiter
// so a run of 429/5xx responses against one domain extends its backoff
// (§4.F's HandleError contract) instead of hammering it on every retry.
func (e *Executor) classify(ctx context.Context, domain string, classified failure.ClassifiedError) {
	statusCode := 0
	var fetchErr *fetcher.FetchError
	if asFetchError(classified, &fetchErr) {
		switch fetchErr.Cause {
		case fetcher.ErrCauseRequestTooMany:
			statusCode = 429
		case fetcher.ErrCauseRequest5xx:
			statusCode = 502
		}
	}
	if statusCode != 0 {
		_ = e.limiter.HandleError(ctx, domain, statusCode, 0, e.opts.MaxBackoff)
	}
}

func asFetchError(err error, target **fetcher.FetchError) bool {
	if fe, ok := err.(*fetcher.FetchError); ok {
		*target = fe
		return true
	}
	return false
}

// ExecError classifies a scrapeexec-local failure (url parsing, a
// missing browser pool, or an acquire timeout) the way the teacher's
// *FetchError/*RetryError types do.
type ExecError struct {
	Message   string
	Retryable bool
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("scrapeexec: %s", e.Message)
}

func (e *ExecError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}
