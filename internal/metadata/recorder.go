package metadata

/*
Metadata Collected
- Fetch timestamps
- HTTP status codes
- Content hashes
- Crawl depth

Logging Goals
- Debuggable crawl behavior
- Post-run auditability
- Failure diagnostics

Structured logging is preferred.

Allowed:
- Primitive values
- Timestamps
- URLs (as values, not objects with behavior)
- Hashes
- Status codes
- Durations
- Identifiers (page ID, crawl ID)
*/

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// ArtifactKind names the category of a durable artifact written by a
// pipeline stage. It is observability-only, same discipline as ErrorCause.
type ArtifactKind string

const (
	ArtifactMarkdown   ArtifactKind = "markdown"
	ArtifactAsset      ArtifactKind = "asset"
	ArtifactScreenshot ArtifactKind = "screenshot"
	ArtifactRawHTML    ArtifactKind = "raw_html"
)

// MetadataSink is the port every pipeline component records observability
// events through. It MUST NOT be consulted for control-flow decisions by
// any caller; see the ErrorCause rules in data.go, which bind equally here.
type MetadataSink interface {
	// RecordFetch logs a single page fetch attempt.
	RecordFetch(
		fetchUrl string,
		httpStatus int,
		duration time.Duration,
		contentType string,
		retryCount int,
		crawlDepth int,
	)

	// RecordAssetFetch logs a single asset (image/etc.) fetch attempt.
	RecordAssetFetch(
		fetchUrl string,
		httpStatus int,
		duration time.Duration,
		retryCount int,
	)

	// RecordError logs a classified failure observed by a pipeline package.
	RecordError(
		observedAt time.Time,
		packageName string,
		action string,
		cause ErrorCause,
		details string,
		attrs []Attribute,
	)

	// RecordArtifact logs a durable artifact write (markdown file, asset,
	// screenshot) at the given path.
	RecordArtifact(kind ArtifactKind, path string, attrs []Attribute)
}

// CrawlFinalizer is the separate port the scheduler hands the terminal,
// derived summary of a completed crawl to; it is called exactly once, after
// termination. Recorder and NoopSink satisfy both it and MetadataSink.
type CrawlFinalizer interface {
	RecordFinalCrawlStats(totalPages int, totalErrors int, totalAssets int, duration time.Duration)
}

// NoopSink discards every event. Used as the default sink for one-shot
// scrapes and in tests that don't assert on observability output.
type NoopSink struct{}

func (NoopSink) RecordFetch(string, int, time.Duration, string, int, int)    {}
func (NoopSink) RecordAssetFetch(string, int, time.Duration, int)            {}
func (NoopSink) RecordError(time.Time, string, string, ErrorCause, string, []Attribute) {}
func (NoopSink) RecordArtifact(ArtifactKind, string, []Attribute)            {}
func (NoopSink) RecordFinalCrawlStats(int, int, int, time.Duration)          {}

// Recorder is a MetadataSink that writes one structured line per event to
// stderr, tagged with a worker/crawl label so concurrent crawls interleave
// legibly. Field order is fixed per event kind so output is grep-stable
// across runs.
type Recorder struct {
	mu    sync.Mutex
	out   io.Writer
	label string
}

// NewRecorder constructs a Recorder identified by label (a crawl or worker
// name) that writes to os.Stderr.
func NewRecorder(label string) Recorder {
	return Recorder{out: os.Stderr, label: label}
}

// NewRecorderWithWriter is NewRecorder with an explicit destination, for
// tests and non-stderr sinks.
func NewRecorderWithWriter(label string, w io.Writer) Recorder {
	if w == nil {
		w = os.Stderr
	}
	return Recorder{out: w, label: label}
}

func (r *Recorder) writeLine(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, "[%s] %s\n", r.label, line)
}

func (r *Recorder) RecordFetch(
	fetchUrl string,
	httpStatus int,
	duration time.Duration,
	contentType string,
	retryCount int,
	crawlDepth int,
) {
	r.writeLine(fmt.Sprintf(
		"fetch url=%s status=%d duration_ms=%d content_type=%q retries=%d depth=%d",
		fetchUrl, httpStatus, duration.Milliseconds(), contentType, retryCount, crawlDepth,
	))
}

func (r *Recorder) RecordAssetFetch(
	fetchUrl string,
	httpStatus int,
	duration time.Duration,
	retryCount int,
) {
	r.writeLine(fmt.Sprintf(
		"asset_fetch url=%s status=%d duration_ms=%d retries=%d",
		fetchUrl, httpStatus, duration.Milliseconds(), retryCount,
	))
}

func (r *Recorder) RecordError(
	observedAt time.Time,
	packageName string,
	action string,
	cause ErrorCause,
	details string,
	attrs []Attribute,
) {
	r.writeLine(fmt.Sprintf(
		"error at=%s pkg=%s action=%s cause=%d details=%q attrs=%s",
		observedAt.Format(time.RFC3339Nano), packageName, action, cause, details, formatAttrs(attrs),
	))
}

func (r *Recorder) RecordArtifact(kind ArtifactKind, path string, attrs []Attribute) {
	r.writeLine(fmt.Sprintf("artifact kind=%s path=%s attrs=%s", kind, path, formatAttrs(attrs)))
}

func (r *Recorder) RecordFinalCrawlStats(
	totalPages int,
	totalErrors int,
	totalAssets int,
	duration time.Duration,
) {
	r.writeLine(fmt.Sprintf(
		"crawl_stats pages=%d errors=%d assets=%d duration_ms=%d",
		totalPages, totalErrors, totalAssets, duration.Milliseconds(),
	))
}

func formatAttrs(attrs []Attribute) string {
	if len(attrs) == 0 {
		return "{}"
	}
	s := "{"
	for i, a := range attrs {
		if i > 0 {
			s += ","
		}
		s += string(a.Key) + "=" + a.Value
	}
	return s + "}"
}
