// Package batch fans a list of URLs out to bounded-concurrency scrapes
// and aggregates the results (§4.J). Grounded on
// other_examples/8e73204b_law-makers-crawl__internal-engine-batch-scraper.go.go's
// Scraper.ScrapeBatch: a sync.WaitGroup plus a buffered channel used as
// a semaphore, streaming results back over a channel as each scrape
// finishes rather than waiting for the whole batch.
package batch

import (
	"context"
	"sync"
)

// DefaultMaxConcurrency is used when a caller passes maxConcurrency <= 0
// (§4.J: "bounded concurrency (max_concurrency, default 10)").
const DefaultMaxConcurrency = 10

// Scraper performs a single-URL scrape; internal/jobapi supplies an
// implementation backed by the scheduler.
type Scraper interface {
	Scrape(ctx context.Context, url string) (Result, error)
}

// Result is one URL's outcome within a batch.
type Result struct {
	URL     string
	Success bool
	Error   string
	Payload any
}

// Orchestrator runs batches of scrapes through a Scraper with bounded
// concurrency.
type Orchestrator struct {
	scraper        Scraper
	maxConcurrency int
}

// New builds an Orchestrator. maxConcurrency <= 0 falls back to
// DefaultMaxConcurrency.
func New(scraper Scraper, maxConcurrency int) *Orchestrator {
	if maxConcurrency <= 0 {
		maxConcurrency = DefaultMaxConcurrency
	}
	return &Orchestrator{scraper: scraper, maxConcurrency: maxConcurrency}
}

// Run scrapes every url concurrently (bounded by maxConcurrency) and
// streams each Result back as it completes. The channel is closed once
// every URL has been attempted or ctx is canceled.
func (o *Orchestrator) Run(ctx context.Context, urls []string) <-chan Result {
	results := make(chan Result, len(urls))
	sem := make(chan struct{}, o.maxConcurrency)
	var wg sync.WaitGroup

	go func() {
		defer close(results)

		for _, u := range urls {
			select {
			case <-ctx.Done():
				wg.Wait()
				return
			case sem <- struct{}{}:
			}

			wg.Add(1)
			go func(target string) {
				defer wg.Done()
				defer func() { <-sem }()

				payload, err := o.scraper.Scrape(ctx, target)
				if err != nil {
					results <- Result{URL: target, Success: false, Error: err.Error()}
					return
				}
				results <- Result{URL: target, Success: true, Payload: payload}
			}(u)
		}

		wg.Wait()
	}()

	return results
}

// RunCollect runs the batch to completion and returns every Result,
// for callers (jobstore progress updates) that need the full set
// rather than a streaming channel.
func (o *Orchestrator) RunCollect(ctx context.Context, urls []string) []Result {
	results := make([]Result, 0, len(urls))
	for r := range o.Run(ctx, urls) {
		results = append(results, r)
	}
	return results
}
