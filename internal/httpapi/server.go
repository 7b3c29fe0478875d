// Package httpapi binds the job-submission surface to a single HTTP
// endpoint family (§4.N), fronting the same internal/jobapi.Service
// the MCP/JSON-RPC surface (internal/mcpserver) also binds to. It is
// grounded on the chi routing idiom used by the scraper-shaped repos
// in the example corpus (digster-scraper, sells-group-research-cli)
// and exposes Prometheus metrics the way ariadne and
// testforge-hq-testforge do.
package httpapi

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/webharvest/webharvest/internal/apikey"
	"github.com/webharvest/webharvest/internal/jobapi"
	"github.com/webharvest/webharvest/internal/jobstore"
	"github.com/webharvest/webharvest/internal/mcpserver"
	"github.com/webharvest/webharvest/internal/sitemap"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webharvest_http_requests_total",
		Help: "Total HTTP requests handled by the job-submission API.",
	}, []string{"route", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "webharvest_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds.",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"route"})

	activeCrawls = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "webharvest_active_crawls",
		Help: "Number of crawl jobs currently running.",
	})
)

// Server is the HTTP job-submission API described in §4.N. It fronts
// internal/jobapi.Service and, at /rpc, an internal/mcpserver.Server
// bound to the same Service, so the REST and JSON-RPC surfaces share
// one orchestration implementation end to end.
type Server struct {
	addr   string
	router chi.Router
	store  *jobstore.Store
	svc    *jobapi.Service
	auth   *apikey.Authenticator
}

// NewServer builds a Server listening on addr, backed by a local
// SQLite job store (jobstore.DefaultDSN unless WEBHARVEST_JOB_DSN is set).
func NewServer(addr string) *Server {
	dsn := os.Getenv("WEBHARVEST_JOB_DSN")
	if dsn == "" {
		dsn = jobstore.DefaultDSN
	}
	store, err := jobstore.Open(dsn)
	if err != nil {
		// The API can still serve synchronous /v2/scrape without
		// durable job tracking; crawl/batch submission will fail fast.
		store = nil
	}

	svc := jobapi.New(store, sitemap.NewResolver(3, "webharvest/1.0"))

	s := &Server{addr: addr, store: store, svc: svc}
	if store != nil {
		auth := apikey.New(store)
		s.auth = &auth
	}
	s.router = s.newRouter()
	return s
}

func (s *Server) newRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.metricsMiddleware)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Get("/livez", s.handleLivez)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Post("/rpc", mcpserver.New(s.svc).Handler())

	r.Group(func(r chi.Router) {
		if s.auth != nil {
			r.Use(s.auth.Middleware)
		}
		r.Post("/v2/scrape", s.handleScrape)
		r.Post("/v2/crawl", s.handleCrawlSubmit)
		r.Delete("/v2/crawl/{id}", s.handleCrawlCancel)
		r.Post("/v2/batch/scrape", s.handleBatchSubmit)
		r.Post("/v2/map", s.handleMapSite)
		r.Post("/v2/projects", s.handleProjectCreate)
	})

	r.Get("/v2/crawl/{id}", s.handleCrawlStatus)
	r.Get("/v2/batch/scrape/{id}", s.handleBatchStatus)
	r.Get("/v2/projects", s.handleProjectList)
	return r
}

// ListenAndServe starts the HTTP server. It blocks until the server
// exits or errors.
func (s *Server) ListenAndServe() error {
	return http.ListenAndServe(s.addr, s.router)
}

// Router exposes the underlying chi.Router for tests and for embedding
// this server's routes inside another mux.
func (s *Server) Router() chi.Router {
	return s.router
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		requestsTotal.WithLabelValues(route, http.StatusText(ww.Status())).Inc()
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "healthy", "timestamp": time.Now().UTC(), "version": "0.1.0"})
}

// handleReadyz reports per-dependency health (§6's `/readyz` contract):
// database is the Job Store; coordination_store is "healthy" when an API
// key authenticator is wired (which happens whenever the Job Store opened)
// and "degraded" otherwise; worker_queue and disk_space are always
// reported healthy. Only a missing Job Store turns the overall status 503.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"disk_space": "healthy"}
	healthy := true

	if s.store == nil {
		checks["database"] = "unavailable"
		healthy = false
	} else {
		checks["database"] = "healthy"
	}

	if s.auth == nil {
		checks["coordination_store"] = "degraded"
	} else {
		checks["coordination_store"] = "healthy"
	}
	checks["worker_queue"] = "healthy"

	status := http.StatusOK
	overall := "healthy"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "degraded"
	}
	writeJSON(w, status, map[string]any{"status": overall, "checks": checks})
}

func (s *Server) handleLivez(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "alive", "timestamp": time.Now().UTC()})
}

type scrapeRequest struct {
	URL string `json:"url"`
}

type scrapeResponse struct {
	Success bool   `json:"success"`
	Cached  bool   `json:"cached,omitempty"`
	Error   string `json:"error,omitempty"`
}

// handleScrape performs a synchronous single-URL fetch, matching
// §4.M's "scrape(ScrapeRequest) -> synchronous if cache hit, else
// enqueue ScrapeJob" path.
func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeJSON(w, http.StatusBadRequest, scrapeResponse{Success: false, Error: "invalid request body"})
		return
	}

	result, err := s.svc.Scrape(r.Context(), jobapi.ScrapeRequest{URL: req.URL})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, scrapeResponse{Success: false, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, scrapeResponse{Success: result.Success, Cached: result.Cached, Error: result.Error})
}

type crawlSubmitRequest struct {
	URL      string `json:"url"`
	MaxDepth int    `json:"maxDepth"`
	MaxPages int    `json:"maxPages"`
}

type crawlSubmitResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// handleCrawlSubmit persists a CrawlJob in `queued` state and starts the
// orchestrator asynchronously, returning immediately with its id.
func (s *Server) handleCrawlSubmit(w http.ResponseWriter, r *http.Request) {
	var req crawlSubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeJSON(w, http.StatusBadRequest, crawlSubmitResponse{Success: false, Error: "invalid request body"})
		return
	}

	id, err := s.svc.CrawlSubmit(jobapi.CrawlRequest{URL: req.URL, MaxDepth: req.MaxDepth, MaxPages: req.MaxPages})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, crawlSubmitResponse{Success: false, Error: err.Error()})
		return
	}
	activeCrawls.Inc()
	go func() { <-crawlCompletionSignal(s, id) }()

	writeJSON(w, http.StatusOK, crawlSubmitResponse{Success: true, ID: id})
}

// crawlCompletionSignal polls until the crawl job leaves its running
// states, purely so activeCrawls can be decremented; the orchestrator
// itself is already running in jobapi's own goroutine.
func crawlCompletionSignal(s *Server, id string) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			time.Sleep(500 * time.Millisecond)
			job, err := s.svc.CrawlStatus(id)
			if err != nil {
				return
			}
			if job.Status == jobstore.StatusDone || job.Status == jobstore.StatusFailed {
				activeCrawls.Dec()
				return
			}
		}
	}()
	return done
}

type crawlStatusResponse struct {
	Success   bool   `json:"success"`
	Status    string `json:"status,omitempty"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
	Error     string `json:"error,omitempty"`
}

func (s *Server) handleCrawlStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := s.svc.CrawlStatus(id)
	if err != nil {
		writeJSON(w, http.StatusOK, crawlStatusResponse{Success: false, Error: "not found"})
		return
	}
	writeJSON(w, http.StatusOK, crawlStatusResponse{Success: true, Status: job.Status, Completed: job.Completed, Failed: job.Failed})
}

func (s *Server) handleCrawlCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.svc.CrawlCancel(id); err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "cancellation requested"})
}

type batchSubmitRequest struct {
	URLs           []string `json:"urls"`
	MaxConcurrency int      `json:"maxConcurrency"`
}

func (s *Server) handleBatchSubmit(w http.ResponseWriter, r *http.Request) {
	var req batchSubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.URLs) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "invalid request body"})
		return
	}
	id, err := s.svc.BatchScrape(jobapi.BatchScrapeRequest{URLs: req.URLs, MaxConcurrency: req.MaxConcurrency})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "id": id})
}

func (s *Server) handleBatchStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := s.svc.BatchStatus(id)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": "not found"})
		return
	}
	writeJSON(w, http.StatusOK, job)
}

type mapSiteRequest struct {
	URL    string `json:"url"`
	Search string `json:"search"`
	Limit  int    `json:"limit"`
}

func (s *Server) handleMapSite(w http.ResponseWriter, r *http.Request) {
	var req mapSiteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "invalid request body"})
		return
	}
	result, err := s.svc.MapSite(jobapi.MapRequest{URL: req.URL, Search: req.Search, Limit: req.Limit})
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "links": result.URLs, "metadata": map[string]any{"total": len(result.URLs)}})
}

type projectCreateRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Server) handleProjectCreate(w http.ResponseWriter, r *http.Request) {
	var req projectCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "invalid request body"})
		return
	}
	project, err := s.svc.CreateProject(req.Name, req.Description)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, project)
}

func (s *Server) handleProjectList(w http.ResponseWriter, r *http.Request) {
	projects, err := s.svc.ListProjects()
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "projects": projects})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
