// Package jobstore is the durable state layer for crawl/batch jobs
// (§4.K). It is grounded on sells-group-research-cli's use of
// modernc.org/sqlite for an embedded, CGO-free SQLite driver, matching
// this module's local-only deployment story (§1's Non-goals rule out
// a distributed crawler, so a single-file embedded store is the right
// fit rather than a networked database).
package jobstore

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultDSN is used when no WEBHARVEST_JOB_DSN override is set.
const DefaultDSN = "file:webharvest_jobs.db?cache=shared&_pragma=busy_timeout(5000)"

const (
	StatusQueued   = "queued"
	StatusScraping = "scraping"
	StatusFailed   = "failed"
	StatusDone     = "completed"
	StatusCanceled = "canceled"
)

// Store wraps a SQLite-backed crawl_jobs table. Writes are
// committed before any external observer can poll for them (§4.K's
// read-after-write contract), since database/sql serializes each
// Exec against the single underlying connection pool.
type Store struct {
	db *sql.DB
}

// Open creates (if needed) and migrates the crawl_jobs table at dsn.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("jobstore: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("jobstore: ping: %w", err)
	}

	const schema = `
CREATE TABLE IF NOT EXISTS crawl_jobs (
	id          TEXT PRIMARY KEY,
	url         TEXT NOT NULL,
	status      TEXT NOT NULL,
	completed   INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	error       TEXT,
	canceled    INTEGER NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL,
	updated_at  DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS scrape_cache (
	fingerprint   TEXT PRIMARY KEY,
	url           TEXT NOT NULL,
	normalized_url TEXT NOT NULL,
	payload       BLOB NOT NULL,
	content_hash  TEXT NOT NULL,
	created_at    DATETIME NOT NULL,
	expires_at    DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_scrape_cache_expires_at ON scrape_cache(expires_at);
CREATE TABLE IF NOT EXISTS api_keys (
	id                   TEXT PRIMARY KEY,
	key_hash             TEXT NOT NULL UNIQUE,
	key_prefix           TEXT NOT NULL,
	permissions          TEXT NOT NULL,
	active               INTEGER NOT NULL DEFAULT 1,
	expires_at           DATETIME,
	last_used_at         DATETIME,
	usage_count          INTEGER NOT NULL DEFAULT 0,
	rate_limit_per_minute INTEGER NOT NULL DEFAULT 0,
	created_at           DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS batch_jobs (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL,
	total       INTEGER NOT NULL DEFAULT 0,
	completed   INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL,
	updated_at  DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS projects (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	description TEXT,
	api_key_id  TEXT,
	created_at  DATETIME NOT NULL
);
`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("jobstore: migrate: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// CrawlJob is the subset of crawl_jobs columns the HTTP API surfaces.
type CrawlJob struct {
	ID        string
	URL       string
	Status    string
	Completed int
	Failed    int
	Error     string
	Canceled  bool
}

// CreateCrawlJob inserts a new job row in the queued state.
func (s *Store) CreateCrawlJob(id, rawURL string) error {
	now := time.Now()
	_, err := s.db.Exec(
		`INSERT INTO crawl_jobs (id, url, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, rawURL, StatusQueued, now, now,
	)
	if err != nil {
		return fmt.Errorf("jobstore: create: %w", err)
	}
	return nil
}

// TransitionCrawlJob moves a job to a new non-terminal status.
func (s *Store) TransitionCrawlJob(id, status string) error {
	_, err := s.db.Exec(`UPDATE crawl_jobs SET status = ?, updated_at = ? WHERE id = ?`, status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("jobstore: transition: %w", err)
	}
	return nil
}

// CompleteCrawlJob marks a job completed with its final page count.
// Per §4.K's contract, the page count is committed in the same write
// as the completed status, so pollers never see a completed status
// with a stale counter.
func (s *Store) CompleteCrawlJob(id string, completed int) error {
	_, err := s.db.Exec(
		`UPDATE crawl_jobs SET status = ?, completed = ?, updated_at = ? WHERE id = ?`,
		StatusDone, completed, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("jobstore: complete: %w", err)
	}
	return nil
}

// FailCrawlJob marks a job terminally failed. A job-level failure is
// reserved for orchestrator/store faults (§7's propagation policy);
// individual page failures are tracked via the failed counter instead.
func (s *Store) FailCrawlJob(id, reason string) error {
	_, err := s.db.Exec(
		`UPDATE crawl_jobs SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		StatusFailed, reason, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("jobstore: fail: %w", err)
	}
	return nil
}

// CancelCrawlJob sets the canceled flag that IsCanceled reports. The
// crawl runner in internal/jobapi does not read the flag: a crawl that is
// already running continues to completion and its status is not changed
// to canceled.
func (s *Store) CancelCrawlJob(id string) error {
	res, err := s.db.Exec(`UPDATE crawl_jobs SET canceled = 1, updated_at = ? WHERE id = ?`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("jobstore: cancel: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("jobstore: cancel: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("jobstore: cancel: job %q not found", id)
	}
	return nil
}

// IsCanceled reports whether a cancellation has been requested for id.
func (s *Store) IsCanceled(id string) (bool, error) {
	var canceled bool
	err := s.db.QueryRow(`SELECT canceled FROM crawl_jobs WHERE id = ?`, id).Scan(&canceled)
	if err != nil {
		return false, fmt.Errorf("jobstore: is_canceled: %w", err)
	}
	return canceled, nil
}

// CacheEntry is a row of the scrape_cache table (§4.K/§4.L).
type CacheEntry struct {
	Fingerprint   string
	URL           string
	NormalizedURL string
	Payload       []byte
	ContentHash   string
	ExpiresAt     time.Time
}

// PutCacheEntry inserts or replaces the cache row for fingerprint.
func (s *Store) PutCacheEntry(entry CacheEntry) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO scrape_cache
			(fingerprint, url, normalized_url, payload, content_hash, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.Fingerprint, entry.URL, entry.NormalizedURL, entry.Payload, entry.ContentHash, time.Now(), entry.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("jobstore: put cache entry: %w", err)
	}
	return nil
}

// GetCacheEntry returns the entry for fingerprint, or ok=false if the
// row is absent or expired (an expired row is treated as absent per
// §4.L's eviction rule, regardless of whether a GC sweep has run).
func (s *Store) GetCacheEntry(fingerprint string) (entry CacheEntry, ok bool, err error) {
	row := s.db.QueryRow(
		`SELECT fingerprint, url, normalized_url, payload, content_hash, expires_at
		 FROM scrape_cache WHERE fingerprint = ?`, fingerprint,
	)
	if err := row.Scan(&entry.Fingerprint, &entry.URL, &entry.NormalizedURL, &entry.Payload, &entry.ContentHash, &entry.ExpiresAt); err != nil {
		if err == sql.ErrNoRows {
			return CacheEntry{}, false, nil
		}
		return CacheEntry{}, false, fmt.Errorf("jobstore: get cache entry: %w", err)
	}
	if time.Now().After(entry.ExpiresAt) {
		return CacheEntry{}, false, nil
	}
	return entry, true, nil
}

// SweepExpiredCacheEntries deletes rows past their expiry. Non-essential
// for correctness (GetCacheEntry already treats expired rows as absent)
// but keeps the table from growing unbounded.
func (s *Store) SweepExpiredCacheEntries() (int64, error) {
	res, err := s.db.Exec(`DELETE FROM scrape_cache WHERE expires_at < ?`, time.Now())
	if err != nil {
		return 0, fmt.Errorf("jobstore: sweep: %w", err)
	}
	return res.RowsAffected()
}

// APIKey is a row of the api_keys table (§4.K/§4.P). Opaque to the
// core beyond authentication: Permissions is a caller-defined string
// (e.g. a comma-separated scope list) the core never interprets.
type APIKey struct {
	ID                 string
	KeyHash            string
	KeyPrefix          string
	Permissions        string
	Active             bool
	ExpiresAt          *time.Time
	LastUsedAt         *time.Time
	UsageCount         int
	RateLimitPerMinute int
}

// CreateAPIKey inserts a new active key row.
func (s *Store) CreateAPIKey(key APIKey) error {
	_, err := s.db.Exec(
		`INSERT INTO api_keys (id, key_hash, key_prefix, permissions, active, expires_at, rate_limit_per_minute, created_at)
		 VALUES (?, ?, ?, ?, 1, ?, ?, ?)`,
		key.ID, key.KeyHash, key.KeyPrefix, key.Permissions, key.ExpiresAt, key.RateLimitPerMinute, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("jobstore: create api key: %w", err)
	}
	return nil
}

// FindAPIKeyByHash looks up an active key by its SHA-256 hash, for the
// Authorization: Bearer validation path (§4.P).
func (s *Store) FindAPIKeyByHash(keyHash string) (APIKey, bool, error) {
	var key APIKey
	var active int
	var expiresAt, lastUsedAt sql.NullTime
	err := s.db.QueryRow(
		`SELECT id, key_hash, key_prefix, permissions, active, expires_at, last_used_at, usage_count, rate_limit_per_minute
		 FROM api_keys WHERE key_hash = ?`, keyHash,
	).Scan(&key.ID, &key.KeyHash, &key.KeyPrefix, &key.Permissions, &active, &expiresAt, &lastUsedAt, &key.UsageCount, &key.RateLimitPerMinute)
	if err != nil {
		if err == sql.ErrNoRows {
			return APIKey{}, false, nil
		}
		return APIKey{}, false, fmt.Errorf("jobstore: find api key: %w", err)
	}
	key.Active = active != 0
	if expiresAt.Valid {
		key.ExpiresAt = &expiresAt.Time
	}
	if lastUsedAt.Valid {
		key.LastUsedAt = &lastUsedAt.Time
	}
	return key, true, nil
}

// TouchAPIKey bumps usage_count and last_used_at after a successful
// authentication (§4.P).
func (s *Store) TouchAPIKey(id string) error {
	_, err := s.db.Exec(
		`UPDATE api_keys SET usage_count = usage_count + 1, last_used_at = ? WHERE id = ?`,
		time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("jobstore: touch api key: %w", err)
	}
	return nil
}

// BatchJob is a row of the batch_jobs table (§4.J).
type BatchJob struct {
	ID        string
	Status    string
	Total     int
	Completed int
	Failed    int
}

// CreateBatchJob inserts a new batch job row in the queued state.
func (s *Store) CreateBatchJob(id string, total int) error {
	now := time.Now()
	_, err := s.db.Exec(
		`INSERT INTO batch_jobs (id, status, total, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, StatusQueued, total, now, now,
	)
	if err != nil {
		return fmt.Errorf("jobstore: create batch job: %w", err)
	}
	return nil
}

// UpdateBatchJobProgress records the completed/failed counters so far.
func (s *Store) UpdateBatchJobProgress(id string, completed, failed int) error {
	_, err := s.db.Exec(
		`UPDATE batch_jobs SET completed = ?, failed = ?, updated_at = ? WHERE id = ?`,
		completed, failed, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("jobstore: update batch job: %w", err)
	}
	return nil
}

// CompleteBatchJob marks a batch job as finished (§4.J: "aggregates results").
func (s *Store) CompleteBatchJob(id string, completed, failed int) error {
	_, err := s.db.Exec(
		`UPDATE batch_jobs SET status = ?, completed = ?, failed = ?, updated_at = ? WHERE id = ?`,
		StatusDone, completed, failed, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("jobstore: complete batch job: %w", err)
	}
	return nil
}

// GetBatchJob fetches a batch job by id.
func (s *Store) GetBatchJob(id string) (BatchJob, error) {
	var job BatchJob
	err := s.db.QueryRow(
		`SELECT id, status, total, completed, failed FROM batch_jobs WHERE id = ?`, id,
	).Scan(&job.ID, &job.Status, &job.Total, &job.Completed, &job.Failed)
	if err != nil {
		return BatchJob{}, fmt.Errorf("jobstore: get batch job: %w", err)
	}
	return job, nil
}

// Project is a row of the projects table (§3: groups CrawlJobs/BatchJobs
// for the create_project/list_projects MCP tools).
type Project struct {
	ID          string
	Name        string
	Description string
	APIKeyID    string
}

// CreateProject inserts a new project row.
func (s *Store) CreateProject(p Project) error {
	_, err := s.db.Exec(
		`INSERT INTO projects (id, name, description, api_key_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Description, p.APIKeyID, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("jobstore: create project: %w", err)
	}
	return nil
}

// ListProjects returns every project, most recently created first.
func (s *Store) ListProjects() ([]Project, error) {
	rows, err := s.db.Query(`SELECT id, name, description, api_key_id FROM projects ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("jobstore: list projects: %w", err)
	}
	defer rows.Close()

	var projects []Project
	for rows.Next() {
		var p Project
		var description, apiKeyID sql.NullString
		if err := rows.Scan(&p.ID, &p.Name, &description, &apiKeyID); err != nil {
			return nil, fmt.Errorf("jobstore: list projects: %w", err)
		}
		p.Description = description.String
		p.APIKeyID = apiKeyID.String
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// GetCrawlJob fetches a job by id.
func (s *Store) GetCrawlJob(id string) (CrawlJob, error) {
	var job CrawlJob
	var errText sql.NullString
	var canceled bool
	err := s.db.QueryRow(
		`SELECT id, url, status, completed, failed, error, canceled FROM crawl_jobs WHERE id = ?`, id,
	).Scan(&job.ID, &job.URL, &job.Status, &job.Completed, &job.Failed, &errText, &canceled)
	if err != nil {
		return CrawlJob{}, fmt.Errorf("jobstore: get: %w", err)
	}
	job.Error = errText.String
	job.Canceled = canceled
	return job, nil
}
