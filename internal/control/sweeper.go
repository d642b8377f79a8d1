package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/vietddude/sweeper/internal/core/config"
	"github.com/vietddude/sweeper/internal/core/progress"
	"github.com/vietddude/sweeper/internal/infra/blob"
	redisclient "github.com/vietddude/sweeper/internal/infra/redis"
	"github.com/vietddude/sweeper/internal/infra/storage"
	"github.com/vietddude/sweeper/internal/infra/storage/memory"
	"github.com/vietddude/sweeper/internal/infra/storage/postgres"
	"github.com/vietddude/sweeper/internal/infra/storage/retry"
	"github.com/vietddude/sweeper/internal/sweep/anonymize"
	"github.com/vietddude/sweeper/internal/sweep/health"
	"github.com/vietddude/sweeper/internal/sweep/worker"
)

// DriverMemory selects the in-memory store instead of Postgres.
const DriverMemory = "memory"

const (
	JobPurgeAds   = "purge-ads"
	JobPurgePages = "purge-pages"
	jobAnonymize  = "anonymize:"
)

// ErrNoDatabase is returned by operations that need a real database.
var ErrNoDatabase = errors.New("no database configured")

type eligibleCounter interface {
	Eligible(ctx context.Context) (int64, error)
}

type adClaimer interface {
	storage.Claimer
	eligibleCounter
}

type pageStore interface {
	storage.PageScanner
	storage.ChunkMutator
}

type recordStore interface {
	storage.RowSource
	storage.RowWriter
}

// Sweeper owns the connections and runs sweep jobs against them.
type Sweeper struct {
	cfg          config.AppConfig
	db           *postgres.DB
	exec         *retry.Executor
	store        *memory.MemoryStorage
	redisClient  *redisclient.Client
	healthMon    *health.Monitor
	healthServer *health.Server
	log          *slog.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	running sync.WaitGroup
}

// NewSweeper connects to the configured backends. database.driver "memory"
// selects in-memory storage. Without a database the jobs return ErrNoDatabase.
func NewSweeper(ctx context.Context, cfg config.AppConfig) (*Sweeper, error) {
	s := &Sweeper{
		cfg:     cfg,
		log:     slog.Default().With("component", "sweeper"),
		cancels: make(map[string]context.CancelFunc),
	}

	// 1. Storage
	switch {
	case cfg.Database.Driver == DriverMemory:
		s.store = memory.NewMemoryStorage()
		s.healthMon = health.NewMonitor(nil)
		s.log.Info("Using Memory storage")
	case cfg.Database.URL != "" || cfg.Database.Host != "":
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		s.db = db
		s.exec = retry.NewExecutor(db, cfg.Retry)
		s.healthMon = health.NewMonitor(db)
		s.log.Info("Using PostgreSQL storage",
			"max_retries", cfg.Retry.MaxRetries,
			"retry_delay", cfg.Retry.Delay,
		)
	default:
		s.healthMon = health.NewMonitor(nil)
		s.log.Warn("No database configured, only upload is available")
	}

	// 2. Redis lease and checkpoints
	if cfg.Redis.URL != "" {
		client, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			s.closeBackends()
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		s.redisClient = client
	}

	// 3. Health server
	if cfg.Server.Port > 0 {
		s.healthServer = health.NewServer(s.healthMon, cfg.Server.Port)
	}

	return s, nil
}

// Store exposes the in-memory storage, nil when a database is configured.
func (s *Sweeper) Store() *memory.MemoryStorage { return s.store }

// Monitor exposes the health monitor.
func (s *Sweeper) Monitor() *health.Monitor { return s.healthMon }

// Start launches background services. It does not block.
func (s *Sweeper) Start(ctx context.Context) {
	if s.healthServer != nil {
		go func() {
			if err := s.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.log.Error("Health server failed", "error", err)
			}
		}()
	}
	if s.db != nil {
		s.db.StartMetricsCollector(ctx)
	}
}

// PurgeAds soft-deletes ads older than purge_ads.older_than in claim mode.
func (s *Sweeper) PurgeAds(ctx context.Context) (progress.Summary, error) {
	if !s.hasStorage() {
		return progress.Summary{}, ErrNoDatabase
	}
	cutoff := time.Now().Add(-s.cfg.PurgeAds.OlderThan)
	s.log.Info("Purging ads", "cutoff", cutoff.Format(time.RFC3339))

	claimer := s.adRepo(cutoff)
	return s.run(ctx, JobPurgeAds, func(ctx context.Context, pool *worker.Pool) (progress.Summary, error) {
		return pool.RunClaim(ctx, claimer)
	})
}

// PurgePages soft-deletes pages whose ads are all deleted. The candidate keys
// are collected by a cursor scan, then mutated in key-list mode.
func (s *Sweeper) PurgePages(ctx context.Context) (progress.Summary, error) {
	if !s.hasStorage() {
		return progress.Summary{}, ErrNoDatabase
	}
	repo := s.pageRepo()
	return s.run(ctx, JobPurgePages, func(ctx context.Context, pool *worker.Pool) (progress.Summary, error) {
		keys, err := worker.ScanAll(ctx, repo, pool.Config().PageSize)
		if err != nil {
			return progress.Summary{}, err
		}
		return pool.RunKeyList(ctx, keys, repo)
	})
}

// Anonymize rewrites the configured tables one after another. When only is
// non-empty, tables not named in it are skipped.
func (s *Sweeper) Anonymize(ctx context.Context, only ...string) (progress.Summary, error) {
	var total progress.Summary
	if !s.hasStorage() {
		return total, ErrNoDatabase
	}
	for _, spec := range s.cfg.Anonymize.Tables {
		if len(only) > 0 && !slices.Contains(only, spec.Name) {
			continue
		}
		repo, err := s.recordRepo(spec)
		if err != nil {
			return total, err
		}
		sum, err := s.run(ctx, jobAnonymize+spec.Name, func(ctx context.Context, pool *worker.Pool) (progress.Summary, error) {
			return anonymize.Table(ctx, pool, spec, repo, repo)
		})
		total.Total += sum.Total
		total.Runs += sum.Runs
		total.Elapsed += sum.Elapsed
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Upload ships a local file, typically a dump of the anonymized database.
func (s *Sweeper) Upload(ctx context.Context, path, key string) (*blob.UploadResult, error) {
	up, err := blob.NewUploader(ctx, s.cfg.Storage)
	if err != nil {
		return nil, err
	}
	return up.Upload(ctx, path, "", key)
}

// Migrate applies the embedded schema.
func (s *Sweeper) Migrate(ctx context.Context) error {
	if s.db == nil {
		return ErrNoDatabase
	}
	return s.db.Migrate(ctx)
}

// Status reports what each job would still touch.
type Status struct {
	Storage       string                          `json:"storage"`
	EligibleAds   int64                           `json:"eligible_ads"`
	EligiblePages int                             `json:"eligible_pages"`
	Checkpoints   map[string]redisclient.Progress `json:"checkpoints,omitempty"`
}

// Status counts eligible rows and reads the last checkpoints.
func (s *Sweeper) Status(ctx context.Context) (*Status, error) {
	if !s.hasStorage() {
		return nil, ErrNoDatabase
	}
	st := &Status{Storage: DriverMemory}
	if s.db != nil {
		st.Storage = "postgres"
	}

	ads, err := s.adRepo(time.Now().Add(-s.cfg.PurgeAds.OlderThan)).Eligible(ctx)
	if err != nil {
		return nil, err
	}
	st.EligibleAds = ads

	pageSize := s.cfg.Sweep.PageSize
	if pageSize <= 0 {
		pageSize = worker.DefaultConfig().PageSize
	}
	pages, err := worker.ScanAll(ctx, s.pageRepo(), pageSize)
	if err != nil {
		return nil, err
	}
	st.EligiblePages = len(pages)

	if s.redisClient != nil {
		st.Checkpoints = make(map[string]redisclient.Progress)
		jobs := []string{JobPurgeAds, JobPurgePages}
		for _, t := range s.cfg.Anonymize.Tables {
			jobs = append(jobs, jobAnonymize+t.Name)
		}
		for _, job := range jobs {
			p, found, err := s.redisClient.GetProgress(ctx, job)
			if err != nil {
				return nil, err
			}
			if found {
				st.Checkpoints[job] = p
			}
		}
	}
	return st, nil
}

// Close cancels running jobs, waits for their slots to drain, then closes
// every backend.
func (s *Sweeper) Close(ctx context.Context) error {
	s.log.Info("Stopping sweeper...")

	s.mu.Lock()
	for job, cancel := range s.cancels {
		s.log.Info("Cancelling job", "job", job)
		cancel()
	}
	s.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		s.running.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		s.log.Warn("Timed out waiting for jobs to drain")
	}

	var errs []error
	if s.healthServer != nil {
		if err := s.healthServer.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.closeBackends(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Sweeper) closeBackends() error {
	var errs []error
	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.log.Warn("Failed to close Redis", "error", err)
			errs = append(errs, err)
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Sweeper) hasStorage() bool { return s.db != nil || s.store != nil }

func (s *Sweeper) adRepo(cutoff time.Time) adClaimer {
	if s.db != nil {
		return postgres.NewAdRepo(s.exec, cutoff)
	}
	return memory.NewAdRepo(s.store, cutoff)
}

func (s *Sweeper) pageRepo() pageStore {
	if s.db != nil {
		return postgres.NewPageRepo(s.exec)
	}
	return memory.NewPageRepo(s.store)
}

func (s *Sweeper) recordRepo(spec anonymize.TableSpec) (recordStore, error) {
	if s.db != nil {
		return postgres.NewRecordRepo(s.exec, spec.StorageTable())
	}
	return memory.NewRecordRepo(s.store, spec.Name), nil
}

// run executes one job under its lease, registers it for health and
// cancellation, and logs the final summary.
func (s *Sweeper) run(
	ctx context.Context,
	job string,
	fn func(ctx context.Context, pool *worker.Pool) (progress.Summary, error),
) (progress.Summary, error) {
	s.running.Add(1)
	defer s.running.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.mu.Lock()
	s.cancels[job] = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.cancels, job)
		s.mu.Unlock()
	}()

	pool := worker.NewPool(job, s.cfg.Sweep)
	pool.SetStateCallback(s.healthMon.OnSlotState)

	var leaseErr chan error
	if s.redisClient != nil {
		lease, err := s.redisClient.AcquireLease(ctx, job, s.cfg.Redis.LeaseTTL)
		if err != nil {
			return progress.Summary{}, err
		}
		defer func() {
			releaseCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			if err := lease.Release(releaseCtx); err != nil {
				s.log.Warn("Failed to release lease", "job", job, "error", err)
			}
		}()

		leaseErr = make(chan error, 1)
		go func() {
			err := lease.Keep(ctx)
			if err != nil {
				s.log.Error("Lease lost, stopping job", "job", job, "error", err)
				cancel()
			}
			leaseErr <- err
		}()
		pool.SetCheckpointer(s.redisClient.Checkpoint(job, pool.RunID()))
	}

	s.healthMon.StartJob(job, pool.RunID(), pool.Counter())
	summary, err := fn(ctx, pool)

	cancel()
	if leaseErr != nil {
		if lerr := <-leaseErr; lerr != nil && err == nil {
			err = lerr
		}
	}
	s.healthMon.FinishJob(job, err)

	summary.Log(s.log, job)
	if err != nil {
		return summary, fmt.Errorf("%s: %w", job, err)
	}
	return summary, nil
}
