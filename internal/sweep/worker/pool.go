// Package worker drives concurrent mutation streams against the database.
//
// A Pool runs a fixed number of slots. Each slot loops pulling work (a claim,
// its share of a key list, or a fed batch) until it runs out, and the run
// ends when every slot has terminated or the first one fails.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vietddude/sweeper/internal/core/domain"
	"github.com/vietddude/sweeper/internal/core/progress"
	"github.com/vietddude/sweeper/internal/infra/storage"
	"github.com/vietddude/sweeper/internal/sweep/metrics"
)

// Config holds pool sizing.
type Config struct {
	Workers        int           `yaml:"workers"`         // concurrent slots
	ChunkSize      int           `yaml:"chunk_size"`      // rows per mutation
	PageSize       int           `yaml:"page_size"`       // keys per scan page
	ReportInterval time.Duration `yaml:"report_interval"` // progress log cadence
}

// DefaultConfig returns the pool defaults.
func DefaultConfig() Config {
	return Config{
		Workers:        20,
		ChunkSize:      250,
		PageSize:       10000,
		ReportInterval: time.Minute,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = d.ChunkSize
	}
	if c.PageSize <= 0 {
		c.PageSize = d.PageSize
	}
	if c.ReportInterval <= 0 {
		c.ReportInterval = d.ReportInterval
	}
	return c
}

// StateCallback is invoked on every slot state change.
type StateCallback func(job string, slot int, state domain.SlotState)

// Pool runs one job's worker slots and owns its progress counter.
type Pool struct {
	cfg        Config
	job        string
	runID      string
	counter    *progress.Counter
	checkpoint progress.Checkpointer
	onState    StateCallback
	runs       atomic.Int64
	log        *slog.Logger
}

// NewPool creates a pool for job.
func NewPool(job string, cfg Config) *Pool {
	runID := uuid.NewString()
	return &Pool{
		cfg:     cfg.withDefaults(),
		job:     job,
		runID:   runID,
		counter: &progress.Counter{},
		log:     slog.Default().With("component", "worker", "job", job, "run_id", runID),
	}
}

// Config returns the effective pool configuration.
func (p *Pool) Config() Config { return p.cfg }

// Job returns the job name.
func (p *Pool) Job() string { return p.job }

// RunID identifies this run in logs and checkpoints.
func (p *Pool) RunID() string { return p.runID }

// Counter exposes the run-wide progress counter.
func (p *Pool) Counter() *progress.Counter { return p.counter }

// SetCheckpointer attaches a sink for periodic progress snapshots.
func (p *Pool) SetCheckpointer(c progress.Checkpointer) { p.checkpoint = c }

// SetStateCallback registers a callback for slot state changes.
func (p *Pool) SetStateCallback(fn StateCallback) { p.onState = fn }

// RunClaim runs claim-mode slots. A slot respawns after every claim that
// returned rows and terminates on a claim of zero rows. A claim shorter than
// the chunk size ends one worker run; the zero claim that usually follows it
// does not end another.
func (p *Pool) RunClaim(ctx context.Context, claimer storage.Claimer) (progress.Summary, error) {
	chunk := p.cfg.ChunkSize
	p.log.Info("Starting claim run", "workers", p.cfg.Workers, "chunk_size", chunk)

	return p.run(ctx, p.cfg.Workers, func(ctx context.Context, slot int) error {
		short := false
		for {
			res, err := claimer.Claim(ctx, chunk)
			if err != nil {
				return fmt.Errorf("slot %d: %w", slot, err)
			}
			total := p.record(res.Count)
			p.log.Info("Claimed chunk", "slot", slot, "rows", res.Count, "total", total)

			if res.Count == 0 {
				if !short {
					p.runs.Add(1)
				}
				return nil
			}
			short = res.Count < int64(chunk)
			if short {
				p.runs.Add(1)
				p.log.Debug("Worker run finished, respawning", "slot", slot)
			}
			p.respawn(slot)
		}
	})
}

// RunKeyList applies mutator to keys in chunks. Chunk j belongs to slot
// j mod workers, so slots never share keys and each walks its chunks in
// ascending order; a slot terminates when its offsets are exhausted.
func (p *Pool) RunKeyList(ctx context.Context, keys []domain.WorkUnit, mutator storage.ChunkMutator) (progress.Summary, error) {
	chunks := domain.Chunks(keys, p.cfg.ChunkSize)
	slots := min(p.cfg.Workers, len(chunks))
	p.log.Info("Starting key-list run", "keys", len(keys), "chunks", len(chunks), "workers", slots)

	return p.run(ctx, slots, func(ctx context.Context, slot int) error {
		defer p.runs.Add(1)
		for j := slot; j < len(chunks); j += slots {
			if err := ctx.Err(); err != nil {
				return err
			}
			batch := chunks[j]
			res, err := mutator.Apply(ctx, batch)
			if err != nil {
				return fmt.Errorf("slot %d chunk %d: %w", slot, j, err)
			}
			total := p.record(res.Count)
			p.log.Info("Applied chunk", "slot", slot, "keys", len(batch), "rows", res.Count, "total", total)
			if j+slots < len(chunks) {
				p.respawn(slot)
			}
		}
		return nil
	})
}

// RunFeed fans items emitted by produce out to the pool's slots. The feed is
// closed when produce returns.
func RunFeed[T any](
	ctx context.Context,
	p *Pool,
	produce func(ctx context.Context, emit func(T) error) error,
	consume func(ctx context.Context, item T) (int64, error),
) (progress.Summary, error) {
	g, gctx := errgroup.WithContext(ctx)
	feed := make(chan T, p.cfg.Workers)

	g.Go(func() error {
		defer close(feed)
		return produce(gctx, func(item T) error {
			select {
			case feed <- item:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	})

	var summary progress.Summary
	g.Go(func() error {
		var err error
		summary, err = p.run(gctx, p.cfg.Workers, func(ctx context.Context, slot int) error {
			defer p.runs.Add(1)
			for item := range feed {
				if err := ctx.Err(); err != nil {
					return err
				}
				n, err := consume(ctx, item)
				if err != nil {
					return fmt.Errorf("slot %d: %w", slot, err)
				}
				total := p.record(n)
				p.log.Info("Applied batch", "slot", slot, "rows", n, "total", total)
			}
			return nil
		})
		return err
	})

	err := g.Wait()
	return summary, err
}

func (p *Pool) record(n int64) int64 {
	if n > 0 {
		metrics.RowsMutated.WithLabelValues(p.job).Add(float64(n))
	}
	return p.counter.Add(n)
}

// respawn moves a slot that found work back to Running for its next iteration.
func (p *Pool) respawn(slot int) {
	p.setState(slot, domain.SlotRespawning)
	p.setState(slot, domain.SlotRunning)
}

func (p *Pool) setState(slot int, state domain.SlotState) {
	p.log.Debug("Slot state changed", "slot", slot, "state", state)
	if p.onState != nil {
		p.onState(p.job, slot, state)
	}
}

// run starts slots, reports progress while they run, and joins them. The
// first slot error cancels the others and is returned.
func (p *Pool) run(ctx context.Context, slots int, fn func(ctx context.Context, slot int) error) (progress.Summary, error) {
	start := time.Now()

	reportCtx, stopReport := context.WithCancel(ctx)
	reporter := progress.NewReporter(p.counter, p.cfg.ReportInterval, p.checkpoint, p.log)
	var reportWG sync.WaitGroup
	reportWG.Add(1)
	go func() {
		defer reportWG.Done()
		reporter.Run(reportCtx)
	}()

	g, gctx := errgroup.WithContext(ctx)
	for slot := 0; slot < slots; slot++ {
		p.setState(slot, domain.SlotIdle)
		g.Go(func() error {
			p.setState(slot, domain.SlotRunning)
			metrics.ActiveSlots.WithLabelValues(p.job).Inc()
			defer func() {
				metrics.ActiveSlots.WithLabelValues(p.job).Dec()
				p.setState(slot, domain.SlotTerminated)
			}()
			return fn(gctx, slot)
		})
	}

	err := g.Wait()
	stopReport()
	reportWG.Wait()

	summary := progress.Summary{
		Total:   p.counter.Load(),
		Runs:    p.runs.Load(),
		Elapsed: time.Since(start),
	}
	if err != nil {
		p.log.Error("Run aborted", "error", err, "total_rows", summary.Total)
		return summary, err
	}
	return summary, nil
}
