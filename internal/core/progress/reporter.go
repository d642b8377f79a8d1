package progress

import (
	"context"
	"log/slog"
	"time"
)

// Checkpointer receives periodic snapshots of the counter.
type Checkpointer interface {
	SaveProgress(ctx context.Context, total int64) error
}

// Rate describes the throughput observed between two snapshots.
type Rate struct {
	Rows          int64
	Elapsed       time.Duration
	RowsPerMinute float64
}

// RateBetween computes rows/minute for the rows mutated over elapsed.
func RateBetween(rows int64, elapsed time.Duration) Rate {
	r := Rate{Rows: rows, Elapsed: elapsed}
	if minutes := elapsed.Minutes(); minutes > 0 {
		r.RowsPerMinute = float64(rows) / minutes
	}
	return r
}

// Reporter logs the instantaneous mutation rate on a fixed interval.
type Reporter struct {
	counter    *Counter
	interval   time.Duration
	checkpoint Checkpointer
	log        *slog.Logger

	lastCount int64
	lastTime  time.Time
}

// NewReporter creates a reporter over counter. A nil checkpoint is allowed.
func NewReporter(counter *Counter, interval time.Duration, checkpoint Checkpointer, log *slog.Logger) *Reporter {
	if interval <= 0 {
		interval = time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &Reporter{
		counter:    counter,
		interval:   interval,
		checkpoint: checkpoint,
		log:        log.With("component", "progress"),
	}
}

// Run reports until ctx is cancelled.
func (r *Reporter) Run(ctx context.Context) {
	r.lastTime = time.Now()
	r.lastCount = r.counter.Load()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.tick(ctx, now)
		}
	}
}

func (r *Reporter) tick(ctx context.Context, now time.Time) Rate {
	total := r.counter.Load()
	rate := RateBetween(total-r.lastCount, now.Sub(r.lastTime))

	r.log.Info("Progress",
		"rows_since_last", rate.Rows,
		"rows_per_minute", roundTo2(rate.RowsPerMinute),
		"total", total)

	if r.checkpoint != nil {
		if err := r.checkpoint.SaveProgress(ctx, total); err != nil {
			r.log.Warn("Failed to save progress checkpoint", "error", err)
		}
	}

	r.lastTime = now
	r.lastCount = total
	return rate
}

// Summary is the final accounting of a run.
type Summary struct {
	Total   int64
	Runs    int64
	Elapsed time.Duration
}

// Rate returns the overall rows/minute of the run.
func (s Summary) Rate() Rate {
	return RateBetween(s.Total, s.Elapsed)
}

// Log writes the aggregate totals.
func (s Summary) Log(log *slog.Logger, job string) {
	log.Info("Run finished",
		"job", job,
		"total_rows", s.Total,
		"worker_runs", s.Runs,
		"minutes", roundTo2(s.Elapsed.Minutes()),
		"rows_per_minute", roundTo2(s.Rate().RowsPerMinute))
}

func roundTo2(f float64) float64 {
	return float64(int64(f*100+0.5)) / 100
}
