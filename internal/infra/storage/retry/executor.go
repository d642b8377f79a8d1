package retry

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/vietddude/sweeper/internal/sweep/metrics"
)

// Config defines retry behavior. The delay is constant across attempts.
type Config struct {
	MaxRetries int           `yaml:"max_retries"`
	Delay      time.Duration `yaml:"delay"`
}

// DefaultConfig provides the executor defaults.
var DefaultConfig = Config{
	MaxRetries: 8,
	Delay:      5 * time.Second,
}

// Querier is the subset of *sqlx.DB the executor decorates.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	GetContext(ctx context.Context, dest any, query string, args ...any) error
}

// Executor re-runs statements that fail with transient contention errors.
// It holds no mutable state and is safe for concurrent use.
type Executor struct {
	q     Querier
	cfg   Config
	log   *slog.Logger
	sleep func(ctx context.Context, d time.Duration) error
}

// NewExecutor wraps q with the given retry policy.
func NewExecutor(q Querier, cfg Config) *Executor {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Executor{
		q:     q,
		cfg:   cfg,
		log:   slog.Default().With("component", "retry"),
		sleep: sleepContext,
	}
}

// Config returns the executor's retry policy.
func (e *Executor) Config() Config {
	return e.cfg
}

// Do runs fn, retrying it while it fails with a Retryable error and attempts
// remain. The error returned on failure is the one fn produced, unwrapped.
func (e *Executor) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	start := time.Now()
	defer func() {
		metrics.StatementLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	remaining := e.cfg.MaxRetries
	for {
		err := fn(ctx)
		if err == nil {
			metrics.StatementsTotal.WithLabelValues(op, "ok").Inc()
			return nil
		}

		code := Code(err)
		class := Classify(err)
		if class == Fatal && remaining > 0 {
			e.log.Warn("Non-retryable database error", "op", op, "code", code, "retries_left", remaining, "error", err)
		}
		if class == Fatal || remaining == 0 {
			metrics.StatementsTotal.WithLabelValues(op, "error").Inc()
			return err
		}

		e.log.Info("Transient database error, retrying",
			"op", op, "code", code, "retries_left", remaining, "delay", e.cfg.Delay)
		metrics.RetriesTotal.WithLabelValues(op, codeLabel(code)).Inc()

		if err := e.sleep(ctx, e.cfg.Delay); err != nil {
			return err
		}
		remaining--
	}
}

// Exec runs a statement and returns the number of rows it affected.
func (e *Executor) Exec(ctx context.Context, op, query string, args ...any) (int64, error) {
	var affected int64
	err := e.Do(ctx, op, func(ctx context.Context) error {
		res, err := e.q.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		affected = n
		return nil
	})
	return affected, err
}

// Select runs a query into a slice destination. The slice is truncated before
// every attempt so a failed partial scan never leaks rows into the result.
func (e *Executor) Select(ctx context.Context, op string, dest any, query string, args ...any) error {
	return e.Do(ctx, op, func(ctx context.Context) error {
		resetSlice(dest)
		return e.q.SelectContext(ctx, dest, query, args...)
	})
}

// Get runs a query expected to return exactly one row.
func (e *Executor) Get(ctx context.Context, op string, dest any, query string, args ...any) error {
	return e.Do(ctx, op, func(ctx context.Context) error {
		return e.q.GetContext(ctx, dest, query, args...)
	})
}

func resetSlice(dest any) {
	v := reflect.ValueOf(dest)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return
	}
	if elem := v.Elem(); elem.Kind() == reflect.Slice && elem.CanSet() {
		elem.SetLen(0)
	}
}

func codeLabel(code string) string {
	if code == "" {
		return "none"
	}
	return code
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
