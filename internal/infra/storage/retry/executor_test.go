package retry

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeResult int64

func (r fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r fakeResult) RowsAffected() (int64, error) { return int64(r), nil }

// scriptedQuerier fails with the queued errors before succeeding.
type scriptedQuerier struct {
	errs     []error
	calls    int
	affected int64
	rows     []int64
}

func (q *scriptedQuerier) next() error {
	q.calls++
	if len(q.errs) > 0 {
		err := q.errs[0]
		q.errs = q.errs[1:]
		return err
	}
	return nil
}

func (q *scriptedQuerier) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if err := q.next(); err != nil {
		return nil, err
	}
	return fakeResult(q.affected), nil
}

func (q *scriptedQuerier) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	out := dest.(*[]int64)
	// A partial scan lands before the error surfaces.
	*out = append(*out, q.rows...)
	return q.next()
}

func (q *scriptedQuerier) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	return q.next()
}

func newTestExecutor(q Querier, cfg Config) (*Executor, *[]time.Duration) {
	e := NewExecutor(q, cfg)
	var slept []time.Duration
	e.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return e, &slept
}

func repeat(err error, n int) []error {
	out := make([]error, n)
	for i := range out {
		out[i] = err
	}
	return out
}

// =============================================================================
// Tests
// =============================================================================

func TestExecutorRetriesRetryableUpToBudget(t *testing.T) {
	codes := []string{CodeDeadlockDetected, CodeSerializationFailure, CodeLockNotAvailable, ""}
	cfg := Config{MaxRetries: 6, Delay: 10 * time.Second}

	for _, code := range codes {
		t.Run("code="+code, func(t *testing.T) {
			var original error = &pgconn.PgError{Code: code, Message: "contention"}
			if code == "" {
				original = errors.New("connection reset by peer")
			}
			q := &scriptedQuerier{errs: repeat(original, 100)}
			e, slept := newTestExecutor(q, cfg)

			_, err := e.Exec(context.Background(), "test", "UPDATE t SET x = 1")
			if err != original {
				t.Fatalf("expected original error unchanged, got %v", err)
			}
			if q.calls != cfg.MaxRetries+1 {
				t.Errorf("expected %d executions, got %d", cfg.MaxRetries+1, q.calls)
			}
			if len(*slept) != cfg.MaxRetries {
				t.Errorf("expected %d sleeps, got %d", cfg.MaxRetries, len(*slept))
			}
			for _, d := range *slept {
				if d != cfg.Delay {
					t.Errorf("expected constant delay %v, got %v", cfg.Delay, d)
				}
			}
		})
	}
}

func TestExecutorFatalNoRetry(t *testing.T) {
	for _, code := range []string{"23505", "42P01", "42601", "22P02"} {
		t.Run(code, func(t *testing.T) {
			original := &pgconn.PgError{Code: code}
			q := &scriptedQuerier{errs: repeat(original, 10)}
			e, slept := newTestExecutor(q, Config{MaxRetries: 8, Delay: time.Second})

			_, err := e.Exec(context.Background(), "test", "UPDATE t SET x = 1")
			if err != original {
				t.Fatalf("expected original error, got %v", err)
			}
			if q.calls != 1 {
				t.Errorf("expected a single execution, got %d", q.calls)
			}
			if len(*slept) != 0 {
				t.Errorf("expected no sleeps, got %d", len(*slept))
			}
		})
	}
}

func TestExecutorRecoversAfterTransientFailures(t *testing.T) {
	deadlock := &pgconn.PgError{Code: CodeDeadlockDetected}
	q := &scriptedQuerier{errs: []error{deadlock, deadlock}, affected: 250}
	e, slept := newTestExecutor(q, Config{MaxRetries: 6, Delay: time.Second})

	n, err := e.Exec(context.Background(), "test", "UPDATE t SET x = 1")
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if n != 250 {
		t.Errorf("expected 250 rows, got %d", n)
	}
	if q.calls != 3 {
		t.Errorf("expected 3 executions, got %d", q.calls)
	}
	if len(*slept) != 2 {
		t.Errorf("expected 2 sleeps, got %d", len(*slept))
	}
}

func TestExecutorZeroBudget(t *testing.T) {
	deadlock := &pgconn.PgError{Code: CodeDeadlockDetected}
	q := &scriptedQuerier{errs: []error{deadlock}}
	e, _ := newTestExecutor(q, Config{MaxRetries: 0})

	if _, err := e.Exec(context.Background(), "test", "SELECT 1"); err != deadlock {
		t.Fatalf("expected deadlock error, got %v", err)
	}
	if q.calls != 1 {
		t.Errorf("expected 1 execution, got %d", q.calls)
	}
}

func TestExecutorSelectResetsDestination(t *testing.T) {
	deadlock := &pgconn.PgError{Code: CodeDeadlockDetected}
	q := &scriptedQuerier{errs: []error{deadlock}, rows: []int64{1, 2, 3}}
	e, _ := newTestExecutor(q, Config{MaxRetries: 2})

	var keys []int64
	if err := e.Select(context.Background(), "test", &keys, "SELECT id FROM t"); err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if len(keys) != 3 {
		t.Errorf("expected 3 keys after retry, got %d: %v", len(keys), keys)
	}
}

func TestExecutorStopsOnCancelledSleep(t *testing.T) {
	deadlock := &pgconn.PgError{Code: CodeDeadlockDetected}
	q := &scriptedQuerier{errs: repeat(deadlock, 10)}
	e := NewExecutor(q, Config{MaxRetries: 5, Delay: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Exec(ctx, "test", "UPDATE t SET x = 1")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if q.calls != 1 {
		t.Errorf("expected 1 execution, got %d", q.calls)
	}
}

func TestExecutorDo(t *testing.T) {
	e, _ := newTestExecutor(nil, Config{MaxRetries: 3})
	attempts := 0
	err := e.Do(context.Background(), "custom", func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return &pgconn.PgError{Code: CodeSerializationFailure}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}
