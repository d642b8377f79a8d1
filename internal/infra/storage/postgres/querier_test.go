package postgres

import (
	"context"
	"database/sql"

	"github.com/vietddude/sweeper/internal/infra/storage/retry"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeResult int64

func (r fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r fakeResult) RowsAffected() (int64, error) { return int64(r), nil }

// scriptedQuerier fails with the queued errors before succeeding and records
// every statement it was handed.
type scriptedQuerier struct {
	errs     []error
	affected int64
	rows     []int64

	calls   int
	queries []string
	args    [][]any
}

func (q *scriptedQuerier) next(query string, args []any) error {
	q.calls++
	q.queries = append(q.queries, query)
	q.args = append(q.args, args)
	if len(q.errs) > 0 {
		err := q.errs[0]
		q.errs = q.errs[1:]
		return err
	}
	return nil
}

func (q *scriptedQuerier) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if err := q.next(query, args); err != nil {
		return nil, err
	}
	return fakeResult(q.affected), nil
}

func (q *scriptedQuerier) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	if err := q.next(query, args); err != nil {
		return err
	}
	out := dest.(*[]int64)
	*out = append(*out, q.rows...)
	return nil
}

func (q *scriptedQuerier) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	if err := q.next(query, args); err != nil {
		return err
	}
	if n, ok := dest.(*int64); ok {
		*n = int64(len(q.rows))
	}
	return nil
}

// newScriptedExecutor retries immediately, up to three times.
func newScriptedExecutor(q *scriptedQuerier) *retry.Executor {
	return retry.NewExecutor(q, retry.Config{MaxRetries: 3})
}
