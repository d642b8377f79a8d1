package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vietddude/sweeper/internal/infra/storage/retry"
)

func TestAdRepoClaim(t *testing.T) {
	cutoff := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	q := &scriptedQuerier{rows: []int64{11, 12, 15}}
	repo := NewAdRepo(newScriptedExecutor(q), cutoff)

	res, err := repo.Claim(context.Background(), 250)
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if q.calls != 1 || q.queries[0] != claimAdsQuery {
		t.Fatalf("expected one claim statement, got %d: %v", q.calls, q.queries)
	}
	args := q.args[0]
	if len(args) != 2 || args[0] != cutoff || args[1] != 250 {
		t.Errorf("args = %v, want [%v 250]", args, cutoff)
	}
	if res.Count != 3 || len(res.Keys) != 3 || res.Keys[0] != 11 || res.Keys[2] != 15 {
		t.Errorf("result = %+v, want keys 11,12,15", res)
	}
}

func TestAdRepoClaimNothingLeft(t *testing.T) {
	repo := NewAdRepo(newScriptedExecutor(&scriptedQuerier{}), time.Now())

	res, err := repo.Claim(context.Background(), 250)
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if res.Count != 0 || len(res.Keys) != 0 {
		t.Errorf("result = %+v, want empty", res)
	}
}

func TestAdRepoClaimRetriesDeadlock(t *testing.T) {
	q := &scriptedQuerier{
		errs: []error{&pgconn.PgError{Code: retry.CodeDeadlockDetected}},
		rows: []int64{1, 2},
	}
	repo := NewAdRepo(newScriptedExecutor(q), time.Now())

	res, err := repo.Claim(context.Background(), 2)
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if q.calls != 2 {
		t.Errorf("expected 2 executions, got %d", q.calls)
	}
	if res.Count != 2 {
		t.Errorf("count = %d, want 2 (no rows from the failed attempt)", res.Count)
	}
}

func TestAdRepoClaimFatalKeepsCode(t *testing.T) {
	q := &scriptedQuerier{errs: []error{&pgconn.PgError{Code: "42P01", Message: "relation does not exist"}}}
	repo := NewAdRepo(newScriptedExecutor(q), time.Now())

	_, err := repo.Claim(context.Background(), 250)
	if err == nil {
		t.Fatal("expected error")
	}
	if q.calls != 1 {
		t.Errorf("fatal error retried: %d executions", q.calls)
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || retry.Code(err) != "42P01" {
		t.Errorf("err = %v, want SQLSTATE 42P01 through the wrap", err)
	}
	if retry.Classify(err) != retry.Fatal {
		t.Errorf("class = %s, want fatal", retry.Classify(err))
	}
}

func TestAdRepoEligible(t *testing.T) {
	cutoff := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	q := &scriptedQuerier{rows: []int64{1, 2, 3, 4}}
	repo := NewAdRepo(newScriptedExecutor(q), cutoff)

	n, err := repo.Eligible(context.Background())
	if err != nil {
		t.Fatalf("Eligible failed: %v", err)
	}
	if n != 4 || q.args[0][0] != cutoff {
		t.Errorf("n = %d args = %v, want 4 with cutoff", n, q.args[0])
	}
}
