package retry

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// Class determines how to handle a database error.
type Class int

const (
	Retryable Class = iota
	Fatal
)

func (c Class) String() string {
	if c == Retryable {
		return "retryable"
	}
	return "fatal"
}

// SQLSTATE codes treated as transient contention.
const (
	CodeDeadlockDetected     = "40P01"
	CodeSerializationFailure = "40001"
	CodeLockNotAvailable     = "55P03"
	CodeAdminShutdown        = "57P01"
)

var retryableCodes = map[string]struct{}{
	CodeDeadlockDetected:     {},
	CodeSerializationFailure: {},
	CodeLockNotAvailable:     {},
	CodeAdminShutdown:        {},
}

// Code extracts the SQLSTATE from a pgx or lib/pq error. It returns "" when
// the error carries no code.
func Code(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

// Classify maps a database error to Retryable or Fatal.
//
// Errors without a SQLSTATE are Retryable: transport failures surface that
// way and have been transient in practice. This also retries a misconfigured
// connection string until the budget runs out.
func Classify(err error) Class {
	if err == nil {
		return Fatal
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Fatal
	}

	code := Code(err)
	if code == "" {
		return Retryable
	}
	if _, ok := retryableCodes[code]; ok {
		return Retryable
	}
	return Fatal
}
