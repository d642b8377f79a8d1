package storage

import (
	"context"
	"errors"

	"github.com/vietddude/sweeper/internal/core/domain"
)

var (
	// ErrEmptyBatch is returned when a mutation is asked to apply an empty batch
	ErrEmptyBatch = errors.New("empty batch")
)

// PageScanner paginates a read-only selection by a monotonic key
type PageScanner interface {
	// NextPage returns up to pageSize keys strictly greater than after, ascending.
	// A page shorter than pageSize is the last one.
	NextPage(ctx context.Context, after domain.WorkUnit, pageSize int) (domain.Batch, error)
}

// ChunkMutator applies one bounded mutation to an explicit list of keys
type ChunkMutator interface {
	// Apply mutates the rows in batch and reports how many actually changed
	Apply(ctx context.Context, batch domain.Batch) (domain.MutationResult, error)
}

// Claimer atomically selects and mutates up to limit eligible rows, skipping
// rows locked by concurrent claimants
type Claimer interface {
	// Claim returns the rows it mutated; a zero count means nothing was left
	Claim(ctx context.Context, limit int) (domain.MutationResult, error)
}

// RowSource reads rows for bulk field mutation in key order
type RowSource interface {
	// ReadRows returns up to limit rows with key greater than after
	ReadRows(ctx context.Context, after domain.WorkUnit, limit int) ([]domain.Row, error)
}

// RowWriter writes transformed rows back in one round trip
type RowWriter interface {
	// WriteRows applies all column values of rows and returns rows affected
	WriteRows(ctx context.Context, rows []domain.Row) (int64, error)
}
