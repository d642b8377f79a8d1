package anonymize

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vietddude/sweeper/internal/core/domain"
	"github.com/vietddude/sweeper/internal/core/progress"
	"github.com/vietddude/sweeper/internal/infra/storage"
	"github.com/vietddude/sweeper/internal/sweep/worker"
)

// Table rewrites every row of one table. Pages are read sequentially by key
// while the pool's slots transform and write earlier pages.
func Table(
	ctx context.Context,
	pool *worker.Pool,
	spec TableSpec,
	source storage.RowSource,
	writer storage.RowWriter,
) (progress.Summary, error) {
	if err := spec.Validate(); err != nil {
		return progress.Summary{}, err
	}
	pageSize := pool.Config().ChunkSize
	log := slog.Default().With("component", "anonymize", "table", spec.Name)
	log.Info("Starting table", "page_size", pageSize)

	produce := func(ctx context.Context, emit func([]domain.Row) error) error {
		var cursor domain.WorkUnit
		pages := 0
		for {
			rows, err := source.ReadRows(ctx, cursor, pageSize)
			if err != nil {
				return err
			}
			if len(rows) > 0 {
				pages++
				cursor = rows[len(rows)-1].Key
				if err := emit(rows); err != nil {
					return err
				}
			}
			if len(rows) < pageSize {
				log.Info("Finished reading table", "pages", pages)
				return nil
			}
		}
	}

	consume := func(ctx context.Context, rows []domain.Row) (int64, error) {
		out := make([]domain.Row, len(rows))
		for i, r := range rows {
			out[i] = Transform(r, spec.Columns)
		}
		n, err := writer.WriteRows(ctx, out)
		if err != nil {
			return 0, fmt.Errorf("table %s rows %d..%d: %w", spec.Name, rows[0].Key, rows[len(rows)-1].Key, err)
		}
		return n, nil
	}

	return worker.RunFeed(ctx, pool, produce, consume)
}
