package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vietddude/sweeper/internal/core/domain"
	"github.com/vietddude/sweeper/internal/infra/storage"
)

// ErrCursorStalled is returned when a scanner emits a key at or below the cursor.
var ErrCursorStalled = errors.New("scanner did not advance past cursor")

// ScanAll pages through scanner until a page shorter than pageSize and
// returns every emitted key in ascending order.
func ScanAll(ctx context.Context, scanner storage.PageScanner, pageSize int) ([]domain.WorkUnit, error) {
	if pageSize <= 0 {
		return nil, fmt.Errorf("invalid page size %d", pageSize)
	}
	log := slog.Default().With("component", "scan")

	var (
		all    []domain.WorkUnit
		cursor domain.WorkUnit
	)
	for {
		page, err := scanner.NextPage(ctx, cursor, pageSize)
		if err != nil {
			return nil, err
		}
		for _, k := range page {
			if k <= cursor {
				return nil, fmt.Errorf("%w: key %d after %d", ErrCursorStalled, k, cursor)
			}
			cursor = k
		}
		all = append(all, page...)

		if len(page) < pageSize {
			break
		}
		log.Info("Fetched keys so far", "count", len(all), "cursor", cursor)
	}

	log.Info("Fetched keys in total", "count", len(all))
	return all, nil
}
