package postgres

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"github.com/vietddude/sweeper/internal/core/domain"
	"github.com/vietddude/sweeper/internal/infra/storage"
	"github.com/vietddude/sweeper/internal/infra/storage/retry"
	"github.com/vietddude/sweeper/internal/sweep/metrics"
)

// deletedPagesQuery pages through pages whose ads are all soft-deleted. The
// predicate only grows behind the cursor, so a static scan is safe.
const deletedPagesQuery = `
	SELECT ca.page_id
	FROM collection_ad ca
	WHERE ca.page_id > $1
	GROUP BY ca.page_id
	HAVING COUNT(*) = SUM(CASE WHEN ca.deleted THEN 1 ELSE 0 END)
	ORDER BY ca.page_id
	LIMIT $2
`

const deletePagesQuery = `
	UPDATE collection_page
	SET deleted = true
	WHERE page_id = ANY($1::bigint[])
	AND deleted = false
`

// PageRepo scans fully deleted pages and soft-deletes them in key-list mode.
type PageRepo struct {
	exec *retry.Executor
}

func NewPageRepo(exec *retry.Executor) *PageRepo {
	return &PageRepo{exec: exec}
}

func (r *PageRepo) NextPage(ctx context.Context, after domain.WorkUnit, pageSize int) (domain.Batch, error) {
	var ids []int64
	if err := r.exec.Select(ctx, "scan_pages", &ids, deletedPagesQuery, int64(after), pageSize); err != nil {
		return nil, fmt.Errorf("scan pages after %d: %w", after, err)
	}

	page := make(domain.Batch, len(ids))
	for i, id := range ids {
		page[i] = domain.WorkUnit(id)
	}
	return page, nil
}

func (r *PageRepo) Apply(ctx context.Context, batch domain.Batch) (domain.MutationResult, error) {
	if len(batch) == 0 {
		return domain.MutationResult{}, storage.ErrEmptyBatch
	}

	metrics.DBBatchSize.WithLabelValues("delete_pages").Observe(float64(len(batch)))

	n, err := r.exec.Exec(ctx, "delete_pages", deletePagesQuery, pq.Array(batch.Int64s()))
	if err != nil {
		return domain.MutationResult{}, fmt.Errorf("delete pages %d..%d: %w", batch[0], batch.Last(), err)
	}
	return domain.MutationResult{Count: n}, nil
}
