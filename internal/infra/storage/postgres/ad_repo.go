package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/vietddude/sweeper/internal/core/domain"
	"github.com/vietddude/sweeper/internal/infra/storage/retry"
	"github.com/vietddude/sweeper/internal/sweep/metrics"
)

// claimAdsQuery selects and soft-deletes in one statement so no other worker
// can claim the same rows between the select and the update.
const claimAdsQuery = `
	WITH to_update AS (
		SELECT id
		FROM collection_ad
		WHERE created_at < $1
		AND deleted = false
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	)
	UPDATE collection_ad
	SET deleted = true
	FROM to_update
	WHERE collection_ad.id = to_update.id
	RETURNING collection_ad.id
`

const countEligibleAdsQuery = `
	SELECT count(*)
	FROM collection_ad
	WHERE created_at < $1
	AND deleted = false
`

// AdRepo soft-deletes ads older than a cutoff in claim mode.
type AdRepo struct {
	exec   *retry.Executor
	cutoff time.Time
}

// NewAdRepo claims ads created before cutoff. The cutoff is fixed for the
// repo's lifetime so the eligible set only shrinks during a run.
func NewAdRepo(exec *retry.Executor, cutoff time.Time) *AdRepo {
	return &AdRepo{exec: exec, cutoff: cutoff}
}

func (r *AdRepo) Claim(ctx context.Context, limit int) (domain.MutationResult, error) {
	var ids []int64
	if err := r.exec.Select(ctx, "claim_ads", &ids, claimAdsQuery, r.cutoff, limit); err != nil {
		return domain.MutationResult{}, fmt.Errorf("claim ads: %w", err)
	}

	metrics.DBBatchSize.WithLabelValues("claim_ads").Observe(float64(len(ids)))

	keys := make([]domain.WorkUnit, len(ids))
	for i, id := range ids {
		keys[i] = domain.WorkUnit(id)
	}
	return domain.MutationResult{Count: int64(len(ids)), Keys: keys}, nil
}

// Eligible counts ads a claim could still pick up.
func (r *AdRepo) Eligible(ctx context.Context) (int64, error) {
	var n int64
	if err := r.exec.Get(ctx, "count_ads", &n, countEligibleAdsQuery, r.cutoff); err != nil {
		return 0, fmt.Errorf("count eligible ads: %w", err)
	}
	return n, nil
}
