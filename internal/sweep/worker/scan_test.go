package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/vietddude/sweeper/internal/core/domain"
	"github.com/vietddude/sweeper/internal/infra/storage"
	"github.com/vietddude/sweeper/internal/infra/storage/memory"
)

// pageRecorder keeps every page a scanner returned.
type pageRecorder struct {
	inner storage.PageScanner
	pages []domain.Batch
}

func (r *pageRecorder) NextPage(ctx context.Context, after domain.WorkUnit, pageSize int) (domain.Batch, error) {
	page, err := r.inner.NextPage(ctx, after, pageSize)
	r.pages = append(r.pages, page)
	return page, err
}

func TestScanAllTermination(t *testing.T) {
	const pageSize = 100
	store := memory.NewMemoryStorage()
	want := seedDeletedPages(store, 3*pageSize+7)
	// A page with a live ad never matches the predicate.
	store.AddAd(memory.Ad{ID: 1_000_001, PageID: 1_000_000})

	rec := &pageRecorder{inner: memory.NewPageRepo(store)}
	keys, err := ScanAll(context.Background(), rec, pageSize)
	if err != nil {
		t.Fatalf("ScanAll failed: %v", err)
	}

	if len(rec.pages) != 4 {
		t.Fatalf("expected 4 pages, got %d", len(rec.pages))
	}
	for i, p := range rec.pages {
		last := i == len(rec.pages)-1
		if short := len(p) < pageSize; short != last {
			t.Errorf("page %d: len=%d, last=%v", i, len(p), last)
		}
	}

	seen := make(map[domain.WorkUnit]int)
	for i, p := range rec.pages {
		for _, k := range p {
			if prev, ok := seen[k]; ok {
				t.Fatalf("key %d emitted on pages %d and %d", k, prev, i)
			}
			seen[k] = i
		}
	}

	if len(keys) != len(want) {
		t.Fatalf("expected %d keys, got %d", len(want), len(keys))
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("key %d: got %d, want %d", i, keys[i], want[i])
		}
	}
}

func TestScanAllExactMultiple(t *testing.T) {
	store := memory.NewMemoryStorage()
	seedDeletedPages(store, 200)

	rec := &pageRecorder{inner: memory.NewPageRepo(store)}
	keys, err := ScanAll(context.Background(), rec, 100)
	if err != nil {
		t.Fatalf("ScanAll failed: %v", err)
	}
	if len(keys) != 200 {
		t.Errorf("expected 200 keys, got %d", len(keys))
	}
	// Two full pages then an empty one.
	if len(rec.pages) != 3 || len(rec.pages[2]) != 0 {
		t.Errorf("unexpected pages: %d", len(rec.pages))
	}
}

type stuckScanner struct{}

func (stuckScanner) NextPage(ctx context.Context, after domain.WorkUnit, pageSize int) (domain.Batch, error) {
	page := make(domain.Batch, pageSize)
	for i := range page {
		page[i] = domain.WorkUnit(i + 1)
	}
	return page, nil
}

func TestScanAllDetectsStalledCursor(t *testing.T) {
	_, err := ScanAll(context.Background(), stuckScanner{}, 10)
	if !errors.Is(err, ErrCursorStalled) {
		t.Fatalf("expected ErrCursorStalled, got %v", err)
	}
}

func TestScanAllInvalidPageSize(t *testing.T) {
	if _, err := ScanAll(context.Background(), stuckScanner{}, 0); err == nil {
		t.Fatal("expected error for zero page size")
	}
}
