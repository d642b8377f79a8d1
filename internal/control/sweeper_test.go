package control

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/vietddude/sweeper/internal/core/config"
	"github.com/vietddude/sweeper/internal/core/domain"
	"github.com/vietddude/sweeper/internal/infra/storage/memory"
	"github.com/vietddude/sweeper/internal/sweep/anonymize"
	"github.com/vietddude/sweeper/internal/sweep/worker"
)

func newMemorySweeper(t *testing.T) *Sweeper {
	t.Helper()
	cfg := config.Default()
	cfg.Database.Driver = DriverMemory
	cfg.Sweep = worker.Config{Workers: 4, ChunkSize: 25, PageSize: 40, ReportInterval: time.Hour}
	cfg.Anonymize.Tables = []anonymize.TableSpec{{
		Name:    "collection_page",
		Columns: []anonymize.ColumnSpec{{Name: "page_name", Kind: anonymize.KindText}},
	}}

	s, err := NewSweeper(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewSweeper failed: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(context.Background()); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	})
	return s
}

// seed creates pages 1..pages with adsPer ads each. Ads of odd pages are old
// enough to purge, ads of even pages are fresh.
func seed(store *memory.MemoryStorage, pages, adsPer int) {
	old := time.Now().Add(-60 * 24 * time.Hour)
	fresh := time.Now()
	id := 0
	for p := 1; p <= pages; p++ {
		store.AddPage(memory.Page{PageID: domain.WorkUnit(p)})
		created := fresh
		if p%2 == 1 {
			created = old
		}
		for i := 0; i < adsPer; i++ {
			id++
			store.AddAd(memory.Ad{ID: domain.WorkUnit(id), PageID: domain.WorkUnit(p), CreatedAt: created})
		}
	}
}

func TestSweeper_MemoryDriver(t *testing.T) {
	s := newMemorySweeper(t)
	if s.Store() == nil {
		t.Fatal("expected memory storage")
	}
	if err := s.Migrate(context.Background()); !errors.Is(err, ErrNoDatabase) {
		t.Errorf("Migrate err = %v, want ErrNoDatabase", err)
	}
}

func TestSweeper_NoDatabaseRefusesJobs(t *testing.T) {
	cfg := config.Default()
	cfg.Database.URL = ""
	cfg.Database.Host = ""

	s, err := NewSweeper(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewSweeper failed: %v", err)
	}
	defer s.Close(context.Background())

	if s.Store() != nil {
		t.Fatal("memory storage must be opted into explicitly")
	}
	ctx := context.Background()
	tests := []struct {
		name string
		run  func() error
	}{
		{"purge-ads", func() error { _, err := s.PurgeAds(ctx); return err }},
		{"purge-pages", func() error { _, err := s.PurgePages(ctx); return err }},
		{"anonymize", func() error { _, err := s.Anonymize(ctx); return err }},
		{"status", func() error { _, err := s.Status(ctx); return err }},
		{"migrate", func() error { return s.Migrate(ctx) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(); !errors.Is(err, ErrNoDatabase) {
				t.Errorf("err = %v, want ErrNoDatabase", err)
			}
		})
	}
}

func TestSweeper_PurgeAdsThenPages(t *testing.T) {
	s := newMemorySweeper(t)
	seed(s.Store(), 100, 3)
	ctx := context.Background()

	st, err := s.Status(ctx)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if st.EligibleAds != 150 || st.EligiblePages != 0 {
		t.Errorf("status before = %+v, want 150 ads / 0 pages", st)
	}

	ads, err := s.PurgeAds(ctx)
	if err != nil {
		t.Fatalf("PurgeAds failed: %v", err)
	}
	if ads.Total != 150 {
		t.Errorf("purged ads = %d, want 150", ads.Total)
	}

	pages, err := s.PurgePages(ctx)
	if err != nil {
		t.Fatalf("PurgePages failed: %v", err)
	}
	if pages.Total != 50 {
		t.Errorf("purged pages = %d, want 50", pages.Total)
	}
	for _, p := range s.Store().Pages() {
		if p.Deleted != (p.PageID%2 == 1) {
			t.Fatalf("page %d deleted = %v", p.PageID, p.Deleted)
		}
		if p.Mutations > 1 {
			t.Fatalf("page %d mutated %d times", p.PageID, p.Mutations)
		}
	}

	// A second pass finds nothing new.
	again, err := s.PurgePages(ctx)
	if err != nil {
		t.Fatalf("second PurgePages failed: %v", err)
	}
	if again.Total != 0 {
		t.Errorf("second pass mutated %d pages, want 0", again.Total)
	}

	job, ok := s.Monitor().Job(JobPurgePages)
	if !ok || job.Running || job.LastError != "" {
		t.Errorf("health for purge-pages = %+v", job)
	}
}

func TestSweeper_Anonymize(t *testing.T) {
	s := newMemorySweeper(t)
	for i := 1; i <= 60; i++ {
		s.Store().AddRecord("collection_page", domain.WorkUnit(i), sql.NullString{String: "Acme Page", Valid: true})
	}
	s.Store().AddRecord("collection_page", 61, sql.NullString{})

	sum, err := s.Anonymize(context.Background())
	if err != nil {
		t.Fatalf("Anonymize failed: %v", err)
	}
	if sum.Total != 61 {
		t.Errorf("total = %d, want 61", sum.Total)
	}

	vals, _ := s.Store().Record("collection_page", 61)
	if vals[0].Valid {
		t.Errorf("NULL page name became %q", vals[0].String)
	}
	vals, _ = s.Store().Record("collection_page", 1)
	if len(vals[0].String) != len("Acme Page") || vals[0].String[4] != ' ' {
		t.Errorf("page name = %q, want same shape", vals[0].String)
	}

	skipped, err := s.Anonymize(context.Background(), "user")
	if err != nil {
		t.Fatalf("filtered Anonymize failed: %v", err)
	}
	if skipped.Total != 0 {
		t.Errorf("filtered run touched %d rows, want 0", skipped.Total)
	}
}

func TestSweeper_CancelledContext(t *testing.T) {
	s := newMemorySweeper(t)
	seed(s.Store(), 10, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.PurgeAds(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	job, _ := s.Monitor().Job(JobPurgeAds)
	if job.LastError == "" {
		t.Error("expected the failure to be recorded in health")
	}
}
