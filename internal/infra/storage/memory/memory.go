package memory

import (
	"context"
	"database/sql"
	"slices"
	"sync"
	"time"

	"github.com/vietddude/sweeper/internal/core/domain"
	"github.com/vietddude/sweeper/internal/infra/storage"
)

// Ad mirrors a collection_ad row.
type Ad struct {
	ID        domain.WorkUnit
	PageID    domain.WorkUnit
	CreatedAt time.Time
	Deleted   bool
	Mutations int // times the row was flipped to deleted
}

// Page mirrors a collection_page row.
type Page struct {
	PageID    domain.WorkUnit
	Deleted   bool
	Mutations int
}

// MemoryStorage is an in-process stand-in for the tables the sweeper mutates.
// A single mutex plays the role of row locks, so every claim is atomic.
type MemoryStorage struct {
	ads     map[domain.WorkUnit]*Ad
	pages   map[domain.WorkUnit]*Page
	records map[string]map[domain.WorkUnit][]sql.NullString // by table
	mu      sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		ads:     make(map[domain.WorkUnit]*Ad),
		pages:   make(map[domain.WorkUnit]*Page),
		records: make(map[string]map[domain.WorkUnit][]sql.NullString),
	}
}

// AddAd inserts or replaces an ad.
func (s *MemoryStorage) AddAd(ad Ad) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := ad
	s.ads[ad.ID] = &a
}

// AddPage inserts or replaces a page.
func (s *MemoryStorage) AddPage(p Page) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pg := p
	s.pages[p.PageID] = &pg
}

// AddRecord inserts a row of table for bulk field mutation.
func (s *MemoryStorage) AddRecord(table string, key domain.WorkUnit, values ...sql.NullString) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.records[table]
	if !ok {
		rows = make(map[domain.WorkUnit][]sql.NullString)
		s.records[table] = rows
	}
	rows[key] = slices.Clone(values)
}

// Ad returns a copy of the ad with the given id.
func (s *MemoryStorage) Ad(id domain.WorkUnit) (Ad, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.ads[id]
	if !ok {
		return Ad{}, false
	}
	return *a, true
}

// Ads returns copies of all ads ordered by id.
func (s *MemoryStorage) Ads() []Ad {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Ad, 0, len(s.ads))
	for _, a := range s.ads {
		out = append(out, *a)
	}
	slices.SortFunc(out, func(a, b Ad) int { return compareKeys(a.ID, b.ID) })
	return out
}

// Pages returns copies of all pages ordered by id.
func (s *MemoryStorage) Pages() []Page {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Page, 0, len(s.pages))
	for _, p := range s.pages {
		out = append(out, *p)
	}
	slices.SortFunc(out, func(a, b Page) int { return compareKeys(a.PageID, b.PageID) })
	return out
}

// Record returns a copy of the values stored under key in table.
func (s *MemoryStorage) Record(table string, key domain.WorkUnit) ([]sql.NullString, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.records[table][key]
	return slices.Clone(v), ok
}

func compareKeys(a, b domain.WorkUnit) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func sortedKeys[V any](m map[domain.WorkUnit]V) []domain.WorkUnit {
	keys := make([]domain.WorkUnit, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// -----------------------------------------------------------------------------
// Ad Repository (claim mode)
// -----------------------------------------------------------------------------

type AdRepo struct {
	store  *MemoryStorage
	cutoff time.Time
}

// NewAdRepo claims ads created before cutoff. A zero cutoff matches every ad.
func NewAdRepo(store *MemoryStorage, cutoff time.Time) *AdRepo {
	return &AdRepo{store: store, cutoff: cutoff}
}

func (r *AdRepo) Claim(ctx context.Context, limit int) (domain.MutationResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.MutationResult{}, err
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var res domain.MutationResult
	for _, id := range sortedKeys(r.store.ads) {
		if len(res.Keys) >= limit {
			break
		}
		a := r.store.ads[id]
		if a.Deleted || (!r.cutoff.IsZero() && !a.CreatedAt.Before(r.cutoff)) {
			continue
		}
		a.Deleted = true
		a.Mutations++
		res.Keys = append(res.Keys, id)
	}
	res.Count = int64(len(res.Keys))
	return res, nil
}

// Eligible counts ads a claim could still pick up.
func (r *AdRepo) Eligible(ctx context.Context) (int64, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var n int64
	for _, a := range r.store.ads {
		if !a.Deleted && (r.cutoff.IsZero() || a.CreatedAt.Before(r.cutoff)) {
			n++
		}
	}
	return n, nil
}

// -----------------------------------------------------------------------------
// Page Repository (cursor scan + key-list mutation)
// -----------------------------------------------------------------------------

type PageRepo struct {
	store *MemoryStorage
}

func NewPageRepo(store *MemoryStorage) *PageRepo {
	return &PageRepo{store: store}
}

// NextPage returns page ids whose ads are all deleted, mirroring the
// GROUP BY ... HAVING predicate of the Postgres scanner.
func (r *PageRepo) NextPage(ctx context.Context, after domain.WorkUnit, pageSize int) (domain.Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	total := make(map[domain.WorkUnit]int)
	deleted := make(map[domain.WorkUnit]int)
	for _, a := range r.store.ads {
		if a.PageID <= after {
			continue
		}
		total[a.PageID]++
		if a.Deleted {
			deleted[a.PageID]++
		}
	}

	page := make(domain.Batch, 0, pageSize)
	for _, id := range sortedKeys(total) {
		if len(page) >= pageSize {
			break
		}
		if total[id] == deleted[id] {
			page = append(page, id)
		}
	}
	return page, nil
}

// Apply soft-deletes the pages in batch that are not deleted yet.
func (r *PageRepo) Apply(ctx context.Context, batch domain.Batch) (domain.MutationResult, error) {
	if len(batch) == 0 {
		return domain.MutationResult{}, storage.ErrEmptyBatch
	}
	if err := ctx.Err(); err != nil {
		return domain.MutationResult{}, err
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var res domain.MutationResult
	for _, id := range batch {
		p, ok := r.store.pages[id]
		if !ok || p.Deleted {
			continue
		}
		p.Deleted = true
		p.Mutations++
		res.Count++
	}
	return res, nil
}

// -----------------------------------------------------------------------------
// Record Repository (bulk field mutation)
// -----------------------------------------------------------------------------

type RecordRepo struct {
	store *MemoryStorage
	table string
}

// NewRecordRepo reads and writes the rows of one table.
func NewRecordRepo(store *MemoryStorage, table string) *RecordRepo {
	return &RecordRepo{store: store, table: table}
}

func (r *RecordRepo) ReadRows(ctx context.Context, after domain.WorkUnit, limit int) ([]domain.Row, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	records := r.store.records[r.table]
	rows := make([]domain.Row, 0, limit)
	for _, k := range sortedKeys(records) {
		if len(rows) >= limit {
			break
		}
		if k <= after {
			continue
		}
		rows = append(rows, domain.Row{Key: k, Values: slices.Clone(records[k])})
	}
	return rows, nil
}

func (r *RecordRepo) WriteRows(ctx context.Context, rows []domain.Row) (int64, error) {
	if len(rows) == 0 {
		return 0, storage.ErrEmptyBatch
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	records := r.store.records[r.table]
	var n int64
	for _, row := range rows {
		if _, ok := records[row.Key]; !ok {
			continue
		}
		records[row.Key] = slices.Clone(row.Values)
		n++
	}
	return n, nil
}
