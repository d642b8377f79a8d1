package health

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/sweeper/internal/core/domain"
	"github.com/vietddude/sweeper/internal/core/progress"
)

// Pinger checks that the database answers.
type Pinger interface {
	Health(ctx context.Context) error
}

type jobState struct {
	health  JobHealth
	counter *progress.Counter
	slots   map[int]domain.SlotState
}

// Monitor aggregates the state of running and finished jobs.
type Monitor struct {
	db   Pinger
	jobs map[string]*jobState
	mu   sync.RWMutex
}

// NewMonitor creates a new health monitor. db may be nil.
func NewMonitor(db Pinger) *Monitor {
	return &Monitor{
		db:   db,
		jobs: make(map[string]*jobState),
	}
}

// StartJob registers a run whose progress is read from counter.
func (m *Monitor) StartJob(job, runID string, counter *progress.Counter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job] = &jobState{
		health: JobHealth{
			Job:       job,
			RunID:     runID,
			Running:   true,
			StartedAt: time.Now(),
		},
		counter: counter,
		slots:   make(map[int]domain.SlotState),
	}
}

// OnSlotState records a slot transition. It matches worker.StateCallback.
func (m *Monitor) OnSlotState(job string, slot int, state domain.SlotState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	js, ok := m.jobs[job]
	if !ok {
		return
	}
	js.slots[slot] = state
}

// FinishJob marks the run done, keeping err as its last error.
func (m *Monitor) FinishJob(job string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	js, ok := m.jobs[job]
	if !ok {
		return
	}
	now := time.Now()
	js.health.Running = false
	js.health.FinishedAt = &now
	if err != nil {
		js.health.LastError = err.Error()
	}
}

// Job returns the current health of one job.
func (m *Monitor) Job(job string) (JobHealth, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	js, ok := m.jobs[job]
	if !ok {
		return JobHealth{}, false
	}
	return js.snapshot(), true
}

func (js *jobState) snapshot() JobHealth {
	h := js.health
	if js.counter != nil {
		h.TotalRows = js.counter.Load()
	}
	for _, s := range js.slots {
		if s == domain.SlotRunning || s == domain.SlotRespawning {
			h.ActiveSlots++
		}
	}
	h.Status = StatusHealthy
	if h.LastError != "" {
		h.Status = StatusDegraded
	}
	return h
}

// CheckHealth builds a report over the database and every known job.
func (m *Monitor) CheckHealth(ctx context.Context) HealthReport {
	report := HealthReport{
		SystemStatus: StatusHealthy,
		Database:     StatusHealthy,
		Jobs:         make(map[string]JobHealth),
	}

	if m.db != nil {
		if err := m.db.Health(ctx); err != nil {
			report.Database = StatusCritical
		}
	}

	m.mu.RLock()
	for name, js := range m.jobs {
		report.Jobs[name] = js.snapshot()
	}
	m.mu.RUnlock()

	// Worst case wins
	if report.Database == StatusCritical {
		report.SystemStatus = StatusCritical
		return report
	}
	for _, j := range report.Jobs {
		if j.Status == StatusDegraded {
			report.SystemStatus = StatusDegraded
		}
	}
	return report
}
