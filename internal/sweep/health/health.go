// Package health provides run health monitoring and status reporting.
package health

import (
	"net/http"
	"slices"
	"time"
)

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// JobHealth contains the live state of one sweep job.
type JobHealth struct {
	Job         string       `json:"job"`
	RunID       string       `json:"run_id"`
	Status      SystemStatus `json:"status"`
	Running     bool         `json:"running"`
	ActiveSlots int          `json:"active_slots"`
	TotalRows   int64        `json:"total_rows"`
	StartedAt   time.Time    `json:"started_at"`
	FinishedAt  *time.Time   `json:"finished_at,omitempty"`
	LastError   string       `json:"last_error,omitempty"`
}

// HealthReport contains the full system health report.
type HealthReport struct {
	SystemStatus SystemStatus         `json:"system_status"`
	Database     SystemStatus         `json:"database"`
	Jobs         map[string]JobHealth `json:"jobs"`
}

// HTTPStatus maps the report to a response code. Only a critical system is
// unavailable; a degraded job still answers 200.
func (r HealthReport) HTTPStatus() int {
	if r.SystemStatus == StatusCritical {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

// Running lists the jobs that have not finished yet.
func (r HealthReport) Running() []string {
	var names []string
	for name, j := range r.Jobs {
		if j.Running {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}
