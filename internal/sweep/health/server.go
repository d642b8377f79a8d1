package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server serves job health and Prometheus metrics while a sweep runs.
type Server struct {
	monitor *Monitor
	server  *http.Server
}

// healthResponse is the short form served on /health.
type healthResponse struct {
	Status  SystemStatus `json:"status"`
	Running []string     `json:"running,omitempty"`
}

// NewServer routes /health, /health/detailed, /health/jobs/{job} and /metrics.
func NewServer(monitor *Monitor, port int) *Server {
	mux := http.NewServeMux()
	s := &Server{
		monitor: monitor,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
	}

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/detailed", s.handleDetailed)
	mux.HandleFunc("GET /health/jobs/{job}", s.handleJob)
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Handler exposes the router for in-process use.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.monitor.CheckHealth(r.Context())
	writeJSON(w, report.HTTPStatus(), healthResponse{
		Status:  report.SystemStatus,
		Running: report.Running(),
	})
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	report := s.monitor.CheckHealth(r.Context())
	writeJSON(w, report.HTTPStatus(), report)
}

// handleJob answers for one job; a failed run is 500 so a poller can stop.
func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.monitor.Job(r.PathValue("job"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown job"})
		return
	}
	code := http.StatusOK
	if !job.Running && job.LastError != "" {
		code = http.StatusInternalServerError
	}
	writeJSON(w, code, job)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
