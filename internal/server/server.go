// Package server exposes a read-only progress endpoint for a running
// reduction. The reduction core stays single-threaded; the endpoint only
// reads atomic counters.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
)

// Progress tracks how far a reduction run has come. All counters are safe to
// read while the runner advances them.
type Progress struct {
	RunID      string
	JobID      int
	NumJobs    int
	Level      int
	unitsTotal atomic.Int64
	unitsDone  atomic.Int64
	reduced    atomic.Int64
	skipped    atomic.Int64
	started    time.Time
}

// NewProgress returns a Progress for one run.
func NewProgress(runID string, jobID, numJobs, level int) *Progress {
	return &Progress{
		RunID:   runID,
		JobID:   jobID,
		NumJobs: numJobs,
		Level:   level,
		started: time.Now(),
	}
}

// SetUnitsTotal records how many work units the job owns.
func (p *Progress) SetUnitsTotal(n int) { p.unitsTotal.Store(int64(n)) }

// UnitDone marks one work unit finished.
func (p *Progress) UnitDone() { p.unitsDone.Add(1) }

// TileReduced marks one coordinate reduced and committed.
func (p *Progress) TileReduced() { p.reduced.Add(1) }

// TileSkipped marks one coordinate skipped because no versions matched.
func (p *Progress) TileSkipped() { p.skipped.Add(1) }

// Reduced returns the number of committed coordinates so far.
func (p *Progress) Reduced() int { return int(p.reduced.Load()) }

// Skipped returns the number of skipped coordinates so far.
func (p *Progress) Skipped() int { return int(p.skipped.Load()) }

type statusPayload struct {
	RunID      string `json:"run_id"`
	JobID      int    `json:"job_id"`
	NumJobs    int    `json:"num_jobs"`
	Level      int    `json:"level"`
	UnitsTotal int64  `json:"work_units_total"`
	UnitsDone  int64  `json:"work_units_done"`
	Reduced    int64  `json:"tiles_reduced"`
	Skipped    int64  `json:"tiles_skipped"`
	UptimeSec  int64  `json:"uptime_seconds"`
}

// Server serves the progress endpoint.
type Server struct {
	addr     string
	progress *Progress
	log      *slog.Logger
	server   *http.Server
}

// New creates a progress server bound to addr.
func New(addr string, progress *Progress, log *slog.Logger) *Server {
	return &Server{addr: addr, progress: progress, log: log}
}

// Start begins serving until ctx is cancelled. It returns once the listener
// stops; a closed listener after shutdown is not an error.
func (s *Server) Start(ctx context.Context) error {
	r := mux.NewRouter()
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)

	s.server = &http.Server{
		Addr:    s.addr,
		Handler: r,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()

	s.log.Info("status endpoint listening", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	p := s.progress
	payload := statusPayload{
		RunID:      p.RunID,
		JobID:      p.JobID,
		NumJobs:    p.NumJobs,
		Level:      p.Level,
		UnitsTotal: p.unitsTotal.Load(),
		UnitsDone:  p.unitsDone.Load(),
		Reduced:    p.reduced.Load(),
		Skipped:    p.skipped.Load(),
		UptimeSec:  int64(time.Since(p.started).Seconds()),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}
