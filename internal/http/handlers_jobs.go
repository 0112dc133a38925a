package http

import (
	"net/http"
	"time"

	"familybank/internal/metrics"
)

// Job endpoints let an external scheduler (cron, systemd timer) trigger the
// periodic work over HTTP instead of running the worker binary. Both paths
// share the same service methods, so double-triggering is harmless: the
// underlying operations are idempotent per day or per due date.

func (s *Server) handleJobAllowances(w http.ResponseWriter, r *http.Request) {
	metrics.JobRuns.WithLabelValues("allowances").Inc()
	processed, failed, err := s.allowances.ProcessDue(r.Context(), time.Now().UTC())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"processed": processed, "failed": failed})
}

func (s *Server) handleJobChores(w http.ResponseWriter, r *http.Request) {
	metrics.JobRuns.WithLabelValues("chores").Inc()
	created, err := s.chores.MaterializeRecurring(r.Context(), time.Now().UTC())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"created": created})
}

func (s *Server) handleJobCleanup(w http.ResponseWriter, r *http.Request) {
	metrics.JobRuns.WithLabelValues("cleanup").Inc()
	deleted, err := s.chores.CleanupApproved(r.Context(), time.Now().UTC())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}
