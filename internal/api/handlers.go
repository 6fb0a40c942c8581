package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mailsift/mailsift/internal/export"
	"github.com/mailsift/mailsift/internal/scheduler"
	"github.com/mailsift/mailsift/internal/scrape"
)

type submitJobRequest struct {
	URLs []string `json:"urls"`
}

func (s *Server) submitJob(w http.ResponseWriter, r *http.Request) {
	var req submitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	job, err := s.scheduler.Submit(r.Context(), req.URLs)
	if err != nil {
		switch {
		case errors.Is(err, scheduler.ErrNoURLs), errors.Is(err, scheduler.ErrBatchTooBig):
			s.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, scheduler.ErrShutdown):
			s.writeError(w, http.StatusServiceUnavailable, err.Error())
		default:
			s.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":    job.ID,
		"url_count": job.Progress.Total,
	})
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.scheduler.List(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.lookupJob(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"job": job})
}

// cancelJob answers 202 whether or not the job exists or still runs; the
// request is a cancellation wish, not a lookup.
func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if _, err := s.scheduler.Cancel(r.Context(), jobID); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

// exportJob persists the CSV artifact through the configured blob store and
// answers with its location.
func (s *Server) exportJob(w http.ResponseWriter, r *http.Request) {
	if s.exporter == nil {
		s.writeError(w, http.StatusServiceUnavailable, "export backend is not configured")
		return
	}
	job, ok := s.lookupJob(w, r)
	if !ok {
		return
	}
	if !job.Status.Terminal() {
		s.writeError(w, http.StatusConflict, "job has not finished")
		return
	}
	location, err := s.exporter.Export(r.Context(), job)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("export failed: %v", err))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"job_id": job.ID, "location": location})
}

// downloadResults streams the CSV directly, whatever the job's state; rows
// cover the units completed so far.
func (s *Server) downloadResults(w http.ResponseWriter, r *http.Request) {
	job, ok := s.lookupJob(w, r)
	if !ok {
		return
	}
	content, err := export.Encode(job)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "encode results failed")
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", job.ID+".csv"))
	if _, err := w.Write(content); err != nil {
		s.logger.Error("write csv failed", zap.Error(err))
	}
}

func (s *Server) lookupJob(w http.ResponseWriter, r *http.Request) (scrape.Job, bool) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.scheduler.Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, scrape.ErrJobNotFound) {
			s.writeError(w, http.StatusNotFound, "job not found")
		} else {
			s.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return scrape.Job{}, false
	}
	return job, true
}
