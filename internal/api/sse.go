package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mailsift/mailsift/internal/events"
	"github.com/mailsift/mailsift/internal/scrape"
)

// streamEvents serves the live event feed for one job as server-sent events.
// The stream opens with synthetic events reconstructing the job's current
// state, then forwards hub events until a terminal event or client
// disconnect.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	jobUUID, err := uuid.Parse(jobID)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	// Subscribe before reading the snapshot so no event falls between the
	// two; overlap is filtered below.
	sub := s.hub.Subscribe(jobUUID)
	defer s.hub.Unsubscribe(sub)

	job, err := s.scheduler.Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, scrape.ErrJobNotFound) {
			s.writeError(w, http.StatusNotFound, "job not found")
		} else {
			s.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for _, evt := range snapshotEvents(jobUUID, job) {
		if err := writeSSE(w, evt); err != nil {
			s.logger.Debug("sse write failed", zap.String("job_id", jobID), zap.Error(err))
			return
		}
	}
	flusher.Flush()
	if job.Status.Terminal() {
		return
	}

	seenDone := job.Progress.Done
	for {
		select {
		case <-r.Context().Done():
			return
		case evt, open := <-sub.C():
			if !open {
				return
			}
			if evt.Type == events.TypeProgress && evt.Done <= seenDone {
				continue
			}
			if evt.Type == events.TypeProgress {
				seenDone = evt.Done
			}
			if err := writeSSE(w, evt); err != nil {
				s.logger.Debug("sse write failed", zap.String("job_id", jobID), zap.Error(err))
				return
			}
			flusher.Flush()
			if evt.Terminal() {
				return
			}
		}
	}
}

// snapshotEvents reconstructs the event prefix a late subscriber missed.
func snapshotEvents(jobUUID uuid.UUID, job scrape.Job) []events.Event {
	out := []events.Event{{
		Type:     events.TypeJobCreated,
		JobID:    jobUUID,
		TS:       job.CreatedAt,
		URLCount: job.Progress.Total,
		Total:    job.Progress.Total,
	}}
	if job.Progress.Done > 0 && !job.Status.Terminal() {
		last := job.Results[len(job.Results)-1]
		out = append(out, events.Event{
			Type:    events.TypeProgress,
			JobID:   jobUUID,
			TS:      job.UpdatedAt,
			Done:    job.Progress.Done,
			Total:   job.Progress.Total,
			Current: last.URL,
			Emails:  last.Emails,
		})
	}
	switch job.Status {
	case scrape.JobStatusFinished:
		out = append(out, events.Event{
			Type:    events.TypeFinished,
			JobID:   jobUUID,
			TS:      job.UpdatedAt,
			Done:    job.Progress.Done,
			Total:   job.Progress.Total,
			Results: job.ResultMap(),
		})
	case scrape.JobStatusCancelled:
		out = append(out, events.Event{
			Type:  events.TypeCancelled,
			JobID: jobUUID,
			TS:    job.UpdatedAt,
			Done:  job.Progress.Done,
			Total: job.Progress.Total,
		})
	case scrape.JobStatusFailed:
		msg := job.ErrorText
		if msg == "" {
			msg = "job failed"
		}
		out = append(out, events.Event{
			Type:  events.TypeError,
			JobID: jobUUID,
			TS:    job.UpdatedAt,
			Done:  job.Progress.Done,
			Total: job.Progress.Total,
			Msg:   msg,
		})
	}
	return out
}

func writeSSE(w http.ResponseWriter, evt events.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}
