package scrape

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// ErrJobNotFound signals that the requested job does not exist.
var ErrJobNotFound = errors.New("job not found")

// JobStore persists job state. Implementations must serialize mutations per
// job so progress and results never see concurrent writers.
type JobStore interface {
	CreateJob(ctx context.Context, job Job) error
	GetJob(ctx context.Context, jobID string) (Job, error)
	// ListJobs returns snapshots in creation order, most recent last.
	ListJobs(ctx context.Context) ([]Job, error)
	// AppendResult records one completed unit: it appends the result,
	// increments progress.done, sets progress.current, and bumps updated_at.
	AppendResult(ctx context.Context, jobID string, result URLResult) (Job, error)
	// UpdateStatus transitions the job. Transitions out of a terminal
	// status are rejected.
	UpdateStatus(ctx context.Context, jobID string, status JobStatus, errText string) (Job, error)
}

// Fetcher fetches a URL and returns the page body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// RenderDetector decides whether a probe response warrants the browser
// rendering fallback.
type RenderDetector interface {
	ShouldRender(probe FetchResponse) bool
}

// Exporter persists a job's accumulated results outside the job store and
// returns a location string (file path, gs:// URI, ...).
type Exporter interface {
	Export(ctx context.Context, job Job) (string, error)
}

// Publisher pushes terminal job payloads to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}

// CancelFlag is the cooperative cancellation signal shared between the
// scheduler and a running pool. Requesting it stops new units from starting;
// units already in flight finish naturally.
type CancelFlag struct {
	requested atomic.Bool
}

// Request marks cancellation as requested. Safe to call repeatedly.
func (f *CancelFlag) Request() {
	if f == nil {
		return
	}
	f.requested.Store(true)
}

// Requested reports whether cancellation has been requested.
func (f *CancelFlag) Requested() bool {
	return f != nil && f.requested.Load()
}
