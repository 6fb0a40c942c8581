package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mailsift/mailsift/internal/scrape"
)

// JobStore is the authoritative in-memory job table. All mutations run under
// one lock so progress counters and result slices never see concurrent
// writers; callers receive deep copies.
type JobStore struct {
	mu    sync.RWMutex
	jobs  map[string]scrape.Job
	order []string
	now   func() time.Time
}

// NewJobStore constructs an empty JobStore.
func NewJobStore() *JobStore {
	return &JobStore{
		jobs: make(map[string]scrape.Job),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the store clock. Test helper.
func (s *JobStore) WithClock(now func() time.Time) *JobStore {
	s.now = now
	return s
}

// CreateJob inserts a new job. The ID must be unused.
func (s *JobStore) CreateJob(_ context.Context, job scrape.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	s.jobs[job.ID] = job.Clone()
	s.order = append(s.order, job.ID)
	return nil
}

// GetJob returns a snapshot of the job or scrape.ErrJobNotFound.
func (s *JobStore) GetJob(_ context.Context, jobID string) (scrape.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return scrape.Job{}, scrape.ErrJobNotFound
	}
	return job.Clone(), nil
}

// ListJobs returns snapshots in creation order, most recent last.
func (s *JobStore) ListJobs(context.Context) ([]scrape.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]scrape.Job, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.jobs[id].Clone())
	}
	return out, nil
}

// AppendResult records one completed unit of work: the result row, the
// incremented done counter, and the current URL marker.
func (s *JobStore) AppendResult(_ context.Context, jobID string, result scrape.URLResult) (scrape.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return scrape.Job{}, scrape.ErrJobNotFound
	}
	if job.Progress.Done >= job.Progress.Total {
		return scrape.Job{}, fmt.Errorf("job %s already has %d/%d results", jobID, job.Progress.Done, job.Progress.Total)
	}
	emails := result.Emails
	if emails == nil {
		emails = []string{}
	}
	job.Results = append(job.Results, scrape.URLResult{URL: result.URL, Emails: emails})
	job.Progress.Done++
	job.Progress.Current = result.URL
	job.UpdatedAt = s.now()
	s.jobs[jobID] = job
	return job.Clone(), nil
}

// UpdateStatus transitions the job. Transitions out of a terminal status are
// rejected so a finished job can never be cancelled after the fact.
func (s *JobStore) UpdateStatus(_ context.Context, jobID string, status scrape.JobStatus, errText string) (scrape.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return scrape.Job{}, scrape.ErrJobNotFound
	}
	if job.Status.Terminal() {
		return scrape.Job{}, fmt.Errorf("job %s is %s and cannot become %s", jobID, job.Status, status)
	}
	job.Status = status
	job.ErrorText = errText
	job.UpdatedAt = s.now()
	s.jobs[jobID] = job
	return job.Clone(), nil
}
