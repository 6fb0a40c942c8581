// Package scheduler accepts scrape jobs, starts their execution, and owns
// cooperative cancellation.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mailsift/mailsift/internal/events"
	"github.com/mailsift/mailsift/internal/scrape"
)

const defaultMaxBatchSize = 100

// Submission errors surfaced to the API layer.
var (
	ErrNoURLs      = errors.New("at least one url is required")
	ErrBatchTooBig = errors.New("url batch exceeds the configured maximum")
	ErrShutdown    = errors.New("scheduler is shutting down")
)

// Runner executes one job to completion. *pool.Pool satisfies it.
type Runner interface {
	Run(ctx context.Context, job scrape.Job, cancel *scrape.CancelFlag) error
}

// Config controls submission limits.
type Config struct {
	// MaxBatchSize caps the deduplicated URL count per job.
	MaxBatchSize int
}

// Scheduler owns the job table from the caller's point of view: submissions,
// lookups, and cancellation all go through it.
type Scheduler struct {
	jobs    scrape.JobStore
	runner  Runner
	emitter events.Emitter
	clock   scrape.Clock
	ids     scrape.IDGenerator
	logger  *zap.Logger
	cfg     Config

	baseCtx context.Context

	mu      sync.Mutex
	cancels map[string]*scrape.CancelFlag
	closed  bool
	wg      sync.WaitGroup
}

// New constructs a Scheduler. baseCtx bounds the lifetime of launched jobs.
func New(
	baseCtx context.Context,
	jobs scrape.JobStore,
	runner Runner,
	emitter events.Emitter,
	clock scrape.Clock,
	ids scrape.IDGenerator,
	cfg Config,
	logger *zap.Logger,
) *Scheduler {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = defaultMaxBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		jobs:    jobs,
		runner:  runner,
		emitter: emitter,
		clock:   clock,
		ids:     ids,
		logger:  logger,
		cfg:     cfg,
		baseCtx: baseCtx,
		cancels: make(map[string]*scrape.CancelFlag),
	}
}

// Submit deduplicates the batch, persists the job, and starts it. The
// returned snapshot is the queued job; execution proceeds in the background.
func (s *Scheduler) Submit(ctx context.Context, urls []string) (scrape.Job, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return scrape.Job{}, ErrShutdown
	}

	deduped := scrape.DedupeURLs(urls)
	if len(deduped) == 0 {
		return scrape.Job{}, ErrNoURLs
	}
	if len(deduped) > s.cfg.MaxBatchSize {
		return scrape.Job{}, fmt.Errorf("%w: %d > %d", ErrBatchTooBig, len(deduped), s.cfg.MaxBatchSize)
	}

	id, err := s.ids.NewID()
	if err != nil {
		return scrape.Job{}, fmt.Errorf("generate job id: %w", err)
	}
	now := s.clock.Now()
	job := scrape.Job{
		ID:        id,
		Status:    scrape.JobStatusQueued,
		URLs:      deduped,
		CreatedAt: now,
		UpdatedAt: now,
		Progress:  scrape.Progress{Total: len(deduped)},
		Results:   []scrape.URLResult{},
	}
	if err := s.jobs.CreateJob(ctx, job); err != nil {
		return scrape.Job{}, fmt.Errorf("create job: %w", err)
	}

	flag := &scrape.CancelFlag{}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return scrape.Job{}, ErrShutdown
	}
	s.cancels[id] = flag
	s.wg.Add(1)
	s.mu.Unlock()

	if jobUUID, parseErr := uuid.Parse(id); parseErr == nil {
		s.emitter.Emit(events.Event{
			Type:     events.TypeJobCreated,
			JobID:    jobUUID,
			TS:       now,
			URLCount: len(deduped),
			Total:    len(deduped),
		})
	}

	go func() {
		defer s.wg.Done()
		defer s.release(id)
		if err := s.runner.Run(s.baseCtx, job, flag); err != nil {
			s.logger.Error("job run failed",
				zap.String("job_id", id),
				zap.Error(err),
			)
		}
	}()

	return job.Clone(), nil
}

// Cancel requests cooperative cancellation. Cancelling an unknown or
// already-terminal job is a silent no-op; known jobs return their current
// snapshot.
func (s *Scheduler) Cancel(ctx context.Context, jobID string) (scrape.Job, error) {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, scrape.ErrJobNotFound) {
			s.logger.Debug("cancel of unknown job ignored", zap.String("job_id", jobID))
			return scrape.Job{}, nil
		}
		return scrape.Job{}, err
	}
	if job.Status.Terminal() {
		return job, nil
	}
	s.mu.Lock()
	flag := s.cancels[jobID]
	s.mu.Unlock()
	flag.Request()
	s.logger.Info("cancellation requested", zap.String("job_id", jobID))
	return job, nil
}

// Get returns a snapshot of one job.
func (s *Scheduler) Get(ctx context.Context, jobID string) (scrape.Job, error) {
	return s.jobs.GetJob(ctx, jobID)
}

// List returns snapshots of all jobs in creation order.
func (s *Scheduler) List(ctx context.Context) ([]scrape.Job, error) {
	return s.jobs.ListJobs(ctx)
}

// Close stops accepting submissions, requests cancellation of every running
// job, and waits for them to finish or for ctx to expire.
func (s *Scheduler) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	for _, flag := range s.cancels {
		flag.Request()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler close wait: %w", ctx.Err())
	}
}

func (s *Scheduler) release(jobID string) {
	s.mu.Lock()
	delete(s.cancels, jobID)
	s.mu.Unlock()
}
