package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/mailsift/mailsift/internal/events"
	"github.com/mailsift/mailsift/internal/scrape"
	storagemem "github.com/mailsift/mailsift/internal/storage/memory"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type uuidGen struct{}

func (uuidGen) NewID() (string, error) { return uuid.NewString(), nil }

type captureEmitter struct {
	mu     sync.Mutex
	events []events.Event
}

func (e *captureEmitter) Emit(evt events.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, evt)
}

func (e *captureEmitter) snapshot() []events.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]events.Event(nil), e.events...)
}

// blockingRunner parks until released, recording the cancel flag it was
// handed so tests can observe cancellation requests.
type blockingRunner struct {
	mu      sync.Mutex
	flags   map[string]*scrape.CancelFlag
	started chan string
	release chan struct{}
	jobs    scrape.JobStore
}

func newBlockingRunner(jobs scrape.JobStore) *blockingRunner {
	return &blockingRunner{
		flags:   make(map[string]*scrape.CancelFlag),
		started: make(chan string, 16),
		release: make(chan struct{}),
		jobs:    jobs,
	}
}

func (r *blockingRunner) Run(ctx context.Context, job scrape.Job, cancel *scrape.CancelFlag) error {
	r.mu.Lock()
	r.flags[job.ID] = cancel
	r.mu.Unlock()
	r.started <- job.ID
	select {
	case <-r.release:
	case <-ctx.Done():
	}
	status := scrape.JobStatusFinished
	if cancel.Requested() {
		status = scrape.JobStatusCancelled
	}
	_, err := r.jobs.UpdateStatus(context.Background(), job.ID, status, "")
	return err
}

func (r *blockingRunner) flag(jobID string) *scrape.CancelFlag {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flags[jobID]
}

func newScheduler(t *testing.T, runner Runner, emitter events.Emitter) (*Scheduler, *storagemem.JobStore) {
	t.Helper()
	store := storagemem.NewJobStore()
	if br, ok := runner.(*blockingRunner); ok {
		br.jobs = store
	}
	s := New(context.Background(), store, runner, emitter, fixedClock{t: time.Now().UTC()}, uuidGen{}, Config{}, nil)
	return s, store
}

func TestSubmitDeduplicatesAndEmitsCreated(t *testing.T) {
	t.Parallel()

	emitter := &captureEmitter{}
	runner := newBlockingRunner(nil)
	s, _ := newScheduler(t, runner, emitter)
	defer close(runner.release)

	job, err := s.Submit(context.Background(), []string{
		"https://example.com",
		"example.com/",
		"  ",
		"https://other.example",
	})
	require.NoError(t, err)
	require.Equal(t, scrape.JobStatusQueued, job.Status)
	require.Equal(t, []string{"https://example.com", "https://other.example"}, job.URLs)
	require.Equal(t, 2, job.Progress.Total)

	<-runner.started
	evts := emitter.snapshot()
	require.Len(t, evts, 1)
	require.Equal(t, events.TypeJobCreated, evts[0].Type)
	require.Equal(t, 2, evts[0].URLCount)
}

func TestSubmitRejectsEmptyBatch(t *testing.T) {
	t.Parallel()

	s, _ := newScheduler(t, newBlockingRunner(nil), &captureEmitter{})
	_, err := s.Submit(context.Background(), []string{"", "   "})
	require.ErrorIs(t, err, ErrNoURLs)
}

func TestSubmitRejectsOversizedBatch(t *testing.T) {
	t.Parallel()

	store := storagemem.NewJobStore()
	s := New(context.Background(), store, newBlockingRunner(store), &captureEmitter{},
		fixedClock{t: time.Now().UTC()}, uuidGen{}, Config{MaxBatchSize: 2}, nil)

	_, err := s.Submit(context.Background(), []string{"https://a.example", "https://b.example", "https://c.example"})
	require.ErrorIs(t, err, ErrBatchTooBig)
}

func TestCancelRequestsFlagAndIsIdempotent(t *testing.T) {
	t.Parallel()

	runner := newBlockingRunner(nil)
	s, store := newScheduler(t, runner, &captureEmitter{})

	job, err := s.Submit(context.Background(), []string{"https://example.com"})
	require.NoError(t, err)
	<-runner.started

	_, err = s.Cancel(context.Background(), job.ID)
	require.NoError(t, err)
	require.True(t, runner.flag(job.ID).Requested())

	// second cancel is a no-op
	_, err = s.Cancel(context.Background(), job.ID)
	require.NoError(t, err)

	close(runner.release)
	require.Eventually(t, func() bool {
		got, getErr := store.GetJob(context.Background(), job.ID)
		return getErr == nil && got.Status == scrape.JobStatusCancelled
	}, 2*time.Second, 10*time.Millisecond)

	// cancelling a terminal job stays a no-op
	snap, err := s.Cancel(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, scrape.JobStatusCancelled, snap.Status)
}

func TestCancelUnknownJobIsSilentNoOp(t *testing.T) {
	t.Parallel()

	s, _ := newScheduler(t, newBlockingRunner(nil), &captureEmitter{})
	job, err := s.Cancel(context.Background(), uuid.NewString())
	require.NoError(t, err)
	require.Empty(t, job.ID)
}

func TestListReturnsSubmissionOrder(t *testing.T) {
	t.Parallel()

	runner := newBlockingRunner(nil)
	s, _ := newScheduler(t, runner, &captureEmitter{})
	defer close(runner.release)

	first, err := s.Submit(context.Background(), []string{"https://a.example"})
	require.NoError(t, err)
	second, err := s.Submit(context.Background(), []string{"https://b.example"})
	require.NoError(t, err)
	<-runner.started
	<-runner.started

	jobs, err := s.List(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	require.Equal(t, first.ID, jobs[0].ID)
	require.Equal(t, second.ID, jobs[1].ID)
}

func TestCloseCancelsRunningJobs(t *testing.T) {
	t.Parallel()

	runner := newBlockingRunner(nil)
	s, store := newScheduler(t, runner, &captureEmitter{})

	job, err := s.Submit(context.Background(), []string{"https://example.com"})
	require.NoError(t, err)
	<-runner.started
	close(runner.release)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Close(ctx))

	got, err := store.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	require.True(t, got.Status.Terminal())

	_, err = s.Submit(context.Background(), []string{"https://late.example"})
	require.ErrorIs(t, err, ErrShutdown)
}
