package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mailsift/mailsift/internal/scrape"
)

func newJob(id string, urls ...string) scrape.Job {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return scrape.Job{
		ID:        id,
		Status:    scrape.JobStatusQueued,
		URLs:      urls,
		CreatedAt: now,
		UpdatedAt: now,
		Progress:  scrape.Progress{Total: len(urls)},
		Results:   []scrape.URLResult{},
	}
}

func TestJobStoreLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewJobStore()
	job := newJob("job-1", "https://a.example", "https://b.example")

	require.NoError(t, store.CreateJob(ctx, job))
	require.Error(t, store.CreateJob(ctx, job), "duplicate id must be rejected")

	_, err := store.UpdateStatus(ctx, job.ID, scrape.JobStatusRunning, "")
	require.NoError(t, err)

	snap, err := store.AppendResult(ctx, job.ID, scrape.URLResult{URL: "https://a.example", Emails: []string{"x@a.example"}})
	require.NoError(t, err)
	require.Equal(t, 1, snap.Progress.Done)
	require.Equal(t, "https://a.example", snap.Progress.Current)

	snap, err = store.AppendResult(ctx, job.ID, scrape.URLResult{URL: "https://b.example"})
	require.NoError(t, err)
	require.Equal(t, 2, snap.Progress.Done)
	require.Equal(t, []string{}, snap.Results[1].Emails, "failed unit records an empty slice, not nil")

	_, err = store.AppendResult(ctx, job.ID, scrape.URLResult{URL: "https://c.example"})
	require.Error(t, err, "results beyond total must be rejected")

	final, err := store.UpdateStatus(ctx, job.ID, scrape.JobStatusFinished, "")
	require.NoError(t, err)
	require.Equal(t, scrape.JobStatusFinished, final.Status)
}

func TestJobStoreRejectsTransitionsOutOfTerminal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewJobStore()
	require.NoError(t, store.CreateJob(ctx, newJob("job-1", "https://a.example")))

	_, err := store.UpdateStatus(ctx, "job-1", scrape.JobStatusFinished, "")
	require.NoError(t, err)

	_, err = store.UpdateStatus(ctx, "job-1", scrape.JobStatusCancelled, "")
	require.Error(t, err)

	got, err := store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, scrape.JobStatusFinished, got.Status)
}

func TestJobStoreListOrder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewJobStore()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.CreateJob(ctx, newJob(id, "https://example.com")))
	}

	jobs, err := store.ListJobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	require.Equal(t, "a", jobs[0].ID)
	require.Equal(t, "c", jobs[2].ID)
}

func TestJobStoreSnapshotsAreCopies(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewJobStore()
	require.NoError(t, store.CreateJob(ctx, newJob("job-1", "https://a.example")))

	snap, err := store.AppendResult(ctx, "job-1", scrape.URLResult{URL: "https://a.example", Emails: []string{"x@a.example"}})
	require.NoError(t, err)
	snap.Results[0].Emails[0] = "mutated"

	got, err := store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, "x@a.example", got.Results[0].Emails[0])
}

func TestJobStoreGetUnknown(t *testing.T) {
	t.Parallel()

	store := NewJobStore()
	_, err := store.GetJob(context.Background(), "nope")
	require.ErrorIs(t, err, scrape.ErrJobNotFound)
}
