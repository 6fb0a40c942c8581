// Package store defines the persistence contracts for finished job archives.
// Implementations live under internal/storage.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested archive row does not exist.
var ErrNotFound = errors.New("archived job not found")

// ArchivedJob is the durable record written once a job reaches a terminal
// state. Live job state stays in the in-memory store; the archive is the
// queryable history.
type ArchivedJob struct {
	ID         uuid.UUID
	Status     string
	Done       int
	Total      int
	Results    map[string][]string
	ErrorText  string
	ArchivedAt time.Time
}

// EmailTotal counts the addresses across all URLs in the archive row.
func (a ArchivedJob) EmailTotal() int {
	total := 0
	for _, emails := range a.Results {
		total += len(emails)
	}
	return total
}

// ArchiveRepository persists terminal job outcomes.
type ArchiveRepository interface {
	// ArchiveJob inserts or replaces the record for job.ID.
	ArchiveJob(ctx context.Context, job ArchivedJob) error
	// GetArchivedJob returns ErrNotFound when no record exists.
	GetArchivedJob(ctx context.Context, id uuid.UUID) (ArchivedJob, error)
	// ListArchivedJobs returns the most recent records, newest first.
	ListArchivedJobs(ctx context.Context, limit int) ([]ArchivedJob, error)
}
