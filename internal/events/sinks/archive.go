package sinks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mailsift/mailsift/internal/events"
	"github.com/mailsift/mailsift/internal/store"
)

// ArchiveSink persists terminal job outcomes through a store.ArchiveRepository.
// Non-terminal events pass through untouched.
type ArchiveSink struct {
	repo   store.ArchiveRepository
	logger *zap.Logger
}

// NewArchiveSink constructs an ArchiveSink for the provided repository.
func NewArchiveSink(repo store.ArchiveRepository, logger *zap.Logger) *ArchiveSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArchiveSink{repo: repo, logger: logger}
}

// Consume writes one archive row per terminal event in the batch. It respects
// ctx deadlines and returns repository errors verbatim.
func (s *ArchiveSink) Consume(ctx context.Context, batch []events.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	for _, evt := range batch {
		if !evt.Terminal() {
			continue
		}
		row := store.ArchivedJob{
			ID:         evt.JobID,
			Status:     statusFor(evt.Type),
			Done:       evt.Done,
			Total:      evt.Total,
			Results:    evt.Results,
			ErrorText:  evt.Msg,
			ArchivedAt: evt.TS,
		}
		if err := s.repo.ArchiveJob(ctx, row); err != nil {
			return fmt.Errorf("archive job %s: %w", evt.JobID, err)
		}
	}
	return nil
}

func statusFor(t events.Type) string {
	switch t {
	case events.TypeFinished:
		return "finished"
	case events.TypeCancelled:
		return "cancelled"
	default:
		return "failed"
	}
}

// Close implements the Sink interface; it performs no action.
func (s *ArchiveSink) Close(context.Context) error {
	return nil
}
