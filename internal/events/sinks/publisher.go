package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/mailsift/mailsift/internal/events"
	"github.com/mailsift/mailsift/internal/scrape"
)

// PublisherSink forwards terminal events to a downstream publisher so
// external dashboards stay in sync with job outcomes. Publish failures are
// logged and swallowed: the dashboard is best-effort, the job is not.
type PublisherSink struct {
	publisher scrape.Publisher
	topic     string
	logger    *zap.Logger
}

// NewPublisherSink constructs a PublisherSink for the given topic.
func NewPublisherSink(publisher scrape.Publisher, topic string, logger *zap.Logger) *PublisherSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublisherSink{publisher: publisher, topic: topic, logger: logger}
}

// Consume publishes each terminal event in the batch.
func (s *PublisherSink) Consume(ctx context.Context, batch []events.Event) error {
	if s == nil || s.publisher == nil {
		return nil
	}
	for _, evt := range batch {
		if !evt.Terminal() {
			continue
		}
		if _, err := s.publisher.Publish(ctx, s.topic, evt); err != nil {
			s.logger.Warn("publish job outcome failed",
				zap.String("job_id", evt.JobID.String()),
				zap.String("type", string(evt.Type)),
				zap.Error(err),
			)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PublisherSink) Close(context.Context) error {
	return nil
}
