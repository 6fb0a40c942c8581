package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/mailsift/mailsift/internal/events"
)

// LogSink emits structured logs for debugging event streams. It is useful
// during development or audits where a durable store is unavailable.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []events.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("job_id", evt.JobID.String()),
			zap.String("type", string(evt.Type)),
			zap.Time("ts", evt.TS),
			zap.Int("done", evt.Done),
			zap.Int("total", evt.Total),
		}
		if evt.Current != "" {
			fields = append(fields, zap.String("current", evt.Current), zap.Int("emails", len(evt.Emails)))
		}
		if evt.Msg != "" {
			fields = append(fields, zap.String("msg", evt.Msg))
		}
		s.logger.Info("job event", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
