package notify

import (
	"context"

	"levelwatch/internal/ports"
)

// LogSink is the fallback notifier used when no mail settings are
// configured: every notification is written to the log at Info level, so a
// local run still shows the consolidated batches.
type LogSink struct {
	logger ports.Logger
}

// NewLogSink creates a log-only notifier.
func NewLogSink(logger ports.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Notify writes the notification to the log and never fails.
func (s *LogSink) Notify(ctx context.Context, subject, body string) error {
	s.logger.Info(ctx, "NOTIFICATION: "+subject, map[string]interface{}{"body": body})
	return nil
}
