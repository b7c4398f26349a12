// Package sinks provides Sink implementations for the progress hub.
package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/translation-progress/internal/progress"
)

// LogSink emits structured logs for debugging progress streams. It is
// useful during development or audits where persistence is unavailable.
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
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.logger.Info("progress event",
			zap.String("stage", string(evt.Stage)),
			zap.Int("track_id", evt.TrackID),
			zap.String("group_key", evt.GroupKey),
			zap.String("attempt_id", evt.AttemptID),
			zap.Int64("groups", evt.Groups),
			zap.Int64("items", evt.Items),
			zap.Int64("words", evt.Words),
			zap.Duration("dur", evt.Dur),
			zap.String("note", evt.Note),
		)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
