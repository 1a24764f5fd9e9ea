package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-linker/internal/linker"
)

// LogSink writes each audit event as a structured warning.
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

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []linker.AuditEvent) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunID),
			zap.Time("ts", evt.TS),
			zap.String("source_tag", evt.SourceTag),
			zap.String("note", evt.Note),
			zap.String("subject", evt.SubjectJSON),
		}
		if evt.ErrorJSON != "" {
			fields = append(fields, zap.String("error", evt.ErrorJSON))
		}
		if evt.SnapshotURI != "" {
			fields = append(fields, zap.String("snapshot", evt.SnapshotURI))
		}
		s.logger.Warn("audit event", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
