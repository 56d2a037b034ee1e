package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-exporter/internal/progress"
)

// LogSink writes each event as a debug-level structured log line. The
// aggregator already logs outcomes at their own levels; this sink exists for
// auditing the event stream itself.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunUUID().String()),
			zap.String("stage", string(evt.Stage)),
			zap.Time("ts", evt.TS),
		}
		if evt.SKU != "" {
			fields = append(fields, zap.String("sku", evt.SKU))
		}
		if evt.Field != "" {
			fields = append(fields, zap.String("field", string(evt.Field)))
		}
		if evt.Dur > 0 {
			fields = append(fields, zap.Duration("dur", evt.Dur))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		s.logger.Debug("progress event", fields...)
	}
	return nil
}

// Close implements progress.Sink; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
