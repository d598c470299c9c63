package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/scholar-citation-crawler/internal/progress"
)

// LogSink logs every event at info level (counter stages at debug).
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger.Named("progress")}
}

// Consume logs each event.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunID),
			zap.String("stage", string(evt.Stage)),
			zap.Int("completed", evt.Completed),
			zap.Int("total", evt.Total),
		}
		switch evt.Stage {
		case progress.StageCrawl, progress.StageEnrich:
			s.logger.Debug("progress", fields...)
		case progress.StageRunError:
			s.logger.Warn("run failed", append(fields, zap.Duration("dur", evt.Dur), zap.String("note", evt.Note))...)
		default:
			s.logger.Info("progress", append(fields, zap.Duration("dur", evt.Dur))...)
		}
	}
	return nil
}

// Close is a no-op.
func (s *LogSink) Close(context.Context) error {
	return nil
}
