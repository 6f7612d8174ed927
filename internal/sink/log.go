package sink

import (
	"context"
	"log/slog"

	"github.com/neox5/querygauge/internal/metric"
)

// Log writes every data point to a structured logger.
type Log struct {
	logger *slog.Logger
	level  slog.Level
}

// NewLog creates a log sink writing at Info level.
func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger, level: slog.LevelInfo}
}

func (l *Log) Publish(ctx context.Context, namespace string, p metric.DataPoint) error {
	l.logger.LogAttrs(ctx, l.level, "metric",
		slog.String("namespace", namespace),
		slog.String("name", p.Name),
		slog.Int64("value", p.Value),
		slog.String("unit", p.Unit),
		slog.String("dimensions", p.Dimensions.String()),
		slog.Time("timestamp", p.Timestamp),
	)
	return nil
}

func (l *Log) Flush(context.Context) error { return nil }

func (l *Log) Close(context.Context) error { return nil }
