package metrics

import (
	"context"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/fleethealth/internal/domain"
)

// Sink writes a batch of points. Implementations must honour ctx.
type Sink interface {
	Write(ctx context.Context, points []domain.MetricPoint) error
}

// Multi writes to every sink and combines their errors.
type Multi []Sink

func (m Multi) Write(ctx context.Context, points []domain.MetricPoint) error {
	var err error
	for _, s := range m {
		if s == nil {
			continue
		}
		err = multierr.Append(err, s.Write(ctx, points))
	}
	return err
}

// LogSink emits points as debug log lines. Used when no endpoint is
// configured, so point generation stays observable.
type LogSink struct {
	Logger *zap.Logger
}

func (s LogSink) Write(_ context.Context, points []domain.MetricPoint) error {
	for _, p := range points {
		s.Logger.Debug("metric_point", zap.String("line", Line(p)))
	}
	return nil
}
