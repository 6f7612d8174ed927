package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/neox5/querygauge/internal/metric"
)

// Multi fans every call out to all of its sinks. A failing sink does not
// keep the others from receiving the point.
type Multi []Sink

func (m Multi) Publish(ctx context.Context, namespace string, p metric.DataPoint) error {
	var errs []error
	for i, s := range m {
		if err := s.Publish(ctx, namespace, p); err != nil {
			errs = append(errs, fmt.Errorf("sink %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Flush(ctx context.Context) error {
	var errs []error
	for _, s := range m {
		if err := s.Flush(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close(ctx context.Context) error {
	var errs []error
	for _, s := range m {
		if err := s.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
