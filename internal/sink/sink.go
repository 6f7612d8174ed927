// Package sink delivers metric data points to monitoring backends.
package sink

import (
	"context"

	"github.com/neox5/querygauge/internal/metric"
)

// Sink receives data points. Publish errors are reported per point and never
// stop the caller.
type Sink interface {
	Publish(ctx context.Context, namespace string, p metric.DataPoint) error

	// Flush delivers anything buffered since the last flush.
	Flush(ctx context.Context) error

	Close(ctx context.Context) error
}
