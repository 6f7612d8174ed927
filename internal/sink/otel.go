package sink

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/neox5/querygauge/internal/config"
	"github.com/neox5/querygauge/internal/metric"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// NamespaceAttribute carries the data point namespace in OTEL and Prometheus.
const NamespaceAttribute = "namespace"

const otelMeterName = "querygauge"

// OTEL exposes the latest value of every series as an observable gauge.
// The reader collects them on its own schedule; Flush forces a collection.
type OTEL struct {
	meterProvider *sdkmetric.MeterProvider
	meter         otelmetric.Meter
	points        *metric.Registry
	logger        *slog.Logger

	mu          sync.Mutex
	instruments map[string]otelmetric.Int64ObservableGauge
}

// NewOTEL creates a sink pushing to an OTLP endpoint.
func NewOTEL(ctx context.Context, cfg *config.OTELExportConfig, logger *slog.Logger) (*OTEL, error) {
	res, err := createOTELResource(ctx, cfg.Resource)
	if err != nil {
		return nil, err
	}

	reader, err := createOTELReader(ctx, cfg)
	if err != nil {
		return nil, err
	}

	logger.Info("created otel sink",
		"transport", cfg.Transport,
		"endpoint", cfg.GetEndpoint(),
		"push_interval", cfg.Interval.Push)

	return NewOTELWithReader(reader, res, logger), nil
}

// NewOTELWithReader creates a sink collected by reader.
func NewOTELWithReader(reader sdkmetric.Reader, res *resource.Resource, logger *slog.Logger) *OTEL {
	opts := []sdkmetric.Option{sdkmetric.WithReader(reader)}
	if res != nil {
		opts = append(opts, sdkmetric.WithResource(res))
	}
	meterProvider := sdkmetric.NewMeterProvider(opts...)

	return &OTEL{
		meterProvider: meterProvider,
		meter:         meterProvider.Meter(otelMeterName),
		points:        metric.NewRegistry(),
		logger:        logger,
		instruments:   make(map[string]otelmetric.Int64ObservableGauge),
	}
}

func (o *OTEL) Publish(_ context.Context, namespace string, p metric.DataPoint) error {
	if err := o.ensureInstrument(p); err != nil {
		return err
	}
	p.Namespace = namespace
	o.points.Record(p)
	return nil
}

// ensureInstrument registers the gauge and its callback on first use of a name.
func (o *OTEL) ensureInstrument(p metric.DataPoint) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, ok := o.instruments[p.Name]; ok {
		return nil
	}

	gauge, err := o.meter.Int64ObservableGauge(
		p.Name,
		otelmetric.WithUnit(p.Unit),
	)
	if err != nil {
		return fmt.Errorf("failed to create gauge %q: %w", p.Name, err)
	}

	name := p.Name
	_, err = o.meter.RegisterCallback(
		func(ctx context.Context, observer otelmetric.Observer) error {
			for _, pt := range o.points.Points() {
				if pt.Name != name {
					continue
				}
				observer.ObserveInt64(gauge, pt.Value,
					otelmetric.WithAttributes(otelAttributes(pt)...))
			}
			return nil
		},
		gauge,
	)
	if err != nil {
		return fmt.Errorf("failed to register callback: %w", err)
	}

	o.instruments[name] = gauge
	o.logger.Debug("registered otel metric", "name", name)
	return nil
}

// Flush ends a run: series the run did not report stop being observed,
// then the reader is forced to collect.
func (o *OTEL) Flush(ctx context.Context) error {
	if removed := o.points.Sweep(); removed > 0 {
		o.logger.Debug("dropped stale otel series", "series", removed)
	}
	if err := o.meterProvider.ForceFlush(ctx); err != nil {
		return fmt.Errorf("failed to flush otel metrics: %w", err)
	}
	return nil
}

func (o *OTEL) Close(ctx context.Context) error {
	o.logger.Info("shutting down otel sink")
	if err := o.meterProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down otel sink: %w", err)
	}
	return nil
}

// otelAttributes converts dimensions plus namespace to sorted attributes.
func otelAttributes(p metric.DataPoint) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(p.Dimensions)+1)
	attrs = append(attrs, attribute.String(NamespaceAttribute, p.Namespace))
	for _, k := range p.Dimensions.Keys() {
		if k == NamespaceAttribute {
			continue
		}
		attrs = append(attrs, attribute.String(k, p.Dimensions[k]))
	}
	return attrs
}
