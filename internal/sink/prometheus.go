package sink

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/cenkalti/backoff/v5"
	"github.com/neox5/querygauge/internal/config"
	"github.com/neox5/querygauge/internal/metric"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/prometheus/common/model"
)

const (
	helpText = "Query gauge"

	// internalPrefix is reserved for querygauge's own metrics, which may
	// share the registry.
	internalPrefix = "querygauge_"
)

// Prometheus keeps the latest value of every series in a registry that is
// scraped through the server package and, when a push gateway is
// configured, pushed on Flush.
type Prometheus struct {
	points      *metric.Registry
	registry    *prometheus.Registry
	pusher      *push.Pusher
	pushRetries uint
	logger      *slog.Logger
}

// NewPrometheus creates a Prometheus sink.
func NewPrometheus(cfg *config.PrometheusExportConfig, logger *slog.Logger) *Prometheus {
	p := &Prometheus{
		points:      metric.NewRegistry(),
		registry:    prometheus.NewRegistry(),
		pushRetries: cfg.PushRetries,
		logger:      logger,
	}
	p.registry.MustRegister(&collector{points: p.points})

	if cfg.PushGateway != "" {
		p.pusher = push.New(cfg.PushGateway, cfg.Job).Gatherer(p.registry)
		logger.Info("created prometheus sink", "push_gateway", cfg.PushGateway, "job", cfg.Job)
	} else {
		logger.Info("created prometheus sink", "port", cfg.Port, "path", cfg.Path)
	}

	return p
}

// Registry returns the registry holding gauge series. Internal metrics may
// be registered with it as well.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// Publish stores dp. Points whose names cannot form a valid, distinct
// series are rejected so they never break a scrape or push.
func (p *Prometheus) Publish(_ context.Context, namespace string, dp metric.DataPoint) error {
	if err := validateNames(dp); err != nil {
		return err
	}
	dp.Namespace = namespace
	dp.Dimensions = withoutEmpty(dp.Dimensions)
	p.points.Record(dp)
	return nil
}

// validateNames checks the metric and dimension names against the legacy
// Prometheus naming rules.
func validateNames(dp metric.DataPoint) error {
	if !model.IsValidLegacyMetricName(dp.Name) {
		return fmt.Errorf("invalid prometheus metric name %q", dp.Name)
	}
	if strings.HasPrefix(dp.Name, internalPrefix) {
		return fmt.Errorf("metric name %q uses reserved prefix %q", dp.Name, internalPrefix)
	}

	for _, k := range dp.Dimensions.Keys() {
		switch {
		case !model.LabelName(k).IsValidLegacy():
			return fmt.Errorf("metric %q: invalid prometheus label name %q", dp.Name, k)
		case strings.HasPrefix(k, model.ReservedLabelPrefix):
			return fmt.Errorf("metric %q: label name %q uses reserved prefix %q", dp.Name, k, model.ReservedLabelPrefix)
		case k == NamespaceAttribute:
			return fmt.Errorf("metric %q: dimension %q collides with the namespace label", dp.Name, k)
		}
	}
	return nil
}

// withoutEmpty drops empty dimension values, which Prometheus treats as an
// absent label. Two points that differ only in such a dimension are the
// same series.
func withoutEmpty(dims metric.Dimensions) metric.Dimensions {
	out := make(metric.Dimensions, len(dims))
	for k, v := range dims {
		if v != "" {
			out[k] = v
		}
	}
	return out
}

// Flush ends a run: series the run did not report are dropped, then the
// registry is pushed to the push gateway, if any, retrying with
// exponential backoff.
func (p *Prometheus) Flush(ctx context.Context) error {
	if removed := p.points.Sweep(); removed > 0 {
		p.logger.Debug("dropped stale prometheus series", "series", removed)
	}

	if p.pusher == nil {
		return nil
	}

	operation := func() (struct{}, error) {
		if err := p.pusher.PushContext(ctx); err != nil {
			p.logger.Warn("prometheus push failed", "error", err)
			return struct{}{}, err
		}
		return struct{}{}, nil
	}

	opts := []backoff.RetryOption{backoff.WithBackOff(backoff.NewExponentialBackOff())}
	if p.pushRetries > 0 {
		opts = append(opts, backoff.WithMaxTries(p.pushRetries))
	}

	if _, err := backoff.Retry(ctx, operation, opts...); err != nil {
		return fmt.Errorf("failed to push metrics: %w", err)
	}

	p.logger.Debug("pushed prometheus metrics", "series", p.points.Len())
	return nil
}

func (p *Prometheus) Close(context.Context) error { return nil }

// collector implements prometheus.Collector over the point registry.
// Label names of a metric family are the union of the dimension names of
// its series; series lacking a dimension report it empty.
type collector struct {
	points *metric.Registry
}

// Describe sends nothing, which makes the collector unchecked. Metric
// names are only known once gauges have run.
func (c *collector) Describe(chan<- *prometheus.Desc) {}

// Collect builds a const gauge for every stored series.
func (c *collector) Collect(ch chan<- prometheus.Metric) {
	families := make(map[string][]metric.DataPoint)
	var names []string
	for _, p := range c.points.Points() {
		name := p.Name
		if _, ok := families[name]; !ok {
			names = append(names, name)
		}
		families[name] = append(families[name], p)
	}

	for _, name := range names {
		points := families[name]
		labelNames, labelIndex := unionLabels(points)
		desc := prometheus.NewDesc(name, helpText, labelNames, nil)

		for _, p := range points {
			values := make([]string, len(labelNames))
			values[0] = p.Namespace
			for k, v := range p.Dimensions {
				if i := labelIndex[k]; i > 0 {
					values[i] = v
				}
			}

			m, err := prometheus.NewConstMetric(desc, prometheus.GaugeValue, float64(p.Value), values...)
			if err != nil {
				ch <- prometheus.NewInvalidMetric(desc, err)
				continue
			}
			ch <- m
		}
	}
}

// unionLabels returns the namespace label followed by the sorted
// dimension names of points, and the index of each name.
func unionLabels(points []metric.DataPoint) ([]string, map[string]int) {
	seen := map[string]bool{NamespaceAttribute: true}
	var dims []string
	for _, p := range points {
		for k := range p.Dimensions {
			if !seen[k] {
				seen[k] = true
				dims = append(dims, k)
			}
		}
	}
	slices.Sort(dims)

	labelNames := append([]string{NamespaceAttribute}, dims...)
	index := make(map[string]int, len(labelNames))
	for i, n := range labelNames {
		index[n] = i
	}
	return labelNames, index
}
