package runner

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Internal metric names
const (
	gaugesTotalName     = "querygauge_gauges_total"
	pointsTotalName     = "querygauge_points_published_total"
	publishFailuresName = "querygauge_publish_failures_total"
	rowsDroppedName     = "querygauge_rows_dropped_total"
	runDurationName     = "querygauge_run_duration_seconds"
	lastRunName         = "querygauge_last_run_timestamp_seconds"
)

// Telemetry records run outcomes as Prometheus metrics.
type Telemetry struct {
	gauges          *prometheus.CounterVec
	points          prometheus.Counter
	publishFailures prometheus.Counter
	rowsDropped     prometheus.Counter
	runDuration     prometheus.Histogram
	lastRun         prometheus.Gauge
}

// NewTelemetry creates the internal metrics and registers them with reg.
func NewTelemetry(reg prometheus.Registerer) (*Telemetry, error) {
	t := &Telemetry{
		gauges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: gaugesTotalName,
			Help: "Gauges evaluated, by group and status",
		}, []string{"group", "status"}),
		points: prometheus.NewCounter(prometheus.CounterOpts{
			Name: pointsTotalName,
			Help: "Data points accepted by the sink",
		}),
		publishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: publishFailuresName,
			Help: "Data points rejected by the sink",
		}),
		rowsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: rowsDroppedName,
			Help: "Result rows dropped because a value could not be read",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    runDurationName,
			Help:    "Duration of manifest runs in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: lastRunName,
			Help: "Unix time the last run finished",
		}),
	}

	for _, c := range []prometheus.Collector{t.gauges, t.points, t.publishFailures, t.rowsDropped, t.runDuration, t.lastRun} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register internal metric: %w", err)
		}
	}

	return t, nil
}

func (t *Telemetry) observeGauge(o Outcome) {
	status := "ok"
	switch {
	case o.Skipped:
		status = "skipped"
	case o.Err != nil:
		status = "failed"
	}
	t.gauges.WithLabelValues(o.Group, status).Inc()
	t.points.Add(float64(o.Result.Points))
	t.publishFailures.Add(float64(o.Result.PublishFailures))
	t.rowsDropped.Add(float64(o.Result.Stats.Dropped))
}

func (t *Telemetry) observeRun(r Report) {
	t.runDuration.Observe(r.Duration.Seconds())
	t.lastRun.Set(float64(r.Started.Add(r.Duration).Unix()))
}
