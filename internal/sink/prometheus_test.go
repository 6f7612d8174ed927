package sink

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/neox5/querygauge/internal/config"
	"github.com/neox5/querygauge/internal/metric"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusCollect(t *testing.T) {
	ctx := context.Background()
	s := NewPrometheus(&config.PrometheusExportConfig{Enabled: true}, discardLogger())

	require.NoError(t, s.Publish(ctx, "DataLake/sales", point("orders", 5, metric.Dimensions{"region": "us"})))
	require.NoError(t, s.Publish(ctx, "DataLake/sales", point("orders", 3, metric.Dimensions{"region": "eu", "channel": "web"})))

	families, err := s.Registry().Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	assert.Equal(t, "orders", families[0].GetName())

	values := make(map[string]float64)
	for _, m := range families[0].GetMetric() {
		labels := make(map[string]string)
		for _, lp := range m.GetLabel() {
			labels[lp.GetName()] = lp.GetValue()
		}
		assert.Equal(t, "DataLake/sales", labels["namespace"])
		values[labels["region"]+"/"+labels["channel"]] = m.GetGauge().GetValue()
	}
	assert.Equal(t, map[string]float64{"us/": 5, "eu/web": 3}, values)
}

func TestPrometheusRejectsUnusableNames(t *testing.T) {
	tests := []struct {
		name  string
		point metric.DataPoint
		want  string
	}{
		{
			name:  "invalid metric name",
			point: point("orders.by-region", 1, nil),
			want:  "invalid prometheus metric name",
		},
		{
			name:  "internal metric prefix",
			point: point("querygauge_gauges_total", 1, nil),
			want:  "reserved prefix",
		},
		{
			name:  "invalid label name",
			point: point("rows", 1, metric.Dimensions{"a-b": "x"}),
			want:  "invalid prometheus label name",
		},
		{
			name:  "reserved label prefix",
			point: point("rows", 1, metric.Dimensions{"__x": "x"}),
			want:  "reserved prefix",
		},
		{
			name:  "namespace dimension",
			point: point("rows", 1, metric.Dimensions{"namespace": "other"}),
			want:  "collides with the namespace label",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s := NewPrometheus(&config.PrometheusExportConfig{Enabled: true}, discardLogger())
			require.NoError(t, s.Publish(ctx, "ns", point("rows", 3, metric.Dimensions{"region": "us"})))

			err := s.Publish(ctx, "ns", tt.point)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)

			// The rejected point leaves the registry gatherable.
			families, err := s.Registry().Gather()
			require.NoError(t, err)
			require.Len(t, families, 1)
			require.Len(t, families[0].GetMetric(), 1)
			assert.Equal(t, 3.0, families[0].GetMetric()[0].GetGauge().GetValue())
		})
	}
}

func TestPrometheusEmptyDimensionIsAbsentLabel(t *testing.T) {
	ctx := context.Background()
	s := NewPrometheus(&config.PrometheusExportConfig{Enabled: true}, discardLogger())

	require.NoError(t, s.Publish(ctx, "ns", point("rows", 1, metric.Dimensions{"region": "us"})))
	require.NoError(t, s.Publish(ctx, "ns", point("rows", 2, metric.Dimensions{"region": "us", "channel": ""})))

	expected := `
# HELP rows Query gauge
# TYPE rows gauge
rows{namespace="ns",region="us"} 2
`
	require.NoError(t, testutil.GatherAndCompare(s.Registry(), strings.NewReader(expected), "rows"))
}

func TestPrometheusFlushDropsStaleSeries(t *testing.T) {
	ctx := context.Background()
	s := NewPrometheus(&config.PrometheusExportConfig{Enabled: true}, discardLogger())

	require.NoError(t, s.Publish(ctx, "ns", point("rows", 1, metric.Dimensions{"region": "us"})))
	require.NoError(t, s.Publish(ctx, "ns", point("rows", 2, metric.Dimensions{"region": "eu"})))
	require.NoError(t, s.Flush(ctx))

	require.NoError(t, s.Publish(ctx, "ns", point("rows", 4, metric.Dimensions{"region": "us"})))
	require.NoError(t, s.Flush(ctx))

	expected := `
# HELP rows Query gauge
# TYPE rows gauge
rows{namespace="ns",region="us"} 4
`
	require.NoError(t, testutil.GatherAndCompare(s.Registry(), strings.NewReader(expected), "rows"))
}

func TestPrometheusPush(t *testing.T) {
	var (
		requests atomic.Int32
		method   atomic.Value
		path     atomic.Value
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		method.Store(r.Method)
		path.Store(r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewPrometheus(&config.PrometheusExportConfig{
		Enabled:     true,
		PushGateway: srv.URL,
		Job:         "querygauge",
		PushRetries: 1,
	}, discardLogger())

	ctx := context.Background()
	require.NoError(t, s.Publish(ctx, "ns", point("rows", 1, nil)))
	require.NoError(t, s.Flush(ctx))

	assert.Equal(t, int32(1), requests.Load())
	assert.Equal(t, http.MethodPut, method.Load())
	assert.Equal(t, "/metrics/job/querygauge", path.Load())
}

func TestPrometheusPushRetries(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := NewPrometheus(&config.PrometheusExportConfig{
		Enabled:     true,
		PushGateway: srv.URL,
		Job:         "querygauge",
		PushRetries: 2,
	}, discardLogger())

	err := s.Flush(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to push metrics")
	assert.Equal(t, int32(2), requests.Load())
}

func TestPrometheusFlushWithoutGateway(t *testing.T) {
	s := NewPrometheus(&config.PrometheusExportConfig{Enabled: true}, discardLogger())
	assert.NoError(t, s.Flush(context.Background()))
}
