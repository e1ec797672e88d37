package observability

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"resumecrew/internal/config"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumOf(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", m.Name)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestMetricsRecording(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordRequest(ctx, "success")
	m.RecordRequest(ctx, "NETWORK_FAILURE")
	m.RecordStage(ctx, "fetch", 1500*time.Millisecond, nil)
	m.RecordStage(ctx, "orchestrate", time.Second, stderrors.New("boom"))
	m.RecordTokens(ctx, 100, 40, 140)
	m.RecordCleanupFailure(ctx)
	m.RecordRateLimitHit(ctx, "ip")

	got := collect(t, reader)
	assert.Equal(t, int64(2), sumOf(t, got["pipeline.requests"]))
	assert.Equal(t, int64(280), sumOf(t, got["ai.tokens"]))
	assert.Equal(t, int64(1), sumOf(t, got["transient.cleanup.failures"]))
	assert.Equal(t, int64(1), sumOf(t, got["http.rate_limit.hits"]))

	hist, ok := got["pipeline.stage.duration"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	assert.Len(t, hist.DataPoints, 2)
}

func TestDisabledManager(t *testing.T) {
	om, err := NewObservabilityManager(ObservabilityConfig{ServiceName: "resumecrew", Enabled: false})
	require.NoError(t, err)

	require.NotNil(t, om.GetMetrics())
	om.GetMetrics().RecordRequest(context.Background(), "success")
	assert.Nil(t, om.MetricsHandler())

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) })
	rec := httptest.NewRecorder()
	om.HTTPMiddleware()(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.NoError(t, om.Shutdown(context.Background()))
}

func TestPrometheusHandler(t *testing.T) {
	om, err := NewObservabilityManager(ObservabilityConfig{
		ServiceName:        "resumecrew",
		ServiceVersion:     "test",
		Enabled:            true,
		SampleRate:         1.0,
		MetricsEnabled:     true,
		CollectionInterval: time.Second,
		Prometheus:         PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = om.Shutdown(context.Background()) })

	om.GetMetrics().RecordRequest(context.Background(), "success")

	require.NotNil(t, om.MetricsHandler())
	rec := httptest.NewRecorder()
	om.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "pipeline_requests"), "missing pipeline_requests in output")
	assert.Equal(t, "/metrics", om.MetricsEndpoint())
}

func TestGetObservabilityConfig(t *testing.T) {
	fallback := GetObservabilityConfig(nil, "1.2.3")
	assert.Equal(t, "resumecrew", fallback.ServiceName)
	assert.Equal(t, "1.2.3", fallback.ServiceVersion)
	assert.True(t, fallback.Prometheus.Enabled)

	cfg := &config.Config{}
	cfg.Observability.ServiceName = "crew"
	cfg.Observability.Enabled = true
	cfg.Observability.Prometheus.Enabled = true
	cfg.Observability.OTLP.Endpoint = "http://collector:4318"

	got := GetObservabilityConfig(cfg, "dev")
	assert.Equal(t, "crew", got.ServiceName)
	assert.Equal(t, "dev", got.ServiceVersion)
	assert.Equal(t, "/metrics", got.Prometheus.Endpoint)
	assert.Equal(t, 15*time.Second, got.CollectionInterval)
	assert.Equal(t, "http://collector:4318", got.OTLP.Endpoint)
}
