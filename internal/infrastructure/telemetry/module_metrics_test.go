package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/erp/platform/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

func TestNewModuleMetrics_NilMeter(t *testing.T) {
	m, err := telemetry.NewModuleMetrics(nil)
	require.Error(t, err)
	assert.Nil(t, m)
	assert.Equal(t, "NewModuleMetrics: meter cannot be nil", err.Error())
}

func TestModuleMetrics_NilReceiver(t *testing.T) {
	var m *telemetry.ModuleMetrics
	ctx := context.Background()

	assert.NotPanics(t, func() {
		m.RecordLifecycle(ctx, uuid.New(), "pos", telemetry.OutcomeActivated)
		m.RecordEmit(ctx, "invoice.paid")
		m.RecordAsyncFailure(ctx, "invoice.paid", "pos")
		m.RecordFlush(ctx, time.Millisecond, 2)
	})
}

func TestModuleMetrics_Noop(t *testing.T) {
	m, err := telemetry.NewModuleMetrics(noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordLifecycle(ctx, uuid.New(), "pos", telemetry.OutcomeRejected)
	m.RecordFlush(ctx, 3*time.Millisecond, 1)
}

func TestModuleMetrics_CollectsCounters(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	provider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{ServiceName: "test"}, zap.NewNop(),
		telemetry.WithMetricReader(reader))
	require.NoError(t, err)
	defer func() { _ = provider.Shutdown(ctx) }()
	assert.True(t, provider.IsEnabled())

	m, err := telemetry.NewModuleMetrics(provider.Meter("test"))
	require.NoError(t, err)

	m.RecordEmit(ctx, "invoice.paid")
	m.RecordEmit(ctx, "invoice.paid")
	m.RecordAsyncFailure(ctx, "invoice.paid", "pos")
	m.RecordFlush(ctx, 2*time.Millisecond, 3)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	totals := map[string]int64{}
	var flush metricdata.HistogramDataPoint[float64]
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			switch data := md.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					totals[md.Name] += dp.Value
				}
			case metricdata.Histogram[float64]:
				require.Len(t, data.DataPoints, 1)
				flush = data.DataPoints[0]
			}
		}
	}
	assert.Equal(t, int64(2), totals[telemetry.MetricEventsEmittedTotal])
	assert.Equal(t, int64(1), totals[telemetry.MetricAsyncFailuresTotal])
	assert.Equal(t, uint64(1), flush.Count)
	assert.Equal(t, 0.0001, flush.Bounds[0], "sub-second buckets from the flush view")
}

func TestNewMeterProvider_Disabled(t *testing.T) {
	ctx := context.Background()
	cfg := telemetry.MetricsConfig{ServiceName: "test-service"}

	mp, err := telemetry.NewMeterProvider(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, mp.IsEnabled())
	assert.NotNil(t, mp.Meter("test"))
	assert.NoError(t, mp.Shutdown(ctx))

	tp, err := telemetry.NewTracerProvider(ctx, telemetry.Config{}, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, tp.IsEnabled())
	assert.NoError(t, tp.Shutdown(ctx))
}
