package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	require.Equal(t, "sentinel", config.ServiceName)
	require.Equal(t, "localhost:4317", config.OTLPEndpoint)
	require.Equal(t, 1.0, config.SampleRate)
	require.False(t, config.Enabled)
}

func TestNewProviderDisabled(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.False(t, p.Enabled())
	assert.NotNil(t, p.Tracer())

	_, done := p.TrackOperation(context.Background(), "patrol.cycle")
	done(errors.New("ignored"))
	p.RecordOutcome(context.Background(), "COMMITTED")
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestNilProviderIsNoop(t *testing.T) {
	var p *Provider
	assert.False(t, p.Enabled())
	_, done := p.TrackOperation(context.Background(), "ledger.commit")
	done(nil)
	p.RecordOutcome(context.Background(), "CLEAR")
	assert.NoError(t, p.Shutdown(context.Background()))
}

func inMemoryProvider(t *testing.T) (*Provider, *sdkmetric.ManualReader, *tracetest.SpanRecorder) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	p, err := NewWithProviders(nil, tp, mp)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })
	return p, reader, recorder
}

func sumOf(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "metric %s is not an int64 sum", name)
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func TestTrackOperation_RecordsREDMetrics(t *testing.T) {
	p, reader, recorder := inMemoryProvider(t)
	ctx := context.Background()
	assert.True(t, p.Enabled())

	_, done := p.TrackOperation(ctx, "ledger.commit", attribute.String("zone", "Sector-1"))
	done(nil)
	_, done = p.TrackOperation(ctx, "ledger.commit", attribute.String("zone", "Sector-2"))
	done(errors.New("ledger unavailable"))
	p.RecordOutcome(ctx, "COMMITTED")
	p.RecordOutcome(ctx, "COMMIT_FAILED")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	assert.Equal(t, int64(2), sumOf(t, rm, "sentinel.operations.total"))
	assert.Equal(t, int64(1), sumOf(t, rm, "sentinel.errors.total"))
	assert.Equal(t, int64(0), sumOf(t, rm, "sentinel.operations.active"))
	assert.Equal(t, int64(2), sumOf(t, rm, "sentinel.cycles.outcome"))

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "ledger.commit", spans[0].Name())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
}
