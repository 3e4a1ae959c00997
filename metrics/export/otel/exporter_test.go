package otel

import (
	"context"
	"sync"
	"testing"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot goGuard.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() goGuard.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := goGuard.MetricsSnapshot{
		Counters:   make(map[goGuard.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms: make(map[goGuard.MetricID][]uint64, len(f.snapshot.Histograms)),
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	for k, b := range f.snapshot.Histograms {
		out.Histograms[k] = append([]uint64(nil), b...)
	}
	return out
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func newReader(t *testing.T) (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return reader, provider
}

func findSum(rm metricdata.ResourceMetrics, name string) (metricdata.Sum[int64], bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			return sum, ok
		}
	}
	return metricdata.Sum[int64]{}, false
}

func TestExporterCollectsCountersAndDenials(t *testing.T) {
	reader, provider := newReader(t)
	src := &fakeSource{
		snapshot: goGuard.MetricsSnapshot{
			Counters: map[goGuard.MetricID]uint64{
				goGuard.MetricGuardAllowed:    4,
				goGuard.MetricDenyRateLimited: 2,
			},
			Histograms: map[goGuard.MetricID][]uint64{
				goGuard.MetricGuardLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
		},
		dropped: 1,
	}

	exp, err := NewExporterFromSource(provider.Meter("goguard-test"), src)
	require.NoError(t, err)
	defer func() { require.NoError(t, exp.Close()) }()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	allowed, ok := findSum(rm, "goguard_guard_allowed_total")
	require.True(t, ok)
	require.Len(t, allowed.DataPoints, 1)
	assert.Equal(t, int64(4), allowed.DataPoints[0].Value)

	denied, ok := findSum(rm, "goguard_guard_denied_total")
	require.True(t, ok)
	require.Len(t, denied.DataPoints, 7)
	for _, dp := range denied.DataPoints {
		reason, _ := dp.Attributes.Value(attribute.Key("reason"))
		if reason.AsString() == string(goGuard.ReasonRateLimited) {
			assert.Equal(t, int64(2), dp.Value)
		}
	}

	dropped, ok := findSum(rm, "goguard_audit_dropped_total")
	require.True(t, ok)
	assert.Equal(t, int64(1), dropped.DataPoints[0].Value)
}

func TestExporterRejectsNilInputs(t *testing.T) {
	_, provider := newReader(t)

	_, err := NewExporterFromSource(provider.Meter("goguard-test"), nil)
	assert.ErrorIs(t, err, ErrNilSource)
	_, err = NewExporterFromSource(nil, &fakeSource{})
	assert.ErrorIs(t, err, ErrNilMeter)
	_, err = NewExporter(provider.Meter("goguard-test"), nil)
	assert.ErrorIs(t, err, ErrNilSource)
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader, provider := newReader(t)
	src := &fakeSource{
		snapshot: goGuard.MetricsSnapshot{
			Counters:   map[goGuard.MetricID]uint64{goGuard.MetricGuardAllowed: 1},
			Histograms: map[goGuard.MetricID][]uint64{},
		},
	}

	exp, err := NewExporterFromSource(provider.Meter("goguard-test"), src)
	require.NoError(t, err)
	defer func() { _ = exp.Close() }()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[goGuard.MetricGuardAllowed] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
