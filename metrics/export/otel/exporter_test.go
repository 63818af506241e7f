package otel

import (
	"context"
	"maps"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/bugforge/authcore"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot authcore.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() authcore.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := authcore.MetricsSnapshot{
		Counters:      maps.Clone(f.snapshot.Counters),
		Histograms:    make(map[authcore.MetricID][]uint64, len(f.snapshot.Histograms)),
		HistogramSums: maps.Clone(f.snapshot.HistogramSums),
	}
	for k, buckets := range f.snapshot.Histograms {
		out.Histograms[k] = slices.Clone(buckets)
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

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	out := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestExporterCollectsCountersAndBuckets(t *testing.T) {
	reader, provider := newReader(t)

	src := &fakeSource{
		snapshot: authcore.MetricsSnapshot{
			Counters: map[authcore.MetricID]uint64{
				authcore.MetricTokenIssued: 3,
			},
			Histograms: map[authcore.MetricID][]uint64{
				authcore.MetricValidateLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
			HistogramSums: map[authcore.MetricID]time.Duration{
				authcore.MetricValidateLatency: 1500 * time.Millisecond,
			},
		},
		dropped: 1,
	}

	exp, err := NewExporter(provider.Meter("authcore-test"), src)
	if err != nil {
		t.Fatalf("NewExporter failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	got := collect(t, reader)

	issued, ok := got["authcore_token_issued_total"].Data.(metricdata.Sum[int64])
	if !ok || len(issued.DataPoints) != 1 || issued.DataPoints[0].Value != 3 {
		t.Fatalf("token issued counter = %+v", got["authcore_token_issued_total"].Data)
	}

	dropped, ok := got["authcore_audit_dropped_total"].Data.(metricdata.Sum[int64])
	if !ok || len(dropped.DataPoints) != 1 || dropped.DataPoints[0].Value != 1 {
		t.Fatalf("audit dropped counter = %+v", got["authcore_audit_dropped_total"].Data)
	}

	buckets, ok := got["authcore_validate_latency_seconds_bucket"].Data.(metricdata.Gauge[int64])
	if !ok || len(buckets.DataPoints) != 8 {
		t.Fatalf("bucket gauge = %+v", got["authcore_validate_latency_seconds_bucket"].Data)
	}
	byBound := map[string]int64{}
	for _, dp := range buckets.DataPoints {
		le, ok := dp.Attributes.Value("le")
		if !ok {
			t.Fatalf("bucket data point without le attribute")
		}
		byBound[le.AsString()] = dp.Value
	}
	if byBound["0.005"] != 1 || byBound["0.5"] != 7 || byBound["+Inf"] != 8 {
		t.Fatalf("cumulative buckets = %v", byBound)
	}

	count, ok := got["authcore_validate_latency_seconds_count"].Data.(metricdata.Gauge[int64])
	if !ok || len(count.DataPoints) != 1 || count.DataPoints[0].Value != 8 {
		t.Fatalf("histogram count = %+v", got["authcore_validate_latency_seconds_count"].Data)
	}

	sum, ok := got["authcore_validate_latency_seconds_sum"].Data.(metricdata.Gauge[float64])
	if !ok || len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 1.5 {
		t.Fatalf("histogram sum = %+v", got["authcore_validate_latency_seconds_sum"].Data)
	}
	if unit := got["authcore_validate_latency_seconds_sum"].Unit; unit != "s" {
		t.Fatalf("histogram sum unit = %q", unit)
	}

	if _, ok := got["authcore_rotate_latency_seconds_bucket"]; ok {
		t.Fatalf("rotate latency observed without data")
	}
}

func TestExporterSilentWhenMetricsDisabled(t *testing.T) {
	reader, provider := newReader(t)

	var engine *authcore.Engine
	exp, err := NewExporter(provider.Meter("authcore-test"), engine)
	if err != nil {
		t.Fatalf("NewExporter failed: %v", err)
	}
	defer exp.Close()

	if got := collect(t, reader); len(got) != 0 {
		t.Fatalf("expected no data points, got %d metrics", len(got))
	}
}

func TestExporterRejectsNilArguments(t *testing.T) {
	_, provider := newReader(t)

	if _, err := NewExporter(provider.Meter("authcore-test"), nil); err != ErrNilSource {
		t.Fatalf("nil source: err = %v", err)
	}
	if _, err := NewExporter(nil, &fakeSource{}); err != ErrNilMeter {
		t.Fatalf("nil meter: err = %v", err)
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader, provider := newReader(t)

	src := &fakeSource{
		snapshot: authcore.MetricsSnapshot{
			Counters: map[authcore.MetricID]uint64{
				authcore.MetricTokenIssued: 1,
			},
			Histograms: map[authcore.MetricID][]uint64{
				authcore.MetricValidateLatency: {1, 0, 0, 0, 0, 0, 0, 0},
			},
		},
	}

	exp, err := NewExporter(provider.Meter("authcore-test"), src)
	if err != nil {
		t.Fatalf("NewExporter failed: %v", err)
	}
	defer exp.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[authcore.MetricTokenIssued] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
