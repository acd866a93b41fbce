package observability_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/Sumatoshi-tech/issuetrack/pkg/observability"
)

func setupTrackingMeter(t *testing.T) (*observability.TrackingMetrics, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	tm, err := observability.NewTrackingMetrics(mp.Meter("test"))
	require.NoError(t, err)

	return tm, reader
}

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

func sumFor(t *testing.T, m metricdata.Metrics, key, value string) int64 {
	t.Helper()

	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok)

	for _, dp := range sum.DataPoints {
		if v, found := dp.Attributes.Value(attribute.Key(key)); found && v.AsString() == value {
			return dp.Value
		}
	}

	return 0
}

func TestTrackingMetrics_RecordFile(t *testing.T) {
	t.Parallel()

	tm, reader := setupTrackingMeter(t)
	ctx := context.Background()

	tm.RecordFile(ctx, observability.FileStats{
		Duration: 20 * time.Millisecond,
		Outcomes: map[string]int{observability.OutcomeNew: 2, observability.OutcomeMatched: 5, observability.OutcomeClosed: 0},
	})
	tm.RecordFile(ctx, observability.FileStats{
		Duration: 30 * time.Millisecond,
		Outcomes: map[string]int{observability.OutcomeNew: 1},
	})

	metrics := collect(t, reader)

	issues := metrics["issuetrack.issues.total"]
	assert.Equal(t, int64(3), sumFor(t, issues, "outcome", observability.OutcomeNew))
	assert.Equal(t, int64(5), sumFor(t, issues, "outcome", observability.OutcomeMatched))

	hist, ok := metrics["issuetrack.file.duration.seconds"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(2), hist.DataPoints[0].Count)
}

func TestTrackingMetrics_RecordPersist(t *testing.T) {
	t.Parallel()

	tm, reader := setupTrackingMeter(t)

	tm.RecordPersist(context.Background(), observability.PersistStats{Inserts: 4, Updates: 2, Merged: 1})

	rows := collect(t, reader)["issuetrack.persist.rows.total"]
	assert.Equal(t, int64(4), sumFor(t, rows, "op", "insert"))
	assert.Equal(t, int64(2), sumFor(t, rows, "op", "update"))
	assert.Equal(t, int64(1), sumFor(t, rows, "op", "merged"))
}

func TestTrackingMetrics_NilReceiver(t *testing.T) {
	t.Parallel()

	var tm *observability.TrackingMetrics

	assert.NotPanics(t, func() {
		tm.RecordFile(context.Background(), observability.FileStats{})
		tm.RecordPersist(context.Background(), observability.PersistStats{})
	})
}
