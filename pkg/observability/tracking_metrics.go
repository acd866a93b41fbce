package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricIssuesTotal  = "issuetrack.issues.total"
	metricFileDuration = "issuetrack.file.duration.seconds"
	metricPersistRows  = "issuetrack.persist.rows.total"

	attrOutcome = "outcome"
	attrOp      = "op"
)

// Issue outcomes counted by TrackingMetrics.
const (
	OutcomeNew               = "new"
	OutcomeMatched           = "matched"
	OutcomeClosed            = "closed"
	OutcomeCopied            = "copied"
	OutcomeReopened          = "reopened"
	OutcomeShortBranchMerged = "short_branch_merged"
	OutcomeAlreadyOnTarget   = "already_on_target"
)

// fileDurationBoundaries covers 1ms to 60s per file.
var fileDurationBoundaries = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// TrackingMetrics holds the instruments of the tracking engine.
type TrackingMetrics struct {
	issuesTotal  metric.Int64Counter
	fileDuration metric.Float64Histogram
	persistRows  metric.Int64Counter
}

// FileStats is what the engine reports for one tracked file.
type FileStats struct {
	Duration time.Duration
	// Outcomes counts issues per outcome name.
	Outcomes map[string]int
}

// PersistStats counts rows written at the end of an analysis.
type PersistStats struct {
	Inserts int
	Updates int
	Merged  int
}

// NewTrackingMetrics creates the tracking instruments from the given meter.
func NewTrackingMetrics(mt metric.Meter) (*TrackingMetrics, error) {
	issues, err := mt.Int64Counter(metricIssuesTotal,
		metric.WithDescription("Issues processed by tracking outcome"),
		metric.WithUnit("{issue}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricIssuesTotal, err)
	}

	fileDur, err := mt.Float64Histogram(metricFileDuration,
		metric.WithDescription("Per-file tracking duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(fileDurationBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricFileDuration, err)
	}

	rows, err := mt.Int64Counter(metricPersistRows,
		metric.WithDescription("Issue rows written by operation"),
		metric.WithUnit("{row}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricPersistRows, err)
	}

	return &TrackingMetrics{issuesTotal: issues, fileDuration: fileDur, persistRows: rows}, nil
}

// RecordFile records the statistics of one file. Safe to call on a nil receiver.
func (tm *TrackingMetrics) RecordFile(ctx context.Context, stats FileStats) {
	if tm == nil {
		return
	}

	tm.fileDuration.Record(ctx, stats.Duration.Seconds())

	for outcome, n := range stats.Outcomes {
		if n == 0 {
			continue
		}

		tm.issuesTotal.Add(ctx, int64(n), metric.WithAttributes(attribute.String(attrOutcome, outcome)))
	}
}

// RecordPersist records the rows written by an analysis. Safe to call on a nil receiver.
func (tm *TrackingMetrics) RecordPersist(ctx context.Context, stats PersistStats) {
	if tm == nil {
		return
	}

	tm.persistRows.Add(ctx, int64(stats.Inserts), metric.WithAttributes(attribute.String(attrOp, "insert")))
	tm.persistRows.Add(ctx, int64(stats.Updates), metric.WithAttributes(attribute.String(attrOp, "update")))
	tm.persistRows.Add(ctx, int64(stats.Merged), metric.WithAttributes(attribute.String(attrOp, "merged")))
}
