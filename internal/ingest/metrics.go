package ingest

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("insights.internal.ingest")

var (
	outcomeCounter, _ = meter.Int64Counter(
		"ingest.outcomes",
		metric.WithDescription("Completed ingestions by outcome."),
	)
	cacheCounter, _ = meter.Int64Counter(
		"ingest.cache_lookups",
		metric.WithDescription("Cache lookups by result (hit, miss, error)."),
	)
	attemptCounter, _ = meter.Int64Counter(
		"ingest.extraction_attempts",
		metric.WithDescription("Extraction attempts, retries included."),
	)
	durationHistogram, _ = meter.Float64Histogram(
		"ingest.duration",
		metric.WithDescription("Time spent in GetOrRefresh."),
		metric.WithUnit("s"),
	)
)

func recordCache(ctx context.Context, result string) {
	cacheCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func recordOutcome(ctx context.Context, outcome Outcome, err error, start time.Time) {
	attrs := metric.WithAttributes(
		attribute.String("outcome", outcome.String()),
		attribute.Bool("error", err != nil),
	)
	outcomeCounter.Add(ctx, 1, attrs)
	durationHistogram.Record(ctx, time.Since(start).Seconds(), attrs)
}
