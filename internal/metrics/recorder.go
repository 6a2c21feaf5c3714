package metrics

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"dailete/internal/logging"
)

const meterName = "dailete/internal/metrics"

// Instrument names. The Prometheus exporter appends the unit and _total
// suffixes, so the time-saved counter is scraped as
// podcast_time_saved_seconds_total.
const (
	TimeSavedCounterName   = "podcast_time_saved"
	TimeSavedHistogramName = "podcast_time_saved_seconds"
	JobsCounterName        = "podcast_jobs"
)

// Label keys attached to time-saved observations.
const (
	LabelPodcastID   = "podcast_id"
	LabelEpisodeID   = "episode_id"
	LabelPodcastName = "podcast_name"
	LabelOutcome     = "outcome"
)

// timeSavedBuckets covers a single short pre-roll up to an hour of removed ads.
var timeSavedBuckets = []float64{
	15, 30, 60, 120, 300, 600, 900, 1800, 3600,
}

// Recorder is the metrics collaborator used by the pipeline and scheduler.
type Recorder struct {
	timeSaved     metric.Float64Counter
	timeSavedHist metric.Float64Histogram
	jobs          metric.Int64Counter
	logger        *slog.Logger
}

// NewRecorder creates the instruments on mp. A nil provider uses the global one.
func NewRecorder(mp metric.MeterProvider, logger *slog.Logger) (*Recorder, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	m := mp.Meter(meterName)
	r := &Recorder{logger: logging.NewComponentLogger(logger, "metrics")}

	var err error
	if r.timeSaved, err = m.Float64Counter(TimeSavedCounterName,
		metric.WithDescription("Total advertising time removed from episodes."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if r.timeSavedHist, err = m.Float64Histogram(TimeSavedHistogramName,
		metric.WithDescription("Advertising time removed per episode."),
		metric.WithExplicitBucketBoundaries(timeSavedBuckets...),
	); err != nil {
		return nil, err
	}
	if r.jobs, err = m.Int64Counter(JobsCounterName,
		metric.WithDescription("Episode jobs finished, by outcome."),
	); err != nil {
		return nil, err
	}
	return r, nil
}

// RecordTimeSaved adds d to the running total and the per-episode histogram.
// Zero is ignored and negative durations are logged and dropped.
func (r *Recorder) RecordTimeSaved(ctx context.Context, podcastID, episodeID string, d time.Duration, podcastName string) {
	if r == nil {
		return
	}
	if d <= 0 {
		if d < 0 {
			logging.WarnWithContext(logging.WithContext(ctx, r.logger), "negative time saved ignored", "metrics_negative_time_saved",
				logging.String(logging.FieldPodcastID, podcastID),
				logging.String(logging.FieldEpisodeID, episodeID),
				logging.Duration("time_saved", d),
				logging.String(logging.FieldImpact, "metric not recorded"),
			)
		}
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(LabelPodcastID, podcastID),
		attribute.String(LabelEpisodeID, episodeID),
		attribute.String(LabelPodcastName, podcastName),
	)
	seconds := d.Seconds()
	r.timeSaved.Add(ctx, seconds, attrs)
	r.timeSavedHist.Record(ctx, seconds, attrs)
}

// RecordJob counts a finished job.
func (r *Recorder) RecordJob(ctx context.Context, podcastID, outcome string) {
	if r == nil {
		return
	}
	r.jobs.Add(ctx, 1, metric.WithAttributes(
		attribute.String(LabelPodcastID, podcastID),
		attribute.String(LabelOutcome, outcome),
	))
}
