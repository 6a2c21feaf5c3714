package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dailete/internal/acquire"
	"dailete/internal/align"
	"dailete/internal/audiotool"
	"dailete/internal/catalog"
	"dailete/internal/config"
	"dailete/internal/fileutil"
	"dailete/internal/fingerprint"
	"dailete/internal/logging"
	"dailete/internal/normalize"
	"dailete/internal/services"
)

// Outcome describes how an episode's artifact was produced.
type Outcome string

const (
	// OutcomeIdentical means both captures matched and the local one was published.
	OutcomeIdentical Outcome = "identical"
	// OutcomeProcessed means the aligned, re-encoded output was published.
	OutcomeProcessed Outcome = "processed"
	// OutcomeFallback means the guard rejected the aligned output.
	OutcomeFallback Outcome = "fallback"
	// OutcomeFailed is reported to metrics for jobs that returned an error.
	OutcomeFailed Outcome = "failed"
)

// Job identifies one episode to process.
type Job struct {
	PodcastID   string
	PodcastName string
	EpisodeID   string
	URL         string
}

// Result describes a committed artifact.
type Result struct {
	Outcome          Outcome
	FinalPath        string
	FileSize         int64
	OriginalDuration time.Duration
	FinalDuration    time.Duration
	TimeSaved        time.Duration
	Stats            align.Stats
}

// Acquirer downloads both captures of an episode.
type Acquirer interface {
	Acquire(ctx context.Context, job acquire.Job) (acquire.Captures, error)
}

// Recorder receives time-saved and job outcome observations.
type Recorder interface {
	RecordTimeSaved(ctx context.Context, podcastID, episodeID string, d time.Duration, podcastName string)
	RecordJob(ctx context.Context, podcastID, outcome string)
}

// Options wires a Pipeline.
type Options struct {
	Acquirer   Acquirer
	Tools      audiotool.Tools
	Normalizer *normalize.Normalizer
	Engine     *align.Engine
	Recorder   Recorder
	Encoding   audiotool.EncodeOptions
	Extension  string

	StorageDir     string
	WorkDir        string
	DiagnosticsDir string
	// MinRetainedRatio is the share of the original duration the output must keep.
	MinRetainedRatio float64
	// KeepCaptures copies both raw captures into DiagnosticsDir on fallback.
	KeepCaptures bool
	Logger       *slog.Logger
}

// Pipeline processes episodes. It holds no per-job state, so one Pipeline may
// run several jobs concurrently as long as they target different episodes.
type Pipeline struct {
	opts   Options
	logger *slog.Logger
}

// New validates opts and returns a Pipeline.
func New(opts Options) (*Pipeline, error) {
	switch {
	case opts.Acquirer == nil:
		return nil, errors.New("pipeline: acquirer is required")
	case opts.Tools == nil:
		return nil, errors.New("pipeline: tools are required")
	case opts.Normalizer == nil:
		return nil, errors.New("pipeline: normalizer is required")
	case opts.Engine == nil:
		return nil, errors.New("pipeline: alignment engine is required")
	case strings.TrimSpace(opts.StorageDir) == "":
		return nil, errors.New("pipeline: storage dir is required")
	case strings.TrimSpace(opts.WorkDir) == "":
		return nil, errors.New("pipeline: work dir is required")
	case opts.MinRetainedRatio <= 0 || opts.MinRetainedRatio > 1:
		return nil, fmt.Errorf("pipeline: retained ratio %v must be in (0, 1]", opts.MinRetainedRatio)
	}
	opts.Extension = strings.TrimPrefix(strings.TrimSpace(opts.Extension), ".")
	if opts.Extension == "" {
		return nil, errors.New("pipeline: artifact extension is required")
	}
	return &Pipeline{opts: opts, logger: logging.NewComponentLogger(opts.Logger, "pipeline")}, nil
}

// NewFromConfig builds the engine, normalizer, and encoding options from cfg.
func NewFromConfig(cfg *config.Config, acquirer Acquirer, tools audiotool.Tools, recorder Recorder, logger *slog.Logger) (*Pipeline, error) {
	if cfg == nil {
		return nil, errors.New("pipeline: config is required")
	}
	profiles := normalize.ProfilesFromConfig(cfg)
	engineOpts := align.Options{
		Comparison:       profiles.Comparison,
		Quality:          profiles.Quality,
		HeaderBytes:      cfg.Alignment.HeaderBytes,
		WindowSeconds:    cfg.Alignment.WindowSeconds,
		LookAheadWindows: cfg.LookAheadWindows(),
	}
	if cfg.Alignment.ApproximateMatch {
		similarity := align.DefaultSimilarity(cfg.Alignment.ApproximateThreshold)
		if cfg.Alignment.ApproximateTolerance > 0 {
			similarity.Tolerance = cfg.Alignment.ApproximateTolerance
		}
		engineOpts.Approximate = similarity
	}
	engine, err := align.New(engineOpts)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "init", "alignment options", err)
	}
	return New(Options{
		Acquirer:   acquirer,
		Tools:      tools,
		Normalizer: normalize.New(tools, profiles, logger),
		Engine:     engine,
		Recorder:   recorder,
		Encoding: audiotool.EncodeOptions{
			Codec:      cfg.Encoding.Codec,
			Bitrate:    cfg.Encoding.Bitrate,
			SampleRate: profiles.Quality.SampleRate,
			Channels:   profiles.Quality.Channels,
		},
		Extension:        cfg.Encoding.Extension,
		StorageDir:       cfg.Paths.StorageDir,
		WorkDir:          cfg.Paths.WorkDir,
		DiagnosticsDir:   cfg.Paths.DiagnosticsDir,
		MinRetainedRatio: cfg.Alignment.MinRetainedRatio,
		KeepCaptures:     cfg.Logging.KeepCaptures,
		Logger:           logger,
	})
}

// ArtifactPath returns where job's final artifact is written.
func (p *Pipeline) ArtifactPath(podcastID, episodeID string) string {
	return catalog.ArtifactPath(p.opts.StorageDir, podcastID, episodeID, p.opts.Extension)
}

// RetainedEnough reports whether final keeps at least ratio of original,
// rounded to the nearest nanosecond. Outputs below that are treated as a
// failed alignment.
func RetainedEnough(original, final time.Duration, ratio float64) bool {
	threshold := time.Duration(math.Round(ratio * float64(original)))
	return final >= threshold
}

// Process runs one job end to end. Nothing is written to storage unless the
// job succeeds.
func (p *Pipeline) Process(ctx context.Context, job Job) (Result, error) {
	ctx = services.WithPodcastID(ctx, job.PodcastID)
	ctx = services.WithEpisodeID(ctx, job.EpisodeID)
	logger := logging.WithContext(ctx, p.logger)
	started := time.Now()

	result, err := p.process(ctx, logger, job)
	if err != nil {
		p.recordJob(ctx, job, OutcomeFailed)
		if ctx.Err() == nil {
			logging.ErrorWithContext(logger, "episode processing failed", "episode_failed",
				logging.Error(err),
				logging.String("error_kind", services.Kind(err)),
				logging.Bool("retryable", services.Retryable(err)),
				logging.String(logging.FieldErrorHint, errorHint(err)),
			)
		}
		return Result{}, err
	}

	p.recordJob(ctx, job, result.Outcome)
	logger.Info("episode ready",
		logging.String("outcome", string(result.Outcome)),
		logging.String("artifact", result.FinalPath),
		logging.Int64("bytes", result.FileSize),
		logging.Duration("time_saved", result.TimeSaved),
		logging.Duration("elapsed", time.Since(started)),
	)
	return result, nil
}

func (p *Pipeline) process(ctx context.Context, logger *slog.Logger, job Job) (Result, error) {
	artifact := p.ArtifactPath(job.PodcastID, job.EpisodeID)
	processed := filepath.Join(p.opts.WorkDir, job.PodcastID, job.EpisodeID+".processed.wav")
	encoded := filepath.Join(p.opts.WorkDir, job.PodcastID, job.EpisodeID+".encoded."+p.opts.Extension)

	stageCtx := services.WithStage(ctx, "acquire")
	captures, err := p.opts.Acquirer.Acquire(stageCtx, acquire.Job{PodcastID: job.PodcastID, EpisodeID: job.EpisodeID, URL: job.URL})
	if err != nil {
		return Result{}, err
	}
	var streams normalize.Streams
	defer func() {
		streams.Remove()
		_ = os.Remove(processed)
		_ = os.Remove(encoded)
		// Last, so the emptied work directory goes with the captures.
		captures.Remove()
	}()

	if _, err := os.Stat(captures.Remote); err != nil {
		return Result{}, services.Wrap(services.ErrMissingCapture, "pipeline", "acquire", "remote capture", err)
	}
	if _, err := os.Stat(captures.Local); err != nil {
		return Result{}, services.Wrap(services.ErrMissingCapture, "pipeline", "acquire", "local capture", err)
	}

	identical, err := fingerprint.Equal(captures.Local, captures.Remote)
	if err != nil {
		return Result{}, services.Wrap(services.ErrTransient, "pipeline", "fingerprint", "", err)
	}
	if identical {
		logger.Info("captures identical, publishing local capture", logging.String(logging.FieldEventType, "captures_identical"))
		return p.promote(captures.Local, artifact, Result{Outcome: OutcomeIdentical})
	}

	original, err := p.opts.Tools.Duration(services.WithStage(ctx, "probe"), captures.Local)
	if err != nil {
		return Result{}, err
	}

	streams, err = p.opts.Normalizer.Prepare(services.WithStage(ctx, "normalize"), captures.Local, captures.Remote)
	if err != nil {
		return Result{}, err
	}

	stats, err := align.AlignFiles(services.WithStage(ctx, "align"), p.opts.Engine, align.Paths{
		Local:   streams.LocalComparison.Path,
		Remote:  streams.RemoteComparison.Path,
		Quality: streams.LocalQuality.Path,
		Output:  processed,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		return Result{}, services.Wrap(services.ErrTransient, "pipeline", "align", "", err)
	}
	logger.Debug("alignment complete",
		logging.Int("windows", stats.Windows),
		logging.Int("direct", stats.Direct),
		logging.Int("silent", stats.Silent),
		logging.Int("resynced", stats.Resynced),
		logging.Int("dropped", stats.Dropped),
		logging.Int("max_dropped_run", stats.MaxDroppedRun),
	)
	// The scratch PCM is large; release it before encoding.
	streams.Remove()

	if err := p.opts.Tools.Encode(services.WithStage(ctx, "encode"), processed, encoded, p.opts.Encoding); err != nil {
		return Result{}, err
	}
	final, err := p.opts.Tools.Duration(services.WithStage(ctx, "probe"), encoded)
	if err != nil {
		return Result{}, err
	}

	result := Result{OriginalDuration: original, FinalDuration: final, Stats: stats}
	if !RetainedEnough(original, final, p.opts.MinRetainedRatio) {
		logging.WarnWithContext(logger, "aligned output too short, publishing local capture", "alignment_fallback",
			logging.Duration("original", original),
			logging.Duration("final", final),
			logging.Float64("min_retained_ratio", p.opts.MinRetainedRatio),
			logging.Int("dropped", stats.Dropped),
			logging.String(logging.FieldErrorHint, "set logging.keep_captures to inspect both captures"),
			logging.String(logging.FieldImpact, "episode published with ads intact"),
			logging.Alert("sanity_guard"),
		)
		p.keepDiagnostics(logger, job, captures)
		_ = os.Remove(encoded)
		result.Outcome = OutcomeFallback
		result.FinalDuration = original
		return p.promote(captures.Local, artifact, result)
	}

	if err := fileutil.MoveFile(encoded, artifact); err != nil {
		return Result{}, services.Wrap(services.ErrTransient, "pipeline", "commit", artifact, err)
	}
	size, err := fileutil.Size(artifact)
	if err != nil {
		return Result{}, services.Wrap(services.ErrTransient, "pipeline", "commit", "stat artifact", err)
	}
	result.Outcome = OutcomeProcessed
	result.FinalPath = artifact
	result.FileSize = size
	if saved := original - final; saved > 0 {
		result.TimeSaved = saved
		if p.opts.Recorder != nil {
			p.opts.Recorder.RecordTimeSaved(ctx, job.PodcastID, job.EpisodeID, saved, job.PodcastName)
		}
	}
	return result, nil
}

// promote moves the untouched local capture into storage.
func (p *Pipeline) promote(local, artifact string, result Result) (Result, error) {
	if err := fileutil.MoveFile(local, artifact); err != nil {
		return Result{}, services.Wrap(services.ErrTransient, "pipeline", "commit", "promote local capture", err)
	}
	size, err := fileutil.Size(artifact)
	if err != nil {
		return Result{}, services.Wrap(services.ErrTransient, "pipeline", "commit", "stat artifact", err)
	}
	result.FinalPath = artifact
	result.FileSize = size
	result.TimeSaved = 0
	return result, nil
}

func (p *Pipeline) keepDiagnostics(logger *slog.Logger, job Job, captures acquire.Captures) {
	if !p.opts.KeepCaptures || strings.TrimSpace(p.opts.DiagnosticsDir) == "" {
		return
	}
	kept := acquire.CapturePaths(p.opts.DiagnosticsDir, job.PodcastID, job.EpisodeID)
	if err := os.MkdirAll(filepath.Dir(kept.Local), 0o755); err != nil {
		logger.Warn("diagnostics directory unavailable",
			logging.Error(err),
			logging.String(logging.FieldEventType, "diagnostics_failed"),
			logging.String(logging.FieldErrorHint, "check paths.diagnostics_dir permissions"),
			logging.String(logging.FieldImpact, "captures not kept"),
		)
		return
	}
	for src, dst := range map[string]string{captures.Local: kept.Local, captures.Remote: kept.Remote} {
		if err := fileutil.CopyFile(src, dst); err != nil {
			logger.Warn("failed to keep capture",
				logging.String("capture", src),
				logging.Error(err),
				logging.String(logging.FieldEventType, "diagnostics_failed"),
				logging.String(logging.FieldErrorHint, "check free space in paths.diagnostics_dir"),
				logging.String(logging.FieldImpact, "capture not kept"),
			)
		}
	}
	logger.Info("captures kept for inspection", logging.String("dir", filepath.Dir(kept.Local)))
}

func (p *Pipeline) recordJob(ctx context.Context, job Job, outcome Outcome) {
	if p.opts.Recorder != nil {
		p.opts.Recorder.RecordJob(ctx, job.PodcastID, string(outcome))
	}
}

func errorHint(err error) string {
	switch {
	case errors.Is(err, services.ErrFetch):
		return "check the episode URL and the SOCKS5 proxy; the job is retried on the next pass"
	case errors.Is(err, services.ErrExternalTool):
		return "check ffmpeg/ffprobe output in the error; run dailete status to verify dependencies"
	case errors.Is(err, services.ErrMissingCapture):
		return "the remote capture was not written; check work_dir free space"
	case errors.Is(err, services.ErrConfiguration):
		return "check the configuration file"
	default:
		return "check logs for details"
	}
}
