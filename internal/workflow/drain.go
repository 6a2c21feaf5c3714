package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"dailete/internal/catalog"
	"dailete/internal/feed"
	"dailete/internal/logging"
	"dailete/internal/pipeline"
	"dailete/internal/services"
)

// ErrAlreadyProcessed is returned by ProcessOnce when the catalog already has
// the episode.
var ErrAlreadyProcessed = errors.New("episode already processed")

// DrainQueue processes the episodes pending when it starts, oldest first. It
// returns false without doing anything when another drain is in progress.
func (s *Scheduler) DrainQueue(ctx context.Context) bool {
	if !s.draining.CompareAndSwap(false, true) {
		s.logger.Debug("queue drain already running; skipping")
		return false
	}
	defer s.draining.Store(false)

	pending, err := s.store.ListPending(ctx)
	if err != nil {
		s.setLastError(err)
		logging.ErrorWithContext(s.logger, "failed to read pending episodes", "queue_fetch_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check catalog database access"),
		)
		return true
	}

	for _, item := range pending {
		if ctx.Err() != nil {
			break
		}
		s.drainOne(ctx, item)
	}
	s.mu.Lock()
	s.lastDrain = time.Now()
	s.mu.Unlock()
	return true
}

func (s *Scheduler) drainOne(ctx context.Context, item catalog.PendingEpisode) {
	logger := s.logger.With(
		logging.String(logging.FieldPodcastID, item.PodcastID),
		logging.String(logging.FieldEpisodeID, item.EpisodeID),
	)

	podcast, err := s.store.GetPodcast(ctx, item.PodcastID)
	if err != nil {
		s.setLastError(err)
		logger.Warn("podcast lookup failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "catalog_lookup_failed"),
			logging.String(logging.FieldErrorHint, "check catalog database access"),
			logging.String(logging.FieldImpact, "episode retried on the next drain"),
		)
		return
	}
	if podcast == nil {
		s.removePending(ctx, logger, item)
		return
	}

	job := pipeline.Job{
		PodcastID:   podcast.ID,
		PodcastName: podcastName(*podcast),
		EpisodeID:   item.EpisodeID,
		URL:         item.URL,
	}
	_, err = s.ProcessOnce(ctx, job)
	switch {
	case err == nil, errors.Is(err, ErrAlreadyProcessed):
		s.removePending(ctx, logger, item)
	case ctx.Err() != nil:
		return
	case !services.Retryable(err):
		s.setLastError(err)
		logging.WarnWithContext(logger, "dropping episode that cannot be processed", "episode_dropped",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "fix the episode URL or configuration and queue it again"),
			logging.String(logging.FieldImpact, "episode will not be retried"),
		)
		s.removePending(ctx, logger, item)
	default:
		s.setLastError(err)
	}
}

// ProcessOnce runs one job unless the catalog already has the episode, and
// records the committed artifact. Nothing is recorded on failure.
func (s *Scheduler) ProcessOnce(ctx context.Context, job pipeline.Job) (pipeline.Result, error) {
	ctx = services.WithRequestID(ctx, uuid.NewString())
	exists, err := s.store.EpisodeExists(ctx, job.PodcastID, job.EpisodeID)
	if err != nil {
		return pipeline.Result{}, err
	}
	if exists {
		logging.WithContext(ctx, s.logger).Debug("episode already processed",
			logging.String(logging.FieldPodcastID, job.PodcastID),
			logging.String(logging.FieldEpisodeID, job.EpisodeID),
		)
		return pipeline.Result{}, ErrAlreadyProcessed
	}

	result, err := s.processor.Process(ctx, job)
	if err != nil {
		return pipeline.Result{}, err
	}
	if err := s.store.RecordEpisode(ctx, catalog.Episode{
		PodcastID: job.PodcastID,
		ID:        job.EpisodeID,
		FileSize:  result.FileSize,
		Original:  result.OriginalDuration,
		Final:     result.FinalDuration,
		TimeSaved: result.TimeSaved,
		Outcome:   string(result.Outcome),
	}); err != nil {
		return result, err
	}
	s.mu.Lock()
	s.lastEpisode = job.PodcastID + "/" + job.EpisodeID
	s.lastErr = nil
	s.mu.Unlock()
	return result, nil
}

func (s *Scheduler) removePending(ctx context.Context, logger *slog.Logger, item catalog.PendingEpisode) {
	if err := s.store.RemovePending(ctx, item.ID); err != nil {
		logger.Warn("failed to remove pending episode",
			logging.Error(err),
			logging.String(logging.FieldEventType, "dequeue_failed"),
			logging.String(logging.FieldErrorHint, "check catalog database access"),
			logging.String(logging.FieldImpact, "episode is skipped as already processed on the next drain"),
		)
	}
}

func podcastName(p catalog.Podcast) string {
	if p.Title != "" {
		return p.Title
	}
	return feed.FallbackTitle(p.FeedURL)
}
