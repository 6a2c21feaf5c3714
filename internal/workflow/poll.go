package workflow

import (
	"context"
	"strings"
	"time"

	"dailete/internal/catalog"
	"dailete/internal/logging"
)

// PollFeeds checks every subscribed podcast and queues its latest episode when
// the catalog does not already have it. It returns the number of episodes queued.
func (s *Scheduler) PollFeeds(ctx context.Context) int {
	podcasts, err := s.store.ListPodcasts(ctx)
	if err != nil {
		s.setLastError(err)
		logging.ErrorWithContext(s.logger, "failed to list podcasts", "feed_poll_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check catalog database access"),
		)
		return 0
	}

	queued := 0
	for _, podcast := range podcasts {
		if ctx.Err() != nil {
			break
		}
		if s.pollPodcast(ctx, podcast) {
			queued++
		}
	}
	s.mu.Lock()
	s.lastPoll = time.Now()
	s.mu.Unlock()

	s.logger.Debug("feed poll complete",
		logging.Int("podcasts", len(podcasts)),
		logging.Int("queued", queued),
	)
	if queued > 0 {
		s.Wake()
	}
	return queued
}

func (s *Scheduler) pollPodcast(ctx context.Context, podcast catalog.Podcast) bool {
	logger := s.logger.With(logging.String(logging.FieldPodcastID, podcast.ID))

	if strings.TrimSpace(podcast.Title) == "" {
		if title, err := s.feeds.Title(ctx, podcast.FeedURL); err == nil {
			if err := s.store.SetPodcastTitle(ctx, podcast.ID, title); err != nil {
				logger.Debug("failed to store podcast title", logging.Error(err))
			}
		}
	}

	latest, err := s.feeds.Latest(ctx, podcast.FeedURL)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		logging.WarnWithContext(logger, "feed poll failed", "feed_poll_failed",
			logging.String("feed_url", podcast.FeedURL),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the feed URL is reachable and valid"),
			logging.String(logging.FieldImpact, "new episodes for this podcast are not discovered until the next poll"),
		)
		return false
	}

	exists, err := s.store.EpisodeExists(ctx, podcast.ID, latest.ID)
	if err != nil {
		logger.Warn("episode lookup failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "catalog_lookup_failed"),
			logging.String(logging.FieldErrorHint, "check catalog database access"),
			logging.String(logging.FieldImpact, "episode not queued this poll"),
		)
		return false
	}
	if exists {
		return false
	}

	_, added, err := s.store.Enqueue(ctx, podcast.ID, latest.ID, latest.URL)
	if err != nil {
		logger.Warn("failed to queue episode",
			logging.String(logging.FieldEpisodeID, latest.ID),
			logging.Error(err),
			logging.String(logging.FieldEventType, "enqueue_failed"),
			logging.String(logging.FieldErrorHint, "check catalog database access"),
			logging.String(logging.FieldImpact, "episode not queued this poll"),
		)
		return false
	}
	if added {
		logger.Info("new episode queued",
			logging.String(logging.FieldEpisodeID, latest.ID),
			logging.String("title", latest.Title),
		)
	}
	return added
}
