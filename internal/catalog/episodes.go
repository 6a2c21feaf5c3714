package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"dailete/internal/services"
)

// EpisodeExists reports whether the episode already has a committed artifact.
func (s *Store) EpisodeExists(ctx context.Context, podcastID, episodeID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT COUNT(1) FROM episodes WHERE podcast_id = ? AND id = ?`, podcastID, episodeID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("episode exists: %w", err)
	}
	return count > 0, nil
}

// RecordEpisode marks an episode processed. Recording the same episode again
// replaces the previous row.
func (s *Store) RecordEpisode(ctx context.Context, episode Episode) error {
	if strings.TrimSpace(episode.PodcastID) == "" || strings.TrimSpace(episode.ID) == "" {
		return services.Wrap(services.ErrValidation, "catalog", "record episode", "podcast and episode ids are required", nil)
	}
	if episode.FileSize < 0 {
		return services.Wrap(services.ErrValidation, "catalog", "record episode", fmt.Sprintf("negative file size %d", episode.FileSize), nil)
	}
	if episode.ProcessedAt.IsZero() {
		episode.ProcessedAt = time.Now().UTC()
	}
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO episodes (podcast_id, id, file_size, original_ms, final_ms, time_saved_ms, outcome, processed_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(podcast_id, id) DO UPDATE SET
             file_size = excluded.file_size,
             original_ms = excluded.original_ms,
             final_ms = excluded.final_ms,
             time_saved_ms = excluded.time_saved_ms,
             outcome = excluded.outcome,
             processed_at = excluded.processed_at`,
		episode.PodcastID,
		episode.ID,
		episode.FileSize,
		episode.Original.Milliseconds(),
		episode.Final.Milliseconds(),
		episode.TimeSaved.Milliseconds(),
		episode.Outcome,
		formatTime(episode.ProcessedAt),
	); err != nil {
		return fmt.Errorf("record episode: %w", err)
	}
	return nil
}

// ListEpisodes returns a podcast's processed episodes, newest first.
func (s *Store) ListEpisodes(ctx context.Context, podcastID string) ([]Episode, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT podcast_id, id, file_size, original_ms, final_ms, time_saved_ms, outcome, processed_at
         FROM episodes WHERE podcast_id = ? ORDER BY processed_at DESC, id`,
		podcastID,
	)
	if err != nil {
		return nil, fmt.Errorf("list episodes: %w", err)
	}
	defer rows.Close()

	var episodes []Episode
	for rows.Next() {
		var (
			episode                      Episode
			originalMS, finalMS, savedMS int64
			processedRaw                 string
		)
		if err := rows.Scan(&episode.PodcastID, &episode.ID, &episode.FileSize, &originalMS, &finalMS, &savedMS, &episode.Outcome, &processedRaw); err != nil {
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		episode.Original = time.Duration(originalMS) * time.Millisecond
		episode.Final = time.Duration(finalMS) * time.Millisecond
		episode.TimeSaved = time.Duration(savedMS) * time.Millisecond
		episode.ProcessedAt = parseTime(processedRaw)
		episodes = append(episodes, episode)
	}
	return episodes, rows.Err()
}

// Summary returns catalog-wide counters.
func (s *Store) Summary(ctx context.Context) (Summary, error) {
	ctx = ensureContext(ctx)
	var (
		summary Summary
		savedMS sql.NullInt64
	)
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM podcasts`).Scan(&summary.Podcasts); err != nil {
		return Summary{}, fmt.Errorf("count podcasts: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1), SUM(time_saved_ms) FROM episodes`).Scan(&summary.Episodes, &savedMS); err != nil {
		return Summary{}, fmt.Errorf("count episodes: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM pending_episodes`).Scan(&summary.Pending); err != nil {
		return Summary{}, fmt.Errorf("count pending: %w", err)
	}
	summary.TimeSaved = time.Duration(savedMS.Int64) * time.Millisecond
	return summary, nil
}
