package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"dailete/internal/services"
)

const pendingColumns = "id, podcast_id, episode_id, url, created_at"

// Enqueue adds a job for the next queue drain. Queuing an episode that is
// already pending is a no-op and reports added=false.
func (s *Store) Enqueue(ctx context.Context, podcastID, episodeID, episodeURL string) (*PendingEpisode, bool, error) {
	episodeID = strings.TrimSpace(episodeID)
	episodeURL = strings.TrimSpace(episodeURL)
	if episodeID == "" || episodeURL == "" {
		return nil, false, services.Wrap(services.ErrValidation, "catalog", "enqueue", "episode id and url are required", nil)
	}
	podcast, err := s.GetPodcast(ctx, podcastID)
	if err != nil {
		return nil, false, err
	}
	if podcast == nil {
		return nil, false, services.Wrap(services.ErrNotFound, "catalog", "enqueue", "podcast "+podcastID, nil)
	}

	res, err := s.execWithRetry(ctx,
		`INSERT OR IGNORE INTO pending_episodes (podcast_id, episode_id, url, created_at) VALUES (?, ?, ?, ?)`,
		podcastID, episodeID, episodeURL, formatTime(time.Now()),
	)
	if err != nil {
		return nil, false, fmt.Errorf("enqueue: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("rows affected: %w", err)
	}

	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+pendingColumns+` FROM pending_episodes WHERE podcast_id = ? AND episode_id = ?`,
		podcastID, episodeID,
	)
	pending, err := scanPending(row)
	if err != nil {
		return nil, false, fmt.Errorf("read pending: %w", err)
	}
	return pending, affected > 0, nil
}

// NextPending returns the oldest queued job, or nil when the queue is empty.
func (s *Store) NextPending(ctx context.Context) (*PendingEpisode, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+pendingColumns+` FROM pending_episodes ORDER BY id LIMIT 1`)
	pending, err := scanPending(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next pending: %w", err)
	}
	return pending, nil
}

// RemovePending deletes a consumed job.
func (s *Store) RemovePending(ctx context.Context, id int64) error {
	if _, err := s.execWithRetry(ctx, `DELETE FROM pending_episodes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("remove pending: %w", err)
	}
	return nil
}

// ListPending returns all queued jobs in drain order.
func (s *Store) ListPending(ctx context.Context) ([]PendingEpisode, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT `+pendingColumns+` FROM pending_episodes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	defer rows.Close()

	var pending []PendingEpisode
	for rows.Next() {
		item, err := scanPending(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending: %w", err)
		}
		pending = append(pending, *item)
	}
	return pending, rows.Err()
}

func scanPending(scanner interface{ Scan(dest ...any) error }) (*PendingEpisode, error) {
	var (
		pending    PendingEpisode
		createdRaw string
	)
	if err := scanner.Scan(&pending.ID, &pending.PodcastID, &pending.EpisodeID, &pending.URL, &createdRaw); err != nil {
		return nil, err
	}
	pending.CreatedAt = parseTime(createdRaw)
	return &pending, nil
}
