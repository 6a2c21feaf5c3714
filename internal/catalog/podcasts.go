package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"dailete/internal/services"
)

// ErrPodcastExists is returned when a feed URL is already subscribed.
var ErrPodcastExists = errors.New("podcast already subscribed")

const podcastColumns = "id, feed_url, title, created_at"

// AddPodcast subscribes to a feed and assigns it a new identifier.
func (s *Store) AddPodcast(ctx context.Context, feedURL, title string) (*Podcast, error) {
	feedURL = strings.TrimSpace(feedURL)
	parsed, err := url.Parse(feedURL)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, services.Wrap(services.ErrValidation, "catalog", "add podcast", fmt.Sprintf("invalid feed url %q", feedURL), err)
	}

	existing, err := s.findPodcastByFeed(ctx, feedURL)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, fmt.Errorf("%w: %s", ErrPodcastExists, existing.ID)
	}

	podcast := &Podcast{
		ID:        uuid.NewString(),
		FeedURL:   feedURL,
		Title:     strings.TrimSpace(title),
		CreatedAt: time.Now().UTC(),
	}
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO podcasts (id, feed_url, title, created_at) VALUES (?, ?, ?, ?)`,
		podcast.ID, podcast.FeedURL, nullableString(podcast.Title), formatTime(podcast.CreatedAt),
	); err != nil {
		return nil, fmt.Errorf("insert podcast: %w", err)
	}
	return podcast, nil
}

// GetPodcast fetches a podcast by identifier. A missing podcast returns nil, nil.
func (s *Store) GetPodcast(ctx context.Context, id string) (*Podcast, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+podcastColumns+` FROM podcasts WHERE id = ?`, id)
	podcast, err := scanPodcast(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get podcast: %w", err)
	}
	return podcast, nil
}

func (s *Store) findPodcastByFeed(ctx context.Context, feedURL string) (*Podcast, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+podcastColumns+` FROM podcasts WHERE feed_url = ?`, feedURL)
	podcast, err := scanPodcast(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find podcast: %w", err)
	}
	return podcast, nil
}

// ListPodcasts returns all subscriptions in the order they were added.
func (s *Store) ListPodcasts(ctx context.Context) ([]Podcast, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT `+podcastColumns+` FROM podcasts ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list podcasts: %w", err)
	}
	defer rows.Close()

	var podcasts []Podcast
	for rows.Next() {
		podcast, err := scanPodcast(rows)
		if err != nil {
			return nil, fmt.Errorf("scan podcast: %w", err)
		}
		podcasts = append(podcasts, *podcast)
	}
	return podcasts, rows.Err()
}

// SetPodcastTitle stores the channel title discovered from the feed.
func (s *Store) SetPodcastTitle(ctx context.Context, id, title string) error {
	res, err := s.execWithRetry(ctx, `UPDATE podcasts SET title = ? WHERE id = ?`, nullableString(strings.TrimSpace(title)), id)
	if err != nil {
		return fmt.Errorf("update podcast title: %w", err)
	}
	return requireAffected(res, "podcast", id)
}

// RemovePodcast deletes a subscription together with its episodes and queued
// jobs. It returns the identifiers of the episodes that were removed so the
// caller can delete their artifacts.
func (s *Store) RemovePodcast(ctx context.Context, id string) ([]string, error) {
	ctx = ensureContext(ctx)
	var removed []string
	err := retryOnBusy(ctx, func() error {
		removed = nil
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		rows, err := tx.QueryContext(ctx, `SELECT id FROM episodes WHERE podcast_id = ? ORDER BY id`, id)
		if err != nil {
			return err
		}
		for rows.Next() {
			var episodeID string
			if err := rows.Scan(&episodeID); err != nil {
				rows.Close()
				return err
			}
			removed = append(removed, episodeID)
		}
		if err := rows.Close(); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM episodes WHERE podcast_id = ?`, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM pending_episodes WHERE podcast_id = ?`, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM podcasts WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if err := requireAffected(res, "podcast", id); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("remove podcast: %w", err)
	}
	return removed, nil
}

func scanPodcast(scanner interface{ Scan(dest ...any) error }) (*Podcast, error) {
	var (
		podcast    Podcast
		title      sql.NullString
		createdRaw string
	)
	if err := scanner.Scan(&podcast.ID, &podcast.FeedURL, &title, &createdRaw); err != nil {
		return nil, err
	}
	podcast.Title = title.String
	podcast.CreatedAt = parseTime(createdRaw)
	return &podcast, nil
}

func requireAffected(res sql.Result, kind, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrNotFound, "catalog", kind, id, nil)
	}
	return nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
