package catalog

import "time"

// Podcast is a subscribed feed.
type Podcast struct {
	ID        string    `json:"id"`
	FeedURL   string    `json:"feed_url"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// DisplayName returns the title when known, otherwise the feed URL.
func (p Podcast) DisplayName() string {
	if p.Title != "" {
		return p.Title
	}
	return p.FeedURL
}

// Episode is a processed episode whose artifact is in storage.
type Episode struct {
	PodcastID   string        `json:"podcast_id"`
	ID          string        `json:"id"`
	FileSize    int64         `json:"file_size"`
	Original    time.Duration `json:"original"`
	Final       time.Duration `json:"final"`
	TimeSaved   time.Duration `json:"time_saved"`
	Outcome     string        `json:"outcome"`
	ProcessedAt time.Time     `json:"processed_at"`
}

// PendingEpisode is a queued job waiting for the next drain.
type PendingEpisode struct {
	ID        int64     `json:"id"`
	PodcastID string    `json:"podcast_id"`
	EpisodeID string    `json:"episode_id"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

// Summary aggregates catalog counters for status reporting.
type Summary struct {
	Podcasts  int           `json:"podcasts"`
	Episodes  int           `json:"episodes"`
	Pending   int           `json:"pending"`
	TimeSaved time.Duration `json:"time_saved"`
}
