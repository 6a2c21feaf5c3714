// Package feed reads podcast RSS and Atom feeds to discover new episodes.
package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"dailete/internal/logging"
	"dailete/internal/services"
	"dailete/internal/textutil"
)

// maxFeedBytes bounds how much of a feed document is read.
const maxFeedBytes = 32 << 20

// ErrNoEpisodes is returned when a feed has no item with both a GUID and an
// enclosure URL.
var ErrNoEpisodes = errors.New("feed has no downloadable episodes")

// Episode is one downloadable feed item.
type Episode struct {
	// ID is the item GUID made safe for use as a file name.
	ID        string
	GUID      string
	Title     string
	URL       string
	Length    int64
	Published time.Time
}

// Reader fetches and parses feeds.
type Reader struct {
	client    *http.Client
	userAgent string
	logger    *slog.Logger
}

// NewReader returns a Reader using client, or a client with a 30s timeout when nil.
func NewReader(client *http.Client, userAgent string, logger *slog.Logger) *Reader {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Reader{client: client, userAgent: userAgent, logger: logging.NewComponentLogger(logger, "feed")}
}

// Latest returns the first item, in document order, that has a GUID and an
// enclosure URL. Feeds list their newest episode first.
func (r *Reader) Latest(ctx context.Context, feedURL string) (Episode, error) {
	parsed, err := r.fetch(ctx, feedURL)
	if err != nil {
		return Episode{}, err
	}
	for _, item := range parsed.Items {
		episode, ok := toEpisode(item)
		if ok {
			return episode, nil
		}
	}
	return Episode{}, services.Wrap(services.ErrNotFound, "feed", "latest", feedURL, ErrNoEpisodes)
}

// Episodes returns every downloadable item in document order.
func (r *Reader) Episodes(ctx context.Context, feedURL string) ([]Episode, error) {
	parsed, err := r.fetch(ctx, feedURL)
	if err != nil {
		return nil, err
	}
	episodes := make([]Episode, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if episode, ok := toEpisode(item); ok {
			episodes = append(episodes, episode)
		}
	}
	return episodes, nil
}

// Title returns the channel title. Feeds without one are named after their
// host so metrics always carry a readable podcast name.
func (r *Reader) Title(ctx context.Context, feedURL string) (string, error) {
	parsed, err := r.fetch(ctx, feedURL)
	if err != nil {
		return "", err
	}
	if title := strings.TrimSpace(parsed.Title); title != "" {
		return title, nil
	}
	return FallbackTitle(feedURL), nil
}

// Validate checks that feedURL serves a parseable feed and returns its title.
func (r *Reader) Validate(ctx context.Context, feedURL string) (string, error) {
	return r.Title(ctx, feedURL)
}

// FallbackTitle derives a display name from the feed host.
func FallbackTitle(feedURL string) string {
	parsed, err := url.Parse(feedURL)
	if err != nil || parsed.Hostname() == "" {
		return feedURL
	}
	host := strings.TrimPrefix(parsed.Hostname(), "www.")
	return textutil.TitleCase(strings.ReplaceAll(host, ".", " "))
}

// SanitizeEpisodeID maps a feed GUID to a file-name-safe identifier.
func SanitizeEpisodeID(guid string) string {
	return textutil.SanitizeFileName(guid)
}

func (r *Reader) fetch(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "feed", "fetch", feedURL, err)
	}
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, services.Wrap(services.ErrFetch, "feed", "fetch", feedURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, services.Wrap(services.ErrFetch, "feed", "fetch", fmt.Sprintf("%s returned %s", feedURL, resp.Status), nil)
	}

	parsed, err := gofeed.NewParser().Parse(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "feed", "parse", feedURL, err)
	}
	r.logger.Debug("feed fetched",
		logging.String("feed_url", feedURL),
		logging.Int("items", len(parsed.Items)),
	)
	return parsed, nil
}

func toEpisode(item *gofeed.Item) (Episode, bool) {
	if item == nil {
		return Episode{}, false
	}
	guid := strings.TrimSpace(item.GUID)
	id := SanitizeEpisodeID(guid)
	if id == "" {
		return Episode{}, false
	}
	for _, enclosure := range item.Enclosures {
		if enclosure == nil || strings.TrimSpace(enclosure.URL) == "" {
			continue
		}
		episode := Episode{
			ID:    id,
			GUID:  guid,
			Title: strings.TrimSpace(item.Title),
			URL:   strings.TrimSpace(enclosure.URL),
		}
		if length, err := parseLength(enclosure.Length); err == nil {
			episode.Length = length
		}
		if item.PublishedParsed != nil {
			episode.Published = item.PublishedParsed.UTC()
		}
		return episode, true
	}
	return Episode{}, false
}

func parseLength(raw string) (int64, error) {
	var n int64
	_, err := fmt.Sscan(strings.TrimSpace(raw), &n)
	return n, err
}
