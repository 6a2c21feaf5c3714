package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"github.com/gofrs/flock"

	"dailete/internal/acquire"
	"dailete/internal/catalog"
	"dailete/internal/config"
	"dailete/internal/logging"
	"dailete/internal/services"
	"dailete/internal/workflow"
)

// FeedValidator checks a feed before it is subscribed and returns its title.
type FeedValidator interface {
	Validate(ctx context.Context, feedURL string) (string, error)
}

// Daemon coordinates the background processing services and enforces single-instance execution.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *catalog.Store
	scheduler *workflow.Scheduler
	feeds     FeedValidator
	api       *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool            `json:"running"`
	PID          int             `json:"pid"`
	Workflow     workflow.Status `json:"workflow"`
	CatalogPath  string          `json:"catalog_path"`
	LockFilePath string          `json:"lock_file_path"`
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *catalog.Store, scheduler *workflow.Scheduler, feeds FeedValidator, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || scheduler == nil || feeds == nil {
		return nil, errors.New("daemon requires config, store, scheduler, and feed validator")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		store:     store,
		scheduler: scheduler,
		feeds:     feeds,
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, launches the scheduler, and begins serving HTTP.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another dailete daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.scheduler.Start(d.ctx); err != nil {
		d.abortStart()
		return fmt.Errorf("start scheduler: %w", err)
	}
	if err := d.api.start(d.ctx); err != nil {
		d.scheduler.Stop()
		d.abortStart()
		return err
	}

	d.running.Store(true)
	d.logger.Info("dailete daemon started",
		logging.String("lock", d.lockPath),
		logging.String("address", d.api.Addr()),
	)
	return nil
}

func (d *Daemon) abortStart() {
	_ = d.lock.Unlock()
	d.cancel()
	d.ctx = nil
	d.cancel = nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.api.stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.scheduler.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("dailete daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Addr returns the address the HTTP server is listening on, or an empty
// string before Start.
func (d *Daemon) Addr() string {
	return d.api.Addr()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Workflow:     d.scheduler.Status(ctx),
		CatalogPath:  d.store.Path(),
		LockFilePath: d.lockPath,
	}
}

// AddPodcast validates a feed and subscribes to it. Subscribing to a feed that
// is already present returns the existing podcast and catalog.ErrPodcastExists.
func (d *Daemon) AddPodcast(ctx context.Context, feedURL string) (*catalog.Podcast, error) {
	feedURL = strings.TrimSpace(feedURL)
	if feedURL == "" {
		return nil, services.Wrap(services.ErrValidation, "daemon", "add podcast", "feed url is required", nil)
	}
	title, err := d.feeds.Validate(ctx, feedURL)
	if err != nil {
		return nil, err
	}
	podcast, err := d.store.AddPodcast(ctx, feedURL, title)
	if err != nil {
		return podcast, err
	}
	d.logger.Info("podcast subscribed",
		logging.String(logging.FieldPodcastID, podcast.ID),
		logging.String("feed_url", podcast.FeedURL),
		logging.String("title", podcast.Title),
		logging.String(logging.FieldEventType, "podcast_added"),
	)
	return podcast, nil
}

// RemovePodcast unsubscribes a podcast and deletes its stored artifacts.
func (d *Daemon) RemovePodcast(ctx context.Context, podcastID string) error {
	if err := acquire.ValidateID(podcastID); err != nil {
		return err
	}
	removed, err := d.store.RemovePodcast(ctx, podcastID)
	if err != nil {
		return err
	}
	if err := catalog.RemoveArtifacts(d.cfg.Paths.StorageDir, podcastID, removed, d.cfg.Encoding.Extension); err != nil {
		logging.WarnWithContext(d.logger, "failed to delete episode artifacts", "artifact_cleanup_failed",
			logging.String(logging.FieldPodcastID, podcastID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the files under the storage directory manually"),
			logging.String(logging.FieldImpact, "unsubscribed episodes remain on disk"),
		)
	}
	d.logger.Info("podcast removed",
		logging.String(logging.FieldPodcastID, podcastID),
		logging.Int("episodes", len(removed)),
		logging.String(logging.FieldEventType, "podcast_removed"),
	)
	return nil
}

// QueueEpisode persists an explicit processing request and wakes the queue loop.
func (d *Daemon) QueueEpisode(ctx context.Context, podcastID, episodeID, episodeURL string) (*catalog.PendingEpisode, bool, error) {
	if err := acquire.ValidateID(podcastID); err != nil {
		return nil, false, err
	}
	if err := acquire.ValidateID(episodeID); err != nil {
		return nil, false, err
	}
	pending, added, err := d.store.Enqueue(ctx, podcastID, episodeID, episodeURL)
	if err != nil {
		return nil, false, err
	}
	if added {
		d.logger.Info("episode queued",
			logging.String(logging.FieldPodcastID, podcastID),
			logging.String(logging.FieldEpisodeID, episodeID),
			logging.String(logging.FieldEventType, "episode_queued"),
		)
		d.scheduler.Wake()
	}
	return pending, added, nil
}
