package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"dailete/internal/catalog"
	"dailete/internal/config"
	"dailete/internal/feed"
	"dailete/internal/logging"
	"dailete/internal/pipeline"
)

// Processor runs one episode job.
type Processor interface {
	Process(ctx context.Context, job pipeline.Job) (pipeline.Result, error)
}

// FeedReader discovers episodes.
type FeedReader interface {
	Latest(ctx context.Context, feedURL string) (feed.Episode, error)
	Title(ctx context.Context, feedURL string) (string, error)
}

// Scheduler coordinates feed polling and queue draining.
type Scheduler struct {
	store         *catalog.Store
	processor     Processor
	feeds         FeedReader
	logger        *slog.Logger
	feedInterval  time.Duration
	queueInterval time.Duration

	draining atomic.Bool
	wake     chan struct{}

	mu          sync.RWMutex
	running     bool
	cancel      context.CancelFunc
	done        chan struct{}
	lastErr     error
	lastEpisode string
	lastPoll    time.Time
	lastDrain   time.Time
}

// NewScheduler constructs a Scheduler using the intervals in cfg.
func NewScheduler(cfg *config.Config, store *catalog.Store, processor Processor, feeds FeedReader, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:         store,
		processor:     processor,
		feeds:         feeds,
		logger:        logging.NewComponentLogger(logger, "workflow"),
		feedInterval:  cfg.FeedPollInterval(),
		queueInterval: cfg.QueuePollInterval(),
		wake:          make(chan struct{}, 1),
	}
}

// Run polls feeds and drains the queue until ctx is cancelled. Both loops fire
// once immediately.
func (s *Scheduler) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.loop(gctx, s.feedInterval, nil, func(ctx context.Context) { s.PollFeeds(ctx) })
	})
	g.Go(func() error {
		return s.loop(gctx, s.queueInterval, s.wake, func(ctx context.Context) { s.DrainQueue(ctx) })
	})
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Start runs the scheduler in the background.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("scheduler already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.running = true
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		if err := s.Run(runCtx); err != nil {
			s.setLastError(err)
			s.logger.Error("scheduler stopped", logging.Error(err), logging.String(logging.FieldEventType, "scheduler_stopped"))
		}
	}()
	return nil
}

// Stop cancels background processing and waits for the current job to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	<-done
}

// Wake asks the queue loop to drain now instead of waiting for its ticker.
func (s *Scheduler) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, wake <-chan struct{}, fn func(context.Context)) error {
	if interval <= 0 {
		interval = time.Second
	}
	fn(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-wake:
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fn(ctx)
	}
}
