package workflow

import (
	"context"
	"time"

	"dailete/internal/catalog"
	"dailete/internal/logging"
)

// Status represents lightweight scheduler diagnostics.
type Status struct {
	Running     bool            `json:"running"`
	Draining    bool            `json:"draining"`
	LastError   string          `json:"last_error,omitempty"`
	LastEpisode string          `json:"last_episode,omitempty"`
	LastPoll    time.Time       `json:"last_poll"`
	LastDrain   time.Time       `json:"last_drain"`
	Catalog     catalog.Summary `json:"catalog"`
}

// Status returns the latest scheduler information.
func (s *Scheduler) Status(ctx context.Context) Status {
	s.mu.RLock()
	status := Status{
		Running:     s.running,
		LastEpisode: s.lastEpisode,
		LastPoll:    s.lastPoll,
		LastDrain:   s.lastDrain,
	}
	if s.lastErr != nil {
		status.LastError = s.lastErr.Error()
	}
	s.mu.RUnlock()
	status.Draining = s.draining.Load()

	summary, err := s.store.Summary(ctx)
	if err != nil {
		s.logger.Warn("failed to read catalog summary", logging.Error(err))
	}
	status.Catalog = summary
	return status
}

func (s *Scheduler) setLastError(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}
