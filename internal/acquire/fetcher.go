package acquire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dailete/internal/config"
	"dailete/internal/logging"
	"dailete/internal/services"
)

// Channel names one of the two acquisition identities.
type Channel string

const (
	ChannelLocal  Channel = "local"
	ChannelRemote Channel = "remote"
)

// Job identifies the episode to acquire.
type Job struct {
	PodcastID string
	EpisodeID string
	URL       string
}

// Validate rejects jobs that cannot be mapped to capture files.
func (j Job) Validate() error {
	if strings.TrimSpace(j.URL) == "" {
		return services.Wrap(services.ErrValidation, "acquire", "validate job", "episode url is required", nil)
	}
	if err := ValidateID(j.PodcastID); err != nil {
		return services.Wrap(services.ErrValidation, "acquire", "validate job", "podcast id", err)
	}
	if err := ValidateID(j.EpisodeID); err != nil {
		return services.Wrap(services.ErrValidation, "acquire", "validate job", "episode id", err)
	}
	return nil
}

// ValidateID rejects identifiers that would escape their directory when used
// as a path component.
func ValidateID(id string) error {
	switch {
	case strings.TrimSpace(id) == "":
		return errors.New("empty identifier")
	case id == "." || id == "..":
		return fmt.Errorf("identifier %q is reserved", id)
	case strings.ContainsAny(id, `/\`):
		return fmt.Errorf("identifier %q contains a path separator", id)
	}
	return nil
}

// Captures holds the on-disk locations of both raw downloads.
type Captures struct {
	Local  string
	Remote string
}

// CapturePaths returns the deterministic capture locations for an episode.
func CapturePaths(workDir, podcastID, episodeID string) Captures {
	base := filepath.Join(workDir, podcastID, episodeID)
	return Captures{Local: base + "." + string(ChannelLocal), Remote: base + "." + string(ChannelRemote)}
}

// Remove deletes both capture files, ignoring ones that are already gone, and
// then the per-podcast work directory if nothing else is left in it.
func (c Captures) Remove() {
	for _, path := range []string{c.Local, c.Remote} {
		if path != "" {
			_ = os.Remove(path)
		}
	}
	if c.Local != "" {
		// Fails with ENOTEMPTY while another episode of the podcast is in flight.
		_ = os.Remove(filepath.Dir(c.Local))
	}
}

// Fetcher performs the ordered dual acquisition.
type Fetcher struct {
	local    *http.Client
	remote   *http.Client
	localFP  Fingerprint
	remoteFP Fingerprint
	delay    time.Duration
	sleep    func(context.Context, time.Duration) error
	workDir  string
	logger   *slog.Logger
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithDelay sets the pause between the local and remote fetch.
func WithDelay(d time.Duration) Option {
	return func(f *Fetcher) { f.delay = d }
}

// WithSleeper replaces the delay implementation. Tests use this to avoid waiting.
func WithSleeper(sleep func(context.Context, time.Duration) error) Option {
	return func(f *Fetcher) {
		if sleep != nil {
			f.sleep = sleep
		}
	}
}

// WithFingerprints overrides the request header sets.
func WithFingerprints(local, remote Fingerprint) Option {
	return func(f *Fetcher) {
		f.localFP = local
		f.remoteFP = remote
	}
}

// New constructs a Fetcher from explicit clients.
func New(local, remote *http.Client, workDir string, logger *slog.Logger, opts ...Option) *Fetcher {
	f := &Fetcher{
		local:    local,
		remote:   remote,
		localFP:  LocalFingerprint,
		remoteFP: RemoteFingerprint,
		sleep:    sleepContext,
		workDir:  workDir,
		logger:   logging.NewComponentLogger(logger, "acquire"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// NewFromConfig builds the direct and proxied clients described by cfg.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) (*Fetcher, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "acquire", "init", "config is required", nil)
	}
	remote, err := NewProxyClient(cfg.Proxy.Address, cfg.RequestTimeout())
	if err != nil {
		return nil, err
	}
	local := NewDirectClient(cfg.RequestTimeout())
	return New(local, remote, cfg.Paths.WorkDir, logger,
		WithDelay(cfg.RemoteDelay()),
		WithFingerprints(
			LocalFingerprint.WithUserAgent(cfg.Fetch.LocalUserAgent),
			RemoteFingerprint.WithUserAgent(cfg.Fetch.RemoteUserAgent),
		),
	), nil
}

// Acquire downloads the episode over the local channel, waits for the
// configured delay, then downloads it again over the remote channel. On any
// failure no capture is left behind.
func (f *Fetcher) Acquire(ctx context.Context, job Job) (Captures, error) {
	if err := job.Validate(); err != nil {
		return Captures{}, err
	}
	captures := CapturePaths(f.workDir, job.PodcastID, job.EpisodeID)
	if err := os.MkdirAll(filepath.Dir(captures.Local), 0o755); err != nil {
		return Captures{}, services.Wrap(services.ErrConfiguration, "acquire", "prepare", "create work directory", err)
	}

	logger := logging.WithContext(ctx, f.logger)

	localBytes, err := f.fetch(ctx, f.local, f.localFP, job.URL, captures.Local)
	if err != nil {
		captures.Remove()
		return Captures{}, err
	}
	logger.Info("local capture complete",
		logging.String("channel", string(ChannelLocal)),
		logging.Int64("bytes", localBytes),
	)

	if f.delay > 0 {
		logger.Debug("waiting before remote capture", logging.Duration("delay", f.delay))
		if err := f.sleep(ctx, f.delay); err != nil {
			captures.Remove()
			return Captures{}, err
		}
	}

	remoteBytes, err := f.fetch(ctx, f.remote, f.remoteFP, job.URL, captures.Remote)
	if err != nil {
		captures.Remove()
		return Captures{}, err
	}
	logger.Info("remote capture complete",
		logging.String("channel", string(ChannelRemote)),
		logging.Int64("bytes", remoteBytes),
	)
	return captures, nil
}

func (f *Fetcher) fetch(ctx context.Context, client *http.Client, fp Fingerprint, url, dest string) (int64, error) {
	if client == nil {
		return 0, services.Wrap(services.ErrConfiguration, "acquire", "fetch", "http client not configured", nil)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, services.Wrap(services.ErrValidation, "acquire", "fetch", "build request", err)
	}
	fp.Apply(req)

	resp, err := client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		return 0, services.Wrap(services.ErrFetch, "acquire", "fetch", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		return 0, services.Wrap(services.ErrFetch, "acquire", "fetch", fmt.Sprintf("%s returned %s", url, resp.Status), nil)
	}

	file, err := os.Create(dest)
	if err != nil {
		return 0, services.Wrap(services.ErrFetch, "acquire", "fetch", "create capture", err)
	}
	written, copyErr := io.Copy(file, resp.Body)
	closeErr := file.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		_ = os.Remove(dest)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		return 0, services.Wrap(services.ErrFetch, "acquire", "fetch", "write capture", copyErr)
	}
	return written, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
