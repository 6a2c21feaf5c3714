package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StorageDir     string `toml:"storage_dir"`
	WorkDir        string `toml:"work_dir"`
	DataDir        string `toml:"data_dir"`
	LogDir         string `toml:"log_dir"`
	DiagnosticsDir string `toml:"diagnostics_dir"`
}

// Server contains the HTTP surface configuration.
type Server struct {
	Bind        string `toml:"bind"`
	BaseAddress string `toml:"base_address"`
	APIToken    string `toml:"api_token"`

	// MetricsAllow lists CIDRs that may scrape /metrics without the token.
	MetricsAllow []string `toml:"metrics_allow"`
}

// Proxy configures the remote acquisition channel.
type Proxy struct {
	Address            string `toml:"address"`
	RemoteDelaySeconds int    `toml:"remote_delay_seconds"`
}

// Fetch contains HTTP client tuning shared by both acquisition channels.
type Fetch struct {
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
	LocalUserAgent        string `toml:"local_user_agent"`
	RemoteUserAgent       string `toml:"remote_user_agent"`
}

// Alignment tunes the differential alignment engine.
type Alignment struct {
	// LookAheadSeconds is the base forward search breadth in Remote playback time.
	LookAheadSeconds int `toml:"look_ahead_seconds"`
	// WindowSeconds is the span of one comparison window.
	WindowSeconds int `toml:"window_seconds"`
	// HeaderBytes is copied verbatim from the quality stream and skipped on all inputs.
	HeaderBytes int64 `toml:"header_bytes"`
	// MinRetainedRatio is the sanity guard: results shorter than this share of
	// the original fall back to the unmodified local capture.
	MinRetainedRatio     float64 `toml:"min_retained_ratio"`
	ComparisonSampleRate int     `toml:"comparison_sample_rate"`
	QualitySampleRate    int     `toml:"quality_sample_rate"`
	// ApproximateMatch enables tolerance-based direct comparisons. Off by default.
	ApproximateMatch     bool    `toml:"approximate_match"`
	ApproximateThreshold float64 `toml:"approximate_threshold"`
	ApproximateTolerance int     `toml:"approximate_tolerance"`
}

// Encoding configures the delivery codec and external tool binaries.
type Encoding struct {
	Codec         string `toml:"codec"`
	Bitrate       string `toml:"bitrate"`
	Extension     string `toml:"extension"`
	FFmpegBinary  string `toml:"ffmpeg_binary"`
	FFprobeBinary string `toml:"ffprobe_binary"`
}

// Workflow contains configuration for daemon scheduling (seconds).
type Workflow struct {
	FeedPollInterval  int `toml:"feed_poll_interval"`
	QueuePollInterval int `toml:"queue_poll_interval"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
	// KeepCaptures persists both raw captures when the sanity guard falls back.
	KeepCaptures bool `toml:"keep_captures"`
}

// Config encapsulates all configuration values for dailete.
//
// Configuration sections by subsystem:
//   - Paths: artifact storage, scratch work area, catalog and logs
//   - Server: API bind address, public base address, bearer token
//   - Proxy: SOCKS5 endpoint and delay for the remote capture
//   - Fetch: HTTP client timeouts and fingerprint overrides
//   - Alignment: window, look-ahead, header and sanity guard tuning
//   - Encoding: delivery codec and ffmpeg/ffprobe binaries
//   - Workflow: feed poll and queue drain cadence
//   - Logging: log format and level
type Config struct {
	Paths     Paths     `toml:"paths"`
	Server    Server    `toml:"server"`
	Proxy     Proxy     `toml:"proxy"`
	Fetch     Fetch     `toml:"fetch"`
	Alignment Alignment `toml:"alignment"`
	Encoding  Encoding  `toml:"encoding"`
	Workflow  Workflow  `toml:"workflow"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPathWithTilde)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs(defaultProjectConfigFilename)
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StorageDir, c.Paths.WorkDir, c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.Logging.KeepCaptures {
		if err := os.MkdirAll(c.Paths.DiagnosticsDir, 0o755); err != nil {
			return fmt.Errorf("create diagnostics directory %q: %w", c.Paths.DiagnosticsDir, err)
		}
	}
	return nil
}

// CatalogPath returns the SQLite catalog location.
func (c *Config) CatalogPath() string {
	return filepath.Join(c.Paths.DataDir, defaultCatalogFilename)
}

// LockPath returns the daemon single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, defaultLockFilename)
}

// RemoteDelay is the pause between the local and remote fetch.
func (c *Config) RemoteDelay() time.Duration {
	return time.Duration(c.Proxy.RemoteDelaySeconds) * time.Second
}

// RequestTimeout returns the per-request HTTP timeout; zero disables it.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Fetch.RequestTimeoutSeconds) * time.Second
}

// LookAheadWindows converts the look-ahead span into whole comparison windows.
func (c *Config) LookAheadWindows() int {
	if c.Alignment.WindowSeconds <= 0 {
		return 0
	}
	return int(math.Ceil(float64(c.Alignment.LookAheadSeconds) / float64(c.Alignment.WindowSeconds)))
}

// FeedPollInterval returns the feed discovery cadence.
func (c *Config) FeedPollInterval() time.Duration {
	return time.Duration(c.Workflow.FeedPollInterval) * time.Second
}

// QueuePollInterval returns the queue drain cadence.
func (c *Config) QueuePollInterval() time.Duration {
	return time.Duration(c.Workflow.QueuePollInterval) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
