package config

import (
	"os"
	"path/filepath"
)

const (
	defaultStorageDir            = "~/.local/share/dailete/podcasts"
	defaultDataDir               = "~/.local/share/dailete"
	defaultLogDir                = "~/.local/share/dailete/logs"
	defaultBind                  = "127.0.0.1:7488"
	defaultBaseAddress           = "127.0.0.1"
	defaultRemoteDelaySeconds    = 45
	defaultLookAheadSeconds      = 480
	defaultWindowSeconds         = 3
	defaultHeaderBytes           = 1024
	defaultMinRetainedRatio      = 0.7
	defaultComparisonSampleRate  = 16000
	defaultQualitySampleRate     = 48000
	defaultApproximateThreshold  = 0.98
	defaultApproximateTolerance  = 6
	defaultCodec                 = "libmp3lame"
	defaultBitrate               = "256k"
	defaultExtension             = "mp3"
	defaultFFmpegBinary          = "ffmpeg"
	defaultFFprobeBinary         = "ffprobe"
	defaultFeedPollInterval      = 3600
	defaultQueuePollInterval     = 10
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultLogRetentionDays      = 30
	defaultProxyScheme           = "socks5"
	defaultDiagnosticsSubdir     = "diagnostics"
	defaultWorkSubdir            = "dailete"
	defaultCatalogFilename       = "catalog.db"
	defaultLockFilename          = "dailete.lock"
	defaultConfigPathWithTilde   = "~/.config/dailete/config.toml"
	defaultProjectConfigFilename = "dailete.toml"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StorageDir: defaultStorageDir,
			WorkDir:    defaultWorkDir(),
			DataDir:    defaultDataDir,
			LogDir:     defaultLogDir,
		},
		Server: Server{
			Bind:         defaultBind,
			BaseAddress:  defaultBaseAddress,
			MetricsAllow: []string{"127.0.0.1/32", "::1/128"},
		},
		Proxy: Proxy{
			RemoteDelaySeconds: defaultRemoteDelaySeconds,
		},
		Alignment: Alignment{
			LookAheadSeconds:     defaultLookAheadSeconds,
			WindowSeconds:        defaultWindowSeconds,
			HeaderBytes:          defaultHeaderBytes,
			MinRetainedRatio:     defaultMinRetainedRatio,
			ComparisonSampleRate: defaultComparisonSampleRate,
			QualitySampleRate:    defaultQualitySampleRate,
			ApproximateThreshold: defaultApproximateThreshold,
			ApproximateTolerance: defaultApproximateTolerance,
		},
		Encoding: Encoding{
			Codec:         defaultCodec,
			Bitrate:       defaultBitrate,
			Extension:     defaultExtension,
			FFmpegBinary:  defaultFFmpegBinary,
			FFprobeBinary: defaultFFprobeBinary,
		},
		Workflow: Workflow{
			FeedPollInterval:  defaultFeedPollInterval,
			QueuePollInterval: defaultQueuePollInterval,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}

func defaultWorkDir() string {
	return filepath.Join(os.TempDir(), defaultWorkSubdir)
}
