package config

import (
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeServer()
	c.normalizeProxy()
	if err := c.normalizeAlignment(); err != nil {
		return err
	}
	c.normalizeEncoding()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StorageDir) == "" {
		c.Paths.StorageDir = lookupEnv("PODCAST_STORAGE_PATH", "podcastStoragePath")
	}
	if strings.TrimSpace(c.Paths.StorageDir) == "" {
		c.Paths.StorageDir = defaultStorageDir
	}
	if c.Paths.StorageDir, err = expandPath(c.Paths.StorageDir); err != nil {
		return fmt.Errorf("paths.storage_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir()
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.DiagnosticsDir) == "" {
		c.Paths.DiagnosticsDir = filepath.Join(c.Paths.DataDir, defaultDiagnosticsSubdir)
	}
	if c.Paths.DiagnosticsDir, err = expandPath(c.Paths.DiagnosticsDir); err != nil {
		return fmt.Errorf("paths.diagnostics_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeServer() {
	c.Server.Bind = strings.TrimSpace(c.Server.Bind)
	if c.Server.Bind == "" {
		c.Server.Bind = defaultBind
	}
	c.Server.BaseAddress = strings.TrimSpace(c.Server.BaseAddress)
	if c.Server.BaseAddress == "" {
		c.Server.BaseAddress = lookupEnv("BASE_ADDRESS", "baseAddress")
	}
	if c.Server.BaseAddress == "" {
		c.Server.BaseAddress = defaultBaseAddress
	}
	c.Server.BaseAddress = strings.TrimRight(c.Server.BaseAddress, "/")
	c.Server.APIToken = strings.TrimSpace(c.Server.APIToken)
	if c.Server.APIToken == "" {
		c.Server.APIToken = lookupEnv("DAILETE_API_TOKEN")
	}
	allow := make([]string, 0, len(c.Server.MetricsAllow))
	for _, entry := range c.Server.MetricsAllow {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "/") {
			if addr, err := netip.ParseAddr(entry); err == nil {
				entry = netip.PrefixFrom(addr, addr.BitLen()).String()
			}
		}
		allow = append(allow, entry)
	}
	c.Server.MetricsAllow = allow
}

func (c *Config) normalizeProxy() {
	c.Proxy.Address = strings.TrimSpace(c.Proxy.Address)
	if c.Proxy.Address == "" {
		c.Proxy.Address = lookupEnv("PROXY_ADDRESS", "proxyAddress")
	}
	if c.Proxy.Address != "" && !strings.Contains(c.Proxy.Address, "://") {
		c.Proxy.Address = defaultProxyScheme + "://" + c.Proxy.Address
	}
}

// normalizeAlignment applies the look-ahead environment override. Unlike the
// other fallbacks the environment wins over the file here.
func (c *Config) normalizeAlignment() error {
	if raw := lookupEnv("LOOK_AHEAD_DISTANCE", "lookAheadDistance"); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("lookAheadDistance: invalid integer %q", raw)
		}
		c.Alignment.LookAheadSeconds = value
	}
	return nil
}

func (c *Config) normalizeEncoding() {
	c.Encoding.Codec = strings.TrimSpace(c.Encoding.Codec)
	if c.Encoding.Codec == "" {
		c.Encoding.Codec = defaultCodec
	}
	c.Encoding.Bitrate = strings.TrimSpace(c.Encoding.Bitrate)
	if c.Encoding.Bitrate == "" {
		c.Encoding.Bitrate = defaultBitrate
	}
	c.Encoding.Extension = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(c.Encoding.Extension)), ".")
	if c.Encoding.Extension == "" {
		c.Encoding.Extension = defaultExtension
	}
	if strings.TrimSpace(c.Encoding.FFmpegBinary) == "" {
		c.Encoding.FFmpegBinary = defaultFFmpegBinary
	}
	if strings.TrimSpace(c.Encoding.FFprobeBinary) == "" {
		c.Encoding.FFprobeBinary = defaultFFprobeBinary
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

// lookupEnv returns the first non-empty value among keys.
func lookupEnv(keys ...string) string {
	for _, key := range keys {
		if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
