package config

import (
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"sort"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateProxy(); err != nil {
		return err
	}
	if err := c.validateAlignment(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateEncoding(); err != nil {
		return err
	}
	if _, err := c.MetricsAllowPrefixes(); err != nil {
		return err
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q must be debug, info, warn, or error", c.Logging.Level)
	}
	return nil
}

func (c *Config) validateProxy() error {
	if c.Proxy.Address == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPathWithTilde
		}
		return fmt.Errorf("proxy.address is required. Set PROXY_ADDRESS env var or edit %s (create with 'dailete config init')", defaultPath)
	}
	parsed, err := url.Parse(c.Proxy.Address)
	if err != nil {
		return fmt.Errorf("proxy.address: %w", err)
	}
	switch parsed.Scheme {
	case "socks5", "socks5h":
	default:
		return fmt.Errorf("proxy.address must use socks5://, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return errors.New("proxy.address must include host:port")
	}
	if c.Proxy.RemoteDelaySeconds < 0 {
		return errors.New("proxy.remote_delay_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateAlignment() error {
	a := c.Alignment
	if err := ensurePositiveMap(map[string]int{
		"alignment.look_ahead_seconds":     a.LookAheadSeconds,
		"alignment.window_seconds":         a.WindowSeconds,
		"alignment.comparison_sample_rate": a.ComparisonSampleRate,
		"alignment.quality_sample_rate":    a.QualitySampleRate,
	}); err != nil {
		return err
	}
	if a.HeaderBytes < 0 {
		return errors.New("alignment.header_bytes must be >= 0")
	}
	if a.MinRetainedRatio < 0 || a.MinRetainedRatio > 1 {
		return errors.New("alignment.min_retained_ratio must be between 0 and 1")
	}
	if a.ApproximateMatch {
		if a.ApproximateThreshold <= 0 || a.ApproximateThreshold > 1 {
			return errors.New("alignment.approximate_threshold must be between 0 and 1 when alignment.approximate_match is true")
		}
		if a.ApproximateTolerance < 0 || a.ApproximateTolerance > 255 {
			return errors.New("alignment.approximate_tolerance must be between 0 and 255")
		}
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	return ensurePositiveMap(map[string]int{
		"workflow.feed_poll_interval":  c.Workflow.FeedPollInterval,
		"workflow.queue_poll_interval": c.Workflow.QueuePollInterval,
	})
}

func (c *Config) validateEncoding() error {
	if strings.ContainsAny(c.Encoding.Extension, `/\`) {
		return fmt.Errorf("encoding.extension %q must not contain path separators", c.Encoding.Extension)
	}
	if c.Fetch.RequestTimeoutSeconds < 0 {
		return errors.New("fetch.request_timeout_seconds must be >= 0")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}

// MetricsAllowPrefixes parses server.metrics_allow.
func (c *Config) MetricsAllowPrefixes() ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(c.Server.MetricsAllow))
	for _, entry := range c.Server.MetricsAllow {
		prefix, err := netip.ParsePrefix(entry)
		if err != nil {
			return nil, fmt.Errorf("server.metrics_allow: %w", err)
		}
		prefixes = append(prefixes, prefix.Masked())
	}
	return prefixes, nil
}
