// Package logging assembles structured slog loggers and formatting helpers used
// across dailete.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so pipeline code can tag log
// lines with podcast IDs, episode IDs, stages, and correlation IDs. The package
// also provides a no-op logger for tests and wiring code that cannot fail, and
// age-based pruning for the log and diagnostics directories.
package logging
