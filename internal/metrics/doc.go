// Package metrics records podcast processing telemetry through the
// OpenTelemetry metrics API and exposes it for Prometheus scraping.
//
// Tests should build a Recorder from their own metric.MeterProvider backed by
// a ManualReader rather than relying on the global provider.
package metrics
