// Package daemon coordinates the long-running dailete process.
//
// It wires configuration, the catalog, and the workflow scheduler into a
// single lifecycle with flock-based locking to prevent multiple instances.
// The daemon also serves the HTTP surface: a token-protected JSON API for
// subscriptions and queueing, the Prometheus scrape endpoint, and the
// processed episode files themselves.
//
// Keep orchestration logic here: episode processing lives in pipeline and
// scheduling in workflow while the daemon focuses on startup, shutdown, and
// the outer surface.
package daemon
