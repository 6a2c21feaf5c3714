// Package services defines shared utilities consumed by the episode pipeline
// and its collaborators.
//
// Key responsibilities:
//   - Context helpers that stamp podcast IDs, episode IDs, stage names, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper so acquisition, tool, and
//     missing-capture failures stay distinguishable with errors.Is.
//
// Use these helpers when wiring new pipeline stages so error handling and
// observability stay uniform.
package services
