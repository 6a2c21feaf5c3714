// Package config loads, normalizes, and validates dailete configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// PROXY_ADDRESS and BASE_ADDRESS. The Config type centralizes every knob the
// daemon, the CLI, and the alignment pipeline need so that storage locations,
// the remote proxy, and the alignment tuning are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
