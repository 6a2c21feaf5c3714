// Package preflight provides readiness checks for the external binaries,
// directories, and network endpoints dailete depends on.
//
// The daemon runs RunAll at startup and refuses to start when a required
// check fails. The CLI "dailete status" command renders the same results.
package preflight
