// Package textutil provides filename sanitization and display-title helpers
// for identifiers and names that arrive from podcast feeds.
package textutil
