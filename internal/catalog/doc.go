// Package catalog persists subscribed podcasts, processed episodes, and the
// pending episode queue in SQLite.
//
// An episode row is written only after its artifact is committed to storage,
// so a job that fails anywhere in the pipeline leaves no trace and is picked
// up again by the next scheduling pass.
package catalog
