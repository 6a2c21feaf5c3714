// Package workflow schedules episode processing.
//
// The Scheduler runs two loops. The feed loop polls every subscribed podcast
// and queues its latest episode when the catalog does not have it yet. The
// queue loop drains pending episodes one at a time through the pipeline and
// records each committed artifact in the catalog. A failed job leaves its
// pending row in place, so the next drain retries it; only jobs that can never
// succeed are dropped.
//
// At most one drain runs at a time. A drain that fires while another is in
// progress is skipped rather than queued behind it.
package workflow
