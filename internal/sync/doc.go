// Package sync builds the registry index from GitLab.
//
// A run enumerates the configured projects, decides whether the served index
// is stale, and if so recomputes it from the per-repository cache, merges the
// static packages and stores the result atomically.
//
// # Core Interfaces
//
//   - Manager: runs builds, reports build status and clears the cache
//   - ConfigChangeDetector: decides whether the configuration is newer than the index
//
// # Rebuild Reasons
//
// ShouldRebuild returns a Reason describing why the index has to be rebuilt,
// checked in this order:
//
//   - ReasonIndexMissing: no index has been built yet
//   - ReasonConfigChanged: the configuration file is newer than the index; the
//     repository cache is cleared before any GitLab call
//   - ReasonForced: the caller asked for a rebuild
//   - ReasonRepositoryActivity: a project shows activity newer than the index
//   - ReasonStaticChanged: the static package file is newer than the index
//
// ReasonUpToDate means the existing index is kept as is.
//
// # Runs
//
// Concurrent callers in one process share a single run. Runs of different
// processes sharing a cache directory are serialized by a file lock. The index
// modification time is set to the start of the run that built it, so activity
// landing while a run is in flight triggers the next rebuild.
//
// Failures of a single repository are logged and leave that repository out of
// the index; they never fail the run. Errors that do fail a run are returned as
// *Error carrying a Reason for status reporting.
package sync
