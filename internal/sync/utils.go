package sync

// Reason explains the outcome of a rebuild check
type Reason string

// Rebuild reasons
const (
	// ReasonIndexMissing means no index exists yet
	ReasonIndexMissing Reason = "index-missing"

	// ReasonConfigChanged means the configuration file is newer than the index
	ReasonConfigChanged Reason = "config-changed"

	// ReasonForced means the caller requested a rebuild
	ReasonForced Reason = "forced"

	// ReasonRepositoryActivity means a project is newer than the index
	ReasonRepositoryActivity Reason = "repository-activity"

	// ReasonStaticChanged means the static package file is newer than the index
	ReasonStaticChanged Reason = "static-changed"

	// ReasonUpToDate means the index is kept
	ReasonUpToDate Reason = "up-to-date"
)

// ShouldRebuild reports whether the reason calls for a rebuild
func (r Reason) ShouldRebuild() bool {
	return r != ReasonUpToDate && r != ""
}

// String returns the reason as used in logs, metrics and status
func (r Reason) String() string {
	return string(r)
}

// Error reasons reported on *Error
const (
	ErrorReasonCacheDir    = "CacheDirUnusable"
	ErrorReasonConfig      = "ConfigUnavailable"
	ErrorReasonLock        = "LockFailed"
	ErrorReasonClearCache  = "ClearCacheFailed"
	ErrorReasonEnumeration = "EnumerationFailed"
	ErrorReasonStatic      = "StaticPackagesInvalid"
	ErrorReasonStorage     = "StorageFailed"
	ErrorReasonCancelled   = "Cancelled"
)
