package status

import "time"

// BuildPhase represents the current phase of an index build
type BuildPhase string

const (
	// BuildPhaseBuilding means a build is currently in progress
	BuildPhaseBuilding BuildPhase = "Building"

	// BuildPhaseComplete means the last build completed successfully
	BuildPhaseComplete BuildPhase = "Complete"

	// BuildPhaseFailed means the last build failed
	BuildPhaseFailed BuildPhase = "Failed"
)

// BuildStatus represents the state of the last index build
type BuildStatus struct {
	// Phase represents the current build phase
	Phase BuildPhase `json:"phase"`

	// Message provides additional information about the build status
	Message string `json:"message,omitempty"`

	// Reason is the rebuild reason of the last run
	Reason string `json:"reason,omitempty"`

	// RunID identifies the last run in the logs
	RunID string `json:"runId,omitempty"`

	// LastAttempt is the timestamp of the last build attempt
	LastAttempt *time.Time `json:"lastAttempt,omitempty"`

	// AttemptCount is the number of failed attempts since the last success
	AttemptCount int `json:"attemptCount,omitempty"`

	// LastBuildTime is the timestamp of the last successful build
	LastBuildTime *time.Time `json:"lastBuildTime,omitempty"`

	// PackageCount is the number of packages in the index
	PackageCount int `json:"packageCount"`

	// VersionCount is the number of versions across all packages
	VersionCount int `json:"versionCount"`

	// RepositoryCount is the number of repositories enumerated
	RepositoryCount int `json:"repositoryCount"`

	// SkippedCount is the number of repositories left out after errors
	SkippedCount int `json:"skippedCount,omitempty"`

	// LatestReleases maps package names to their highest release version
	LatestReleases map[string]string `json:"latestReleases,omitempty"`
}
