package composer

import (
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/stacklok/gitlab-composer-registry/internal/registry"
)

// releasePattern matches ref names used verbatim as release versions: an
// optional "v", at least major.minor, and an optional stability suffix.
var releasePattern = regexp.MustCompile(`^v?\d+\.\d+(\.\d+)*(-(dev|patch|alpha|beta|RC)\d*)?$`)

// IsRelease reports whether a ref name denotes a release version
func IsRelease(refName string) bool {
	return releasePattern.MatchString(refName)
}

// ResolveVersion returns the version string for a ref name. Release-like names
// are used verbatim; every other name becomes "dev-<name>".
func ResolveVersion(refName string) (version string, release bool) {
	if IsRelease(refName) {
		return refName, true
	}
	return DevAlias(refName), false
}

// DevAlias returns the development-channel alias of a version
func DevAlias(version string) string {
	return registry.DevPrefix + version
}

// IsDevVersion reports whether a resolved version is on the development channel
func IsDevVersion(version string) bool {
	return strings.HasPrefix(version, registry.DevPrefix)
}

// ExpandAliases returns a copy of entry in which every release version is also
// registered under its dev- alias. The alias is a shallow copy with only the
// version field rewritten.
func ExpandAliases(entry registry.PackageEntry) registry.PackageEntry {
	out := make(registry.PackageEntry, len(entry)*2)
	for _, version := range entry.Versions() {
		d := entry[version]
		if !IsDevVersion(version) {
			alias := DevAlias(version)
			out[alias] = d.WithVersion(alias)
		}
		out[version] = d
	}
	return out
}

// LatestRelease returns the highest release version of entry by semantic
// version ordering, or "" when the entry only has development versions.
func LatestRelease(entry registry.PackageEntry) string {
	var latest *semver.Version
	latestName := ""
	for _, version := range entry.Versions() {
		if IsDevVersion(version) {
			continue
		}
		v, err := semver.NewVersion(version)
		if err != nil {
			continue
		}
		if latest == nil || v.GreaterThan(latest) {
			latest = v
			latestName = version
		}
	}
	return latestName
}
