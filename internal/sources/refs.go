package sources

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/stacklok/gitlab-composer-registry/internal/composer"
	"github.com/stacklok/gitlab-composer-registry/internal/gitlab"
	"github.com/stacklok/gitlab-composer-registry/internal/registry"
)

// ErrNoPackageName is returned by PackageName when the default branch yields
// no valid manifest to take the package name from
var ErrNoPackageName = errors.New("default branch has no valid manifest to name the package")

// RefFetcher turns the refs of GitLab projects into registry versions
type RefFetcher struct {
	client gitlab.Client
	policy composer.Policy
	memo   *RefMemo
}

// NewRefFetcher creates a fetcher for one run. A nil memo gets a fresh one.
func NewRefFetcher(client gitlab.Client, policy composer.Policy, memo *RefMemo) *RefFetcher {
	if memo == nil {
		memo = NewRefMemo()
	}
	return &RefFetcher{
		client: client,
		policy: policy.Normalized(),
		memo:   memo,
	}
}

// FetchRef returns the version contributed by one ref: a single-entry
// PackageEntry, or an empty one if the ref has no acceptable manifest.
// The manifest is read at most once per project, ref and commit.
func (f *RefFetcher) FetchRef(ctx context.Context, project gitlab.Project, ref gitlab.Ref) (registry.PackageEntry, error) {
	key := refKey{projectID: project.ID, refName: ref.Name, commitID: ref.Commit.ID}
	if entry, ok := f.memo.get(key); ok {
		return entry, nil
	}

	entry, err := f.fetchRef(ctx, project, ref)
	if err != nil {
		return nil, err
	}
	f.memo.put(key, entry)
	return entry, nil
}

func (f *RefFetcher) fetchRef(ctx context.Context, project gitlab.Project, ref gitlab.Ref) (registry.PackageEntry, error) {
	version, _ := composer.ResolveVersion(ref.Name)

	data, err := f.client.GetFile(ctx, project.ID, composer.ManifestFile, ref.Commit.ID)
	if err != nil {
		if gitlab.IsRecoverable(err) {
			slog.Debug("Manifest unavailable at ref",
				"repository", project.PathWithNamespace, "ref", ref.Name, "error", err)
			return registry.PackageEntry{}, nil
		}
		return nil, fmt.Errorf("failed to read %s of %s at %s: %w",
			composer.ManifestFile, project.PathWithNamespace, ref.Name, err)
	}

	manifest, err := composer.ValidateManifest(data, project.PathWithNamespace, f.policy)
	if err != nil {
		if composer.IsRejected(err) {
			return registry.PackageEntry{}, nil
		}
		return nil, err
	}

	d, err := composer.BuildDescriptor(project, ref, manifest, version, f.policy)
	if err != nil {
		return nil, err
	}
	return registry.PackageEntry{version: d}, nil
}

// FetchRefs returns every version of a project across its branches and tags.
// Release versions are also registered under their dev- alias. When two refs
// resolve to the same version, tags win over branches.
func (f *RefFetcher) FetchRefs(ctx context.Context, project gitlab.Project) (registry.PackageEntry, error) {
	if err := gitlab.CheckNotEmpty(ctx, f.client, project); err != nil {
		return nil, err
	}

	branches, err := gitlab.AllBranches(ctx, f.client, project.ID)
	if err != nil {
		return nil, err
	}
	tags, err := gitlab.AllTags(ctx, f.client, project.ID)
	if err != nil {
		return nil, err
	}

	result := registry.PackageEntry{}
	for _, ref := range append(branches, tags...) {
		entry, err := f.FetchRef(ctx, project, ref)
		if err != nil {
			return nil, err
		}
		for version, d := range composer.ExpandAliases(entry) {
			result[version] = d
		}
	}
	return result, nil
}

// PackageName returns the name the project's versions are published under.
// Normally that is the repository path. When name mismatches are allowed it is
// the name declared by the default branch manifest, taken from entry when that
// branch is already part of it.
func (f *RefFetcher) PackageName(ctx context.Context, project gitlab.Project, entry registry.PackageEntry) (string, error) {
	if !f.policy.AllowNameMismatch {
		return project.PathWithNamespace, nil
	}
	if project.DefaultBranch == "" {
		return "", ErrNoPackageName
	}

	version, _ := composer.ResolveVersion(project.DefaultBranch)
	if d, ok := entry[version]; ok && d.Name() != "" {
		return d.Name(), nil
	}

	ref, err := f.client.GetBranch(ctx, project.ID, project.DefaultBranch)
	if err != nil {
		if gitlab.IsRecoverable(err) {
			return "", ErrNoPackageName
		}
		return "", fmt.Errorf("failed to get default branch of %s: %w", project.PathWithNamespace, err)
	}
	frag, err := f.FetchRef(ctx, project, *ref)
	if err != nil {
		return "", err
	}
	for _, d := range frag {
		if name := d.Name(); name != "" {
			return name, nil
		}
	}
	return "", ErrNoPackageName
}
