package sync

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/stacklok/gitlab-composer-registry/internal/composer"
	"github.com/stacklok/gitlab-composer-registry/internal/gitlab"
	"github.com/stacklok/gitlab-composer-registry/internal/otel"
	"github.com/stacklok/gitlab-composer-registry/internal/registry"
	"github.com/stacklok/gitlab-composer-registry/internal/sources"
)

// buildOutcome is the product of a successful rebuild
type buildOutcome struct {
	packages registry.Packages
	skipped  int
}

// repositoryResult is the contribution of one project
type repositoryResult struct {
	name    string
	entry   registry.PackageEntry
	skipped bool
}

// rebuild computes the index from every project, merges the static packages
// and stores the result with builtAt as its modification time
func (m *manager) rebuild(
	ctx context.Context, logger *slog.Logger, projects []gitlab.Project, builtAt time.Time,
) (*buildOutcome, *Error) {
	fetcher := sources.NewRefFetcher(m.client, m.cfg.Policy(), sources.NewRefMemo())

	results := make([]repositoryResult, len(projects))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(m.cfg.Workers, 1))
	for i, project := range projects {
		g.Go(func() error {
			results[i] = m.buildRepository(gctx, logger, fetcher, project)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, newError(ErrorReasonCancelled, "Build interrupted", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, newError(ErrorReasonCancelled, "Build interrupted", err)
	}

	// Merge in enumeration order so name collisions resolve deterministically
	packages := registry.Packages{}
	owners := map[string]string{}
	skipped := 0
	for i, res := range results {
		if res.skipped {
			skipped++
			continue
		}
		if len(res.entry) == 0 {
			continue
		}
		repo := projects[i].PathWithNamespace
		if previous, taken := owners[res.name]; taken {
			logger.Warn("Package name published by several repositories, keeping the later one",
				"package", res.name,
				"previous", previous,
				"repository", repo)
		}
		owners[res.name] = repo
		packages[res.name] = res.entry
	}

	static, found, err := m.static.Load(ctx)
	if err != nil {
		return nil, newError(ErrorReasonStatic, "Failed to load static packages", err)
	}
	if found {
		merged, err := registry.MergeStatic(packages, static)
		if err != nil {
			return nil, newError(ErrorReasonStatic, "Failed to merge static packages", err)
		}
		for _, name := range merged.Overridden {
			logger.Info("Static package replaces repository package", "package", name)
		}
		for _, version := range merged.ReplacedExtra {
			logger.Warn("Static package extra is not an object and was replaced", "version", version)
		}
		logger.Debug("Static packages merged", "file", m.static.Path(), "packages", len(static))
	}

	packages = registry.FilterEmpty(packages)
	if err := m.storage.Store(ctx, &registry.Index{Packages: packages}, builtAt); err != nil {
		return nil, newError(ErrorReasonStorage, "Failed to store index", err)
	}

	return &buildOutcome{packages: packages, skipped: skipped}, nil
}

// buildRepository computes the versions of one project through the cache.
// Errors are logged and reported as a skipped repository.
func (m *manager) buildRepository(
	ctx context.Context, logger *slog.Logger, fetcher *sources.RefFetcher, project gitlab.Project,
) repositoryResult {
	repo := project.PathWithNamespace
	ctx, span := otel.StartSpan(ctx, m.tracer, "sync.Repository",
		trace.WithAttributes(
			otel.AttrRepository.String(repo),
			otel.AttrProjectID.Int64(project.ID),
		),
	)
	defer span.End()

	entry, err := m.repoCache.FetchOrCompute(ctx, project, func(ctx context.Context) (registry.PackageEntry, error) {
		return fetcher.FetchRefs(ctx, project)
	})
	if err != nil {
		if ctx.Err() == nil {
			otel.RecordError(span, err)
			m.buildMetrics.RecordRepositoryFailure(ctx)
			logger.Warn("Skipping repository", "repository", repo, "error", err)
		}
		return repositoryResult{skipped: true}
	}
	if len(entry) == 0 {
		return repositoryResult{}
	}

	name, err := fetcher.PackageName(ctx, project, entry)
	if err != nil {
		if errors.Is(err, sources.ErrNoPackageName) {
			logger.Warn("Skipping repository without a package name on its default branch",
				"repository", repo,
				"default_branch", project.DefaultBranch)
		} else {
			otel.RecordError(span, err)
			m.buildMetrics.RecordRepositoryFailure(ctx)
			logger.Warn("Skipping repository", "repository", repo, "error", err)
		}
		return repositoryResult{skipped: true}
	}

	logger.Debug("Repository processed",
		"repository", repo,
		"package", name,
		"versions", len(entry),
		"latest_release", composer.LatestRelease(entry))
	return repositoryResult{name: name, entry: entry}
}

// latestReleases maps each package with at least one release to its highest
// release version
func latestReleases(packages registry.Packages) map[string]string {
	out := make(map[string]string, len(packages))
	for name, entry := range packages {
		if latest := composer.LatestRelease(entry); latest != "" {
			out[name] = latest
		}
	}
	return out
}
