package gitlab

import (
	"context"
	"fmt"
)

// MaxPages bounds every paged listing
const MaxPages = 10000

// collect pages through fetch until the first empty page
func collect[T any](ctx context.Context, what string, fetch func(ctx context.Context, page int) ([]T, error)) ([]T, error) {
	var all []T
	for page := 1; page <= MaxPages; page++ {
		items, err := fetch(ctx, page)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s (page %d): %w", what, page, err)
		}
		if len(items) == 0 {
			return all, nil
		}
		all = append(all, items...)
	}
	return nil, fmt.Errorf("failed to list %s: more than %d pages", what, MaxPages)
}

// AllGroups returns every group visible to the credential
func AllGroups(ctx context.Context, c Client) ([]Group, error) {
	return collect(ctx, "groups", c.ListGroups)
}

// AllGroupProjects returns every project of a group
func AllGroupProjects(ctx context.Context, c Client, groupID int64) ([]Project, error) {
	return collect(ctx, fmt.Sprintf("projects of group %d", groupID), func(ctx context.Context, page int) ([]Project, error) {
		return c.ListGroupProjects(ctx, groupID, page)
	})
}

// AllProjects returns every project visible to the credential
func AllProjects(ctx context.Context, c Client) ([]Project, error) {
	return collect(ctx, "projects", c.ListProjects)
}

// AllBranches returns every branch of a project
func AllBranches(ctx context.Context, c Client, projectID int64) ([]Ref, error) {
	return collect(ctx, fmt.Sprintf("branches of project %d", projectID), func(ctx context.Context, page int) ([]Ref, error) {
		return c.ListBranches(ctx, projectID, page)
	})
}

// AllTags returns every tag of a project
func AllTags(ctx context.Context, c Client, projectID int64) ([]Ref, error) {
	return collect(ctx, fmt.Sprintf("tags of project %d", projectID), func(ctx context.Context, page int) ([]Ref, error) {
		return c.ListTags(ctx, projectID, page)
	})
}

// CheckNotEmpty returns ErrEmptyRepository when the project has no commits.
// Projects with a default branch always have commits and are not checked.
func CheckNotEmpty(ctx context.Context, c Client, p Project) error {
	if p.DefaultBranch != "" {
		return nil
	}
	commits, err := c.ListCommits(ctx, p.ID, "", 1)
	if err != nil {
		if IsNotFound(err) {
			return ErrEmptyRepository
		}
		return fmt.Errorf("failed to list commits of %s: %w", p.PathWithNamespace, err)
	}
	if len(commits) == 0 {
		return ErrEmptyRepository
	}
	return nil
}
