package sync

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/stacklok/gitlab-composer-registry/internal/gitlab"
)

// enumerateProjects lists the projects to mirror: those of the configured
// groups, matched by group name, or every project visible to the token when no
// group is configured, narrowed by the project filter. It also returns the
// newest activity among them.
func (m *manager) enumerateProjects(ctx context.Context, logger *slog.Logger) ([]gitlab.Project, time.Time, error) {
	var projects []gitlab.Project
	if len(m.cfg.Groups) == 0 {
		all, err := gitlab.AllProjects(ctx, m.client)
		if err != nil {
			return nil, time.Time{}, err
		}
		projects = all
	} else {
		groups, err := gitlab.AllGroups(ctx, m.client)
		if err != nil {
			return nil, time.Time{}, err
		}
		matched := map[string]bool{}
		for _, group := range groups {
			if !slices.Contains(m.cfg.Groups, group.Name) {
				continue
			}
			matched[group.Name] = true
			members, err := gitlab.AllGroupProjects(ctx, m.client, group.ID)
			if err != nil {
				return nil, time.Time{}, fmt.Errorf("failed to enumerate group %s: %w", group.Name, err)
			}
			projects = append(projects, members...)
		}
		for _, name := range m.cfg.Groups {
			if !matched[name] {
				logger.Warn("Configured group not found", "group", name)
			}
		}
	}

	// A project shared with several groups is mirrored once
	seen := make(map[int64]bool, len(projects))
	unique := projects[:0]
	var maxActivity time.Time
	for _, p := range m.filter.Apply(projects) {
		if seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		unique = append(unique, p)
		if p.LastActivityAt.After(maxActivity) {
			maxActivity = p.LastActivityAt
		}
	}
	return unique, maxActivity, nil
}
