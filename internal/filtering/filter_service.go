package filtering

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/stacklok/gitlab-composer-registry/internal/gitlab"
)

// Rules holds the include and exclude lists of a ProjectFilter
type Rules struct {
	PathInclude  []string
	PathExclude  []string
	TopicInclude []string
	TopicExclude []string
}

// ProjectFilter coordinates path and topic filtering of enumerated projects
type ProjectFilter struct {
	paths  *PathFilter
	topics *TopicFilter
}

// NewProjectFilter creates a ProjectFilter, failing on malformed path patterns
func NewProjectFilter(rules Rules) (*ProjectFilter, error) {
	paths, err := NewPathFilter(rules.PathInclude, rules.PathExclude)
	if err != nil {
		return nil, fmt.Errorf("paths: %w", err)
	}
	return &ProjectFilter{
		paths:  paths,
		topics: NewTopicFilter(rules.TopicInclude, rules.TopicExclude),
	}, nil
}

// Active reports whether any rule is configured
func (f *ProjectFilter) Active() bool {
	return f.paths.Active() || f.topics.Active()
}

// Apply returns the projects passing both filters, in their original order.
// The input slice is not modified.
func (f *ProjectFilter) Apply(projects []gitlab.Project) []gitlab.Project {
	if !f.Active() {
		return projects
	}

	kept := make([]gitlab.Project, 0, len(projects))
	for _, p := range projects {
		included, reason := f.ShouldInclude(p)
		if !included {
			slog.Debug("Excluding project",
				"repository", p.PathWithNamespace,
				"topics", p.Topics,
				"reason", reason)
			continue
		}
		kept = append(kept, p)
	}

	slog.Debug("Project filtering completed",
		"included", len(kept),
		"excluded", len(projects)-len(kept))
	return kept
}

// ShouldInclude determines if a project should be mirrored and provides detailed reasoning.
// Both path and topic filters must pass.
func (f *ProjectFilter) ShouldInclude(p gitlab.Project) (bool, string) {
	pathIncluded, pathReason := f.paths.ShouldInclude(p.PathWithNamespace)
	if !pathIncluded {
		return false, fmt.Sprintf("path filter: %s", pathReason)
	}

	topicIncluded, topicReason := f.topics.ShouldInclude(p.Topics)
	if !topicIncluded {
		return false, fmt.Sprintf("topic filter: %s", topicReason)
	}

	reasons := []string{}
	if f.paths.Active() {
		reasons = append(reasons, fmt.Sprintf("path filter: %s", pathReason))
	}
	if f.topics.Active() {
		reasons = append(reasons, fmt.Sprintf("topic filter: %s", topicReason))
	}
	if len(reasons) == 0 {
		return true, "no filters specified, default include"
	}
	return true, "passed all filters: " + strings.Join(reasons, " AND ")
}
