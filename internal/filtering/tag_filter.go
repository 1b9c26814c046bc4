package filtering

import (
	"fmt"
	"slices"
)

// TopicFilter matches project topics against include and exclude lists
type TopicFilter struct {
	include []string
	exclude []string
}

// NewTopicFilter creates a TopicFilter
func NewTopicFilter(include, exclude []string) *TopicFilter {
	return &TopicFilter{include: include, exclude: exclude}
}

// Active reports whether any topic rule is configured
func (f *TopicFilter) Active() bool {
	return len(f.include) > 0 || len(f.exclude) > 0
}

// ShouldInclude determines if a project with the given topics should be mirrored.
// Returns (shouldInclude bool, reason string)
func (f *TopicFilter) ShouldInclude(topics []string) (bool, string) {
	for _, topic := range topics {
		if slices.Contains(f.exclude, topic) {
			return false, fmt.Sprintf("excluded by topic '%s'", topic)
		}
	}

	if len(f.include) > 0 {
		for _, topic := range topics {
			if slices.Contains(f.include, topic) {
				return true, fmt.Sprintf("included by topic '%s'", topic)
			}
		}
		return false, fmt.Sprintf("no matching topics found in include list %v (project topics: %v)", f.include, topics)
	}

	if len(f.exclude) > 0 {
		return true, fmt.Sprintf("no matching topics in exclude list %v (project topics: %v)", f.exclude, topics)
	}
	return true, "no topic filters specified"
}
