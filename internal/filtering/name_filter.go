package filtering

import (
	"fmt"
	"path/filepath"

	"github.com/gobwas/glob"
)

// PathFilter matches project paths against include and exclude glob patterns
type PathFilter struct {
	include []pattern
	exclude []pattern
}

type pattern struct {
	source string
	glob   glob.Glob
}

// compilePatterns compiles glob patterns that support matching across slashes.
// gobwas/glob lets * match path separators, unlike filepath.Match.
func compilePatterns(patterns []string) ([]pattern, error) {
	compiled := make([]pattern, 0, len(patterns))
	for _, p := range patterns {
		// filepath.Match catches malformed character classes
		if _, err := filepath.Match(p, "test"); err != nil {
			return nil, fmt.Errorf("invalid glob pattern '%s': %w", p, err)
		}
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid glob pattern '%s': %w", p, err)
		}
		compiled = append(compiled, pattern{source: p, glob: g})
	}
	return compiled, nil
}

// NewPathFilter compiles the include and exclude patterns
func NewPathFilter(include, exclude []string) (*PathFilter, error) {
	inc, err := compilePatterns(include)
	if err != nil {
		return nil, fmt.Errorf("include: %w", err)
	}
	exc, err := compilePatterns(exclude)
	if err != nil {
		return nil, fmt.Errorf("exclude: %w", err)
	}
	return &PathFilter{include: inc, exclude: exc}, nil
}

// Active reports whether any pattern is configured
func (f *PathFilter) Active() bool {
	return len(f.include) > 0 || len(f.exclude) > 0
}

// ShouldInclude determines if a project path should be mirrored.
// Returns (shouldInclude bool, reason string)
func (f *PathFilter) ShouldInclude(path string) (bool, string) {
	for _, p := range f.exclude {
		if p.glob.Match(path) {
			return false, fmt.Sprintf("excluded by pattern '%s'", p.source)
		}
	}

	if len(f.include) > 0 {
		for _, p := range f.include {
			if p.glob.Match(path) {
				return true, fmt.Sprintf("included by pattern '%s'", p.source)
			}
		}
		return false, "no match found in include patterns"
	}

	if len(f.exclude) > 0 {
		return true, "no match in exclude patterns"
	}
	return true, "no path filters specified"
}
