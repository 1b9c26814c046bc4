// Package filtering narrows the set of enumerated GitLab projects before they
// are mirrored.
//
// Projects can be selected by path and by topic, each with include and
// exclude rules. Exclude rules take precedence over include rules.
//
// # Path Filtering
//
// Path filtering matches glob patterns against path_with_namespace. A '*'
// matches across slashes, so "acme/*" covers nested subgroups too:
//
//   - "acme/*" matches "acme/lib" and "acme/tools/cli"
//   - "*-sandbox" matches "team/php-sandbox"
//   - "acme/lib?" matches "acme/lib1" but not "acme/library"
//
// # Topic Filtering
//
// Topic filtering uses exact string matching against the project's GitLab
// topics. A project is included if any of its topics is in the include list,
// and excluded if any of its topics is in the exclude list.
//
// # Filtering Logic
//
// Both filters follow the same precedence rules:
//
//  1. If exclude rules are specified and match -> exclude (precedence)
//  2. If include rules are specified and match -> include
//  3. If include rules are specified but no match -> exclude
//  4. If only exclude rules are specified and no match -> include
//  5. If no rules are specified -> include
//
// A project must pass BOTH path and topic filtering to be mirrored.
//
// # Usage Example
//
//	filter, err := NewProjectFilter(Rules{
//		PathInclude:  []string{"acme/*"},
//		PathExclude:  []string{"*-sandbox"},
//		TopicExclude: []string{"archived"},
//	})
//	mirrored := filter.Apply(projects)
package filtering
