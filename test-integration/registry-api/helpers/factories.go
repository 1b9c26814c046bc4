// Package helpers provides fixtures for the registry integration tests
package helpers

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/onsi/gomega"

	"github.com/stacklok/gitlab-composer-registry/internal/gitlab/gitlabtest"
)

// Library describes a project published as a Composer package
type Library struct {
	ID    int64
	Path  string
	Tags  []string
	Group int64
}

// Manifest returns the composer.json content declaring name
func Manifest(name string) []byte {
	return fmt.Appendf(nil, `{"name": %q, "description": "Test package %s"}`, name, name)
}

// AddLibrary registers lib on srv with a main branch and one commit per tag
func AddLibrary(srv *gitlabtest.Server, lib Library, activity time.Time) {
	var groups []int64
	if lib.Group != 0 {
		groups = append(groups, lib.Group)
	}
	srv.AddProject(gitlabtest.NewProject(lib.ID, lib.Path, activity), groups...)
	srv.AddBranch(lib.ID, "main", fmt.Sprintf("%d-main", lib.ID), Manifest(lib.Path))
	for _, tag := range lib.Tags {
		AddTag(srv, lib, tag)
	}
}

// AddTag adds a tagged commit to lib
func AddTag(srv *gitlabtest.Server, lib Library, tag string) {
	srv.AddTag(lib.ID, tag, fmt.Sprintf("%d-%s", lib.ID, tag), Manifest(lib.Path))
}

// ConfigOptions holds optional settings for WriteConfigYAML
type ConfigOptions struct {
	Groups           []string
	RebuildOnRequest *bool
	RebuildInterval  string
	StaticFile       string
}

// WriteConfigYAML writes a configuration file for srv into dir and returns its path.
// The file's modification time is set in the past so that the first build
// is not attributed to a configuration change.
func WriteConfigYAML(dir string, srv *gitlabtest.Server, opts ConfigOptions) string {
	staticFile := opts.StaticFile
	if staticFile == "" {
		staticFile = filepath.Join(dir, "static-repos.json")
	}

	content := fmt.Sprintf(`endpoint: %s
api_key: %s
cache_dir: %s
static_file: %s
requests_per_second: -1
workers: 4
`, srv.Endpoint(), gitlabtest.Token, filepath.Join(dir, "cache"), staticFile)

	if len(opts.Groups) > 0 {
		content += "groups:\n"
		for _, g := range opts.Groups {
			content += fmt.Sprintf("  - %q\n", g)
		}
	}
	if opts.RebuildOnRequest != nil {
		content += fmt.Sprintf("rebuild_on_request: %t\n", *opts.RebuildOnRequest)
	}
	if opts.RebuildInterval != "" {
		content += fmt.Sprintf("rebuild_interval: %s\n", opts.RebuildInterval)
	}

	configPath := filepath.Join(dir, "config.yaml")
	err := os.WriteFile(configPath, []byte(content), 0600)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())

	past := time.Now().Add(-time.Hour)
	gomega.Expect(os.Chtimes(configPath, past, past)).To(gomega.Succeed())
	return configPath
}

// WriteStaticFile writes the static package file with the given modification time
func WriteStaticFile(path, content string, mtime time.Time) {
	gomega.Expect(os.WriteFile(path, []byte(content), 0600)).To(gomega.Succeed())
	gomega.Expect(os.Chtimes(path, mtime, mtime)).To(gomega.Succeed())
}
