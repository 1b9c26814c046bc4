package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/gitlab-composer-registry/internal/gitlab/gitlabtest"
	"github.com/stacklok/gitlab-composer-registry/internal/registry"
	"github.com/stacklok/gitlab-composer-registry/internal/sources"
	"github.com/stacklok/gitlab-composer-registry/internal/versions"
)

// execute runs the root command with args and returns its standard output
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// writeConfig writes a configuration pointing at srv and returns its path and cache directory
func writeConfig(t *testing.T, srv *gitlabtest.Server) (string, string) {
	t.Helper()
	root := t.TempDir()
	cacheDir := filepath.Join(root, "cache")
	content := fmt.Sprintf(`endpoint: %s
api_key: %s
cache_dir: %s
static_file: %s
requests_per_second: -1
`, srv.Endpoint(), gitlabtest.Token, cacheDir, filepath.Join(root, "static-repos.json"))

	path := filepath.Join(root, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(path, past, past))
	return path, cacheDir
}

func newLibraryServer(t *testing.T) *gitlabtest.Server {
	t.Helper()
	srv := gitlabtest.NewServer(t)
	manifest := []byte(`{"name": "acme/lib"}`)
	srv.AddProject(gitlabtest.NewProject(1, "acme/lib", time.Now().Add(-24*time.Hour)))
	srv.AddBranch(1, "main", "c1", manifest)
	srv.AddTag(1, "1.0.0", "c2", manifest)
	return srv
}

func TestVersionCommand(t *testing.T) {
	t.Parallel()

	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "composer-registry ")
	assert.Contains(t, out, versions.GetVersionInfo().GoVersion)

	out, err = execute(t, "version", "--format", "json")
	require.NoError(t, err)
	var info versions.VersionInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, versions.GetVersionInfo(), info)
}

func TestCommandsRequireConfig(t *testing.T) {
	t.Parallel()

	for _, sub := range []string{"build", "clear-cache", "config"} {
		t.Run(sub, func(t *testing.T) {
			t.Parallel()
			_, err := execute(t, sub)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "--config is required")

			_, err = execute(t, sub, "--config", filepath.Join(t.TempDir(), "missing.yaml"))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "configuration file not found")
		})
	}
}

func TestConfigCommand_RedactsAPIKey(t *testing.T) {
	t.Parallel()

	srv := gitlabtest.NewServer(t)
	path, _ := writeConfig(t, srv)

	out, err := execute(t, "config", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "endpoint: "+srv.Endpoint())
	assert.Contains(t, out, "REDACTED")
	assert.NotContains(t, out, gitlabtest.Token)
}

func TestBuildCommand(t *testing.T) {
	t.Parallel()

	srv := newLibraryServer(t)
	path, cacheDir := writeConfig(t, srv)

	out, err := execute(t, "build", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Index rebuilt (index-missing): 1 packages, 3 versions from 1 repositories, 0 skipped")

	data, err := os.ReadFile(filepath.Join(cacheDir, sources.IndexFileName))
	require.NoError(t, err)
	idx, err := registry.ParseIndex(data)
	require.NoError(t, err)
	require.Contains(t, idx.Packages, "acme/lib")
	assert.Equal(t, []string{"1.0.0", "dev-1.0.0", "dev-main"}, idx.Packages["acme/lib"].Versions())

	out, err = execute(t, "build", "--config", path)
	require.NoError(t, err)
	assert.Equal(t, "Index is up to date (1 repositories)\n", out)

	out, err = execute(t, "build", "--config", path, "--force")
	require.NoError(t, err)
	assert.Contains(t, out, "Index rebuilt (forced)")
}

func TestClearCacheCommand(t *testing.T) {
	t.Parallel()

	srv := newLibraryServer(t)
	path, cacheDir := writeConfig(t, srv)

	_, err := execute(t, "build", "--config", path)
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(cacheDir, sources.IndexFileName))

	out, err := execute(t, "clear-cache", "--config", path)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("Cache %s cleared\n", cacheDir), out)
	assert.NoFileExists(t, filepath.Join(cacheDir, sources.IndexFileName))
}

func TestServeCommand_InvalidAddress(t *testing.T) {
	t.Parallel()

	srv := gitlabtest.NewServer(t)
	path, _ := writeConfig(t, srv)

	_, err := execute(t, "serve", "--config", path, "--address", "not-an-address")
	require.Error(t, err)
}
