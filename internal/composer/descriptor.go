package composer

import (
	"fmt"
	"strings"

	"github.com/stacklok/gitlab-composer-registry/internal/gitlab"
	"github.com/stacklok/gitlab-composer-registry/internal/registry"
)

// SourceURL returns the checkout URL of a project for the policy's method.
// With the ssh method and a configured port the URL takes the explicit
// ssh://<user@host>:<port>/<path_with_namespace> form.
func SourceURL(project gitlab.Project, policy Policy) string {
	if policy.Normalized().Method == MethodHTTP {
		return project.HTTPURLToRepo
	}
	if policy.Port == "" {
		return project.SSHURLToRepo
	}
	host, _, _ := strings.Cut(project.SSHURLToRepo, ":")
	return "ssh://" + host + ":" + policy.Port + "/" + project.PathWithNamespace
}

// BuildDescriptor assembles the descriptor of one ref: the manifest fields,
// the resolved version and a git source pointing at the ref's commit.
func BuildDescriptor(
	project gitlab.Project,
	ref gitlab.Ref,
	manifest Manifest,
	version string,
	policy Policy,
) (registry.Descriptor, error) {
	d := registry.Descriptor(manifest).Clone()
	if d == nil {
		d = registry.Descriptor{}
	}

	if err := d.Set(registry.FieldVersion, version); err != nil {
		return nil, err
	}
	src := registry.Source{
		URL:       SourceURL(project, policy),
		Type:      registry.SourceTypeGit,
		Reference: ref.Commit.ID,
	}
	if err := d.Set(registry.FieldSource, src); err != nil {
		return nil, fmt.Errorf("failed to build source for %s@%s: %w", project.PathWithNamespace, ref.Name, err)
	}
	return d, nil
}
