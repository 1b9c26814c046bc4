package composer

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/stacklok/gitlab-composer-registry/internal/registry"
)

// ManifestFile is the manifest path read at every ref
const ManifestFile = "composer.json"

// TypeProject is the package type hidden by Policy.HideProjects
const TypeProject = "project"

var (
	// ErrRejected is the parent of every manifest rejection. A rejected ref
	// contributes nothing and is not a failure.
	ErrRejected = errors.New("manifest rejected")

	// ErrNoManifest means the manifest is absent or not a JSON object
	ErrNoManifest = fmt.Errorf("%w: no manifest", ErrRejected)
	// ErrProjectHidden means the manifest declares type "project" and projects are hidden
	ErrProjectHidden = fmt.Errorf("%w: project type hidden", ErrRejected)
	// ErrMissingName means the manifest declares no usable name
	ErrMissingName = fmt.Errorf("%w: missing name", ErrRejected)
	// ErrNameMismatch means the declared name differs from the repository path
	ErrNameMismatch = fmt.Errorf("%w: name does not match repository path", ErrRejected)
)

// Manifest is a decoded composer.json with every field kept as raw JSON
type Manifest map[string]json.RawMessage

// Name returns the declared package name
func (m Manifest) Name() string {
	return registry.Descriptor(m).Name()
}

// Type returns the declared package type
func (m Manifest) Type() string {
	var t string
	if raw, ok := m[registry.FieldType]; ok {
		_ = json.Unmarshal(raw, &t)
	}
	return t
}

// ValidateManifest parses a composer.json blob read from the repository at
// pathWithNamespace and applies the policy. Rejections wrap ErrRejected.
func ValidateManifest(data []byte, pathWithNamespace string, policy Policy) (Manifest, error) {
	if len(data) == 0 || !gjson.ValidBytes(data) {
		return nil, ErrNoManifest
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return nil, ErrNoManifest
	}

	if policy.HideProjects {
		if t := doc.Get(registry.FieldType); t.Type == gjson.String && t.Str == TypeProject {
			return nil, ErrProjectHidden
		}
	}

	name := doc.Get(registry.FieldName)
	if name.Type != gjson.String || name.Str == "" {
		return nil, ErrMissingName
	}
	if !policy.AllowNameMismatch && !strings.EqualFold(name.Str, pathWithNamespace) {
		return nil, ErrNameMismatch
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, ErrNoManifest
	}
	return m, nil
}

// IsRejected reports whether err is a manifest rejection
func IsRejected(err error) bool {
	return errors.Is(err, ErrRejected)
}
