package sources

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/tailscale/hujson"

	"github.com/stacklok/gitlab-composer-registry/internal/registry"
)

// StaticSchemaURL identifies the embedded static package schema
const StaticSchemaURL = "https://github.com/stacklok/gitlab-composer-registry/static-packages.schema.json"

//go:embed schema/static-packages.schema.json
var staticSchema []byte

// StaticSource reads the curated static package file
type StaticSource struct {
	path   string
	schema *jsonschema.Schema
}

// NewStaticSource creates a source for the file at path. An empty path
// disables static packages.
func NewStaticSource(path string) (*StaticSource, error) {
	schema, err := compileStaticSchema()
	if err != nil {
		return nil, err
	}
	return &StaticSource{path: path, schema: schema}, nil
}

func compileStaticSchema() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(staticSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to parse static package schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(StaticSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("failed to load static package schema: %w", err)
	}
	schema, err := c.Compile(StaticSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("failed to compile static package schema: %w", err)
	}
	return schema, nil
}

// Path returns the configured file path
func (s *StaticSource) Path() string {
	return s.path
}

// ModTime returns the file's modification time and whether it exists
func (s *StaticSource) ModTime() (time.Time, bool, error) {
	if s.path == "" {
		return time.Time{}, false, nil
	}
	info, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("failed to stat static file %s: %w", s.path, err)
	}
	return info.ModTime(), true, nil
}

// Load reads and validates the static packages. The boolean is false when the
// file does not exist, which is not an error.
func (s *StaticSource) Load(_ context.Context) (registry.Packages, bool, error) {
	if s.path == "" {
		return nil, false, nil
	}
	//nolint:gosec // File path comes from user configuration, this is expected behavior
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read static file %s: %w", s.path, err)
	}

	pkgs, err := s.Parse(data)
	if err != nil {
		return nil, false, fmt.Errorf("invalid static file %s: %w", s.path, err)
	}
	return pkgs, true, nil
}

// Parse validates and decodes static file content
func (s *StaticSource) Parse(data []byte) (registry.Packages, error) {
	standard, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse: %w", err)
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(standard))
	if err != nil {
		return nil, fmt.Errorf("failed to parse: %w", err)
	}
	if err := s.schema.Validate(inst); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	return registry.ParsePackages(standard)
}
