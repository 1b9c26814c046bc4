package registry

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
)

// Descriptor is one emittable package version. Every manifest field is kept as
// raw JSON so unknown fields survive a decode/encode cycle unchanged.
type Descriptor map[string]json.RawMessage

// Source points a Composer client at the repository and revision of a version
type Source struct {
	URL       string `json:"url"`
	Type      string `json:"type"`
	Reference string `json:"reference"`
}

// PackageEntry maps a version string to its descriptor
type PackageEntry map[string]Descriptor

// Packages maps a package name to all of its known versions
type Packages map[string]PackageEntry

// Index is the document served as packages.json
type Index struct {
	Packages Packages `json:"packages"`
}

// Name returns the declared package name, or "" if absent or not a string
func (d Descriptor) Name() string {
	return d.stringField(FieldName)
}

// Version returns the descriptor version, or "" if absent or not a string
func (d Descriptor) Version() string {
	return d.stringField(FieldVersion)
}

// Source decodes the source pointer. The boolean is false when no valid
// source object is present.
func (d Descriptor) Source() (Source, bool) {
	raw, ok := d[FieldSource]
	if !ok {
		return Source{}, false
	}
	var src Source
	if err := json.Unmarshal(raw, &src); err != nil {
		return Source{}, false
	}
	return src, true
}

func (d Descriptor) stringField(key string) string {
	raw, ok := d[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// Set encodes value as JSON and stores it under key
func (d Descriptor) Set(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode descriptor field %q: %w", key, err)
	}
	d[key] = raw
	return nil
}

// Clone returns a shallow copy. The raw field values are shared, which is safe
// because they are never mutated in place.
func (d Descriptor) Clone() Descriptor {
	if d == nil {
		return nil
	}
	return maps.Clone(d)
}

// WithVersion returns a shallow copy of d with only the version rewritten
func (d Descriptor) WithVersion(version string) Descriptor {
	c := d.Clone()
	if c == nil {
		c = Descriptor{}
	}
	// A string always marshals
	c[FieldVersion], _ = json.Marshal(version)
	return c
}

// Versions returns the entry's version keys in sorted order
func (e PackageEntry) Versions() []string {
	return slices.Sorted(maps.Keys(e))
}

// Names returns the package names in sorted order
func (p Packages) Names() []string {
	return slices.Sorted(maps.Keys(p))
}

// VersionCount returns the total number of versions across all packages
func (p Packages) VersionCount() int {
	n := 0
	for _, entry := range p {
		n += len(entry)
	}
	return n
}

// ParseIndex decodes a packages.json document
func ParseIndex(data []byte) (*Index, error) {
	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("failed to parse registry index: %w", err)
	}
	if idx.Packages == nil {
		idx.Packages = Packages{}
	}
	return &idx, nil
}

// ParsePackages decodes a document shaped like the index packages map
func ParsePackages(data []byte) (Packages, error) {
	var pkgs Packages
	if err := json.Unmarshal(data, &pkgs); err != nil {
		return nil, fmt.Errorf("failed to parse packages: %w", err)
	}
	if pkgs == nil {
		pkgs = Packages{}
	}
	return pkgs, nil
}

// Marshal encodes the index. A nil packages map is emitted as an empty object.
func (idx *Index) Marshal() ([]byte, error) {
	out := Index{Packages: idx.Packages}
	if out.Packages == nil {
		out.Packages = Packages{}
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to encode registry index: %w", err)
	}
	return data, nil
}
