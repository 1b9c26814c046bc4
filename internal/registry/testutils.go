package registry

import (
	"encoding/json"
	"fmt"
)

// DescriptorOption configures a Descriptor for testing
type DescriptorOption func(Descriptor)

// PackagesOption configures a Packages set for testing
type PackagesOption func(Packages)

// NewTestDescriptor creates a descriptor with the given name and version and
// applies any provided options
func NewTestDescriptor(name, version string, opts ...DescriptorOption) Descriptor {
	d := Descriptor{}
	mustSet(d, FieldName, name)
	mustSet(d, FieldVersion, version)

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// WithField sets an arbitrary descriptor field
func WithField(key string, value any) DescriptorOption {
	return func(d Descriptor) {
		mustSet(d, key, value)
	}
}

// WithRawField sets a descriptor field to the given raw JSON
func WithRawField(key, raw string) DescriptorOption {
	return func(d Descriptor) {
		d[key] = json.RawMessage(raw)
	}
}

// WithSource sets a git source pointer
func WithSource(url, reference string) DescriptorOption {
	return func(d Descriptor) {
		mustSet(d, FieldSource, Source{URL: url, Type: SourceTypeGit, Reference: reference})
	}
}

// WithExtra sets the extra metadata object
func WithExtra(extra map[string]any) DescriptorOption {
	return func(d Descriptor) {
		mustSet(d, FieldExtra, extra)
	}
}

// NewTestPackages creates an empty package set and applies any provided options
func NewTestPackages(opts ...PackagesOption) Packages {
	p := Packages{}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// WithPackage adds a package whose versions are keyed by each descriptor's version
func WithPackage(name string, descriptors ...Descriptor) PackagesOption {
	return func(p Packages) {
		entry := PackageEntry{}
		for _, d := range descriptors {
			entry[d.Version()] = d
		}
		p[name] = entry
	}
}

// WithEmptyPackage adds a package with no versions
func WithEmptyPackage(name string) PackagesOption {
	return func(p Packages) {
		p[name] = PackageEntry{}
	}
}

func mustSet(d Descriptor, key string, value any) {
	if err := d.Set(key, value); err != nil {
		panic(fmt.Sprintf("test descriptor field %q: %v", key, err))
	}
}
