package registry

const (
	// FieldName is the manifest key holding the package name
	FieldName = "name"
	// FieldType is the manifest key holding the package type
	FieldType = "type"
	// FieldVersion is the descriptor key holding the resolved version
	FieldVersion = "version"
	// FieldSource is the descriptor key holding the source pointer
	FieldSource = "source"
	// FieldExtra is the manifest key holding free-form extra metadata
	FieldExtra = "extra"

	// SourceTypeGit is the only source type emitted by the registry
	SourceTypeGit = "git"

	// StaticMarkerKey is the base key of the provenance marker injected into
	// the extra metadata of statically curated versions
	StaticMarkerKey = "_source"
	// StaticMarkerValue is the value of the provenance marker
	StaticMarkerValue = "static"

	// DevPrefix prefixes development versions and release aliases
	DevPrefix = "dev-"
)
