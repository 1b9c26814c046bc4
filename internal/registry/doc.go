// Package registry provides the Composer registry data model and the merge
// rules used to assemble the served packages.json index.
//
// The index is a mapping of package name to PackageEntry, and each
// PackageEntry maps a version string to a Descriptor:
//
//	{
//	  "packages": {
//	    "acme/lib": {
//	      "1.2.0":     { "name": "acme/lib", "version": "1.2.0", "source": {...} },
//	      "dev-1.2.0": { "name": "acme/lib", "version": "dev-1.2.0", "source": {...} },
//	      "dev-main":  { "name": "acme/lib", "version": "dev-main", "source": {...} }
//	    }
//	  }
//	}
//
// # Descriptors
//
// A Descriptor keeps every manifest field as raw JSON so that fields the
// registry does not interpret (require, autoload, extra, ...) are served back
// byte for byte. Only the handful of keys the registry owns (version, source)
// are rewritten.
//
// # Static overrides
//
// MergeStatic applies a curated package set on top of the dynamically
// discovered one. A static PackageEntry replaces a dynamic entry of the same
// name wholesale, and each of its versions is tagged with a provenance marker
// in extra:
//
//	"extra": { "_source": "static" }
//
// If extra already carries a "_source" key the marker key is prefixed with
// additional underscores until it is unused ("__source", "___source", ...).
//
// # Test Utilities
//
// NewTestDescriptor and NewTestPackages build fixtures with the options
// pattern:
//
//	pkgs := registry.NewTestPackages(
//	    registry.WithPackage("acme/lib",
//	        registry.NewTestDescriptor("acme/lib", "1.0.0",
//	            registry.WithSource("git@gitlab.example.com:acme/lib.git", "abc123"),
//	            registry.WithField("type", "library"),
//	        ),
//	    ),
//	)
package registry
