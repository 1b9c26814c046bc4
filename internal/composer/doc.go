// Package composer holds the pure rules that turn a repository ref and its
// composer.json into a registry descriptor: manifest validation, version
// resolution, release aliasing and source URL assembly.
//
// Nothing in this package performs I/O. Policy flags are passed explicitly as
// a Policy value so different policies can be exercised side by side.
package composer
