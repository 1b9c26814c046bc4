// Package integration provides integration tests for the GitLab Composer registry.
// These tests run the complete server against an in-memory GitLab and validate
// index building, request-driven and background rebuilds, and static packages.
package integration
