// Package sources provides the inputs and the output storage of a registry
// build.
//
// Architecture:
//   - RefFetcher: discovers the branches and tags of a GitLab project, reads
//     composer.json at each ref and turns valid manifests into descriptors
//   - RefMemo: run-scoped memo of per-ref results keyed by project, ref name
//     and commit, so a manifest is fetched at most once per run
//   - StaticSource: the curated static package file, JSON with comments and
//     trailing commas allowed, validated against an embedded JSON schema
//   - StorageManager: atomic persistence of the packages.json index
//
// A RefFetcher never caches across runs; that is the job of the repository
// cache, which decides whether FetchRefs needs to run at all.
package sources
