// Package pkg provides the libraries behind cratestack, a release
// coordinator for Cargo workspaces.
//
// # Overview
//
// cratestack finds the crates of a workspace that changed since their last
// release, decides new versions per release unit, rewrites manifests,
// commits and tags the result, and publishes crates to the registry in
// dependency order. The pkg directory is organized into these areas:
//
//  1. [workspace], [manifest] - Loading members, groups and release units
//     from Cargo.toml files, and editing manifests without losing formatting
//  2. [dag] - The dependency graph with layering and cycle checks
//  3. [changes], [release], [semver] - Change detection and version planning
//  4. [vcs], [process] - Git operations over an injectable executor
//  5. [publish], [ledger], [integrations] - Publish scheduling, resumable
//     progress records and the registry clients
//  6. [pipeline] - Orchestration (detect → plan → apply → commit → publish → push)
//  7. [cache], [observability], [errors] - Shared infrastructure
//
// # Architecture
//
// The data flow of a release:
//
//	Cargo.toml files
//	       ↓
//	  [workspace] package (members, groups, release units)
//	       ↓
//	  [dag] package (dependency graph, publish layers)
//	       ↓
//	  [changes] package (changed packages since each unit's last tag)
//	       ↓
//	  [release] package (plan versions, rewrite manifests)
//	       ↓
//	  [vcs] package (commit, tag, push)
//	       ↓
//	  [publish] package (cargo publish, wait for index visibility)
//
// # Quick Start
//
// Plan a patch release of everything that changed:
//
//	import (
//	    "context"
//	    "github.com/matzehuels/cratestack/pkg/pipeline"
//	    "github.com/matzehuels/cratestack/pkg/semver"
//	)
//
//	opts := pipeline.Options{ManifestPath: "."}
//	opts.Release.Bump = semver.Patch
//
//	r := pipeline.NewRunner(nil)
//	result, err := r.Plan(context.Background(), opts)
//	if err != nil {
//	    return err
//	}
//	for _, name := range result.Plan.SortedPackages() {
//	    fmt.Println(name, result.Plan.Versions[name])
//	}
//
// # Thread Safety
//
// Loaded workspaces, graphs and plans are read-only after construction and
// can be shared between goroutines. The cache implementations are safe for
// concurrent use.
package pkg
