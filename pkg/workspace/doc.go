// Package workspace models a Cargo workspace: its member packages, their
// grouping into release units, and the dependency graph between them.
//
// # Loading
//
// [Load] reads the root Cargo.toml, expands `workspace.members` globs,
// parses every member manifest and resolves path dependencies to sibling
// packages. Release configuration comes from the metadata tables:
//
//	[workspace.metadata.workspaces]
//	allow_branch = "main"
//	no_individual_tags = false
//	exclude = { members = ["examples/*"] }
//	group = [{ name = "utils", members = ["crates/util-*"] }]
//
//	[package.metadata.workspaces]
//	independent = true
//
// # Release Units
//
// Every package that is not excluded belongs to exactly one
// [ReleaseUnit]: its own `pkg:<name>` unit when independent, a
// `group:<name>` unit when matched by a declared group, and the shared
// `default` unit otherwise. All members of a unit release with one
// version; [ReleaseUnit.CurrentVersion] fails when they disagree.
//
// All invariant violations are reported as CONFIG_ERROR before any other
// component runs.
package workspace
