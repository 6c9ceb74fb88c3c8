// Package release turns a change set into a release plan and applies it
// to the workspace manifests.
//
// Planning is pure with respect to the filesystem: [Resolver.Plan] reads
// manifests, decides every unit's bump and computes the full set of
// format-preserving edits in memory. Nothing is written until [Apply],
// which writes the edits as one all-or-nothing unit and restores every
// touched file if any write fails.
//
// # Bumps
//
// Each changed release unit gets one bump, from (in order) an explicit
// custom version, an explicit bump keyword, or the [BumpChooser]. Units
// changed only through dependency propagation are asked like any other.
// All members of a unit receive the same new version.
//
// # Constraint Rewrites
//
// After versions are decided every manifest in the workspace is scanned,
// including excluded and private packages and the root
// [workspace.dependencies] table. Each dependency requirement pointing at
// a bumped package is rewritten to the new version: a caret range by
// default, an `=` pin with Options.Exact.
//
// # Renames
//
// [PlanRename] stages the same kind of edits for renaming packages: the
// [package] name of each renamed package and a `package = "..."` key on
// every dependency entry pointing at one. [ApplyRename] writes them with
// the guarantees of [Apply].
package release
