// Package crates talks to a Cargo registry: it reads the sparse index to
// learn whether a crate version is visible and runs `cargo publish` to
// upload one.
//
// # Sparse Index
//
// [Index] fetches `<index>/<prefix>/<name>` where the prefix follows
// Cargo's layout: `1/`, `2/`, `3/<c>/` for short names and `<ab>/<cd>/`
// otherwise, all lowercase. Each line of the response is one published
// version. A 404 means the crate has never been published. Positive
// answers are cached permanently since published versions never
// disappear from the index.
//
// # Publishing
//
// [Publisher] shells out to cargo through [process.Executor]. A non-zero
// exit is a PUBLISH_ERROR carrying cargo's stderr.
//
// [process.Executor]: github.com/matzehuels/cratestack/pkg/process.Executor
package crates
