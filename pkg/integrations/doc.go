// Package integrations provides the shared HTTP client used to talk to
// package registries.
//
// [Client] wraps an [http.Client] with default headers, retries of
// transient failures through [httputil.Retry], and response caching in a
// [cache.Cache]. Registry-specific clients live in subpackages:
//
//   - [crates]: the crates.io sparse index and `cargo publish`
//
// [crates]: github.com/matzehuels/cratestack/pkg/integrations/crates
// [httputil.Retry]: github.com/matzehuels/cratestack/pkg/httputil.Retry
// [cache.Cache]: github.com/matzehuels/cratestack/pkg/cache.Cache
package integrations
