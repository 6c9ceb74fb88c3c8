// Package observability provides hooks for metrics and tracing.
//
// This package enables optional instrumentation without adding hard
// dependencies on specific observability backends. Consumers register hooks
// at startup to receive events about release planning, publishing, cache
// operations and registry calls. [Metrics] is the bundled Prometheus
// implementation.
//
// # Architecture
//
// The package uses a simple hooks pattern:
//   - Define hook interfaces for different event categories
//   - Provide no-op default implementations
//   - Allow registration of custom implementations at startup
//
// # Usage
//
// Register hooks at application startup:
//
//	func main() {
//	    m := observability.NewMetrics()
//	    m.Register()
//	    defer m.WriteTextfile("/var/lib/node_exporter/cratestack.prom")
//	    // ... run application
//	}
//
// Libraries call hooks to emit events:
//
//	observability.Publish().OnPublishStart(ctx, name, version)
//	// ... cargo publish ...
//	observability.Publish().OnPublishComplete(ctx, name, version, duration, err)
package observability

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// Release Hooks
// =============================================================================

// ReleaseHooks receives events from version planning and VCS steps.
type ReleaseHooks interface {
	// OnPlanComplete fires once the release plan is computed.
	OnPlanComplete(ctx context.Context, units, packages int, duration time.Duration, err error)

	// OnManifestsWritten fires after the plan's edits were applied or
	// rolled back.
	OnManifestsWritten(ctx context.Context, files int, duration time.Duration, err error)

	// OnGitStep records a commit, tag or push.
	OnGitStep(ctx context.Context, step string, duration time.Duration, err error)
}

// =============================================================================
// Publish Hooks
// =============================================================================

// PublishHooks receives events from the publish scheduler.
type PublishHooks interface {
	OnPublishStart(ctx context.Context, name, version string)
	OnPublishComplete(ctx context.Context, name, version string, duration time.Duration, err error)

	// OnPublishSkipped records a package left alone, e.g. because it is
	// already visible in the registry.
	OnPublishSkipped(ctx context.Context, name, version, reason string)

	// OnVisibilityPoll records one registry index query.
	OnVisibilityPoll(ctx context.Context, name, version string, attempt int, visible bool)

	// OnVisibilityResult records the end of a visibility wait.
	OnVisibilityResult(ctx context.Context, name, version string, waited time.Duration, confirmed bool)
}

// =============================================================================
// Cache Hooks
// =============================================================================

// CacheHooks receives events from cache operations.
type CacheHooks interface {
	// OnCacheHit records a cache hit.
	OnCacheHit(ctx context.Context, keyType string)

	// OnCacheMiss records a cache miss.
	OnCacheMiss(ctx context.Context, keyType string)

	// OnCacheSet records a cache write.
	OnCacheSet(ctx context.Context, keyType string, size int)
}

// =============================================================================
// HTTP Hooks
// =============================================================================

// HTTPHooks receives events from HTTP client operations.
type HTTPHooks interface {
	// OnRequest records an outgoing HTTP request.
	OnRequest(ctx context.Context, method, host, path string)

	// OnResponse records an HTTP response.
	OnResponse(ctx context.Context, method, host, path string, statusCode int, duration time.Duration)

	// OnError records an HTTP error (network failure, timeout).
	OnError(ctx context.Context, method, host, path string, err error)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopReleaseHooks is a no-op implementation of ReleaseHooks.
type NoopReleaseHooks struct{}

func (NoopReleaseHooks) OnPlanComplete(context.Context, int, int, time.Duration, error) {}
func (NoopReleaseHooks) OnManifestsWritten(context.Context, int, time.Duration, error)  {}
func (NoopReleaseHooks) OnGitStep(context.Context, string, time.Duration, error)        {}

// NoopPublishHooks is a no-op implementation of PublishHooks.
type NoopPublishHooks struct{}

func (NoopPublishHooks) OnPublishStart(context.Context, string, string) {}
func (NoopPublishHooks) OnPublishComplete(context.Context, string, string, time.Duration, error) {
}
func (NoopPublishHooks) OnPublishSkipped(context.Context, string, string, string)                {}
func (NoopPublishHooks) OnVisibilityPoll(context.Context, string, string, int, bool)             {}
func (NoopPublishHooks) OnVisibilityResult(context.Context, string, string, time.Duration, bool) {}

// NoopCacheHooks is a no-op implementation of CacheHooks.
type NoopCacheHooks struct{}

func (NoopCacheHooks) OnCacheHit(context.Context, string)      {}
func (NoopCacheHooks) OnCacheMiss(context.Context, string)     {}
func (NoopCacheHooks) OnCacheSet(context.Context, string, int) {}

// NoopHTTPHooks is a no-op implementation of HTTPHooks.
type NoopHTTPHooks struct{}

func (NoopHTTPHooks) OnRequest(context.Context, string, string, string)                      {}
func (NoopHTTPHooks) OnResponse(context.Context, string, string, string, int, time.Duration) {}
func (NoopHTTPHooks) OnError(context.Context, string, string, string, error)                 {}

// =============================================================================
// Global Hook Registry
// =============================================================================

var (
	releaseHooks ReleaseHooks = NoopReleaseHooks{}
	publishHooks PublishHooks = NoopPublishHooks{}
	cacheHooks   CacheHooks   = NoopCacheHooks{}
	httpHooks    HTTPHooks    = NoopHTTPHooks{}
	hooksMu      sync.RWMutex
)

// SetReleaseHooks registers custom release hooks.
// This should be called once at application startup.
func SetReleaseHooks(h ReleaseHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		releaseHooks = h
	}
}

// SetPublishHooks registers custom publish hooks.
// This should be called once at application startup.
func SetPublishHooks(h PublishHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		publishHooks = h
	}
}

// SetCacheHooks registers custom cache hooks.
// This should be called once at application startup before any cache operations.
func SetCacheHooks(h CacheHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		cacheHooks = h
	}
}

// SetHTTPHooks registers custom HTTP hooks.
// This should be called once at application startup before any HTTP operations.
func SetHTTPHooks(h HTTPHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		httpHooks = h
	}
}

// Release returns the registered release hooks.
func Release() ReleaseHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return releaseHooks
}

// Publish returns the registered publish hooks.
func Publish() PublishHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return publishHooks
}

// Cache returns the registered cache hooks.
func Cache() CacheHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return cacheHooks
}

// HTTP returns the registered HTTP hooks.
func HTTP() HTTPHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return httpHooks
}

// Reset restores all hooks to their no-op defaults.
// This is primarily useful for testing.
func Reset() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	releaseHooks = NoopReleaseHooks{}
	publishHooks = NoopPublishHooks{}
	cacheHooks = NoopCacheHooks{}
	httpHooks = NoopHTTPHooks{}
}
