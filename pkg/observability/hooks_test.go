package observability

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNoopHooksDoNotPanic(t *testing.T) {
	ctx := context.Background()

	// Release hooks
	r := NoopReleaseHooks{}
	r.OnPlanComplete(ctx, 2, 5, time.Second, nil)
	r.OnManifestsWritten(ctx, 5, time.Millisecond, nil)
	r.OnGitStep(ctx, "commit", time.Millisecond, errors.New("boom"))

	// Publish hooks
	p := NoopPublishHooks{}
	p.OnPublishStart(ctx, "core", "0.2.0")
	p.OnPublishComplete(ctx, "core", "0.2.0", time.Second, nil)
	p.OnPublishSkipped(ctx, "core", "0.2.0", "already-published")
	p.OnVisibilityPoll(ctx, "core", "0.2.0", 1, false)
	p.OnVisibilityResult(ctx, "core", "0.2.0", time.Second, true)

	// Cache hooks
	c := NoopCacheHooks{}
	c.OnCacheHit(ctx, "index")
	c.OnCacheMiss(ctx, "index")
	c.OnCacheSet(ctx, "ledger", 1024)

	// HTTP hooks
	h := NoopHTTPHooks{}
	h.OnRequest(ctx, "GET", "index.crates.io", "/co/re/core")
	h.OnResponse(ctx, "GET", "index.crates.io", "/co/re/core", 200, time.Second)
	h.OnError(ctx, "GET", "index.crates.io", "/co/re/core", nil)
}

func TestGlobalHooksRegistry(t *testing.T) {
	// Reset to known state
	Reset()

	// Verify defaults are noop
	if _, ok := Release().(NoopReleaseHooks); !ok {
		t.Error("Release() should return NoopReleaseHooks by default")
	}
	if _, ok := Publish().(NoopPublishHooks); !ok {
		t.Error("Publish() should return NoopPublishHooks by default")
	}
	if _, ok := Cache().(NoopCacheHooks); !ok {
		t.Error("Cache() should return NoopCacheHooks by default")
	}
	if _, ok := HTTP().(NoopHTTPHooks); !ok {
		t.Error("HTTP() should return NoopHTTPHooks by default")
	}

	customRelease := &testReleaseHooks{}
	SetReleaseHooks(customRelease)
	if Release() != customRelease {
		t.Error("SetReleaseHooks should set custom hooks")
	}

	customPublish := &testPublishHooks{}
	SetPublishHooks(customPublish)
	if Publish() != customPublish {
		t.Error("SetPublishHooks should set custom hooks")
	}

	customCache := &testCacheHooks{}
	SetCacheHooks(customCache)
	if Cache() != customCache {
		t.Error("SetCacheHooks should set custom hooks")
	}

	customHTTP := &testHTTPHooks{}
	SetHTTPHooks(customHTTP)
	if HTTP() != customHTTP {
		t.Error("SetHTTPHooks should set custom hooks")
	}

	// Reset and verify
	Reset()
	if _, ok := Publish().(NoopPublishHooks); !ok {
		t.Error("Reset() should restore NoopPublishHooks")
	}
}

func TestSetNilHooksIsIgnored(t *testing.T) {
	Reset()

	custom := &testPublishHooks{}
	SetPublishHooks(custom)

	// Setting nil should be ignored
	SetPublishHooks(nil)

	if Publish() != custom {
		t.Error("SetPublishHooks(nil) should be ignored")
	}

	Reset()
}

// Test implementations
type testReleaseHooks struct{ NoopReleaseHooks }
type testPublishHooks struct{ NoopPublishHooks }
type testCacheHooks struct{ NoopCacheHooks }
type testHTTPHooks struct{ NoopHTTPHooks }
