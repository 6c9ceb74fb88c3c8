package crates

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/matzehuels/cratestack/pkg/cache"
	cserrors "github.com/matzehuels/cratestack/pkg/errors"
	"github.com/matzehuels/cratestack/pkg/process"
	"github.com/matzehuels/cratestack/pkg/workspace"
)

func TestPath(t *testing.T) {
	tests := map[string]string{
		"a":     "1/a",
		"ab":    "2/ab",
		"abc":   "3/a/abc",
		"serde": "se/rd/serde",
		"Cargo": "ca/rg/cargo",
	}
	for name, want := range tests {
		if got := Path(name); got != want {
			t.Errorf("Path(%q) = %q, want %q", name, got, want)
		}
	}
}

// fakeIndex serves a sparse index from a map of crate name → lines.
func fakeIndex(t *testing.T, files map[string]string, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	serve := func(w http.ResponseWriter, req *http.Request) {
		hits.Add(1)
		name := chi.URLParam(req, "name")
		body, ok := files[name]
		if !ok {
			http.NotFound(w, req)
			return
		}
		if Path(name) != strings.TrimPrefix(req.URL.Path, "/") {
			t.Errorf("request for %s at %s", name, req.URL.Path)
		}
		w.Write([]byte(body))
	}
	r.Get("/{a}/{name}", serve)
	r.Get("/{a}/{b}/{name}", serve)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func newIndex(t *testing.T, srv *httptest.Server) *Index {
	t.Helper()
	c, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	idx := NewIndex(c, "sparse+"+srv.URL+"/")
	idx.SetHTTPClient(srv.Client())
	return idx
}

func TestIndexIsVisible(t *testing.T) {
	var hits atomic.Int32
	srv := fakeIndex(t, map[string]string{
		"serde": `{"name":"serde","vers":"1.0.0","yanked":false}
{"name":"serde","vers":"1.0.1","yanked":true}
`,
	}, &hits)
	idx := newIndex(t, srv)
	ctx := context.Background()

	tests := []struct {
		name, version string
		want          bool
	}{
		{"serde", "1.0.0", true},
		{"serde", "1.0.1", true},
		{"serde", "1.0.2", false},
		{"missing", "0.1.0", false},
	}
	for _, tt := range tests {
		got, err := idx.IsVisible(ctx, tt.name, tt.version)
		if err != nil {
			t.Fatalf("IsVisible(%s@%s): %v", tt.name, tt.version, err)
		}
		if got != tt.want {
			t.Errorf("IsVisible(%s@%s) = %v, want %v", tt.name, tt.version, got, tt.want)
		}
	}

	// Positive answers are cached, negative ones are asked again.
	before := hits.Load()
	if ok, _ := idx.IsVisible(ctx, "serde", "1.0.0"); !ok {
		t.Error("cached answer lost")
	}
	if hits.Load() != before {
		t.Error("positive answer not served from cache")
	}
	idx.IsVisible(ctx, "serde", "1.0.2")
	if hits.Load() != before+1 {
		t.Error("negative answer was cached")
	}

	if _, err := idx.IsVisible(ctx, "serde", "not-a-version"); err == nil {
		t.Error("bad version accepted")
	}
}

func TestIndexServerError(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Retry-After", "60")
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	idx := newIndex(t, srv)
	if _, err := idx.IsVisible(context.Background(), "serde", "1.0.0"); err == nil {
		t.Error("expected error")
	}
	// One request per poll; the waiter decides when to ask again.
	if n := hits.Load(); n != 1 {
		t.Errorf("requests = %d, want 1", n)
	}
}

type fakeRunner struct {
	got []process.Command
	res process.Result
	err error
}

func (f *fakeRunner) Run(_ context.Context, cmd process.Command) (process.Result, error) {
	f.got = append(f.got, cmd)
	return f.res, f.err
}

func TestPublisher(t *testing.T) {
	pkg := &workspace.Package{Name: "core", ManifestPath: "/ws/crates/core/Cargo.toml"}
	runner := &fakeRunner{}
	p := &Publisher{Runner: runner, Dir: "/ws", Options: PublishOptions{NoVerify: true, Registry: "internal", Token: "secret"}}

	if err := p.Publish(context.Background(), pkg); err != nil {
		t.Fatal(err)
	}
	want := "publish --no-verify --registry internal --token secret --manifest-path /ws/crates/core/Cargo.toml"
	if got := strings.Join(runner.got[0].Args, " "); got != want {
		t.Errorf("args = %q", got)
	}
	if runner.got[0].Name != "cargo" || runner.got[0].Dir != "/ws" {
		t.Errorf("command = %+v", runner.got[0])
	}

	runner.res = process.Result{ExitCode: 101, Stderr: "error: crate core@1.0.0 already exists\n"}
	err := p.Publish(context.Background(), pkg)
	if !cserrors.Is(err, cserrors.ErrCodePublish) || !strings.Contains(err.Error(), "already exists") {
		t.Errorf("err = %v", err)
	}

	runner.err = errors.New("cargo not found")
	if err := p.Publish(context.Background(), pkg); !cserrors.Is(err, cserrors.ErrCodePublish) {
		t.Errorf("err = %v", err)
	}
}
