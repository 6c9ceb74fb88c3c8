package changes

import (
	"context"
	"errors"
	"math/rand"
	"reflect"
	"sort"
	"testing"

	"github.com/Masterminds/semver/v3"

	"github.com/matzehuels/cratestack/pkg/dag"
	cserrors "github.com/matzehuels/cratestack/pkg/errors"
	"github.com/matzehuels/cratestack/pkg/manifest"
	"github.com/matzehuels/cratestack/pkg/workspace"
)

func pathDep(member string) workspace.Dependency {
	return workspace.Dependency{
		Dependency: manifest.Dependency{Key: member, Name: member, Path: "../" + member, Req: "0.1.0", Kind: manifest.KindNormal},
		Member:     member,
	}
}

// scenario: independent A, fixed B and C where C depends on B, plus D
// depending on C and an unrelated E.
func scenario(t *testing.T) (*workspace.Workspace, *dag.DAG) {
	t.Helper()
	mk := func(name string, deps ...string) *workspace.Package {
		p := &workspace.Package{Name: name, RelPath: "crates/" + name, Version: semver.MustParse("0.1.0")}
		for _, d := range deps {
			p.Dependencies = append(p.Dependencies, pathDep(d))
		}
		return p
	}
	a := mk("a")
	a.Config.Independent = true
	ws, err := workspace.New("/ws", []*workspace.Package{
		a, mk("b"), mk("c", "b"), mk("d", "c"), mk("e"),
	}, workspace.Config{}, workspace.LoadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	g, err := workspace.BuildGraph(ws, workspace.GraphOptions{})
	if err != nil {
		t.Fatal(err)
	}
	return ws, g
}

func refs(ws *workspace.Workspace, ref string) map[string]string {
	m := map[string]string{}
	for _, name := range ws.SortedNames() {
		m[name] = ref
	}
	return m
}

func TestComputeScenario(t *testing.T) {
	ws, g := scenario(t)
	cs, err := Compute(ws, g, Input{
		Refs:  refs(ws, "v0.1.0"),
		Diffs: map[string][]string{"v0.1.0": {"crates/b/src/lib.rs", "README.md"}},
	})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	if got := cs.ChangedPackages(); !reflect.DeepEqual(got, []string{"b", "c", "d"}) {
		t.Errorf("changed = %v, want [b c d]", got)
	}
	if got := cs.Packages["b"]; got.Reason != ReasonDirect || !reflect.DeepEqual(got.Files, []string{"crates/b/src/lib.rs"}) {
		t.Errorf("b = %+v", got)
	}
	if got := cs.Packages["c"]; got.Reason != ReasonPropagated || got.From != "b" {
		t.Errorf("c = %+v", got)
	}
	if got := cs.Packages["d"]; got.Reason != ReasonPropagated || got.From != "c" {
		t.Errorf("d = %+v", got)
	}
	if got := cs.ChangedUnits(); !reflect.DeepEqual(got, []string{"default"}) {
		t.Errorf("changed units = %v", got)
	}
	if cs.Units["pkg:a"].Changed {
		t.Error("independent a must be unchanged")
	}
	if got := cs.Units["default"].Members; !reflect.DeepEqual(got, []string{"b", "c", "d"}) {
		t.Errorf("default members = %v", got)
	}
}

func TestComputeIgnoreAndForce(t *testing.T) {
	ws, g := scenario(t)
	tests := []struct {
		name   string
		ignore string
		force  string
		files  []string
		want   []string
	}{
		{"ignored by base name", "*.md", "", []string{"crates/b/README.md"}, nil},
		{"ignored by path", "crates/b/**", "", []string{"crates/b/src/lib.rs"}, nil},
		{"not ignored", "*.md", "", []string{"crates/e/src/lib.rs"}, []string{"e"}},
		{"forced by name", "", "a", nil, []string{"a"}},
		{"forced by path", "", "crates/c", nil, []string{"c", "d"}},
		{"force all", "", "*", nil, []string{"a", "b", "c", "d", "e"}},
		{"outside packages", "", "", []string{"docs/guide.md"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cs, err := Compute(ws, g, Input{
				Refs:   refs(ws, "v0.1.0"),
				Diffs:  map[string][]string{"v0.1.0": tt.files},
				Ignore: tt.ignore,
				Force:  tt.force,
			})
			if err != nil {
				t.Fatal(err)
			}
			got := cs.ChangedPackages()
			if len(got) == 0 {
				got = nil
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("changed = %v, want %v", got, tt.want)
			}
		})
	}

	if c, _ := Compute(ws, g, Input{Refs: refs(ws, "x"), Force: "c"}); c.Packages["c"].Reason != ReasonForced {
		t.Errorf("c reason = %v", c.Packages["c"].Reason)
	}
	if _, err := Compute(ws, g, Input{Refs: refs(ws, "x"), Ignore: "[unterminated"}); !cserrors.Is(err, cserrors.ErrCodeInvalidInput) {
		t.Errorf("bad glob error = %v", err)
	}
}

func TestComputeNeverReleased(t *testing.T) {
	ws, g := scenario(t)
	r := refs(ws, "v0.1.0")
	r["a"] = ""
	cs, err := Compute(ws, g, Input{Refs: r, Diffs: map[string][]string{"v0.1.0": nil}})
	if err != nil {
		t.Fatal(err)
	}
	if got := cs.ChangedPackages(); !reflect.DeepEqual(got, []string{"a"}) {
		t.Errorf("changed = %v", got)
	}
	if !cs.Packages["a"].NeverReleased {
		t.Error("a should be marked never released")
	}
}

// Files only count against the owner's own reference point.
func TestComputePerUnitReference(t *testing.T) {
	ws, g := scenario(t)
	r := refs(ws, "v0.1.0")
	r["a"] = "a@0.1.0"
	cs, err := Compute(ws, g, Input{
		Refs: r,
		Diffs: map[string][]string{
			"v0.1.0":  {"crates/e/lib.rs"},
			"a@0.1.0": {"crates/b/lib.rs"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := cs.ChangedPackages(); !reflect.DeepEqual(got, []string{"e"}) {
		t.Errorf("changed = %v, want [e]", got)
	}
}

func TestComputeMonotonic(t *testing.T) {
	ws, g := scenario(t)
	universe := []string{
		"crates/a/src/lib.rs", "crates/b/src/lib.rs", "crates/c/Cargo.toml",
		"crates/d/build.rs", "crates/e/README.md", "docs/index.md",
	}
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		var small, large []string
		for _, f := range universe {
			switch rng.Intn(3) {
			case 0:
				small = append(small, f)
				large = append(large, f)
			case 1:
				large = append(large, f)
			}
		}
		cs1, err := Compute(ws, g, Input{Refs: refs(ws, "r"), Diffs: map[string][]string{"r": small}})
		if err != nil {
			t.Fatal(err)
		}
		cs2, err := Compute(ws, g, Input{Refs: refs(ws, "r"), Diffs: map[string][]string{"r": large}})
		if err != nil {
			t.Fatal(err)
		}
		for _, name := range cs1.ChangedPackages() {
			if !cs2.Changed(name) {
				t.Fatalf("%s changed for %v but not for superset %v", name, small, large)
			}
		}
	}
}

type fakeVCS struct {
	tags    map[string]string // first pattern → tag
	any     string
	diffs   map[string][]string
	diffed  []string
	matched [][]string
}

func (f *fakeVCS) LatestTag(_ context.Context, patterns []string, firstParent bool) (string, error) {
	f.matched = append(f.matched, patterns)
	if len(patterns) == 0 {
		return f.any, nil
	}
	return f.tags[patterns[0]], nil
}

func (f *fakeVCS) ChangedFiles(_ context.Context, ref string) ([]string, error) {
	f.diffed = append(f.diffed, ref)
	return f.diffs[ref], nil
}

func TestDetect(t *testing.T) {
	ws, g := scenario(t)
	vcs := &fakeVCS{
		tags: map[string]string{
			"v[0-9]*":  "v0.1.0",
			"a@[0-9]*": "a@0.1.0",
		},
		diffs: map[string][]string{
			"v0.1.0":  {"crates/b/src/lib.rs"},
			"a@0.1.0": {},
		},
	}
	cs, err := (&Detector{VCS: vcs}).Detect(context.Background(), ws, g, Options{TagPrefix: "v"})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if got := cs.ChangedPackages(); !reflect.DeepEqual(got, []string{"b", "c", "d"}) {
		t.Errorf("changed = %v", got)
	}
	sort.Strings(vcs.diffed)
	if !reflect.DeepEqual(vcs.diffed, []string{"a@0.1.0", "v0.1.0"}) {
		t.Errorf("each reference should be diffed once, got %v", vcs.diffed)
	}
	if cs.Units["pkg:a"].Ref != "a@0.1.0" || cs.Units["default"].Ref != "v0.1.0" {
		t.Errorf("unit refs = %+v %+v", cs.Units["pkg:a"], cs.Units["default"])
	}
}

func TestDetectIdempotent(t *testing.T) {
	ws, g := scenario(t)
	vcs := &fakeVCS{
		tags:  map[string]string{"v[0-9]*": "v0.2.0", "a@[0-9]*": "a@0.1.0"},
		diffs: map[string][]string{},
	}
	d := &Detector{VCS: vcs}
	for i := 0; i < 2; i++ {
		cs, err := d.Detect(context.Background(), ws, g, Options{TagPrefix: "v"})
		if err != nil {
			t.Fatal(err)
		}
		if len(cs.ChangedUnits()) != 0 {
			t.Fatalf("run %d: changed units = %v, want none", i, cs.ChangedUnits())
		}
	}
}

func TestDetectFallbacks(t *testing.T) {
	ws, g := scenario(t)

	// a has no individual tag yet: fall back to the latest tag of any kind.
	vcs := &fakeVCS{
		tags:  map[string]string{"v[0-9]*": "v0.1.0"},
		any:   "v0.1.0",
		diffs: map[string][]string{"v0.1.0": {"crates/a/src/lib.rs"}},
	}
	cs, err := (&Detector{VCS: vcs}).Detect(context.Background(), ws, g, Options{TagPrefix: "v"})
	if err != nil {
		t.Fatal(err)
	}
	if got := cs.ChangedUnits(); !reflect.DeepEqual(got, []string{"pkg:a"}) {
		t.Errorf("changed units = %v", got)
	}

	// No tags at all: everything is new.
	cs, err = (&Detector{VCS: &fakeVCS{}}).Detect(context.Background(), ws, g, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if got := cs.ChangedPackages(); len(got) != 5 {
		t.Errorf("changed = %v, want all", got)
	}

	// Since overrides tag lookup.
	vcs = &fakeVCS{diffs: map[string][]string{"HEAD~3": {"crates/e/x.rs"}}}
	cs, err = (&Detector{VCS: vcs}).Detect(context.Background(), ws, g, Options{Since: "HEAD~3"})
	if err != nil {
		t.Fatal(err)
	}
	if len(vcs.matched) != 0 {
		t.Errorf("Since should skip tag lookup, got %v", vcs.matched)
	}
	if got := cs.ChangedPackages(); !reflect.DeepEqual(got, []string{"e"}) {
		t.Errorf("changed = %v", got)
	}
}

func TestDetectCancelled(t *testing.T) {
	ws, g := scenario(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := (&Detector{VCS: &fakeVCS{any: "v1"}}).Detect(ctx, ws, g, Options{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestTagPatterns(t *testing.T) {
	ws, _ := scenario(t)
	if got := TagPatterns(ws.Units["default"], "v", "%n@"); !reflect.DeepEqual(got, []string{"v[0-9]*"}) {
		t.Errorf("default patterns = %v", got)
	}
	if got := TagPatterns(ws.Units["pkg:a"], "v", "rel-%n-"); !reflect.DeepEqual(got, []string{"rel-a-[0-9]*"}) {
		t.Errorf("independent patterns = %v", got)
	}
}
