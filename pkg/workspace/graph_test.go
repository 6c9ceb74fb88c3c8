package workspace

import (
	"errors"
	"reflect"
	"testing"

	"github.com/matzehuels/cratestack/pkg/dag"
	cserrors "github.com/matzehuels/cratestack/pkg/errors"
	"github.com/matzehuels/cratestack/pkg/manifest"
)

func withDeps(p *Package, deps ...Dependency) *Package {
	p.Dependencies = deps
	return p
}

func dep(member string, kind manifest.Kind) Dependency {
	return Dependency{Dependency: manifest.Dependency{Key: member, Name: member, Path: "../" + member, Kind: kind}, Member: member}
}

func TestBuildGraph(t *testing.T) {
	ws, err := New("/ws", []*Package{
		withDeps(pkg("a", "a", "1.0.0"), dep("b", manifest.KindNormal), dep("t", manifest.KindDev)),
		withDeps(pkg("b", "b", "1.0.0"), dep("c", manifest.KindBuild)),
		pkg("c", "c", "1.0.0"),
		withDeps(pkg("t", "t", "1.0.0"), dep("a", manifest.KindNormal)),
		withDeps(pkg("r", "r", "1.0.0"), Dependency{Dependency: manifest.Dependency{Key: "serde", Name: "serde", Req: "1", Kind: manifest.KindNormal}}),
	}, Config{}, LoadOptions{})
	if err != nil {
		t.Fatal(err)
	}

	g, err := BuildGraph(ws, GraphOptions{})
	if err != nil {
		t.Fatalf("BuildGraph: %v", err)
	}
	want := []dag.Edge{{From: "a", To: "b"}, {From: "b", To: "c"}, {From: "t", To: "a"}}
	if got := g.Edges(); !reflect.DeepEqual(got, want) {
		t.Errorf("edges = %v, want %v", got, want)
	}
	if n, _ := g.Node("c"); n.Meta["version"] != "1.0.0" {
		t.Errorf("node meta = %v", n.Meta)
	}

	// a -dev-> t -> a is a cycle only when dev edges count.
	_, err = BuildGraph(ws, GraphOptions{IncludeDev: true})
	if !cserrors.Is(err, cserrors.ErrCodeGraph) {
		t.Fatalf("expected GRAPH_ERROR, got %v", err)
	}
	var ce *dag.CycleError
	if !errors.As(err, &ce) || !reflect.DeepEqual(ce.Path, []string{"a", "t", "a"}) {
		t.Errorf("cycle = %+v", ce)
	}

	if _, err := BuildGraph(ws, GraphOptions{IncludeDev: true, AllowCycles: true}); err != nil {
		t.Errorf("AllowCycles: %v", err)
	}
}
