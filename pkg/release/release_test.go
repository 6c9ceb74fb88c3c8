package release

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Masterminds/semver/v3"

	"github.com/matzehuels/cratestack/internal/testutil"
	"github.com/matzehuels/cratestack/pkg/changes"
	"github.com/matzehuels/cratestack/pkg/errors"
	csemver "github.com/matzehuels/cratestack/pkg/semver"
	"github.com/matzehuels/cratestack/pkg/workspace"
)

const threeCrates = `[workspace]
members = ["crates/*"]
`

func load(t *testing.T, files map[string]string) *workspace.Workspace {
	t.Helper()
	root := testutil.Workspace(t, files)
	ws, err := workspace.Load(root, workspace.LoadOptions{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return ws
}

// changed marks the named packages changed and derives unit changes.
func changed(ws *workspace.Workspace, reasons map[string]changes.Reason) *changes.ChangeSet {
	cs := &changes.ChangeSet{
		Packages: make(map[string]*changes.PackageChange),
		Units:    make(map[string]*changes.UnitChange),
	}
	for name, r := range reasons {
		cs.Packages[name] = &changes.PackageChange{Name: name, Reason: r}
	}
	for key, u := range ws.Units {
		uc := &changes.UnitChange{Key: key}
		for _, name := range u.Names() {
			if cs.Changed(name) {
				uc.Members = append(uc.Members, name)
			}
		}
		uc.Changed = len(uc.Members) > 0
		cs.Units[key] = uc
	}
	return cs
}

func read(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestPlanAndApplyPropagatedFixedUnit(t *testing.T) {
	ws := load(t, map[string]string{
		"Cargo.toml":          threeCrates,
		"crates/a/Cargo.toml": "[package]\nname = \"a\"\nversion = \"1.0.0\"\n\n[package.metadata.workspaces]\nindependent = true\n",
		"crates/b/Cargo.toml": testutil.Crate("b", "0.1.0"),
		"crates/c/Cargo.toml": "[package]\nname = \"c\"\nversion = \"0.1.0\" # keep me\n\n[dependencies]\nb = { path = \"../b\", version = \"0.1.0\" }\n",
	})
	cs := changed(ws, map[string]changes.Reason{
		"b": changes.ReasonDirect,
		"c": changes.ReasonPropagated,
	})

	r := &Resolver{}
	plan, err := r.Plan(context.Background(), ws, cs, Options{Bump: csemver.Minor})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan.Units) != 1 || plan.Units[0].Key != workspace.DefaultUnitKey {
		t.Fatalf("units = %+v", plan.Units)
	}
	if got := plan.FixedVersion(); got == nil || got.String() != "0.2.0" {
		t.Errorf("FixedVersion = %v", got)
	}
	if _, ok := plan.Versions["a"]; ok {
		t.Error("unchanged independent package was bumped")
	}
	if len(plan.Edits) != 2 {
		t.Fatalf("edits = %v", plan.Touched())
	}

	// Planning writes nothing.
	cPath := ws.Packages["c"].ManifestPath
	if strings.Contains(read(t, cPath), "0.2.0") {
		t.Fatal("Plan wrote to disk")
	}

	if err := Apply(context.Background(), plan, nil); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	c := read(t, cPath)
	if !strings.Contains(c, "version = \"0.2.0\" # keep me") {
		t.Errorf("c manifest:\n%s", c)
	}
	if !strings.Contains(c, "b = { path = \"../b\", version = \"0.2.0\" }") {
		t.Errorf("c requirement not rewritten:\n%s", c)
	}
	if !strings.Contains(read(t, ws.Packages["b"].ManifestPath), "version = \"0.2.0\"") {
		t.Error("b not bumped")
	}
	if !strings.Contains(read(t, ws.Packages["a"].ManifestPath), "version = \"1.0.0\"") {
		t.Error("a changed")
	}

	if got := ws.Packages["c"].Version.String(); got != "0.2.0" {
		t.Errorf("in-memory c version = %s", got)
	}
	if got := ws.Packages["c"].Dependencies[0].Req; got != "0.2.0" {
		t.Errorf("in-memory c req = %s", got)
	}
}

func TestPlanSkewedGroupFailsBeforeWriting(t *testing.T) {
	ws := load(t, map[string]string{
		"Cargo.toml": threeCrates + `
[[workspace.metadata.workspaces.group]]
name = "utils"
members = ["crates/util-*"]
`,
		"crates/util-a/Cargo.toml": testutil.Crate("util-a", "1.0.0"),
		"crates/util-b/Cargo.toml": testutil.Crate("util-b", "1.1.0"),
		"crates/core/Cargo.toml":   testutil.Crate("core", "0.1.0"),
	})
	cs := changed(ws, map[string]changes.Reason{
		"core":   changes.ReasonDirect,
		"util-a": changes.ReasonDirect,
	})

	chooser := &recordingChooser{choice: Choice{Bump: csemver.Patch}}
	_, err := (&Resolver{Chooser: chooser}).Plan(context.Background(), ws, cs, Options{})
	if !errors.Is(err, errors.ErrCodeConfig) {
		t.Fatalf("err = %v, want CONFIG_ERROR", err)
	}
	if !strings.Contains(err.Error(), "util-a@1.0.0") || !strings.Contains(err.Error(), "util-b@1.1.0") {
		t.Errorf("error does not name the skewed members: %v", err)
	}
	if len(chooser.asked) != 0 {
		t.Errorf("chooser asked %v before skew was reported", chooser.asked)
	}
}

type recordingChooser struct {
	choice Choice
	err    error
	asked  []string
}

func (c *recordingChooser) Choose(_ context.Context, u *workspace.ReleaseUnit, _ *semver.Version, _ string) (Choice, error) {
	c.asked = append(c.asked, u.Key)
	return c.choice, c.err
}

func TestPlanAsksPerUnit(t *testing.T) {
	ws := load(t, map[string]string{
		"Cargo.toml":          threeCrates,
		"crates/a/Cargo.toml": "[package]\nname = \"a\"\nversion = \"1.0.0\"\n\n[package.metadata.workspaces]\nindependent = true\n",
		"crates/b/Cargo.toml": testutil.Crate("b", "0.1.0"),
	})
	cs := changed(ws, map[string]changes.Reason{"a": changes.ReasonDirect, "b": changes.ReasonDirect})

	chooser := &recordingChooser{choice: Choice{Bump: csemver.Major}}
	plan, err := (&Resolver{Chooser: chooser}).Plan(context.Background(), ws, cs, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(chooser.asked, ",") != "default,pkg:a" {
		t.Errorf("asked = %v", chooser.asked)
	}
	if plan.Versions["a"].String() != "2.0.0" || plan.Versions["b"].String() != "1.0.0" {
		t.Errorf("versions = %v", plan.Versions)
	}
}

func TestPlanAbortAndSkip(t *testing.T) {
	ws := load(t, map[string]string{
		"Cargo.toml":          threeCrates,
		"crates/b/Cargo.toml": testutil.Crate("b", "0.1.0"),
	})
	cs := changed(ws, map[string]changes.Reason{"b": changes.ReasonDirect})

	abort := &recordingChooser{err: errors.Aborted("version selection")}
	if _, err := (&Resolver{Chooser: abort}).Plan(context.Background(), ws, cs, Options{}); !errors.Is(err, errors.ErrCodeAbort) {
		t.Errorf("err = %v, want USER_ABORT", err)
	}

	plan, err := (&Resolver{}).Plan(context.Background(), ws, cs, Options{Bump: csemver.Skip})
	if err != nil {
		t.Fatal(err)
	}
	if !plan.Empty() || len(plan.Edits) != 0 || !plan.Units[0].Skipped() {
		t.Errorf("skip plan = %+v", plan)
	}
}

func TestPlanNoChooser(t *testing.T) {
	ws := load(t, map[string]string{
		"Cargo.toml":          threeCrates,
		"crates/b/Cargo.toml": testutil.Crate("b", "0.1.0"),
	})
	cs := changed(ws, map[string]changes.Reason{"b": changes.ReasonDirect})
	if _, err := (&Resolver{}).Plan(context.Background(), ws, cs, Options{}); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("err = %v", err)
	}
}

func TestPlanCustomAndExact(t *testing.T) {
	ws := load(t, map[string]string{
		"Cargo.toml":          threeCrates,
		"crates/b/Cargo.toml": testutil.Crate("b", "0.1.0"),
		"crates/c/Cargo.toml": "[package]\nname = \"c\"\nversion = \"3.0.0\"\n\n[package.metadata.workspaces]\nindependent = true\n\n[dev-dependencies.b]\npath = \"../b\"\nversion = \"^0.1\"\n",
	})
	cs := changed(ws, map[string]changes.Reason{"b": changes.ReasonDirect})

	plan, err := (&Resolver{}).Plan(context.Background(), ws, cs, Options{Custom: "0.3.0-rc.1", Exact: true})
	if err != nil {
		t.Fatal(err)
	}
	if err := Apply(context.Background(), plan, nil); err != nil {
		t.Fatal(err)
	}
	c := read(t, ws.Packages["c"].ManifestPath)
	if !strings.Contains(c, "version = \"=0.3.0-rc.1\"") {
		t.Errorf("c:\n%s", c)
	}
	if !strings.Contains(c, "version = \"3.0.0\"") {
		t.Error("c's own version changed")
	}

	if _, err := (&Resolver{}).Plan(context.Background(), ws, cs, Options{Custom: "0.0.1"}); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("lower custom version: err = %v", err)
	}
}

func TestPlanInheritedVersion(t *testing.T) {
	ws := load(t, map[string]string{
		"Cargo.toml": `[workspace]
members = ["crates/*"]

[workspace.package]
version = "0.4.0"

[workspace.dependencies]
core = { path = "crates/core", version = "0.4.0" }
`,
		"crates/core/Cargo.toml": "[package]\nname = \"core\"\nversion.workspace = true\n",
		"crates/app/Cargo.toml":  "[package]\nname = \"app\"\nversion.workspace = true\n\n[dependencies]\ncore = { workspace = true }\n",
	})
	cs := changed(ws, map[string]changes.Reason{"core": changes.ReasonDirect, "app": changes.ReasonPropagated})

	plan, err := (&Resolver{}).Plan(context.Background(), ws, cs, Options{Bump: csemver.Patch})
	if err != nil {
		t.Fatal(err)
	}
	if got := plan.Touched(); len(got) != 1 || filepath.Base(got[0]) != "Cargo.toml" || got[0] != ws.RootManifest.Path {
		t.Fatalf("touched = %v", got)
	}
	if err := Apply(context.Background(), plan, nil); err != nil {
		t.Fatal(err)
	}
	root := read(t, ws.RootManifest.Path)
	if !strings.Contains(root, "[workspace.package]\nversion = \"0.4.1\"") {
		t.Errorf("root:\n%s", root)
	}
	if !strings.Contains(root, "core = { path = \"crates/core\", version = \"0.4.1\" }") {
		t.Errorf("root deps:\n%s", root)
	}
	if got := ws.Packages["app"].Dependencies[0].Req; got != "0.4.1" {
		t.Errorf("app req = %s", got)
	}
}

func TestApplyRefusesStaleManifest(t *testing.T) {
	ws := load(t, map[string]string{
		"Cargo.toml":          threeCrates,
		"crates/b/Cargo.toml": testutil.Crate("b", "0.1.0"),
	})
	cs := changed(ws, map[string]changes.Reason{"b": changes.ReasonDirect})
	plan, err := (&Resolver{}).Plan(context.Background(), ws, cs, Options{Bump: csemver.Patch})
	if err != nil {
		t.Fatal(err)
	}

	path := ws.Packages["b"].ManifestPath
	if err := os.WriteFile(path, []byte(testutil.Crate("b", "0.1.5")), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := Apply(context.Background(), plan, nil); !errors.Is(err, errors.ErrCodeConfig) {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(read(t, path), "0.1.5") {
		t.Error("stale manifest overwritten")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = Apply(ctx, plan, nil)
	if !errors.Is(err, errors.ErrCodeAbort) {
		t.Errorf("cancelled apply: err = %v", err)
	}
	if !stderrors.Is(err, context.Canceled) {
		t.Errorf("cancelled apply should keep context.Canceled: %v", err)
	}
	if !strings.Contains(read(t, path), "0.1.5") {
		t.Error("cancelled apply touched the manifest")
	}
}
