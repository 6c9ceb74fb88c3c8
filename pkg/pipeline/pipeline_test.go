package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/matzehuels/cratestack/internal/testutil"
	"github.com/matzehuels/cratestack/pkg/changes"
	"github.com/matzehuels/cratestack/pkg/errors"
	"github.com/matzehuels/cratestack/pkg/release"
	csemver "github.com/matzehuels/cratestack/pkg/semver"
	"github.com/matzehuels/cratestack/pkg/vcs"
	"github.com/matzehuels/cratestack/pkg/workspace"
)

func TestValidateReportFormat(t *testing.T) {
	tests := []struct {
		format  string
		wantErr bool
	}{
		{"text", false},
		{"json", false},
		{"yaml", false},
		{"YAML", true},
		{"", true},
	}
	for _, tt := range tests {
		err := ValidateReportFormat(tt.format)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateReportFormat(%q) error = %v, wantErr %v", tt.format, err, tt.wantErr)
		}
	}
}

func TestValidateGraphFormat(t *testing.T) {
	if err := ValidateGraphFormat("dot"); err != nil {
		t.Errorf("dot should be valid: %v", err)
	}
	if err := ValidateGraphFormat("png"); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("png error = %v, want INVALID_INPUT", err)
	}
}

func TestOptionsValidateAndSetDefaults(t *testing.T) {
	opts := Options{Git: vcs.GitOptions{TagPrefix: "v"}}
	if err := opts.ValidateAndSetDefaults(); err != nil {
		t.Fatal(err)
	}
	if opts.Changes.TagPrefix != "v" || opts.Changes.IndividualTagPrefix != "%n@" {
		t.Errorf("change options not synced with git options: %+v", opts.Changes)
	}
	if opts.Git.Remote != "origin" || opts.Publish.Backoff.MaxWait == 0 {
		t.Errorf("defaults not applied: %+v", opts)
	}

	bad := []Options{
		{Changes: changes.Options{Since: "HEAD~1", IncludeMergedTags: true}},
		{Release: release.Options{Bump: csemver.Minor, Custom: "2.0.0"}},
		{Git: vcs.GitOptions{IndividualTagPrefix: "release-"}},
	}
	for i, o := range bad {
		if err := o.ValidateAndSetDefaults(); !errors.Is(err, errors.ErrCodeInvalidInput) {
			t.Errorf("case %d: error = %v, want INVALID_INPUT", i, err)
		}
	}

	custom := Options{Release: release.Options{Bump: csemver.Custom, Custom: "2.0.0"}}
	if err := custom.ValidateAndSetDefaults(); err != nil {
		t.Errorf("custom bump with --custom: %v", err)
	}
}

func TestOptionsRoot(t *testing.T) {
	dir := t.TempDir()
	for _, p := range []string{dir, filepath.Join(dir, "Cargo.toml")} {
		opts := Options{ManifestPath: p}
		root, err := opts.Root()
		if err != nil || root != dir {
			t.Errorf("Root(%q) = %q, %v; want %q", p, root, err, dir)
		}
	}
}

// repo creates a tagged two-crate workspace: cli depends on core.
func repo(t *testing.T) string {
	t.Helper()
	dir := testutil.Workspace(t, map[string]string{
		"Cargo.toml":              "[workspace]\nmembers = [\"crates/*\"]\n",
		"crates/core/Cargo.toml":  testutil.Crate("core", "0.1.0"),
		"crates/core/src/lib.rs":  "pub fn core() {}\n",
		"crates/cli/Cargo.toml":   testutil.Crate("cli", "0.1.0", "core", "../core"),
		"crates/cli/src/main.rs":  "fn main() {}\n",
		"crates/tool/Cargo.toml":  "[package]\nname = \"tool\"\nversion = \"0.1.0\"\npublish = false\n",
		"crates/tool/src/main.rs": "fn main() {}\n",
	})
	testutil.InitRepo(t, dir)
	testutil.Git(t, dir, "tag", "-a", "v0.1.0", "-m", "v0.1.0")
	return dir
}

func options(dir string) Options {
	return Options{
		ManifestPath: dir,
		Git:          vcs.GitOptions{TagPrefix: "v", NoGitPush: true},
		Release:      release.Options{Bump: csemver.Patch},
	}
}

func TestChangedHeadReleased(t *testing.T) {
	dir := repo(t)
	r := NewRunner(nil)

	result, err := r.Changed(context.Background(), options(dir))
	if err != nil {
		t.Fatal(err)
	}
	if !result.HeadReleased || len(result.Changes.ChangedUnits()) != 0 {
		t.Errorf("HEAD at tag: released=%v units=%v", result.HeadReleased, result.Changes.ChangedUnits())
	}

	// Forcing bypasses the shortcut.
	opts := options(dir)
	opts.Changes.ForcePattern = "*"
	result, err = NewRunner(nil).Changed(context.Background(), opts)
	if err != nil {
		t.Fatal(err)
	}
	if result.HeadReleased || !result.Changes.Changed("core") {
		t.Errorf("forced detection: released=%v packages=%v", result.HeadReleased, result.Changes.ChangedPackages())
	}
}

func TestRename(t *testing.T) {
	dir := repo(t)
	opts := options(dir)
	opts.Rename = release.RenameOptions{To: "acme-%n"}

	result, err := NewRunner(nil).Rename(context.Background(), opts)
	if err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if got := fmt.Sprint(result.Rename.Sorted()); got != "[cli core]" {
		t.Errorf("renamed = %s, want [cli core]", got)
	}
	data, err := os.ReadFile(filepath.Join(dir, "crates/cli/Cargo.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `name = "acme-cli"`) ||
		!strings.Contains(string(data), `core = { path = "../core", version = "0.1.0", package = "acme-core" }`) {
		t.Errorf("cli manifest:\n%s", data)
	}

	ws, _, err := NewRunner(nil).Load(context.Background(), options(dir))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := ws.Package("acme-core"); !ok {
		t.Errorf("packages after rename = %v", ws.SortedNames())
	}

	opts = options(dir)
	opts.Rename = release.RenameOptions{To: "x-%n"}
	opts.Groups = []string{"nope"}
	if _, err := NewRunner(nil).Rename(context.Background(), opts); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("unknown group: err = %v", err)
	}
}

func TestVersionEndToEnd(t *testing.T) {
	dir := repo(t)
	testutil.WriteFiles(t, dir, map[string]string{"crates/core/src/lib.rs": "pub fn core() -> u8 { 1 }\n"})
	testutil.Commit(t, dir, "change core")

	var confirmed *release.Plan
	r := NewRunner(nil)
	r.Confirm = func(_ context.Context, plan *release.Plan) (bool, error) {
		confirmed = plan
		return true, nil
	}

	result, err := r.Version(context.Background(), options(dir))
	if err != nil {
		t.Fatalf("Version: %v", err)
	}
	if confirmed == nil || !result.Released() {
		t.Fatal("plan was not confirmed and released")
	}
	if got := fmt.Sprint(result.Plan.SortedPackages()); got != "[cli core]" {
		t.Errorf("released = %s, want [cli core]", got)
	}

	sort.Strings(result.Tags)
	if got := fmt.Sprint(result.Tags); got != "[cli@0.1.1 core@0.1.1 v0.1.1]" {
		t.Errorf("tags = %s", got)
	}
	data, err := os.ReadFile(filepath.Join(dir, "crates/cli/Cargo.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `version = "0.1.1"`) ||
		!strings.Contains(string(data), `core = { path = "../core", version = "0.1.1" }`) {
		t.Errorf("cli manifest not rewritten:\n%s", data)
	}
	if status := testutil.Git(t, dir, "status", "--porcelain"); status != "" {
		t.Errorf("tree not clean after release: %s", status)
	}

	// The release commit is tagged, so a second run finds nothing.
	again, err := NewRunner(nil).Version(context.Background(), options(dir))
	if err != nil {
		t.Fatal(err)
	}
	if !again.HeadReleased || again.Released() {
		t.Errorf("second run: released=%v plan=%v", again.HeadReleased, again.Plan)
	}
}

func TestVersionDeclinedWritesNothing(t *testing.T) {
	dir := repo(t)
	testutil.WriteFiles(t, dir, map[string]string{"crates/core/src/lib.rs": "pub fn core() -> u8 { 2 }\n"})
	testutil.Commit(t, dir, "change core")
	before := testutil.Git(t, dir, "rev-parse", "HEAD")

	r := NewRunner(nil)
	r.Confirm = func(context.Context, *release.Plan) (bool, error) { return false, nil }
	_, err := r.Version(context.Background(), options(dir))
	if !errors.Is(err, errors.ErrCodeAbort) {
		t.Fatalf("error = %v, want USER_ABORT", err)
	}
	if status := testutil.Git(t, dir, "status", "--porcelain"); status != "" {
		t.Errorf("declined release touched the tree: %s", status)
	}
	if after := testutil.Git(t, dir, "rev-parse", "HEAD"); after != before {
		t.Error("declined release created a commit")
	}
}

type noSleep struct{ now time.Time }

func (c *noSleep) Now() time.Time { return c.now }

func (c *noSleep) Sleep(_ context.Context, d time.Duration) error {
	c.now = c.now.Add(d)
	return nil
}

type registry struct {
	uploads []string
	visible map[string]bool
}

func (r *registry) IsVisible(_ context.Context, name, version string) (bool, error) {
	return r.visible[name+"@"+version], nil
}

func (r *registry) Publish(_ context.Context, pkg *workspace.Package) error {
	r.uploads = append(r.uploads, pkg.Name+"@"+pkg.Version.String())
	r.visible[pkg.Name+"@"+pkg.Version.String()] = true
	return nil
}

func TestPublishFromGit(t *testing.T) {
	dir := repo(t)
	reg := &registry{visible: map[string]bool{"core@0.1.0": true}}
	r := NewRunner(nil)
	r.Registry = reg
	r.Clock = &noSleep{now: time.Unix(0, 0)}

	opts := options(dir)
	opts.FromGit = true
	result, err := r.Publish(context.Background(), opts)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if got := fmt.Sprint(reg.uploads); got != "[cli@0.1.0]" {
		t.Errorf("uploads = %s, want [cli@0.1.0]", got)
	}
	if fmt.Sprint(result.Report.Skipped) != "[core]" || fmt.Sprint(result.Report.Confirmed) != "[cli]" {
		t.Errorf("report = %+v", result.Report)
	}
	if result.Plan != nil || len(result.Tags) != 0 {
		t.Error("--from-git must not version or tag")
	}
}

func TestPublishReleasesThenPushes(t *testing.T) {
	dir := repo(t)
	bare := testutil.BareRemote(t, dir)
	testutil.WriteFiles(t, dir, map[string]string{"crates/cli/src/main.rs": "fn main() { println!(\"hi\"); }\n"})
	testutil.Commit(t, dir, "change cli")
	testutil.Git(t, dir, "push", "origin", "main")

	reg := &registry{visible: map[string]bool{}}
	r := NewRunner(nil)
	r.Registry = reg
	r.Clock = &noSleep{now: time.Unix(0, 0)}

	opts := options(dir)
	opts.Git.NoGitPush = false
	opts.Git.AllowBranch = "main"
	opts.Release.Bump = csemver.Minor
	result, err := r.Publish(context.Background(), opts)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	// Only cli changed, but the fixed unit moves together; core goes first.
	if got := fmt.Sprint(reg.uploads); got != "[core@0.2.0 cli@0.2.0]" {
		t.Errorf("uploads = %s", got)
	}
	if result.Branch != "main" {
		t.Errorf("branch = %q", result.Branch)
	}
	remoteTags := testutil.Git(t, bare, "tag", "--list")
	for _, tag := range []string{"v0.2.0", "cli@0.2.0", "core@0.2.0"} {
		if !strings.Contains(remoteTags, tag) {
			t.Errorf("remote missing %s: %q", tag, remoteTags)
		}
	}
}

func TestGraphDOT(t *testing.T) {
	dir := repo(t)
	data, err := NewRunner(nil).Graph(context.Background(), options(dir), FormatDOT, map[string]bool{"core": true})
	if err != nil {
		t.Fatal(err)
	}
	dot := string(data)
	if !strings.HasPrefix(dot, "digraph workspace {") || !strings.Contains(dot, `"cli" -> "core"`) {
		t.Errorf("unexpected DOT:\n%s", dot)
	}
	if _, err := NewRunner(nil).Graph(context.Background(), options(dir), "png", nil); err == nil {
		t.Error("expected error for png")
	}
}
