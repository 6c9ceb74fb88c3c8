package vcs

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"testing"

	"github.com/matzehuels/cratestack/internal/testutil"
	"github.com/matzehuels/cratestack/pkg/errors"
)

func TestGitTagsAndDiffs(t *testing.T) {
	dir := testutil.Workspace(t, map[string]string{
		"crates/a/src/lib.rs": "pub fn a() {}\n",
		"crates/b/src/lib.rs": "pub fn b() {}\n",
	})
	testutil.InitRepo(t, dir)
	ctx := context.Background()
	g := NewGit(dir, nil)

	ok, err := g.HasCommits(ctx)
	if err != nil || !ok {
		t.Fatalf("HasCommits = %v, %v", ok, err)
	}
	if branch, err := g.CurrentBranch(ctx); err != nil || branch != "main" {
		t.Fatalf("CurrentBranch = %q, %v", branch, err)
	}

	if tag, err := g.LatestTag(ctx, nil, true); err != nil || tag != "" {
		t.Fatalf("LatestTag on untagged repo = %q, %v", tag, err)
	}

	if err := g.Tag(ctx, "v0.1.0", "v0.1.0"); err != nil {
		t.Fatal(err)
	}
	if err := g.Tag(ctx, "vendor@1.0.0", "vendor"); err != nil {
		t.Fatal(err)
	}
	if tag, err := g.LatestTag(ctx, []string{"v[0-9]*"}, true); err != nil || tag != "v0.1.0" {
		t.Fatalf("LatestTag(v*) = %q, %v", tag, err)
	}
	if tag, err := g.LatestTag(ctx, []string{"b@[0-9]*"}, true); err != nil || tag != "" {
		t.Fatalf("LatestTag(b@) = %q, %v", tag, err)
	}

	tags, err := g.Tags(ctx)
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(tags)
	if !reflect.DeepEqual(tags, []string{"v0.1.0", "vendor@1.0.0"}) {
		t.Errorf("Tags = %v", tags)
	}

	testutil.WriteFiles(t, dir, map[string]string{
		"crates/a/src/lib.rs": "pub fn a() -> u8 { 1 }\n",
		"crates/b/new.rs":     "// new\n",
	})
	files, err := g.ChangedFiles(ctx, "v0.1.0")
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(files)
	if !reflect.DeepEqual(files, []string{"crates/a/src/lib.rs", "crates/b/new.rs"}) {
		t.Errorf("ChangedFiles = %v", files)
	}

	dirty, err := g.DirtyFiles(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(dirty) != 1 || filepath.Base(dirty[0]) != "lib.rs" || !filepath.IsAbs(dirty[0]) {
		t.Errorf("DirtyFiles = %v", dirty)
	}

	if staged, err := g.HasStaged(ctx); err != nil || staged {
		t.Fatalf("HasStaged = %v, %v", staged, err)
	}
	if err := g.Add(ctx, filepath.Join(dir, "crates", "a", "src", "lib.rs")); err != nil {
		t.Fatal(err)
	}
	if staged, err := g.HasStaged(ctx); err != nil || !staged {
		t.Fatalf("HasStaged after add = %v, %v", staged, err)
	}
	if err := g.Commit(ctx, "change a", false); err != nil {
		t.Fatal(err)
	}
	if n, err := g.CommitsSince(ctx, "v0.1.0"); err != nil || n != 1 {
		t.Errorf("CommitsSince = %d, %v", n, err)
	}
}

func TestGitNotARepository(t *testing.T) {
	testutil.RequireGit(t)
	dir := t.TempDir()
	t.Setenv("GIT_CEILING_DIRECTORIES", filepath.Dir(dir))
	_, err := NewGit(dir, nil).HasCommits(context.Background())
	if !errors.Is(err, errors.ErrCodeVCS) {
		t.Errorf("err = %v", err)
	}
}

func TestGitDetachedHead(t *testing.T) {
	dir := testutil.Workspace(t, map[string]string{"README.md": "x\n"})
	testutil.InitRepo(t, dir)
	testutil.Git(t, dir, "checkout", "--detach")
	if _, err := NewGit(dir, nil).CurrentBranch(context.Background()); !errors.Is(err, errors.ErrCodeVCS) {
		t.Errorf("err = %v", err)
	}
}

func TestGitBehind(t *testing.T) {
	dir := testutil.Workspace(t, map[string]string{"README.md": "x\n"})
	testutil.InitRepo(t, dir)
	bare := testutil.BareRemote(t, dir)

	// A second clone pushes a commit the first one does not have.
	other := filepath.Join(t.TempDir(), "other")
	testutil.Git(t, dir, "clone", "-b", "main", bare, other)
	testutil.Git(t, other, "config", "user.email", "test@example.com")
	testutil.Git(t, other, "config", "user.name", "Test")
	if err := os.WriteFile(filepath.Join(other, "more.txt"), []byte("more\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	testutil.Commit(t, other, "more")
	testutil.Git(t, other, "push", "origin", "main")

	ctx := context.Background()
	g := NewGit(dir, nil)
	if ok, err := g.RemoteBranchExists(ctx, "origin", "main"); err != nil || !ok {
		t.Fatalf("RemoteBranchExists = %v, %v", ok, err)
	}
	if ok, _ := g.RemoteBranchExists(ctx, "origin", "nope"); ok {
		t.Error("nonexistent remote branch reported")
	}
	if err := g.Fetch(ctx, "origin"); err != nil {
		t.Fatal(err)
	}
	if n, err := g.Behind(ctx, "origin", "main"); err != nil || n != 1 {
		t.Errorf("Behind = %d, %v", n, err)
	}
}
