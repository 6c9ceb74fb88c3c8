// Package testutil builds throwaway workspaces and git repositories for
// tests.
package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// WriteFiles writes files (slash-separated paths relative to dir) and
// returns dir.
func WriteFiles(t *testing.T, dir string, files map[string]string) string {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil { //nolint:gosec // test file
			t.Fatal(err)
		}
	}
	return dir
}

// Workspace writes files into a fresh temp directory and returns it.
func Workspace(t *testing.T, files map[string]string) string {
	t.Helper()
	return WriteFiles(t, t.TempDir(), files)
}

// Crate returns a minimal member manifest. deps are `name = "path"` pairs
// rendered as `{ path = "...", version = "<version>" }` entries.
func Crate(name, version string, deps ...string) string {
	var b strings.Builder
	b.WriteString("[package]\nname = \"" + name + "\"\nversion = \"" + version + "\"\n\n[dependencies]\n")
	for i := 0; i+1 < len(deps); i += 2 {
		b.WriteString(deps[i] + " = { path = \"" + deps[i+1] + "\", version = \"" + version + "\" }\n")
	}
	return b.String()
}

// RequireGit skips the test when git is not installed.
func RequireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
}

// InitRepo turns dir into a git repository on branch main with everything
// committed.
func InitRepo(t *testing.T, dir string) {
	t.Helper()
	RequireGit(t)
	Git(t, dir, "init", "-b", "main")
	Git(t, dir, "config", "user.email", "test@example.com")
	Git(t, dir, "config", "user.name", "Test")
	Git(t, dir, "config", "commit.gpgsign", "false")
	Git(t, dir, "config", "tag.gpgsign", "false")
	Commit(t, dir, "initial commit")
}

// Commit stages everything and commits.
func Commit(t *testing.T, dir, message string) {
	t.Helper()
	Git(t, dir, "add", "-A")
	Git(t, dir, "commit", "--allow-empty", "-m", message)
}

// Git runs git in dir and returns trimmed stdout.
func Git(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		stderr := ""
		if ee, ok := err.(*exec.ExitError); ok {
			stderr = string(ee.Stderr)
		}
		t.Fatalf("git %v failed: %v\n%s", args, err, stderr)
	}
	return strings.TrimSpace(string(out))
}

// BareRemote creates a bare repository, adds it as origin of dir and pushes
// main to it.
func BareRemote(t *testing.T, dir string) string {
	t.Helper()
	bare := filepath.Join(t.TempDir(), "remote.git")
	Git(t, dir, "init", "--bare", "-b", "main", bare)
	Git(t, dir, "remote", "add", "origin", bare)
	Git(t, dir, "push", "-u", "origin", "main")
	return bare
}
