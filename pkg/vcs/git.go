// Package vcs drives git: the read side used by change detection and the
// commit, tag and push sequence of a release.
package vcs

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/cratestack/pkg/errors"
	"github.com/matzehuels/cratestack/pkg/process"
)

// Git runs git commands in one directory, normally the workspace root.
type Git struct {
	Dir    string
	Runner process.Executor
	Logger *log.Logger
}

// NewGit returns a Git for dir backed by a [process.Runner].
func NewGit(dir string, logger *log.Logger) *Git {
	return &Git{Dir: dir, Runner: process.NewRunner(process.WithBaseDir(dir)), Logger: logger}
}

func (g *Git) logger() *log.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return log.Default()
}

// exec runs git and returns the raw result; a non-zero exit is not an
// error here.
func (g *Git) exec(ctx context.Context, args ...string) (process.Result, error) {
	return g.do(ctx, process.Command{Name: "git", Args: args, Dir: g.Dir})
}

func (g *Git) do(ctx context.Context, cmd process.Command) (process.Result, error) {
	g.logger().Debug("git", "args", strings.Join(cmd.Args, " "), "detached", cmd.Detach)
	res, err := g.Runner.Run(ctx, cmd)
	if err != nil {
		return res, errors.Wrap(errors.ErrCodeVCS, err, "git %s", cmd.Args[0])
	}
	return res, nil
}

// run runs git and fails on a non-zero exit. It returns trimmed stdout.
func (g *Git) run(ctx context.Context, args ...string) (string, error) {
	return g.check(ctx, process.Command{Name: "git", Args: args, Dir: g.Dir})
}

// mutate runs a command that writes refs or the index. It runs detached:
// an interrupt takes effect between such commands, never inside one.
func (g *Git) mutate(ctx context.Context, args ...string) error {
	_, err := g.check(ctx, process.Command{Name: "git", Args: args, Dir: g.Dir, Detach: true})
	return err
}

func (g *Git) check(ctx context.Context, cmd process.Command) (string, error) {
	res, err := g.do(ctx, cmd)
	if err != nil {
		return "", err
	}
	if !res.Success() {
		return "", errors.Wrap(errors.ErrCodeVCS,
			&process.ExitError{Command: cmd.String(), Result: res}, "git %s", cmd.Args[0])
	}
	return strings.TrimSpace(res.Stdout), nil
}

// HasCommits reports whether the repository has any commit.
func (g *Git) HasCommits(ctx context.Context) (bool, error) {
	res, err := g.exec(ctx, "rev-list", "--count", "--all", "--max-count=1")
	if err != nil {
		return false, err
	}
	if strings.Contains(res.Stderr, "not a git repository") {
		return false, errors.New(errors.ErrCodeVCS, "%s is not a git repository", g.Dir)
	}
	if !res.Success() {
		return false, errors.New(errors.ErrCodeVCS, "git rev-list: %s", strings.TrimSpace(res.Stderr))
	}
	return strings.TrimSpace(res.Stdout) != "0", nil
}

// CurrentBranch returns the checked-out branch. A detached HEAD is an
// error.
func (g *Git) CurrentBranch(ctx context.Context) (string, error) {
	branch, err := g.run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	if branch == "HEAD" {
		return "", errors.New(errors.ErrCodeVCS, "HEAD is detached; check out a branch to release")
	}
	return branch, nil
}

// TopLevel returns the absolute repository root.
func (g *Git) TopLevel(ctx context.Context) (string, error) {
	return g.run(ctx, "rev-parse", "--show-toplevel")
}

// DirtyFiles returns absolute paths of tracked files with uncommitted
// changes. Untracked files are not reported.
func (g *Git) DirtyFiles(ctx context.Context) ([]string, error) {
	top, err := g.TopLevel(ctx)
	if err != nil {
		return nil, err
	}
	res, err := g.exec(ctx, "status", "--porcelain", "-z", "--untracked-files=no")
	if err != nil {
		return nil, err
	}
	if !res.Success() {
		return nil, errors.New(errors.ErrCodeVCS, "git status: %s", strings.TrimSpace(res.Stderr))
	}
	var files []string
	entries := strings.Split(res.Stdout, "\x00")
	for i := 0; i < len(entries); i++ {
		e := entries[i]
		if len(e) < 4 {
			continue
		}
		files = append(files, filepath.Join(top, filepath.FromSlash(e[3:])))
		// Renames and copies carry the original path as the next entry.
		if e[0] == 'R' || e[0] == 'C' {
			i++
		}
	}
	return files, nil
}

// ChangedFiles lists files that differ between ref and the working tree,
// plus untracked files, as slash-separated paths relative to Dir.
func (g *Git) ChangedFiles(ctx context.Context, ref string) ([]string, error) {
	diff, err := g.run(ctx, "diff", "--name-only", "--relative", ref, "--")
	if err != nil {
		return nil, err
	}
	untracked, err := g.run(ctx, "ls-files", "--others", "--exclude-standard")
	if err != nil {
		return nil, err
	}
	var files []string
	for _, out := range []string{diff, untracked} {
		for _, line := range strings.Split(out, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				files = append(files, line)
			}
		}
	}
	return files, nil
}

// LatestTag returns the nearest tag reachable from HEAD matching any of
// patterns, or "" when none exists.
func (g *Git) LatestTag(ctx context.Context, patterns []string, firstParent bool) (string, error) {
	args := []string{"describe", "--tags", "--abbrev=0"}
	if firstParent {
		args = append(args, "--first-parent")
	}
	for _, p := range patterns {
		args = append(args, "--match", p)
	}
	args = append(args, "HEAD")

	res, err := g.exec(ctx, args...)
	if err != nil {
		return "", err
	}
	if res.Success() {
		return strings.TrimSpace(res.Stdout), nil
	}
	stderr := res.Stderr
	if strings.Contains(stderr, "No names found") ||
		strings.Contains(stderr, "No tags can describe") ||
		strings.Contains(stderr, "cannot describe") {
		return "", nil
	}
	return "", errors.New(errors.ErrCodeVCS, "git describe: %s", strings.TrimSpace(stderr))
}

// CommitsSince counts commits on HEAD not reachable from ref.
func (g *Git) CommitsSince(ctx context.Context, ref string) (int, error) {
	out, err := g.run(ctx, "rev-list", "--count", ref+"..HEAD")
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(out)
}

// Tags lists all tags.
func (g *Git) Tags(ctx context.Context) ([]string, error) {
	out, err := g.run(ctx, "tag", "--list")
	if err != nil || out == "" {
		return nil, err
	}
	return strings.Split(out, "\n"), nil
}

// Add stages paths.
func (g *Git) Add(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	return g.mutate(ctx, append([]string{"add", "--"}, paths...)...)
}

// HasStaged reports whether the index differs from HEAD.
func (g *Git) HasStaged(ctx context.Context) (bool, error) {
	res, err := g.exec(ctx, "diff", "--cached", "--quiet")
	if err != nil {
		return false, err
	}
	switch res.ExitCode {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	return false, errors.New(errors.ErrCodeVCS, "git diff --cached: %s", strings.TrimSpace(res.Stderr))
}

// Commit records the index. With amend the previous commit is replaced
// and message is ignored.
func (g *Git) Commit(ctx context.Context, message string, amend bool) error {
	args := []string{"commit", "-m", message}
	if amend {
		args = []string{"commit", "--amend", "--no-edit"}
	}
	return g.mutate(ctx, args...)
}

// Tag creates an annotated tag on HEAD.
func (g *Git) Tag(ctx context.Context, name, message string) error {
	return g.mutate(ctx, "tag", "-a", name, "-m", message)
}

// Push pushes branch and the annotated tags reachable from it.
func (g *Git) Push(ctx context.Context, remote, branch string) error {
	_, err := g.run(ctx, "push", "--follow-tags", remote, branch)
	return err
}

// RemoteBranchExists reports whether refs/remotes/<remote>/<branch> exists.
func (g *Git) RemoteBranchExists(ctx context.Context, remote, branch string) (bool, error) {
	res, err := g.exec(ctx, "show-ref", "--verify", "--quiet", "refs/remotes/"+remote+"/"+branch)
	if err != nil {
		return false, err
	}
	return res.Success(), nil
}

// Fetch updates remote-tracking refs of remote.
func (g *Git) Fetch(ctx context.Context, remote string) error {
	_, err := g.run(ctx, "fetch", "--quiet", remote)
	return err
}

// Behind counts commits on remote/branch missing from branch.
func (g *Git) Behind(ctx context.Context, remote, branch string) (int, error) {
	out, err := g.run(ctx, "rev-list", "--left-only", "--count", remote+"/"+branch+"..."+branch)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(out)
}
