package vcs

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/log"

	"github.com/matzehuels/cratestack/pkg/changes"
	"github.com/matzehuels/cratestack/pkg/errors"
	"github.com/matzehuels/cratestack/pkg/observability"
	"github.com/matzehuels/cratestack/pkg/release"
	"github.com/matzehuels/cratestack/pkg/workspace"
)

// Repository is the git surface the orchestrator drives. [*Git]
// implements it.
type Repository interface {
	HasCommits(ctx context.Context) (bool, error)
	CurrentBranch(ctx context.Context) (string, error)
	DirtyFiles(ctx context.Context) ([]string, error)
	Tags(ctx context.Context) ([]string, error)
	Add(ctx context.Context, paths ...string) error
	HasStaged(ctx context.Context) (bool, error)
	Commit(ctx context.Context, message string, amend bool) error
	Tag(ctx context.Context, name, message string) error
	Push(ctx context.Context, remote, branch string) error
	RemoteBranchExists(ctx context.Context, remote, branch string) (bool, error)
	Fetch(ctx context.Context, remote string) error
	Behind(ctx context.Context, remote, branch string) (int, error)
}

var _ Repository = (*Git)(nil)

// DefaultAllowBranch is used when neither the command line nor the
// workspace configures allowed branches.
const DefaultAllowBranch = "master"

// GitOptions configures the release commit, tags and push.
type GitOptions struct {
	NoGitCommit bool
	// AllowBranch is a glob of branches releases may run on. It overrides
	// the workspace's allow_branch.
	AllowBranch string
	Amend       bool
	// Message is the commit subject; %v is the fixed version or
	// "independent packages".
	Message string

	NoGitTag bool
	// TagExisting tags HEAD even when no commit is created.
	TagExisting      bool
	NoGlobalTag      bool
	NoIndividualTags bool
	TagPrivate       bool
	TagPrefix        string
	// IndividualTagPrefix must contain %n.
	IndividualTagPrefix string
	TagMsg              string
	IndividualTagMsg    string

	NoGitPush bool
	Remote    string
}

// WithDefaults fills unset fields. An empty TagPrefix is kept.
func (o GitOptions) WithDefaults() GitOptions {
	if o.Message == "" {
		o.Message = "Release %v"
	}
	if o.IndividualTagPrefix == "" {
		o.IndividualTagPrefix = "%n@"
	}
	if o.Remote == "" {
		o.Remote = "origin"
	}
	return o
}

// Validate checks flag combinations.
func (o GitOptions) Validate() error {
	if err := errors.ValidateNameTemplate("individual-tag-prefix", o.IndividualTagPrefix); err != nil {
		return err
	}
	if o.Amend && o.Message != "" && o.Message != "Release %v" {
		return errors.New(errors.ErrCodeInvalidInput, "--amend cannot be combined with --message")
	}
	if o.NoGitTag && o.TagExisting {
		return errors.New(errors.ErrCodeInvalidInput, "--no-git-tag cannot be combined with --tag-existing")
	}
	if _, err := ExpandTagMessage(o.TagMsg, "", nil); err != nil {
		return err
	}
	return nil
}

// Orchestrator runs the VCS side of a release.
type Orchestrator struct {
	Git     Repository
	Options GitOptions
	Logger  *log.Logger
}

// NewOrchestrator validates opts and returns an orchestrator.
func NewOrchestrator(git Repository, opts GitOptions, logger *log.Logger) (*Orchestrator, error) {
	opts = opts.WithDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Orchestrator{Git: git, Options: opts, Logger: logger}, nil
}

func (o *Orchestrator) logger() *log.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return log.Default()
}

func (o *Orchestrator) step(ctx context.Context, name string, fn func() error) error {
	start := time.Now()
	err := fn()
	observability.Release().OnGitStep(ctx, name, time.Since(start), err)
	return err
}

// Validate checks the repository before anything is written and returns
// the current branch. touched are the absolute manifest paths the release
// will modify; they may already be dirty from an interrupted run.
func (o *Orchestrator) Validate(ctx context.Context, ws *workspace.Workspace, touched []string) (string, error) {
	if o.Options.NoGitCommit {
		return "", nil
	}

	var branch string
	err := o.step(ctx, "validate", func() error {
		ok, err := o.Git.HasCommits(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return errors.New(errors.ErrCodeVCS, "repository has no commits")
		}

		if branch, err = o.Git.CurrentBranch(ctx); err != nil {
			return err
		}
		if err := o.checkBranch(ws, branch); err != nil {
			return err
		}
		if err := o.checkClean(ctx, touched); err != nil {
			return err
		}

		if o.Options.NoGitPush {
			return nil
		}
		remote := o.Options.Remote
		exists, err := o.Git.RemoteBranchExists(ctx, remote, branch)
		if err != nil {
			return err
		}
		if !exists {
			return errors.New(errors.ErrCodeVCS, "remote branch %s/%s not found", remote, branch)
		}
		if err := o.Git.Fetch(ctx, remote); err != nil {
			return err
		}
		behind, err := o.Git.Behind(ctx, remote, branch)
		if err != nil {
			return err
		}
		if behind > 0 {
			return errors.New(errors.ErrCodeVCS,
				"branch %s is %d commit(s) behind %s/%s; pull first", branch, behind, remote, branch)
		}
		return nil
	})
	return branch, err
}

func (o *Orchestrator) checkBranch(ws *workspace.Workspace, branch string) error {
	allow := o.Options.AllowBranch
	if allow == "" && ws != nil {
		allow = ws.Config.AllowBranch
	}
	if allow == "" {
		allow = DefaultAllowBranch
	}
	test := branch
	if branch == "main" && allow == DefaultAllowBranch {
		test = DefaultAllowBranch
	}
	ok, err := doublestar.Match(allow, test)
	if err != nil {
		return errors.Wrap(errors.ErrCodeConfig, err, "allow-branch pattern %q", allow)
	}
	if !ok {
		return errors.New(errors.ErrCodeVCS, "branch %s is not allowed by pattern %q", branch, allow)
	}
	return nil
}

func (o *Orchestrator) checkClean(ctx context.Context, touched []string) error {
	dirty, err := o.Git.DirtyFiles(ctx)
	if err != nil {
		return err
	}
	allowed := make(map[string]bool, len(touched))
	for _, p := range touched {
		allowed[canonical(p)] = true
	}
	var offending []string
	for _, f := range dirty {
		if !allowed[canonical(f)] {
			offending = append(offending, f)
		}
	}
	if len(offending) > 0 {
		sort.Strings(offending)
		return errors.New(errors.ErrCodeVCS,
			"working tree has uncommitted changes: %s", strings.Join(offending, ", "))
	}
	return nil
}

func canonical(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}
	return filepath.Clean(path)
}

// Commit stages touched manifests, commits and tags. It returns the tags
// created. Once started it runs to completion even if ctx is cancelled.
func (o *Orchestrator) Commit(ctx context.Context, ws *workspace.Workspace, plan *release.Plan, touched []string) ([]string, error) {
	ctx = context.WithoutCancel(ctx)
	opts := o.Options
	entries := planEntries(plan)

	version := "independent packages"
	if v := plan.FixedVersion(); v != nil {
		version = v.String()
	}

	if !opts.NoGitCommit {
		err := o.step(ctx, "commit", func() error {
			if err := o.Git.Add(ctx, touched...); err != nil {
				return err
			}
			staged, err := o.Git.HasStaged(ctx)
			if err != nil {
				return err
			}
			if !staged {
				o.logger().Info("nothing to commit, reusing HEAD")
				return nil
			}
			o.logger().Info("committing changes", "amend", opts.Amend)
			return o.Git.Commit(ctx, commitMessage(opts.Message, version, entries), opts.Amend)
		})
		if err != nil {
			return nil, err
		}
	}

	if (opts.NoGitCommit && !opts.TagExisting) || opts.NoGitTag {
		return nil, nil
	}

	var created []string
	err := o.step(ctx, "tag", func() error {
		existing, err := o.Git.Tags(ctx)
		if err != nil {
			return err
		}
		have := make(map[string]bool, len(existing))
		for _, t := range existing {
			have[t] = true
		}
		tag := func(name, msg string) error {
			if have[name] {
				o.logger().Info("tag already exists", "tag", name)
				return nil
			}
			if err := o.Git.Tag(ctx, name, msg); err != nil {
				return err
			}
			have[name] = true
			created = append(created, name)
			return nil
		}

		tagged := make([]TagEntry, 0, len(entries))
		for _, e := range entries {
			if p, ok := ws.Packages[e.Name]; !ok || !p.Private || opts.TagPrivate {
				tagged = append(tagged, e)
			}
		}

		if fixed := plan.FixedVersion(); fixed != nil && !opts.NoGlobalTag {
			name := opts.TagPrefix + fixed.String()
			msg := name
			if opts.TagMsg != "" {
				if msg, err = ExpandTagMessage(opts.TagMsg, fixed.String(), tagged); err != nil {
					return err
				}
			}
			if err := tag(name, msg); err != nil {
				return err
			}
		}

		if opts.NoIndividualTags || ws.Config.NoIndividualTags {
			return nil
		}
		for _, e := range tagged {
			name := changes.IndividualPrefix(opts.IndividualTagPrefix, e.Name) + e.Version
			msg := name
			if opts.IndividualTagMsg != "" {
				msg = expandName(opts.IndividualTagMsg, e.Name, e.Version)
			}
			if err := tag(name, msg); err != nil {
				return err
			}
		}
		return nil
	})
	return created, err
}

// Push pushes branch with its tags. A failure leaves the local commit and
// tags in place and is marked recoverable.
func (o *Orchestrator) Push(ctx context.Context, branch string) error {
	if o.Options.NoGitPush || o.Options.NoGitCommit {
		return nil
	}
	return o.step(ctx, "push", func() error {
		o.logger().Info("pushing", "remote", o.Options.Remote, "branch", branch)
		if err := o.Git.Push(ctx, o.Options.Remote, branch); err != nil {
			return errors.Wrap(errors.ErrCodeVCS, err,
				"push to %s failed; the release commit and tags are local, push them manually", o.Options.Remote).AsRecoverable()
		}
		return nil
	})
}

func planEntries(plan *release.Plan) []TagEntry {
	names := plan.SortedPackages()
	entries := make([]TagEntry, len(names))
	for i, name := range names {
		entries[i] = TagEntry{Name: name, Version: plan.Versions[name].String()}
	}
	return entries
}
