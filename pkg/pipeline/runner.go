package pipeline

import (
	"context"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/charmbracelet/log"

	"github.com/matzehuels/cratestack/pkg/changes"
	"github.com/matzehuels/cratestack/pkg/dag"
	"github.com/matzehuels/cratestack/pkg/errors"
	"github.com/matzehuels/cratestack/pkg/ledger"
	"github.com/matzehuels/cratestack/pkg/publish"
	"github.com/matzehuels/cratestack/pkg/release"
	"github.com/matzehuels/cratestack/pkg/vcs"
	"github.com/matzehuels/cratestack/pkg/workspace"
)

// ConfirmFunc is asked once before a plan is written. Returning false
// aborts the release without touching anything.
type ConfirmFunc func(ctx context.Context, plan *release.Plan) (bool, error)

// Runner executes the release pipeline. Collaborators left nil fall back
// to the real implementations where one exists.
type Runner struct {
	// Git is created for the workspace root when nil.
	Git *vcs.Git
	// Chooser is asked for bumps not given on the command line.
	Chooser release.BumpChooser
	// Confirm is asked before writing; nil proceeds.
	Confirm ConfirmFunc
	// Registry is required for publishing.
	Registry publish.Registry
	Ledger   *ledger.Ledger
	Clock    publish.Clock
	Logger   *log.Logger
}

// NewRunner creates a runner logging to logger (nil uses log.Default()).
func NewRunner(logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{Logger: logger}
}

func (r *Runner) logger() *log.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return log.Default()
}

// Load reads the workspace and builds its publish graph.
func (r *Runner) Load(ctx context.Context, opts Options) (*workspace.Workspace, *dag.DAG, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	root, err := opts.Root()
	if err != nil {
		return nil, nil, err
	}
	ws, err := workspace.Load(root, workspace.LoadOptions{
		IncludePrivate: opts.IncludePrivate,
		Logger:         r.logger(),
	})
	if err != nil {
		return nil, nil, err
	}
	g, err := workspace.BuildGraph(ws, workspace.GraphOptions{
		IncludeDev:  opts.IncludeDev,
		AllowCycles: opts.IncludeDev,
	})
	if err != nil {
		return nil, nil, err
	}
	if r.Git == nil {
		r.Git = vcs.NewGit(ws.Root, r.logger())
	}
	r.logger().Debug("loaded workspace", "root", ws.Root, "packages", len(ws.Packages), "edges", g.EdgeCount())
	return ws, g, nil
}

// Changed loads the workspace and detects changed packages. When HEAD is
// already the latest tagged release and nothing overrides the reference
// point, detection is skipped and the change set is empty.
func (r *Runner) Changed(ctx context.Context, opts Options) (*Result, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	ws, g, err := r.Load(ctx, opts)
	if err != nil {
		return nil, err
	}
	result := &Result{Workspace: ws, Graph: g}
	start := time.Now()
	defer func() { result.Stats.DetectTime = time.Since(start) }()

	released, err := r.headReleased(ctx, opts)
	if err != nil {
		return nil, err
	}
	if released {
		r.logger().Info("current HEAD is already released, skipping change detection")
		result.HeadReleased = true
		result.Changes = &changes.ChangeSet{
			Packages: map[string]*changes.PackageChange{},
			Units:    map[string]*changes.UnitChange{},
		}
		return result, nil
	}

	d := &changes.Detector{VCS: r.Git, Logger: r.logger()}
	cs, err := d.Detect(ctx, ws, g, opts.Changes)
	if err != nil {
		return nil, err
	}
	result.Changes = cs
	r.logger().Debug("detected changes", "packages", len(cs.Packages), "units", len(cs.ChangedUnits()))
	return result, nil
}

func (r *Runner) headReleased(ctx context.Context, opts Options) (bool, error) {
	if opts.Changes.Since != "" || opts.Changes.ForcePattern != "" {
		return false, nil
	}
	tag, err := r.Git.LatestTag(ctx, nil, !opts.Changes.IncludeMergedTags)
	if err != nil || tag == "" {
		return false, err
	}
	n, err := r.Git.CommitsSince(ctx, tag)
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

// Rename renames workspace packages and every dependency entry pointing
// at them. It does not touch git.
func (r *Runner) Rename(ctx context.Context, opts Options) (*Result, error) {
	ws, g, err := r.Load(ctx, opts)
	if err != nil {
		return nil, err
	}
	result := &Result{Workspace: ws, Graph: g}

	ro := opts.Rename
	if ro.Groups, err = ws.FilterGroups(opts.Groups); err != nil {
		return nil, err
	}
	start := time.Now()
	rn, err := release.PlanRename(ws, ro)
	if err != nil {
		return nil, err
	}
	result.Rename = rn
	result.Stats.PlanTime = time.Since(start)
	if rn.Empty() {
		r.logger().Info("nothing to rename")
		return result, nil
	}

	start = time.Now()
	err = release.ApplyRename(ctx, rn, r.logger())
	result.Stats.ApplyTime = time.Since(start)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Plan detects changes and resolves the release plan without writing
// anything.
func (r *Runner) Plan(ctx context.Context, opts Options) (*Result, error) {
	result, err := r.Changed(ctx, opts)
	if err != nil {
		return nil, err
	}
	if len(result.Changes.ChangedUnits()) == 0 {
		return result, nil
	}

	start := time.Now()
	resolver := &release.Resolver{Chooser: r.Chooser, Logger: r.logger()}
	plan, err := resolver.Plan(ctx, result.Workspace, result.Changes, opts.Release)
	result.Stats.PlanTime = time.Since(start)
	if err != nil {
		return nil, err
	}
	result.Plan = plan
	return result, nil
}

// Version runs a full release: plan, confirm, write, commit, tag and
// push.
func (r *Runner) Version(ctx context.Context, opts Options) (*Result, error) {
	return r.version(ctx, opts, true)
}

func (r *Runner) version(ctx context.Context, opts Options, push bool) (*Result, error) {
	result, err := r.Plan(ctx, opts)
	if err != nil {
		return nil, err
	}
	if result.Plan == nil || result.Plan.Empty() {
		r.logger().Info("no changes to release")
		return result, nil
	}
	plan := result.Plan

	if r.Confirm != nil {
		ok, err := r.Confirm(ctx, plan)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errors.Aborted("release cancelled")
		}
	}

	orch, err := vcs.NewOrchestrator(r.Git, opts.Git, r.logger())
	if err != nil {
		return nil, err
	}
	touched := plan.Touched()
	if result.Branch, err = orch.Validate(ctx, result.Workspace, touched); err != nil {
		return nil, err
	}

	start := time.Now()
	if err := release.Apply(ctx, plan, r.logger()); err != nil {
		return nil, err
	}
	if result.Tags, err = orch.Commit(ctx, result.Workspace, plan, touched); err != nil {
		return result, err
	}
	result.Stats.ApplyTime = time.Since(start)

	if push {
		if err := orch.Push(ctx, result.Branch); err != nil {
			return result, err
		}
	}
	return result, nil
}

// Publish releases and uploads changed packages, then pushes. With
// FromGit it uploads every public package at its committed version and
// leaves git alone. The returned result carries the publish report even
// when err is not nil.
func (r *Runner) Publish(ctx context.Context, opts Options) (*Result, error) {
	if r.Registry == nil {
		return nil, errors.New(errors.ErrCodeInternal, "publish needs a registry")
	}
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}

	var (
		result  *Result
		targets = make(map[string]*semver.Version)
		err     error
	)
	if opts.FromGit {
		ws, g, err := r.Load(ctx, opts)
		if err != nil {
			return nil, err
		}
		result = &Result{Workspace: ws, Graph: g}
		for name, p := range ws.Packages {
			targets[name] = p.Version
		}
	} else {
		if result, err = r.version(ctx, opts, false); err != nil {
			return result, err
		}
		if !result.Released() {
			return result, nil
		}
		for name, v := range result.Plan.Versions {
			targets[name] = v
		}
	}

	s := &publish.Scheduler{
		Registry: r.Registry,
		Ledger:   r.Ledger,
		Clock:    r.Clock,
		Logger:   r.logger(),
	}
	start := time.Now()
	result.Report, err = s.Run(ctx, result.Workspace, result.Graph, targets, opts.Publish)
	result.Stats.PublishTime = time.Since(start)
	if err != nil {
		return result, err
	}

	if opts.FromGit {
		return result, nil
	}
	orch, err := vcs.NewOrchestrator(r.Git, opts.Git, r.logger())
	if err != nil {
		return result, err
	}
	return result, orch.Push(ctx, result.Branch)
}
