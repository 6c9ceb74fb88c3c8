package release

import (
	"context"
	"os"
	"sort"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/charmbracelet/log"

	"github.com/matzehuels/cratestack/pkg/changes"
	"github.com/matzehuels/cratestack/pkg/errors"
	"github.com/matzehuels/cratestack/pkg/manifest"
	"github.com/matzehuels/cratestack/pkg/observability"
	csemver "github.com/matzehuels/cratestack/pkg/semver"
	"github.com/matzehuels/cratestack/pkg/workspace"
)

// Choice is the answer of a [BumpChooser].
type Choice struct {
	Bump csemver.Bump
	// Custom is the explicit version when Bump is csemver.Custom.
	Custom string
}

// BumpChooser asks for the bump of one release unit, typically through an
// interactive prompt. It returns a USER_ABORT error when the user
// declines.
type BumpChooser interface {
	Choose(ctx context.Context, unit *workspace.ReleaseUnit, current *semver.Version, preid string) (Choice, error)
}

// Options configures planning.
type Options struct {
	// Bump applies to every changed unit when set.
	Bump csemver.Bump
	// Custom is an explicit version for every changed unit.
	Custom string
	// PreID is the prerelease identifier for pre* bumps.
	PreID string
	// Exact pins rewritten requirements with `=`.
	Exact bool
}

// Resolver computes release plans.
type Resolver struct {
	// Chooser is consulted when neither Bump nor Custom is set.
	Chooser BumpChooser
	Logger  *log.Logger
}

func (r *Resolver) logger() *log.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return log.Default()
}

// UnitPlan is the decision for one release unit.
type UnitPlan struct {
	Key     string                    `json:"key" yaml:"key"`
	Kind    workspace.UnitKind        `json:"kind" yaml:"kind"`
	Bump    csemver.Bump              `json:"bump" yaml:"bump"`
	From    *semver.Version           `json:"from" yaml:"from"`
	To      *semver.Version           `json:"to" yaml:"to"`
	Members []string                  `json:"members" yaml:"members"`
	Reasons map[string]changes.Reason `json:"reasons,omitempty" yaml:"reasons,omitempty"`
}

// Skipped reports whether the unit keeps its version.
func (u *UnitPlan) Skipped() bool { return u.To.Equal(u.From) }

// ManifestEdit is the full before/after content of one manifest.
type ManifestEdit struct {
	Path   string `json:"path" yaml:"path"`
	Before []byte `json:"-" yaml:"-"`
	After  []byte `json:"-" yaml:"-"`
}

// reqUpdate is an in-memory dependency requirement change applied
// together with the edits.
type reqUpdate struct {
	pkg   string
	index int
	req   string
}

// Plan is a fully computed release. Applying it is the only step that
// touches the filesystem.
type Plan struct {
	Units []*UnitPlan `json:"units" yaml:"units"`
	// Versions maps every bumped package to its new version.
	Versions map[string]*semver.Version `json:"versions" yaml:"versions"`
	Edits    []ManifestEdit             `json:"edits" yaml:"edits"`

	ws        *workspace.Workspace
	updates   []reqUpdate
	inherited *semver.Version
}

// Empty reports whether the plan changes nothing.
func (p *Plan) Empty() bool { return len(p.Versions) == 0 }

// Touched returns the manifest paths the plan writes.
func (p *Plan) Touched() []string {
	paths := make([]string, len(p.Edits))
	for i, e := range p.Edits {
		paths[i] = e.Path
	}
	return paths
}

// FixedVersion returns the new version of the default unit, or nil when
// it is not bumped.
func (p *Plan) FixedVersion() *semver.Version {
	for _, u := range p.Units {
		if u.Kind == workspace.UnitFixed && !u.Skipped() {
			return u.To
		}
	}
	return nil
}

// SortedPackages returns bumped package names in order.
func (p *Plan) SortedPackages() []string {
	names := make([]string, 0, len(p.Versions))
	for name := range p.Versions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Plan decides bumps for every changed unit and stages the manifest edits.
func (r *Resolver) Plan(ctx context.Context, ws *workspace.Workspace, cs *changes.ChangeSet, opts Options) (plan *Plan, err error) {
	start := time.Now()
	defer func() {
		units, pkgs := 0, 0
		if plan != nil {
			units, pkgs = len(plan.Units), len(plan.Versions)
		}
		observability.Release().OnPlanComplete(ctx, units, pkgs, time.Since(start), err)
	}()

	if opts.Bump == csemver.Custom && opts.Custom == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "custom bump needs a version")
	}

	type pending struct {
		unit    *workspace.ReleaseUnit
		current *semver.Version
	}
	var todo []pending

	// Check every changed unit for skew before asking anything.
	for _, u := range ws.SortedUnits() {
		uc, ok := cs.Units[u.Key]
		if !ok || !uc.Changed {
			continue
		}
		cur, err := u.CurrentVersion()
		if err != nil {
			return nil, err
		}
		todo = append(todo, pending{unit: u, current: cur})
	}

	plan = &Plan{Versions: make(map[string]*semver.Version), ws: ws}
	for _, t := range todo {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		choice, err := r.choose(ctx, t.unit, t.current, opts)
		if err != nil {
			return nil, err
		}
		next, err := apply(t.current, choice, opts.PreID)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "%s", t.unit.Key)
		}

		up := &UnitPlan{
			Key:     t.unit.Key,
			Kind:    t.unit.Kind,
			Bump:    choice.Bump,
			From:    t.current,
			To:      next,
			Members: t.unit.Names(),
			Reasons: make(map[string]changes.Reason),
		}
		for _, name := range up.Members {
			if pc, ok := cs.Packages[name]; ok {
				up.Reasons[name] = pc.Reason
			}
		}
		plan.Units = append(plan.Units, up)

		if up.Skipped() {
			r.logger().Info("skipping unit", "unit", up.Key, "version", up.From)
			continue
		}
		r.logger().Debug("unit bump", "unit", up.Key, "from", up.From, "to", up.To)
		for _, name := range up.Members {
			plan.Versions[name] = next
		}
	}

	if err := plan.stageEdits(opts.Exact); err != nil {
		return nil, err
	}
	return plan, nil
}

func (r *Resolver) choose(ctx context.Context, u *workspace.ReleaseUnit, cur *semver.Version, opts Options) (Choice, error) {
	switch {
	case opts.Custom != "":
		return Choice{Bump: csemver.Custom, Custom: opts.Custom}, nil
	case opts.Bump != "":
		return Choice{Bump: opts.Bump}, nil
	case r.Chooser == nil:
		return Choice{}, errors.New(errors.ErrCodeInvalidInput,
			"no bump given for %s and no interactive chooser available", u.Key)
	}
	choice, err := r.Chooser.Choose(ctx, u, cur, opts.PreID)
	if err != nil {
		return Choice{}, err
	}
	if choice.Bump == csemver.Custom && choice.Custom == "" {
		return Choice{}, errors.New(errors.ErrCodeInvalidInput, "custom bump for %s needs a version", u.Key)
	}
	return choice, nil
}

func apply(cur *semver.Version, c Choice, preid string) (*semver.Version, error) {
	if c.Bump == csemver.Custom {
		return csemver.ApplyCustom(cur, c.Custom)
	}
	return csemver.Apply(cur, c.Bump, preid)
}

// stageEdits computes the new content of every manifest that changes.
func (p *Plan) stageEdits(exact bool) error {
	if p.Empty() {
		return nil
	}
	ws := p.ws

	editors := make(map[string]*manifest.Editor)
	before := make(map[string][]byte)
	var order []string
	editor := func(path string) (*manifest.Editor, error) {
		if ed, ok := editors[path]; ok {
			return ed, nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInternal, err, "read manifest")
		}
		before[path] = data
		editors[path] = manifest.NewEditor(data)
		order = append(order, path)
		return editors[path], nil
	}

	rootPath := ""
	if ws.RootManifest != nil {
		rootPath = ws.RootManifest.Path
	}

	var workspaceVersion *semver.Version
	for _, name := range ws.SortedNames() {
		pkg := ws.Packages[name]
		next, bumped := p.Versions[name]

		if bumped && pkg.InheritsVersion {
			workspaceVersion = next
		}
		if bumped && !pkg.InheritsVersion {
			ed, err := editor(pkg.ManifestPath)
			if err != nil {
				return err
			}
			if err := ed.SetPackageVersion(next.String()); err != nil {
				return errors.Wrap(errors.ErrCodeInvalidManifest, err, "%s", pkg.ManifestPath)
			}
		}

		for i, d := range pkg.Dependencies {
			target, ok := p.Versions[d.Member]
			if !ok || d.Member == "" || d.Req == "" || d.Workspace {
				continue
			}
			req := csemver.Requirement(d.Req, target, exact)
			if req == d.Req {
				continue
			}
			ed, err := editor(pkg.ManifestPath)
			if err != nil {
				return err
			}
			changed, err := ed.SetDependencyReq(d.Section, d.Key, req)
			if err != nil {
				return errors.Wrap(errors.ErrCodeInvalidManifest, err, "%s", pkg.ManifestPath)
			}
			if changed {
				p.updates = append(p.updates, reqUpdate{pkg: name, index: i, req: req})
			}
		}
	}

	p.inherited = workspaceVersion
	if rootPath != "" {
		if workspaceVersion != nil {
			ed, err := editor(rootPath)
			if err != nil {
				return err
			}
			if err := ed.SetWorkspaceVersion(workspaceVersion.String()); err != nil {
				return errors.Wrap(errors.ErrCodeInvalidManifest, err, "%s", rootPath)
			}
		}
		for i, d := range ws.RootDependencies {
			target, ok := p.Versions[d.Member]
			if !ok || d.Member == "" || d.Req == "" {
				continue
			}
			req := csemver.Requirement(d.Req, target, exact)
			if req == d.Req {
				continue
			}
			ed, err := editor(rootPath)
			if err != nil {
				return err
			}
			if _, err := ed.SetDependencyReq(d.Section, d.Key, req); err != nil {
				return errors.Wrap(errors.ErrCodeInvalidManifest, err, "%s", rootPath)
			}
			p.updates = append(p.updates, reqUpdate{index: i, req: req})
		}
	}

	sort.Strings(order)
	for _, path := range order {
		after := editors[path].Bytes()
		if string(after) == string(before[path]) {
			continue
		}
		p.Edits = append(p.Edits, ManifestEdit{Path: path, Before: before[path], After: after})
	}
	return nil
}
