package release

import (
	"context"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/log"

	"github.com/matzehuels/cratestack/pkg/errors"
	"github.com/matzehuels/cratestack/pkg/manifest"
	"github.com/matzehuels/cratestack/pkg/observability"
	"github.com/matzehuels/cratestack/pkg/workspace"
)

// RenameOptions selects the packages to rename.
type RenameOptions struct {
	// To is the new name. %n expands to the old name and is required
	// unless From is set.
	To string
	// From renames only this package, to To verbatim.
	From string
	// Ignore is a glob of package names left alone.
	Ignore string
	// All also renames private packages.
	All bool
	// Groups limits the rename to packages of these groups.
	Groups workspace.GroupFilter
}

// Validate checks option combinations.
func (o RenameOptions) Validate() error {
	if o.To == "" {
		return errors.New(errors.ErrCodeInvalidInput, "the new name cannot be empty")
	}
	if o.From != "" {
		if o.All || o.Ignore != "" || len(o.Groups) > 0 {
			return errors.New(errors.ErrCodeInvalidInput, "--from cannot be combined with --all, --ignore or --groups")
		}
		return nil
	}
	if err := errors.ValidateNameTemplate("<TO>", o.To); err != nil {
		return err
	}
	if o.Ignore != "" && !doublestar.ValidatePattern(o.Ignore) {
		return errors.New(errors.ErrCodeInvalidInput, "invalid --ignore pattern %q", o.Ignore)
	}
	return nil
}

// Rename is a staged set of package renames.
type Rename struct {
	// Names maps old package names to new ones.
	Names map[string]string `json:"names" yaml:"names"`
	Edits []ManifestEdit    `json:"edits" yaml:"edits"`
}

// Empty reports whether nothing would change.
func (r *Rename) Empty() bool { return len(r.Edits) == 0 }

// Sorted returns the old names in order.
func (r *Rename) Sorted() []string {
	names := make([]string, 0, len(r.Names))
	for n := range r.Names {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// PlanRename decides the new names and stages the manifest edits: the
// [package] name of every renamed package and every dependency entry in
// the workspace that points at one, including [workspace.dependencies].
// Entries inheriting with `workspace = true` follow the root table.
func PlanRename(ws *workspace.Workspace, opts RenameOptions) (*Rename, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	names, err := renameTargets(ws, opts)
	if err != nil {
		return nil, err
	}
	r := &Rename{Names: names}
	if len(names) == 0 {
		return r, nil
	}

	editors := make(map[string]*manifest.Editor)
	before := make(map[string][]byte)
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
		return editors[path], nil
	}
	renameDeps := func(path string, deps []workspace.Dependency) error {
		for _, d := range deps {
			to, ok := names[d.Name]
			if !ok || d.Workspace {
				continue
			}
			ed, err := editor(path)
			if err != nil {
				return err
			}
			if _, err := ed.RenameDependency(d.Section, d.Key, to); err != nil {
				return errors.Wrap(errors.ErrCodeInvalidManifest, err, "%s", path)
			}
		}
		return nil
	}

	for _, name := range ws.SortedNames() {
		pkg := ws.Packages[name]
		if to, ok := names[name]; ok {
			ed, err := editor(pkg.ManifestPath)
			if err != nil {
				return nil, err
			}
			if err := ed.SetPackageName(to); err != nil {
				return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "%s", pkg.ManifestPath)
			}
		}
		if err := renameDeps(pkg.ManifestPath, pkg.Dependencies); err != nil {
			return nil, err
		}
	}
	if ws.RootManifest != nil {
		if err := renameDeps(ws.RootManifest.Path, ws.RootDependencies); err != nil {
			return nil, err
		}
	}

	paths := make([]string, 0, len(editors))
	for path := range editors {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	for _, path := range paths {
		r.Edits = append(r.Edits, ManifestEdit{Path: path, Before: before[path], After: editors[path].Bytes()})
	}
	return r, nil
}

func renameTargets(ws *workspace.Workspace, opts RenameOptions) (map[string]string, error) {
	names := make(map[string]string)
	if opts.From != "" {
		if _, ok := ws.Package(opts.From); !ok {
			return nil, errors.New(errors.ErrCodeInvalidInput, "package %q not found in the workspace", opts.From)
		}
		if opts.To != opts.From {
			names[opts.From] = opts.To
		}
	} else {
		for _, name := range ws.SortedNames() {
			p := ws.Packages[name]
			if (p.Private && !opts.All) || !opts.Groups.Match(p) {
				continue
			}
			if opts.Ignore != "" {
				if ok, _ := doublestar.Match(opts.Ignore, name); ok {
					continue
				}
			}
			if to := strings.ReplaceAll(opts.To, "%n", name); to != name {
				names[name] = to
			}
		}
	}

	taken := make(map[string]string, len(names))
	for from, to := range names {
		if err := errors.ValidatePackageName(to); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "rename %s", from)
		}
		if _, renamed := names[to]; !renamed {
			if _, exists := ws.Packages[to]; exists {
				return nil, errors.New(errors.ErrCodeInvalidInput, "cannot rename %s: %s already exists", from, to)
			}
		}
		if prev, ok := taken[to]; ok {
			a, b := min(prev, from), max(prev, from)
			return nil, errors.New(errors.ErrCodeInvalidInput, "%s and %s would both be renamed to %s", a, b, to)
		}
		taken[to] = from
	}
	return names, nil
}

// ApplyRename writes the staged edits as one unit, like [Apply].
func ApplyRename(ctx context.Context, r *Rename, logger *log.Logger) (err error) {
	if logger == nil {
		logger = log.Default()
	}
	start := time.Now()
	defer func() {
		observability.Release().OnManifestsWritten(ctx, len(r.Edits), time.Since(start), err)
	}()

	if err := ctx.Err(); err != nil {
		return errors.Interrupted(err, "rename")
	}
	if err := writeEdits(r.Edits, logger); err != nil {
		return err
	}
	for _, old := range r.Sorted() {
		logger.Info("renamed package", "from", old, "to", r.Names[old])
	}
	return nil
}
