package workspace

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/log"

	"github.com/matzehuels/cratestack/pkg/errors"
	"github.com/matzehuels/cratestack/pkg/manifest"
)

// LoadOptions configures workspace loading.
type LoadOptions struct {
	// IncludePrivate keeps private packages in release units.
	IncludePrivate bool
	// Logger receives warnings about patterns that match nothing.
	// Nil uses log.Default().
	Logger *log.Logger
}

func (o LoadOptions) logger() *log.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return log.Default()
}

// Load reads the workspace rooted at root.
func Load(root string, opts LoadOptions) (*Workspace, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	rootManifest, err := manifest.Load(filepath.Join(root, manifest.FileName))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfig, err, "read workspace manifest")
	}
	if rootManifest.Workspace == nil {
		return nil, errors.New(errors.ErrCodeConfig, "%s has no [workspace] table", rootManifest.Path)
	}

	cfg, err := DecodeConfig(rootManifest.Workspace.Metadata)
	if err != nil {
		return nil, err
	}

	dirs, err := memberDirs(root, rootManifest)
	if err != nil {
		return nil, err
	}

	rootDeps := rootDependencies(rootManifest)

	var pkgs []*Package
	for _, rel := range dirs {
		var m *manifest.Manifest
		if rel == "." {
			m = rootManifest
		} else if m, err = manifest.Load(filepath.Join(root, filepath.FromSlash(rel), manifest.FileName)); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "read member %s", rel)
		}
		if m.Package == nil {
			opts.logger().Warn("member has no [package] table", "path", rel)
			continue
		}
		pkg, err := newPackage(root, rel, m, rootManifest.Workspace, rootDeps)
		if err != nil {
			return nil, err
		}
		pkgs = append(pkgs, pkg)
	}

	ws, err := New(root, pkgs, cfg, opts)
	if err != nil {
		return nil, err
	}
	ws.RootManifest = rootManifest
	ws.RootDependencies = rootDeps
	ws.resolveMembers(ws.RootDependencies, root)
	return ws, nil
}

// memberDirs expands workspace.members into sorted, slash-separated
// directories relative to root, minus workspace.exclude.
func memberDirs(root string, m *manifest.Manifest) ([]string, error) {
	fsys := os.DirFS(root)
	seen := map[string]bool{}
	if m.Package != nil {
		seen["."] = true
	}
	excluded := make([]string, 0, len(m.Workspace.Exclude))
	for _, e := range m.Workspace.Exclude {
		excluded = append(excluded, path.Clean(filepath.ToSlash(e)))
	}

	for _, pattern := range m.Workspace.Members {
		pattern = path.Clean(filepath.ToSlash(pattern))
		matches, err := doublestar.Glob(fsys, pattern)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeConfig, err, "workspace member pattern %q", pattern)
		}
		for _, dir := range matches {
			if isExcluded(dir, excluded) {
				continue
			}
			if _, err := os.Stat(filepath.Join(root, filepath.FromSlash(dir), manifest.FileName)); err != nil {
				continue
			}
			seen[dir] = true
		}
	}

	dirs := make([]string, 0, len(seen))
	for d := range seen {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	return dirs, nil
}

func isExcluded(dir string, excluded []string) bool {
	for _, e := range excluded {
		if dir == e || strings.HasPrefix(dir, e+"/") {
			return true
		}
	}
	return false
}

func rootDependencies(m *manifest.Manifest) []Dependency {
	deps := make([]Dependency, 0, len(m.Workspace.Dependencies))
	for _, d := range m.Workspace.Dependencies {
		deps = append(deps, Dependency{Dependency: d})
	}
	return deps
}

func newPackage(root, rel string, m *manifest.Manifest, ws *manifest.Workspace, rootDeps []Dependency) (*Package, error) {
	if err := errors.ValidatePackageName(m.Package.Name); err != nil {
		return nil, err
	}
	pkg := &Package{
		Name:            m.Package.Name,
		Dir:             filepath.Join(root, filepath.FromSlash(rel)),
		RelPath:         rel,
		ManifestPath:    m.Path,
		InheritsVersion: m.Package.InheritsVersion,
		Private:         m.Package.Private,
		Group:           GroupDefault,
	}

	raw := m.Package.Version
	if pkg.InheritsVersion {
		if ws.Version == "" {
			return nil, errors.New(errors.ErrCodeConfig,
				"%s inherits its version but [workspace.package] has none", pkg.Name)
		}
		raw = ws.Version
	}
	v, err := semver.StrictNewVersion(raw)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "%s: version %q", pkg.Name, raw)
	}
	pkg.Version = v

	if pkg.Config, err = DecodePackageConfig(m.Package.Metadata); err != nil {
		return nil, fmt.Errorf("%s: %w", pkg.Name, err)
	}

	for _, d := range m.Dependencies {
		dep := Dependency{Dependency: d}
		if d.Workspace {
			// `dep = { workspace = true }` takes path and requirement from
			// the root table; the path is relative to the root.
			if i := slices.IndexFunc(rootDeps, func(r Dependency) bool { return r.Key == d.Key }); i >= 0 {
				dep.Name = rootDeps[i].Name
				dep.Req = rootDeps[i].Req
				if rootDeps[i].Path != "" {
					abs := filepath.Join(root, filepath.FromSlash(rootDeps[i].Path))
					if r, err := filepath.Rel(pkg.Dir, abs); err == nil {
						dep.Path = filepath.ToSlash(r)
					}
				}
			}
		}
		pkg.Dependencies = append(pkg.Dependencies, dep)
	}
	return pkg, nil
}

// New builds a workspace from package records and validates every
// grouping invariant. Load uses it; tests can call it directly.
func New(root string, pkgs []*Package, cfg Config, opts LoadOptions) (*Workspace, error) {
	ws := &Workspace{
		Root:     root,
		Packages: make(map[string]*Package, len(pkgs)),
		Groups:   make(map[GroupName]*Group),
		Units:    make(map[string]*ReleaseUnit),
		Config:   cfg,
		unitOf:   make(map[string]*ReleaseUnit),
	}

	for _, p := range pkgs {
		if prev, ok := ws.Packages[p.Name]; ok {
			return nil, errors.New(errors.ErrCodeConfig,
				"package name %q is used by both %s and %s", p.Name, prev.RelPath, p.RelPath)
		}
		if p.RelPath == "" {
			p.RelPath = "."
		}
		ws.Packages[p.Name] = p
	}

	if err := cfg.validateGroups(); err != nil {
		return nil, err
	}
	for _, g := range cfg.Groups {
		ws.Groups[GroupName(g.Name)] = &Group{Name: GroupName(g.Name), Patterns: g.Members}
	}

	if err := ws.assignGroups(opts.logger()); err != nil {
		return nil, err
	}
	ws.buildUnits(opts.IncludePrivate)

	for _, name := range ws.SortedNames() {
		p := ws.Packages[name]
		ws.resolveMembers(p.Dependencies, p.Dir)
		ws.owners = append(ws.owners, p)
	}
	sort.SliceStable(ws.owners, func(i, j int) bool {
		a, b := ws.owners[i].RelPath, ws.owners[j].RelPath
		if a == "." || b == "." {
			return b == "." && a != "."
		}
		return len(a) > len(b)
	})
	return ws, nil
}

// assignGroups places every package in excluded, a custom group or
// default. Exclusion patterns take precedence over groups.
func (w *Workspace) assignGroups(logger *log.Logger) error {
	used := make(map[string]bool)

	for _, name := range w.SortedNames() {
		p := w.Packages[name]

		if pattern, ok := matchAny(w.Config.Exclude.Members, p.RelPath); ok {
			used["exclude:"+pattern] = true
			p.Group = GroupExcluded
			continue
		}

		var matched []GroupName
		for _, g := range w.Config.Groups {
			if pattern, ok := matchAny(g.Members, p.RelPath); ok {
				used["group:"+g.Name+":"+pattern] = true
				matched = append(matched, GroupName(g.Name))
			}
		}

		switch {
		case len(matched) > 1:
			return errors.New(errors.ErrCodeConfig,
				"package %s (%s) is matched by multiple groups: %v", p.Name, p.RelPath, matched)
		case len(matched) == 1 && p.InheritsVersion:
			return errors.New(errors.ErrCodeConfig,
				"package %s inherits the workspace version and cannot be in group %q", p.Name, matched[0])
		case len(matched) == 1 && p.Config.Independent:
			return errors.New(errors.ErrCodeConfig,
				"independent package %s cannot be in group %q", p.Name, matched[0])
		case p.InheritsVersion && p.Config.Independent:
			return errors.New(errors.ErrCodeConfig,
				"package %s inherits the workspace version and cannot be independent", p.Name)
		case len(matched) == 1:
			p.Group = matched[0]
			w.Groups[matched[0]].Members = append(w.Groups[matched[0]].Members, p.Name)
		default:
			p.Group = GroupDefault
		}
	}

	for _, pattern := range w.Config.Exclude.Members {
		if !used["exclude:"+pattern] {
			logger.Warn("exclude pattern matches no package", "pattern", pattern)
		}
	}
	for _, g := range w.Config.Groups {
		for _, pattern := range g.Members {
			if !used["group:"+g.Name+":"+pattern] {
				logger.Warn("group pattern matches no package", "group", g.Name, "pattern", pattern)
			}
		}
	}
	return nil
}

func (w *Workspace) buildUnits(includePrivate bool) {
	for _, name := range w.SortedNames() {
		p := w.Packages[name]
		if p.Group == GroupExcluded || (p.Private && !includePrivate) {
			continue
		}

		var key string
		switch {
		case p.Config.Independent:
			key = PackageUnitKey(p.Name)
			w.Units[key] = &ReleaseUnit{Key: key, Kind: UnitIndependent, Group: p.Group}
		case p.Group == GroupDefault:
			key = DefaultUnitKey
			if w.Units[key] == nil {
				w.Units[key] = &ReleaseUnit{Key: key, Kind: UnitFixed, Group: GroupDefault}
			}
		default:
			key = GroupUnitKey(p.Group)
			if w.Units[key] == nil {
				w.Units[key] = &ReleaseUnit{Key: key, Kind: UnitGroup, Group: p.Group}
			}
		}
		w.Units[key].Members = append(w.Units[key].Members, p)
		w.unitOf[p.Name] = w.Units[key]
	}
}

// resolveMembers links path dependencies declared relative to base to the
// workspace package living at that directory.
func (w *Workspace) resolveMembers(deps []Dependency, base string) {
	byDir := make(map[string]string, len(w.Packages))
	for _, p := range w.Packages {
		if p.Dir != "" {
			byDir[filepath.Clean(p.Dir)] = p.Name
		}
	}
	for i := range deps {
		d := &deps[i]
		if d.Member != "" || d.Path == "" {
			continue
		}
		dir := filepath.Clean(filepath.Join(base, filepath.FromSlash(d.Path)))
		if name, ok := byDir[dir]; ok {
			d.Member = name
		}
	}
}
