package workspace

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/matzehuels/cratestack/pkg/errors"
	"github.com/matzehuels/cratestack/pkg/manifest"
)

// GroupName identifies the group a package belongs to.
type GroupName string

const (
	// GroupDefault holds every ungrouped, non-excluded package.
	GroupDefault GroupName = "default"
	// GroupExcluded holds packages opted out of versioning.
	GroupExcluded GroupName = "excluded"
)

// IsReserved reports whether the name cannot be declared by configuration.
func (g GroupName) IsReserved() bool {
	return g == GroupDefault || g == GroupExcluded
}

// Package is a workspace member.
type Package struct {
	Name         string
	Dir          string // absolute
	RelPath      string // slash-separated, "." for the root package
	ManifestPath string
	Version      *semver.Version
	// InheritsVersion is set for `version.workspace = true`.
	InheritsVersion bool
	Dependencies    []Dependency
	Private         bool
	Config          PackageConfig
	Group           GroupName
}

// Dependency is a manifest dependency entry, resolved against the
// workspace.
type Dependency struct {
	manifest.Dependency
	// Member is the workspace package a path dependency resolves to. It is
	// empty for registry dependencies and for paths leading outside the
	// workspace.
	Member string
}

// Group is a declared package group.
type Group struct {
	Name     GroupName
	Patterns []string
	Members  []string
}

// UnitKind is the versioning policy of a release unit.
type UnitKind string

const (
	UnitFixed       UnitKind = "fixed"
	UnitGroup       UnitKind = "group"
	UnitIndependent UnitKind = "independent"
)

// ReleaseUnit is the granularity at which one version is shared.
type ReleaseUnit struct {
	Key     string
	Kind    UnitKind
	Group   GroupName
	Members []*Package // sorted by name
}

// DefaultUnitKey is the key of the shared fixed unit.
const DefaultUnitKey = "default"

// GroupUnitKey returns the key of a group's unit.
func GroupUnitKey(g GroupName) string { return "group:" + string(g) }

// PackageUnitKey returns the key of an independent package's unit.
func PackageUnitKey(name string) string { return "pkg:" + name }

// Names returns the member names in order.
func (u *ReleaseUnit) Names() []string {
	names := make([]string, len(u.Members))
	for i, p := range u.Members {
		names[i] = p.Name
	}
	return names
}

// CurrentVersion returns the version shared by all members. Members that
// disagree are a configuration error.
func (u *ReleaseUnit) CurrentVersion() (*semver.Version, error) {
	if len(u.Members) == 0 {
		return nil, errors.New(errors.ErrCodeInternal, "release unit %s has no members", u.Key)
	}
	v := u.Members[0].Version
	for _, p := range u.Members[1:] {
		if !p.Version.Equal(v) {
			var found []string
			for _, m := range u.Members {
				found = append(found, fmt.Sprintf("%s@%s", m.Name, m.Version))
			}
			return nil, errors.New(errors.ErrCodeConfig,
				"members of %s must share one version, found %s", u.Key, strings.Join(found, ", "))
		}
	}
	return v, nil
}

// Workspace is the loaded workspace.
type Workspace struct {
	Root         string
	RootManifest *manifest.Manifest
	Packages     map[string]*Package
	Groups       map[GroupName]*Group
	Units        map[string]*ReleaseUnit
	Config       Config
	// RootDependencies is the resolved [workspace.dependencies] table.
	RootDependencies []Dependency

	owners []*Package // sorted by descending RelPath length
	unitOf map[string]*ReleaseUnit
}

// Package returns the named package.
func (w *Workspace) Package(name string) (*Package, bool) {
	p, ok := w.Packages[name]
	return p, ok
}

// SortedNames returns all package names in order.
func (w *Workspace) SortedNames() []string {
	names := make([]string, 0, len(w.Packages))
	for name := range w.Packages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Owner returns the package whose directory is the longest prefix of the
// slash-separated, root-relative file path. The root package owns only
// files no other package owns. It returns "" for files outside every
// package.
func (w *Workspace) Owner(relFile string) string {
	relFile = path.Clean(relFile)
	for _, p := range w.owners {
		if p.RelPath == "." || relFile == p.RelPath || strings.HasPrefix(relFile, p.RelPath+"/") {
			return p.Name
		}
	}
	return ""
}

// UnitOf returns the release unit the package belongs to, or nil for
// excluded (and, unless requested, private) packages.
func (w *Workspace) UnitOf(name string) *ReleaseUnit {
	return w.unitOf[name]
}

// SortedUnits returns units in release order: the default unit, then
// groups by name, then independent packages by name.
func (w *Workspace) SortedUnits() []*ReleaseUnit {
	units := make([]*ReleaseUnit, 0, len(w.Units))
	for _, u := range w.Units {
		units = append(units, u)
	}
	rank := map[UnitKind]int{UnitFixed: 0, UnitGroup: 1, UnitIndependent: 2}
	sort.Slice(units, func(i, j int) bool {
		if rank[units[i].Kind] != rank[units[j].Kind] {
			return rank[units[i].Kind] < rank[units[j].Kind]
		}
		return units[i].Key < units[j].Key
	})
	return units
}

// GroupFilter selects packages by group. An empty filter selects every
// package.
type GroupFilter map[GroupName]bool

// Match reports whether p is selected.
func (f GroupFilter) Match(p *Package) bool {
	return len(f) == 0 || f[p.Group]
}

// FilterGroups resolves group names given on the command line. The
// reserved default and excluded groups are always accepted; any other
// name must be declared.
func (w *Workspace) FilterGroups(names []string) (GroupFilter, error) {
	f := make(GroupFilter, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if err := errors.ValidateGroupName(n); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "--groups")
		}
		g := GroupName(n)
		if _, ok := w.Groups[g]; !ok && !g.IsReserved() {
			return nil, errors.New(errors.ErrCodeInvalidInput, "unknown group %q", n)
		}
		f[g] = true
	}
	return f, nil
}
