// Package changes decides which packages and release units changed since
// their last release.
//
// Detection works in two halves. [Detector] talks to version control: it
// resolves one reference point per release unit (the most recent tag of
// the unit's tag scheme, or an explicit override) and collects the files
// that differ from it. [Compute] is pure: it maps files to their owning
// packages, applies the force pattern, and closes the result over the
// dependency graph so that every dependent of a changed package is
// changed too.
package changes

import (
	"path"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/matzehuels/cratestack/pkg/dag"
	"github.com/matzehuels/cratestack/pkg/errors"
	"github.com/matzehuels/cratestack/pkg/workspace"
)

// Reason explains why a package is considered changed.
type Reason string

const (
	ReasonDirect     Reason = "direct"
	ReasonForced     Reason = "forced"
	ReasonPropagated Reason = "propagated"
)

// PackageChange is the evidence for one changed package.
type PackageChange struct {
	Name   string   `json:"name" yaml:"name"`
	Reason Reason   `json:"reason" yaml:"reason"`
	Files  []string `json:"files,omitempty" yaml:"files,omitempty"`
	// From is the dependency a propagated change came through.
	From string `json:"from,omitempty" yaml:"from,omitempty"`
	// NeverReleased is set when no reference point exists.
	NeverReleased bool `json:"never_released,omitempty" yaml:"never_released,omitempty"`
}

// UnitChange summarizes one release unit.
type UnitChange struct {
	Key     string   `json:"key" yaml:"key"`
	Changed bool     `json:"changed" yaml:"changed"`
	Members []string `json:"members,omitempty" yaml:"members,omitempty"`
	Ref     string   `json:"ref,omitempty" yaml:"ref,omitempty"`
}

// ChangeSet is the result of change detection. It is computed fresh for
// every run and never persisted.
type ChangeSet struct {
	Packages map[string]*PackageChange `json:"packages" yaml:"packages"`
	Units    map[string]*UnitChange    `json:"units" yaml:"units"`
}

// Changed reports whether the named package changed.
func (c *ChangeSet) Changed(name string) bool {
	_, ok := c.Packages[name]
	return ok
}

// ChangedPackages returns the names of changed packages in order.
func (c *ChangeSet) ChangedPackages() []string {
	names := make([]string, 0, len(c.Packages))
	for name := range c.Packages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ChangedUnits returns the keys of changed units in order.
func (c *ChangeSet) ChangedUnits() []string {
	var keys []string
	for key, u := range c.Units {
		if u.Changed {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// Input is everything [Compute] needs from version control.
type Input struct {
	// Refs maps each package to the reference its changes are measured
	// against. An empty or missing reference means the package was never
	// released.
	Refs map[string]string
	// Diffs holds, per reference, the changed files as slash-separated
	// paths relative to the workspace root.
	Diffs map[string][]string
	// Ignore drops matching files before ownership is decided.
	Ignore string
	// Force marks matching packages (by name or path) changed; "*" forces
	// every package.
	Force string
}

// Compute derives the change set. It is monotonic in Diffs: adding files
// can only add packages to the result.
func Compute(ws *workspace.Workspace, g *dag.DAG, in Input) (*ChangeSet, error) {
	if err := validateGlob(in.Ignore); err != nil {
		return nil, err
	}
	if err := validateGlob(in.Force); err != nil {
		return nil, err
	}

	owned := make(map[string][]string)
	refs := make([]string, 0, len(in.Diffs))
	for ref := range in.Diffs {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	for _, ref := range refs {
		for _, file := range in.Diffs[ref] {
			file = path.Clean(file)
			if in.Ignore != "" && matchFile(in.Ignore, file) {
				continue
			}
			owner := ws.Owner(file)
			if owner == "" || in.Refs[owner] != ref {
				continue
			}
			owned[owner] = append(owned[owner], file)
		}
	}

	cs := &ChangeSet{
		Packages: make(map[string]*PackageChange),
		Units:    make(map[string]*UnitChange),
	}

	var seeds []string
	for _, name := range ws.SortedNames() {
		p := ws.Packages[name]
		switch {
		case in.Refs[name] == "":
			cs.Packages[name] = &PackageChange{Name: name, Reason: ReasonDirect, NeverReleased: true}
		case len(owned[name]) > 0:
			files := owned[name]
			sort.Strings(files)
			cs.Packages[name] = &PackageChange{Name: name, Reason: ReasonDirect, Files: files}
		case in.Force != "" && matchPackage(in.Force, p):
			cs.Packages[name] = &PackageChange{Name: name, Reason: ReasonForced}
		default:
			continue
		}
		seeds = append(seeds, name)
	}

	for name, from := range g.Dependents(seeds) {
		if _, ok := cs.Packages[name]; ok {
			continue
		}
		if _, ok := ws.Packages[name]; !ok {
			continue
		}
		cs.Packages[name] = &PackageChange{Name: name, Reason: ReasonPropagated, From: from}
	}

	for key, u := range ws.Units {
		uc := &UnitChange{Key: key}
		if len(u.Members) > 0 {
			uc.Ref = in.Refs[u.Members[0].Name]
		}
		for _, p := range u.Members {
			if cs.Changed(p.Name) {
				uc.Members = append(uc.Members, p.Name)
			}
		}
		uc.Changed = len(uc.Members) > 0
		cs.Units[key] = uc
	}
	return cs, nil
}

func validateGlob(pattern string) error {
	if pattern != "" && !doublestar.ValidatePattern(pattern) {
		return errors.New(errors.ErrCodeInvalidInput, "invalid glob %q", pattern)
	}
	return nil
}

// matchFile matches a root-relative path. Patterns without a slash also
// match the file's base name, so "*.md" ignores Markdown files anywhere.
func matchFile(pattern, file string) bool {
	if ok, _ := doublestar.Match(pattern, file); ok {
		return true
	}
	if !strings.Contains(pattern, "/") {
		ok, _ := doublestar.Match(pattern, path.Base(file))
		return ok
	}
	return false
}

func matchPackage(pattern string, p *workspace.Package) bool {
	if pattern == "*" {
		return true
	}
	if ok, _ := doublestar.Match(pattern, p.Name); ok {
		return true
	}
	ok, _ := doublestar.Match(pattern, p.RelPath)
	return ok
}
