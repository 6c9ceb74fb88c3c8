package manifest

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// FileName is the manifest file name inside every package directory.
const FileName = "Cargo.toml"

// Kind classifies a dependency table.
type Kind string

const (
	KindNormal Kind = "normal"
	KindDev    Kind = "dev"
	KindBuild  Kind = "build"
)

// Manifest is a parsed Cargo.toml.
type Manifest struct {
	Path         string
	Raw          []byte
	Package      *Package   // nil for a virtual manifest
	Workspace    *Workspace // nil unless the file declares [workspace]
	Dependencies []Dependency
}

// Package is the [package] table.
type Package struct {
	Name string
	// Version is empty when InheritsVersion is set.
	Version         string
	InheritsVersion bool
	// Private is true for `publish = false` and `publish = []`.
	Private  bool
	Metadata map[string]any
}

// Workspace is the [workspace] table of a root manifest.
type Workspace struct {
	Members []string
	Exclude []string
	// Version is [workspace.package].version, if declared.
	Version      string
	Dependencies []Dependency
	Metadata     map[string]any
}

// Dependency is one entry of a dependency table.
type Dependency struct {
	// Key is the key used in the manifest.
	Key string
	// Name is the depended-on package; it differs from Key when the entry
	// renames the dependency with `package = "..."`.
	Name string
	Req  string
	Path string
	Kind Kind
	// Target is the cfg expression of a [target.<cfg>.*] table.
	Target string
	// Workspace marks `dep = { workspace = true }` entries.
	Workspace bool
	// Section is the header path of the table holding the entry.
	Section []string
}

// IsPath reports whether the dependency resolves to a local directory.
func (d Dependency) IsPath() bool { return d.Path != "" }

type cargoFile struct {
	Package *struct {
		Name     string         `toml:"name"`
		Version  any            `toml:"version"`
		Publish  any            `toml:"publish"`
		Metadata map[string]any `toml:"metadata"`
	} `toml:"package"`
	Workspace *struct {
		Members      []string       `toml:"members"`
		Exclude      []string       `toml:"exclude"`
		Package      map[string]any `toml:"package"`
		Dependencies map[string]any `toml:"dependencies"`
		Metadata     map[string]any `toml:"metadata"`
	} `toml:"workspace"`
	Dependencies      map[string]any `toml:"dependencies"`
	DevDependencies   map[string]any `toml:"dev-dependencies"`
	BuildDependencies map[string]any `toml:"build-dependencies"`
	Target            map[string]struct {
		Dependencies      map[string]any `toml:"dependencies"`
		DevDependencies   map[string]any `toml:"dev-dependencies"`
		BuildDependencies map[string]any `toml:"build-dependencies"`
	} `toml:"target"`
}

// Load reads and parses the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	m.Path = path
	return m, nil
}

// Parse decodes manifest bytes.
func Parse(data []byte) (*Manifest, error) {
	var cargo cargoFile
	if err := toml.Unmarshal(data, &cargo); err != nil {
		return nil, err
	}

	m := &Manifest{Raw: data}

	if p := cargo.Package; p != nil {
		pkg := &Package{Name: p.Name, Metadata: p.Metadata}
		switch v := p.Version.(type) {
		case string:
			pkg.Version = v
		case map[string]any:
			pkg.InheritsVersion = v["workspace"] == true
		case nil:
			// Cargo defaults a missing version to 0.0.0.
			pkg.Version = "0.0.0"
		default:
			return nil, fmt.Errorf("package.version: unexpected type %T", v)
		}
		switch v := p.Publish.(type) {
		case bool:
			pkg.Private = !v
		case []any:
			pkg.Private = len(v) == 0
		}
		m.Package = pkg
	}

	if w := cargo.Workspace; w != nil {
		ws := &Workspace{
			Members:  w.Members,
			Exclude:  w.Exclude,
			Metadata: w.Metadata,
		}
		if v, ok := w.Package["version"].(string); ok {
			ws.Version = v
		}
		ws.Dependencies = extractDeps(w.Dependencies, KindNormal, "", []string{"workspace", "dependencies"})
		m.Workspace = ws
	}

	m.Dependencies = append(m.Dependencies, extractDeps(cargo.Dependencies, KindNormal, "", []string{"dependencies"})...)
	m.Dependencies = append(m.Dependencies, extractDeps(cargo.DevDependencies, KindDev, "", []string{"dev-dependencies"})...)
	m.Dependencies = append(m.Dependencies, extractDeps(cargo.BuildDependencies, KindBuild, "", []string{"build-dependencies"})...)

	targets := make([]string, 0, len(cargo.Target))
	for t := range cargo.Target {
		targets = append(targets, t)
	}
	sort.Strings(targets)
	for _, t := range targets {
		tt := cargo.Target[t]
		m.Dependencies = append(m.Dependencies, extractDeps(tt.Dependencies, KindNormal, t, []string{"target", t, "dependencies"})...)
		m.Dependencies = append(m.Dependencies, extractDeps(tt.DevDependencies, KindDev, t, []string{"target", t, "dev-dependencies"})...)
		m.Dependencies = append(m.Dependencies, extractDeps(tt.BuildDependencies, KindBuild, t, []string{"target", t, "build-dependencies"})...)
	}

	return m, nil
}

// extractDeps flattens a dependency table in key order.
func extractDeps(table map[string]any, kind Kind, target string, section []string) []Dependency {
	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	deps := make([]Dependency, 0, len(keys))
	for _, key := range keys {
		d := Dependency{Key: key, Name: key, Kind: kind, Target: target, Section: section}
		switch v := table[key].(type) {
		case string:
			d.Req = v
		case map[string]any:
			if s, ok := v["version"].(string); ok {
				d.Req = s
			}
			if s, ok := v["path"].(string); ok {
				d.Path = s
			}
			if s, ok := v["package"].(string); ok && s != "" {
				d.Name = s
			}
			d.Workspace = v["workspace"] == true
		}
		deps = append(deps, d)
	}
	return deps
}

// SectionString renders a header path the way it would appear in the file.
func SectionString(section []string) string {
	parts := make([]string, len(section))
	for i, p := range section {
		if isBareKey(p) {
			parts[i] = p
		} else {
			parts[i] = "'" + p + "'"
		}
	}
	return strings.Join(parts, ".")
}

func isBareKey(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_') {
			return false
		}
	}
	return true
}
