package changes

import (
	"context"
	"sort"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/cratestack/pkg/dag"
	"github.com/matzehuels/cratestack/pkg/workspace"
)

// VCS is the version-control view change detection needs.
type VCS interface {
	// LatestTag returns the most recent tag reachable from HEAD matching
	// any of the glob patterns (all tags when none are given), or "" when
	// there is none.
	LatestTag(ctx context.Context, patterns []string, firstParent bool) (string, error)
	// ChangedFiles lists root-relative files that differ between ref and
	// the working tree.
	ChangedFiles(ctx context.Context, ref string) ([]string, error)
}

// Options configures change detection.
type Options struct {
	// Since overrides the per-unit reference point.
	Since string
	// IgnoreChanges is a glob of files that never count as changes.
	IgnoreChanges string
	// ForcePattern marks matching packages changed; "*" forces all.
	ForcePattern string
	// IncludeMergedTags also considers tags on merged branches instead of
	// walking first-parent history only.
	IncludeMergedTags bool
	// TagPrefix prefixes the fixed unit's tag, e.g. "v".
	TagPrefix string
	// IndividualTagPrefix prefixes per-package tags; %n is the name.
	IndividualTagPrefix string
}

// WithDefaults returns a copy of o with an empty individual prefix
// defaulted. An empty TagPrefix is valid.
func (o Options) WithDefaults() Options {
	if o.IndividualTagPrefix == "" {
		o.IndividualTagPrefix = "%n@"
	}
	return o
}

// Detector runs change detection against a repository.
type Detector struct {
	VCS    VCS
	Logger *log.Logger
}

func (d *Detector) logger() *log.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return log.Default()
}

// Detect resolves reference points, diffs against each of them once, and
// computes the change set.
func (d *Detector) Detect(ctx context.Context, ws *workspace.Workspace, g *dag.DAG, opts Options) (*ChangeSet, error) {
	opts = opts.WithDefaults()

	resolved := make(map[string]string) // pattern set → tag
	resolve := func(patterns []string) (string, error) {
		key := strings.Join(patterns, "\x00")
		if ref, ok := resolved[key]; ok {
			return ref, nil
		}
		ref, err := d.VCS.LatestTag(ctx, patterns, !opts.IncludeMergedTags)
		if err != nil {
			return "", err
		}
		if ref == "" && len(patterns) > 0 {
			// No tag of this scheme yet: fall back to any tag.
			if ref, err = d.VCS.LatestTag(ctx, nil, !opts.IncludeMergedTags); err != nil {
				return "", err
			}
		}
		resolved[key] = ref
		return ref, nil
	}

	refs := make(map[string]string, len(ws.Packages))
	for _, u := range ws.SortedUnits() {
		ref := opts.Since
		if ref == "" {
			var err error
			if ref, err = resolve(TagPatterns(u, opts.TagPrefix, opts.IndividualTagPrefix)); err != nil {
				return nil, err
			}
		}
		d.logger().Debug("reference point", "unit", u.Key, "ref", ref)
		for _, p := range u.Members {
			refs[p.Name] = ref
		}
	}

	// Packages outside every unit still propagate changes; measure them
	// against the fixed unit's scheme.
	for _, name := range ws.SortedNames() {
		if _, ok := refs[name]; ok {
			continue
		}
		ref := opts.Since
		if ref == "" {
			var err error
			if ref, err = resolve([]string{versionGlob(opts.TagPrefix)}); err != nil {
				return nil, err
			}
		}
		refs[name] = ref
	}

	distinct := make(map[string]bool)
	for _, ref := range refs {
		if ref != "" {
			distinct[ref] = true
		}
	}
	ordered := make([]string, 0, len(distinct))
	for ref := range distinct {
		ordered = append(ordered, ref)
	}
	sort.Strings(ordered)

	diffs := make(map[string][]string, len(ordered))
	for _, ref := range ordered {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		files, err := d.VCS.ChangedFiles(ctx, ref)
		if err != nil {
			return nil, err
		}
		d.logger().Debug("diff", "ref", ref, "files", len(files))
		diffs[ref] = files
	}

	return Compute(ws, g, Input{
		Refs:   refs,
		Diffs:  diffs,
		Ignore: opts.IgnoreChanges,
		Force:  opts.ForcePattern,
	})
}

// TagPatterns returns the tag globs identifying a release of u.
func TagPatterns(u *workspace.ReleaseUnit, tagPrefix, individualPrefix string) []string {
	switch u.Kind {
	case workspace.UnitFixed:
		return []string{versionGlob(tagPrefix)}
	default:
		patterns := make([]string, 0, len(u.Members))
		for _, p := range u.Members {
			patterns = append(patterns, versionGlob(IndividualPrefix(individualPrefix, p.Name)))
		}
		return patterns
	}
}

// IndividualPrefix expands %n in an individual tag prefix.
func IndividualPrefix(template, name string) string {
	return strings.ReplaceAll(template, "%n", name)
}

// versionGlob matches prefix followed by a version number, so "v" never
// matches a "vendor@1.0.0" tag.
func versionGlob(prefix string) string {
	return escapeGlob(prefix) + "[0-9]*"
}

func escapeGlob(s string) string {
	r := strings.NewReplacer("*", `\*`, "?", `\?`, "[", `\[`)
	return r.Replace(s)
}
