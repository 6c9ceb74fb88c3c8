package workspace

import (
	"github.com/matzehuels/cratestack/pkg/dag"
	"github.com/matzehuels/cratestack/pkg/errors"
	"github.com/matzehuels/cratestack/pkg/manifest"
)

// GraphOptions configures [BuildGraph].
type GraphOptions struct {
	// IncludeDev adds dev-dependency edges. Publishing never needs them.
	IncludeDev bool
	// AllowCycles skips cycle validation, for display only.
	AllowCycles bool
}

// BuildGraph builds the dependency graph between workspace packages. Only
// path dependencies on other members produce edges; registry-only
// references never order a publish.
//
// Node metadata carries "version", "private", "group" and "path".
func BuildGraph(ws *Workspace, opts GraphOptions) (*dag.DAG, error) {
	g := dag.New(dag.Metadata{"root": ws.Root})
	for _, name := range ws.SortedNames() {
		p := ws.Packages[name]
		if _, err := g.AddNode(name, dag.Metadata{
			"version": p.Version.String(),
			"private": p.Private,
			"group":   string(p.Group),
			"path":    p.RelPath,
		}); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInternal, err, "add %s", name)
		}
	}

	for _, name := range ws.SortedNames() {
		for _, d := range ws.Packages[name].Dependencies {
			if d.Member == "" {
				continue
			}
			if d.Kind == manifest.KindDev && !opts.IncludeDev {
				continue
			}
			if err := g.AddEdge(name, d.Member); err != nil {
				return nil, errors.Wrap(errors.ErrCodeInternal, err, "add %s -> %s", name, d.Member)
			}
		}
	}

	if !opts.AllowCycles {
		if err := g.Validate(); err != nil {
			return nil, errors.Wrap(errors.ErrCodeGraph, err, "path dependencies must be acyclic")
		}
	}
	return g, nil
}
