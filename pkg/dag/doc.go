// Package dag provides the dependency graph between workspace packages.
//
// # Overview
//
// Nodes live in an arena and are addressed by stable integer handles
// ([NodeID]); callers mostly work with package names. An edge From → To
// means "From depends on To". Packages that depend on each other never
// hold references to one another, only handles into the arena.
//
// # Basic Usage
//
//	g := dag.New(nil)
//	g.AddNode("app", nil)
//	g.AddNode("lib", nil)
//	g.AddEdge("app", "lib")
//
//	if err := g.Validate(); err != nil {
//	    var cycle *dag.CycleError
//	    errors.As(err, &cycle) // cycle.Path = [a b a]
//	}
//
// # Algorithms
//
//   - [DAG.Validate]: depth-first search with white/gray/black colouring;
//     the first back edge is reported with the full cycle path.
//   - [DAG.Layers]: Kahn's algorithm peeling dependency-free nodes first.
//     Ties are broken by name so output is stable.
//   - [DAG.Dependents]: reverse transitive closure, used to propagate
//     changes from a package to everything that depends on it.
//   - [DAG.Subgraph]: induced subgraph, used to drop private packages
//     before publishing.
package dag
