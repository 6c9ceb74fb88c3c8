package dag

import (
	"slices"
	"strings"
)

// CycleError reports a dependency cycle. Path starts and ends with the same
// node, e.g. [a b c a] for a → b → c → a.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return "dependency cycle: " + strings.Join(e.Path, " -> ")
}

// Is makes errors.Is(err, ErrGraphHasCycle) match.
func (e *CycleError) Is(target error) bool { return target == ErrGraphHasCycle }

// Validate returns a *CycleError if the graph has a cycle.
//
// Nodes are visited in name order with white/gray/black colouring; the
// first back edge found closes the reported path, so the result is
// deterministic for a given graph.
func (d *DAG) Validate() error {
	const (
		white = iota
		gray
		black
	)

	color := make([]int, len(d.nodes))
	var (
		stack []NodeID
		cycle []NodeID
	)

	var dfs func(id NodeID) bool
	dfs = func(id NodeID) bool {
		color[id] = gray
		stack = append(stack, id)
		for _, child := range d.sortedOut(id) {
			switch color[child] {
			case white:
				if dfs(child) {
					return true
				}
			case gray:
				start := slices.Index(stack, child)
				cycle = append(slices.Clone(stack[start:]), child)
				return true
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		return false
	}

	for _, name := range d.Names() {
		id := d.index[name]
		if color[id] == white && dfs(id) {
			path := make([]string, len(cycle))
			for i, c := range cycle {
				path[i] = d.nodes[c].Name
			}
			return &CycleError{Path: path}
		}
	}
	return nil
}

func (d *DAG) sortedOut(id NodeID) []NodeID {
	out := slices.Clone(d.out[id])
	slices.SortFunc(out, func(a, b NodeID) int {
		return strings.Compare(d.nodes[a].Name, d.nodes[b].Name)
	})
	return out
}
