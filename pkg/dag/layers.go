package dag

import (
	"slices"
)

// Layers groups nodes for dependency-first processing using Kahn's
// algorithm. Layer 0 holds nodes without dependencies; every later layer
// holds the nodes whose dependencies all sit in earlier layers. Names
// within a layer are sorted.
//
// A cyclic graph yields the *CycleError from [DAG.Validate].
func (d *DAG) Layers() ([][]string, error) {
	remaining := make([]int, len(d.nodes))
	var current []NodeID
	for _, n := range d.nodes {
		remaining[n.ID] = len(d.out[n.ID])
		if remaining[n.ID] == 0 {
			current = append(current, n.ID)
		}
	}

	var (
		layers [][]string
		placed int
	)
	for len(current) > 0 {
		layer := make([]string, len(current))
		for i, id := range current {
			layer[i] = d.nodes[id].Name
		}
		slices.Sort(layer)
		layers = append(layers, layer)
		placed += len(current)

		var next []NodeID
		for _, id := range current {
			for _, parent := range d.in[id] {
				remaining[parent]--
				if remaining[parent] == 0 {
					next = append(next, parent)
				}
			}
		}
		current = next
	}

	if placed != len(d.nodes) {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		return nil, ErrGraphHasCycle
	}
	return layers, nil
}

// Order flattens [DAG.Layers] into a single dependency-first sequence.
func (d *DAG) Order() ([]string, error) {
	layers, err := d.Layers()
	if err != nil {
		return nil, err
	}
	var order []string
	for _, l := range layers {
		order = append(order, l...)
	}
	return order, nil
}

// Dependents returns the transitive reverse closure of seeds: every node
// that depends, directly or not, on a seed. Seeds themselves are not
// included unless they depend on another seed. The value for each node
// is the dependency through which it was first reached, walking
// breadth-first in name order.
func (d *DAG) Dependents(seeds []string) map[string]string {
	from := make(map[string]string)
	seen := make([]bool, len(d.nodes))

	var queue []NodeID
	sorted := slices.Clone(seeds)
	slices.Sort(sorted)
	for _, s := range sorted {
		if id, ok := d.index[s]; ok && !seen[id] {
			seen[id] = true
			queue = append(queue, id)
		}
	}

	for len(queue) > 0 {
		curr := queue[0]
		queue = queue[1:]
		for _, parent := range d.Parents(d.nodes[curr].Name) {
			pid := d.index[parent]
			if _, ok := from[parent]; ok {
				continue
			}
			from[parent] = d.nodes[curr].Name
			if !seen[pid] {
				seen[pid] = true
				queue = append(queue, pid)
			}
		}
	}
	return from
}
