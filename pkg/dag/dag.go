package dag

import (
	"errors"
	"slices"
)

var (
	// ErrInvalidNodeID is returned by [DAG.AddNode] when the name is empty.
	ErrInvalidNodeID = errors.New("node name must not be empty")

	// ErrDuplicateNodeID is returned by [DAG.AddNode] when a node with the
	// same name already exists in the graph.
	ErrDuplicateNodeID = errors.New("duplicate node name")

	// ErrUnknownSourceNode is returned by [DAG.AddEdge] when the From node
	// does not exist.
	ErrUnknownSourceNode = errors.New("unknown source node")

	// ErrUnknownTargetNode is returned by [DAG.AddEdge] when the To node
	// does not exist in the graph.
	ErrUnknownTargetNode = errors.New("unknown target node")

	// ErrGraphHasCycle is matched by every [*CycleError].
	ErrGraphHasCycle = errors.New("graph contains a cycle")
)

// Metadata stores arbitrary key-value pairs attached to nodes or the graph.
// Metadata maps are never nil once a node is added.
type Metadata map[string]any

// NodeID is a stable integer handle into the node arena. Handles are
// assigned in insertion order and never reused.
type NodeID int

// Node is a vertex of the graph.
type Node struct {
	ID   NodeID
	Name string
	Meta Metadata
}

// Edge is a directed "depends on" relation: From depends on To.
type Edge struct {
	From string
	To   string
}

// DAG is a directed graph of named nodes stored in an arena. Edges point
// from a dependent to its dependency. Adding an edge never checks for
// cycles; call [DAG.Validate] once the graph is built.
//
// The zero value is not usable - use New to create a valid DAG instance.
// DAG is not safe for concurrent use without external synchronization.
type DAG struct {
	nodes []Node
	index map[string]NodeID
	out   [][]NodeID // dependencies
	in    [][]NodeID // dependents
	edges int
	meta  Metadata
}

// New creates an empty DAG with optional graph-level metadata.
func New(meta Metadata) *DAG {
	if meta == nil {
		meta = Metadata{}
	}
	return &DAG{
		index: make(map[string]NodeID),
		meta:  meta,
	}
}

// Meta returns the graph-level metadata map.
func (d *DAG) Meta() Metadata { return d.meta }

// AddNode appends a node and returns its handle.
func (d *DAG) AddNode(name string, meta Metadata) (NodeID, error) {
	if name == "" {
		return 0, ErrInvalidNodeID
	}
	if _, exists := d.index[name]; exists {
		return 0, ErrDuplicateNodeID
	}
	if meta == nil {
		meta = Metadata{}
	}
	id := NodeID(len(d.nodes))
	d.nodes = append(d.nodes, Node{ID: id, Name: name, Meta: meta})
	d.out = append(d.out, nil)
	d.in = append(d.in, nil)
	d.index[name] = id
	return id, nil
}

// AddEdge records that from depends on to. Duplicate edges are ignored.
func (d *DAG) AddEdge(from, to string) error {
	f, ok := d.index[from]
	if !ok {
		return ErrUnknownSourceNode
	}
	t, ok := d.index[to]
	if !ok {
		return ErrUnknownTargetNode
	}
	if slices.Contains(d.out[f], t) {
		return nil
	}
	d.out[f] = append(d.out[f], t)
	d.in[t] = append(d.in[t], f)
	d.edges++
	return nil
}

// Lookup returns the handle of the named node.
func (d *DAG) Lookup(name string) (NodeID, bool) {
	id, ok := d.index[name]
	return id, ok
}

// Node returns the node with the given name.
func (d *DAG) Node(name string) (*Node, bool) {
	id, ok := d.index[name]
	if !ok {
		return nil, false
	}
	return &d.nodes[id], true
}

// Nodes returns all nodes in insertion order.
func (d *DAG) Nodes() []Node { return slices.Clone(d.nodes) }

// Names returns all node names sorted lexicographically.
func (d *DAG) Names() []string {
	names := make([]string, len(d.nodes))
	for i, n := range d.nodes {
		names[i] = n.Name
	}
	slices.Sort(names)
	return names
}

// Edges returns every edge, ordered by source then target name.
func (d *DAG) Edges() []Edge {
	edges := make([]Edge, 0, d.edges)
	for _, from := range d.Names() {
		for _, to := range d.Children(from) {
			edges = append(edges, Edge{From: from, To: to})
		}
	}
	return edges
}

// NodeCount returns the number of nodes in the graph.
func (d *DAG) NodeCount() int { return len(d.nodes) }

// EdgeCount returns the number of edges in the graph.
func (d *DAG) EdgeCount() int { return d.edges }

// Children returns the sorted names of the node's dependencies.
func (d *DAG) Children(name string) []string {
	id, ok := d.index[name]
	if !ok {
		return nil
	}
	return d.names(d.out[id])
}

// Parents returns the sorted names of the node's direct dependents.
func (d *DAG) Parents(name string) []string {
	id, ok := d.index[name]
	if !ok {
		return nil
	}
	return d.names(d.in[id])
}

func (d *DAG) names(ids []NodeID) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = d.nodes[id].Name
	}
	slices.Sort(out)
	return out
}

// Subgraph returns the graph induced by the nodes for which keep returns
// true. Handles are renumbered; node metadata is shared.
func (d *DAG) Subgraph(keep func(name string) bool) *DAG {
	sub := New(d.meta)
	for _, n := range d.nodes {
		if keep(n.Name) {
			_, _ = sub.AddNode(n.Name, n.Meta)
		}
	}
	for _, n := range d.nodes {
		if _, ok := sub.index[n.Name]; !ok {
			continue
		}
		for _, t := range d.out[n.ID] {
			if _, ok := sub.index[d.nodes[t].Name]; ok {
				_ = sub.AddEdge(n.Name, d.nodes[t].Name)
			}
		}
	}
	return sub
}
