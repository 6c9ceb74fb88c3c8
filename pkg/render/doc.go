// Package render groups the graph renderers. [nodelink] draws the
// workspace dependency graph as a Graphviz node-link diagram.
//
// [nodelink]: github.com/matzehuels/cratestack/pkg/render/nodelink
package render
