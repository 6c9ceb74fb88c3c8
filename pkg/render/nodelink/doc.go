// Package nodelink renders the workspace dependency graph as a node-link
// diagram.
//
// [ToDOT] produces Graphviz DOT source with one box per package and an
// arrow from each package to the packages it depends on. Nodes are ranked
// by publish layer so dependencies sit at the bottom. Private packages
// are dashed; packages passed in Options.Highlight (typically the changed
// set) are filled.
//
// [RenderSVG] lays the DOT out in-process with
// [github.com/goccy/go-graphviz].
package nodelink
