package nodelink

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/matzehuels/cratestack/pkg/dag"
)

// Options configures node-link diagram rendering.
type Options struct {
	// Detailed adds every metadata entry to node labels. Otherwise labels
	// show name and version.
	Detailed bool
	// Highlight marks packages to fill, e.g. the changed set.
	Highlight map[string]bool
}

// ToDOT converts the graph to Graphviz DOT. Nodes in the same publish
// layer share a rank; a cyclic graph is drawn without ranks.
func ToDOT(g *dag.DAG, opts Options) string {
	var buf bytes.Buffer
	buf.WriteString("digraph workspace {\n")
	buf.WriteString("  rankdir=BT;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontname=\"Helvetica\", margin=\"0.2,0.1\"];\n")
	buf.WriteString("  ranksep=0.5;\n")
	buf.WriteString("  nodesep=0.3;\n")
	buf.WriteString("\n")

	for _, name := range g.Names() {
		n, _ := g.Node(name)
		attrs := fmtAttrs(*n, fmtLabel(*n, opts.Detailed), opts.Highlight[name])
		fmt.Fprintf(&buf, "  %q [%s];\n", name, strings.Join(attrs, ", "))
	}

	if layers, err := g.Layers(); err == nil && len(layers) > 1 {
		buf.WriteString("\n")
		for _, layer := range layers {
			quoted := make([]string, len(layer))
			for i, name := range layer {
				quoted[i] = strconv.Quote(name)
			}
			fmt.Fprintf(&buf, "  { rank=same; %s; }\n", strings.Join(quoted, "; "))
		}
	}

	buf.WriteString("\n")
	for _, e := range g.Edges() {
		fmt.Fprintf(&buf, "  %q -> %q;\n", e.From, e.To)
	}

	buf.WriteString("}\n")
	return buf.String()
}

func fmtLabel(n dag.Node, detailed bool) string {
	if !detailed {
		if v, ok := n.Meta["version"]; ok {
			return fmt.Sprintf("%s\n%v", n.Name, v)
		}
		return n.Name
	}

	var parts []string
	for _, k := range slices.Sorted(maps.Keys(n.Meta)) {
		parts = append(parts, fmt.Sprintf("%s: %v", k, n.Meta[k]))
	}
	return n.Name + "\n" + strings.Join(parts, "\n")
}

func fmtAttrs(n dag.Node, label string, highlight bool) []string {
	attrs := []string{fmt.Sprintf("label=%q", label)}
	style := "rounded,filled"
	if private, _ := n.Meta["private"].(bool); private {
		style += ",dashed"
		attrs = append(attrs, "fontcolor=grey40")
	}
	attrs = append(attrs, fmt.Sprintf("style=%q", style))
	if highlight {
		attrs = append(attrs, "fillcolor=\"#ffe08a\"")
	}
	return attrs
}

// RenderSVG renders DOT source to SVG using Graphviz.
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return normalizeViewBox(buf.Bytes()), nil
}

var (
	svgTagRe  = regexp.MustCompile(`<svg[^>]*>`)
	viewBoxRe = regexp.MustCompile(`viewBox="([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)"`)
)

// normalizeViewBox rewrites the root element so the drawing scales with
// its container.
func normalizeViewBox(svg []byte) []byte {
	match := viewBoxRe.FindSubmatch(svg)
	if match == nil {
		return svg
	}

	w, _ := strconv.ParseFloat(string(match[3]), 64)
	h, _ := strconv.ParseFloat(string(match[4]), 64)
	if w == 0 || h == 0 {
		return svg
	}

	root := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %.2f %.2f" width="%.0f" height="%.0f">`,
		w, h, w, h)
	return svgTagRe.ReplaceAll(svg, []byte(root))
}
