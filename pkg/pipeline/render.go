package pipeline

import (
	"context"
	"fmt"

	"github.com/matzehuels/cratestack/pkg/render/nodelink"
)

// Graph renders the workspace dependency graph in format. Packages in
// highlight are filled.
func (r *Runner) Graph(ctx context.Context, opts Options, format string, highlight map[string]bool) ([]byte, error) {
	if err := ValidateGraphFormat(format); err != nil {
		return nil, err
	}
	_, g, err := r.Load(ctx, opts)
	if err != nil {
		return nil, err
	}
	dot := nodelink.ToDOT(g, nodelink.Options{Detailed: true, Highlight: highlight})
	switch format {
	case FormatSVG:
		data, err := nodelink.RenderSVG(ctx, dot)
		if err != nil {
			return nil, fmt.Errorf("render svg: %w", err)
		}
		return data, nil
	default:
		return []byte(dot), nil
	}
}
