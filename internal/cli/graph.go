package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/matzehuels/cratestack/pkg/changes"
	"github.com/matzehuels/cratestack/pkg/pipeline"
)

// graphCommand creates the graph command.
func (c *CLI) graphCommand() *cobra.Command {
	var (
		changeOpts changes.Options
		format     string
		output     string
		dev        bool
		changed    bool
	)

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Render the workspace dependency graph",
		Long: `Render the workspace dependency graph as Graphviz DOT or SVG.

Crates are drawn in publish layers, dependencies at the bottom. Private
crates are dashed. With --changed the crates a release would bump are
highlighted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := pipeline.ValidateGraphFormat(format); err != nil {
				return err
			}
			opts := c.options()
			opts.IncludeDev = dev
			opts.IncludePrivate = true
			opts.Changes = changeOpts

			r := c.newRunner()
			var highlight map[string]bool
			if changed {
				result, err := r.Changed(ctx, opts)
				if err != nil {
					return err
				}
				highlight = make(map[string]bool)
				for _, name := range result.Changes.ChangedPackages() {
					highlight[name] = true
				}
			}

			var spinner *Spinner
			if format == pipeline.FormatSVG && isTerminal(os.Stderr) {
				spinner = newSpinner(ctx, os.Stderr, "Rendering graph...")
				spinner.Start()
			}
			data, err := r.Graph(ctx, opts, format, highlight)
			if spinner != nil {
				spinner.Stop()
			}
			if err != nil {
				return err
			}

			if output == "" || output == "-" {
				_, err = os.Stdout.Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil { //nolint:gosec // output file is meant to be readable
				return fmt.Errorf("write %s: %w", output, err)
			}
			printSuccess("Rendered graph")
			printFile(output)
			return nil
		},
	}

	addChangeFlags(cmd, &changeOpts)
	cmd.Flags().StringVarP(&format, "format", "f", pipeline.FormatDOT, "output format: dot, svg")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")
	cmd.Flags().BoolVar(&dev, "dev", false, "include dev-dependency edges")
	cmd.Flags().BoolVar(&changed, "changed", false, "highlight changed crates")

	return cmd
}
