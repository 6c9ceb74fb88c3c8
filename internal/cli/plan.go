package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/matzehuels/cratestack/pkg/changes"
	"github.com/matzehuels/cratestack/pkg/errors"
	"github.com/matzehuels/cratestack/pkg/pipeline"
	"github.com/matzehuels/cratestack/pkg/release"
)

// planUnit is one unit of the plan report.
type planUnit struct {
	Unit    string   `json:"unit" yaml:"unit"`
	Kind    string   `json:"kind" yaml:"kind"`
	From    string   `json:"from" yaml:"from"`
	To      string   `json:"to" yaml:"to"`
	Skipped bool     `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	Members []string `json:"members" yaml:"members"`
}

// planReport is the serializable view of a release plan.
type planReport struct {
	Units []planUnit `json:"units" yaml:"units"`
	Files []string   `json:"files" yaml:"files"`
}

func newPlanReport(root string, plan *release.Plan) planReport {
	r := planReport{Units: []planUnit{}, Files: []string{}}
	if plan == nil {
		return r
	}
	for _, u := range plan.Units {
		r.Units = append(r.Units, planUnit{
			Unit:    u.Key,
			Kind:    string(u.Kind),
			From:    u.From.String(),
			To:      u.To.String(),
			Skipped: u.Skipped(),
			Members: u.Members,
		})
	}
	for _, p := range plan.Touched() {
		if rel, err := filepath.Rel(root, p); err == nil {
			p = filepath.ToSlash(rel)
		}
		r.Files = append(r.Files, p)
	}
	return r
}

// writePlan renders a plan report in format.
func writePlan(w io.Writer, r planReport, format string) error {
	switch format {
	case pipeline.FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case pipeline.FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	}

	if len(r.Units) == 0 {
		fmt.Fprintln(w, StyleDim.Render("nothing to release"))
		return nil
	}
	for _, u := range r.Units {
		change := StyleDim.Render(u.From) + " " + StyleDim.Render(iconArrow) + " " + StyleHighlight.Render(u.To)
		if u.Skipped {
			change = StyleDim.Render(u.From + " (skipped)")
		}
		fmt.Fprintf(w, "%s %s\n", StyleValue.Render(u.Unit), change)
		fmt.Fprintf(w, "  %s\n", StyleDim.Render(strings.Join(u.Members, ", ")))
	}
	if len(r.Files) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, StyleDim.Render("manifests:"))
		for _, f := range r.Files {
			fmt.Fprintf(w, "  %s %s\n", StyleDim.Render(iconArrow), f)
		}
	}
	return nil
}

// chooser returns the interactive chooser when bumps may be asked for.
func chooser(opts release.Options) release.BumpChooser {
	if opts.Bump != "" || opts.Custom != "" || !isInteractive() {
		return nil
	}
	return promptChooser{}
}

// confirmer returns the confirmation step for a release. With --yes the
// plan is written without asking; without a terminal asking is an error.
func confirmer(yes bool, root func() (string, error)) pipeline.ConfirmFunc {
	if yes {
		return nil
	}
	return func(ctx context.Context, plan *release.Plan) (bool, error) {
		if !isInteractive() {
			return false, errors.New(errors.ErrCodeInvalidInput, "confirmation needs a terminal; pass --yes")
		}
		dir, err := root()
		if err != nil {
			return false, err
		}
		fmt.Fprintln(os.Stderr)
		if err := writePlan(os.Stderr, newPlanReport(dir, plan), pipeline.FormatText); err != nil {
			return false, err
		}
		fmt.Fprintln(os.Stderr)
		return promptConfirm(ctx, "Release these versions?")
	}
}

// planCommand creates the plan command.
func (c *CLI) planCommand() *cobra.Command {
	var (
		changeOpts changes.Options
		vf         versionFlags
		format     string
	)

	cmd := &cobra.Command{
		Use:   "plan [bump [version]]",
		Short: "Show the versions a release would produce without writing anything",
		Long: `Show the versions a release would produce without writing anything.

Bumps: patch, minor, major, prepatch, preminor, premajor, prerelease, skip,
custom. Without a bump every changed release unit is asked for one.`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := pipeline.ValidateReportFormat(format); err != nil {
				return err
			}
			if err := vf.parseBumpArgs(args); err != nil {
				return err
			}
			opts := c.options()
			opts.Changes = changeOpts
			opts.Release = vf.release
			opts.IncludePrivate = vf.all

			r := c.newRunner()
			r.Chooser = chooser(opts.Release)
			result, err := r.Plan(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return writePlan(os.Stdout, newPlanReport(result.Workspace.Root, result.Plan), format)
		},
	}

	addChangeFlags(cmd, &changeOpts)
	addVersionFlags(cmd, &vf)
	cmd.Flags().StringVar(&format, "format", pipeline.FormatText, "output format: text, json, yaml")

	return cmd
}
