package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/matzehuels/cratestack/pkg/changes"
	"github.com/matzehuels/cratestack/pkg/pipeline"
	"github.com/matzehuels/cratestack/pkg/workspace"
)

// changedEntry is one row of the changed report.
type changedEntry struct {
	Name    string         `json:"name" yaml:"name"`
	Version string         `json:"version" yaml:"version"`
	Path    string         `json:"path" yaml:"path"`
	Private bool           `json:"private,omitempty" yaml:"private,omitempty"`
	Reason  changes.Reason `json:"reason" yaml:"reason"`
	From    string         `json:"from,omitempty" yaml:"from,omitempty"`
	Files   []string       `json:"files,omitempty" yaml:"files,omitempty"`
}

// changedEntries lists changed packages of the selected groups in name
// order. Private packages are left out unless all is set.
func changedEntries(ws *workspace.Workspace, cs *changes.ChangeSet, groups workspace.GroupFilter, all bool) []changedEntry {
	entries := []changedEntry{}
	for _, name := range cs.ChangedPackages() {
		p, ok := ws.Package(name)
		if !ok || (p.Private && !all) || !groups.Match(p) {
			continue
		}
		pc := cs.Packages[name]
		entries = append(entries, changedEntry{
			Name:    name,
			Version: p.Version.String(),
			Path:    p.RelPath,
			Private: p.Private,
			Reason:  pc.Reason,
			From:    pc.From,
			Files:   pc.Files,
		})
	}
	return entries
}

// writeChanged renders entries in format. Text output lists names, or a
// table with long.
func writeChanged(w io.Writer, entries []changedEntry, format string, long bool) error {
	switch format {
	case pipeline.FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	case pipeline.FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(entries); err != nil {
			return err
		}
		return enc.Close()
	}

	if !long {
		for _, e := range entries {
			fmt.Fprintln(w, e.Name)
		}
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, e := range entries {
		reason := string(e.Reason)
		if e.From != "" {
			reason += " via " + e.From
		}
		if style, ok := styleReason[string(e.Reason)]; ok {
			reason = style.Render(reason)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Name, StyleDim.Render("v"+e.Version), e.Path, reason)
	}
	return tw.Flush()
}

// changedCommand creates the changed command.
func (c *CLI) changedCommand() *cobra.Command {
	var (
		changeOpts changes.Options
		groups     []string
		all        bool
		long       bool
		format     string
	)

	cmd := &cobra.Command{
		Use:   "changed",
		Short: "List crates changed since their last release",
		Long: `List crates changed since their last tagged release.

A crate is changed when a file it owns differs from the reference point,
when it matches --force, or when one of its workspace dependencies changed.
Each release unit measures changes from its own latest tag; --since
overrides the reference point for all of them. --groups limits the list
to the named groups; detection still runs over the whole workspace.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := pipeline.ValidateReportFormat(format); err != nil {
				return err
			}
			opts := c.options()
			opts.Changes = changeOpts
			opts.IncludePrivate = all

			result, err := c.newRunner().Changed(cmd.Context(), opts)
			if err != nil {
				return err
			}
			filter, err := result.Workspace.FilterGroups(groups)
			if err != nil {
				return err
			}
			if result.HeadReleased && format == pipeline.FormatText {
				printInfo("Current HEAD is already released, skipping change detection")
				return nil
			}
			return writeChanged(os.Stdout, changedEntries(result.Workspace, result.Changes, filter, all), format, long)
		},
	}

	addChangeFlags(cmd, &changeOpts)
	cmd.Flags().StringSliceVar(&groups, "groups", nil, "only list crates of these groups (comma separated; default, excluded or a declared group)")
	cmd.Flags().BoolVarP(&all, "all", "a", false, "show private crates that are normally hidden")
	cmd.Flags().BoolVarP(&long, "long", "l", false, "show version, path and reason")
	cmd.Flags().StringVar(&format, "format", pipeline.FormatText, "output format: text, json, yaml")

	return cmd
}
