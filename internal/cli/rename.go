package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/matzehuels/cratestack/pkg/release"
)

// renameCommand creates the rename command.
func (c *CLI) renameCommand() *cobra.Command {
	var (
		ro     release.RenameOptions
		groups []string
	)

	cmd := &cobra.Command{
		Use:   "rename <to>",
		Short: "Rename crates and every dependency on them",
		Long: `Rename crates in the workspace.

<to> is the new name; %n expands to the current name, so "acme-%n" renames
core to acme-core. With --from only that crate is renamed and <to> is used
as is. Dependency entries on renamed crates get a package key, so code
keeps using the old crate name.`,
		Example: `  cratestack rename 'acme-%n'
  cratestack rename 'acme-%n' --ignore 'xtask*' --groups tools
  cratestack rename --from core engine`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := c.options()
			ro.To = args[0]
			opts.Rename = ro
			opts.Groups = groups
			opts.IncludePrivate = ro.All

			result, err := c.newRunner().Rename(cmd.Context(), opts)
			if err != nil {
				return err
			}
			writeRenamed(os.Stdout, result.Rename, result.Workspace.Root)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&ro.From, "from", "f", "", "rename only this crate")
	f.StringVar(&ro.Ignore, "ignore", "", "leave crates matching this glob alone")
	f.BoolVarP(&ro.All, "all", "a", false, "rename private crates too")
	f.StringSliceVar(&groups, "groups", nil, "only rename crates of these groups (comma separated)")
	cmd.MarkFlagsMutuallyExclusive("from", "all")
	cmd.MarkFlagsMutuallyExclusive("from", "ignore")
	cmd.MarkFlagsMutuallyExclusive("from", "groups")

	return cmd
}

// writeRenamed lists renamed crates and the manifests written.
func writeRenamed(w io.Writer, r *release.Rename, root string) {
	if r == nil || r.Empty() {
		fmt.Fprintln(w, styleIconInfo.Render(iconInfo)+" Nothing to rename")
		return
	}
	for _, old := range r.Sorted() {
		fmt.Fprintf(w, "%s %s %s %s\n", styleIconSuccess.Render(iconSuccess),
			StyleDim.Render(old), StyleDim.Render(iconArrow), StyleHighlight.Render(r.Names[old]))
	}
	for _, e := range r.Edits {
		path := e.Path
		if rel, err := filepath.Rel(root, e.Path); err == nil {
			path = rel
		}
		fmt.Fprintln(w, "  "+StyleDim.Render(iconArrow)+" "+StyleValue.Render(path))
	}
}
