package cli

import (
	"github.com/spf13/cobra"

	"github.com/matzehuels/cratestack/pkg/changes"
	"github.com/matzehuels/cratestack/pkg/errors"
	"github.com/matzehuels/cratestack/pkg/pipeline"
	"github.com/matzehuels/cratestack/pkg/vcs"
)

// versionCommand creates the version command.
func (c *CLI) versionCommand() *cobra.Command {
	var (
		changeOpts changes.Options
		gitOpts    vcs.GitOptions
		vf         versionFlags
	)

	cmd := &cobra.Command{
		Use:   "version [bump [version]]",
		Short: "Bump versions of changed crates, commit, tag and push",
		Long: `Bump versions of changed crates, commit, tag and push.

Every changed release unit gets one new version: the workspace's fixed
crates share one, each group shares one, independent crates get their own.
Dependency requirements on bumped crates are rewritten across all
manifests. Without a bump every changed unit is asked for one.`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := vf.parseBumpArgs(args); err != nil {
				return err
			}
			opts := c.options()
			opts.Changes = changeOpts
			opts.Release = vf.release
			opts.Git = gitOpts
			opts.IncludePrivate = vf.all

			r := c.newRunner()
			r.Chooser = chooser(opts.Release)
			r.Confirm = confirmer(vf.yes, opts.Root)

			prog := newProgress(c.Logger)
			result, err := r.Version(cmd.Context(), opts)
			if err != nil {
				return reportReleaseError(result, err)
			}
			reportRelease(result)
			if result.Released() {
				prog.done("release complete")
			}
			return nil
		},
	}

	addChangeFlags(cmd, &changeOpts)
	addVersionFlags(cmd, &vf)
	addGitFlags(cmd, &gitOpts)

	return cmd
}

// reportRelease prints the outcome of a successful version step.
func reportRelease(result *pipeline.Result) {
	if result.HeadReleased {
		printInfo("Current HEAD is already released, nothing to do")
		return
	}
	if !result.Released() {
		printInfo("No changes to release")
		return
	}
	for _, name := range result.Plan.SortedPackages() {
		printSuccess("%s %s", name, StyleHighlight.Render(result.Plan.Versions[name].String()))
	}
	for _, tag := range result.Tags {
		printDetail("tag %s", tag)
	}
}

// reportReleaseError prints what was done before a late failure. A
// recoverable failure leaves the local release intact.
func reportReleaseError(result *pipeline.Result, err error) error {
	if result != nil && result.Released() && errors.IsRecoverable(err) {
		reportRelease(result)
		printWarning("%s", errors.UserMessage(err))
		printNextStep("Push manually", "git push --follow-tags")
	}
	return err
}
