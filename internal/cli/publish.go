package cli

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/cratestack/pkg/changes"
	"github.com/matzehuels/cratestack/pkg/integrations/crates"
	"github.com/matzehuels/cratestack/pkg/ledger"
	"github.com/matzehuels/cratestack/pkg/pipeline"
	"github.com/matzehuels/cratestack/pkg/publish"
	"github.com/matzehuels/cratestack/pkg/vcs"
)

// publishFlags are the flags specific to publishing.
type publishFlags struct {
	fromGit  bool
	cargo    crates.PublishOptions
	indexURL string
	timeout  time.Duration
	interval time.Duration
	ledger   string
	runID    string
}

// publishCommand creates the publish command.
func (c *CLI) publishCommand() *cobra.Command {
	var (
		changeOpts changes.Options
		gitOpts    vcs.GitOptions
		vf         versionFlags
		pf         publishFlags
	)

	cmd := &cobra.Command{
		Use:   "publish [bump [version]]",
		Short: "Release changed crates and publish them in dependency order",
		Long: `Release changed crates and publish them in dependency order.

Runs the version step (without pushing), then publishes every public crate
of the release with cargo, dependencies first. After each upload the
registry index is polled until the new version is visible, so dependents
can resolve it. The release commit and tags are pushed once everything is
published.

Progress is recorded in a ledger. A rerun skips crates already confirmed
and resumes waiting for crates uploaded but not yet visible. Use
--ledger redis://host:6379/0 to share the ledger between machines.

With --from-git the current versions are published as they are, without
versioning or touching git.`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := vf.parseBumpArgs(args); err != nil {
				return err
			}
			opts := c.options()
			opts.Changes = changeOpts
			opts.Release = vf.release
			opts.Git = gitOpts
			opts.IncludePrivate = vf.all
			opts.FromGit = pf.fromGit
			opts.Publish.Backoff = publish.Backoff{Initial: pf.interval, MaxWait: pf.timeout}

			root, err := opts.Root()
			if err != nil {
				return err
			}
			store, err := c.openStore(ctx, pf.ledger)
			if err != nil {
				return err
			}

			if c.Logger.GetLevel() <= LogDebug {
				pf.cargo.Output = os.Stderr
			}
			r := c.newRunner()
			r.Chooser = chooser(opts.Release)
			r.Confirm = confirmer(vf.yes, opts.Root)
			r.Ledger = ledger.New(store, pf.runID)
			r.Registry = crates.Registry{
				Index:     crates.NewIndex(store, pf.indexURL),
				Publisher: crates.NewPublisher(root, pf.cargo, c.Logger),
			}

			prog := newProgress(c.Logger)
			result, err := r.Publish(ctx, opts)
			if result != nil && result.Report != nil {
				writeReport(os.Stdout, result.Report)
			}
			if err != nil {
				return reportPublishError(ctx, result, err)
			}
			if !opts.FromGit {
				reportRelease(result)
			}
			if result.Report != nil {
				prog.done("publish complete")
			}
			return nil
		},
	}

	addChangeFlags(cmd, &changeOpts)
	addVersionFlags(cmd, &vf)
	addGitFlags(cmd, &gitOpts)

	f := cmd.Flags()
	f.BoolVar(&pf.fromGit, "from-git", false, "publish the current versions without versioning")
	f.BoolVar(&pf.cargo.NoVerify, "no-verify", false, "skip crate verification (not recommended)")
	f.BoolVar(&pf.cargo.AllowDirty, "allow-dirty", false, "allow publishing from a dirty working directory")
	f.StringVar(&pf.cargo.Registry, "registry", "", "cargo registry to publish to")
	f.StringVar(&pf.cargo.Token, "token", "", "registry token")
	f.StringVar(&pf.indexURL, "index-url", crates.DefaultIndexURL, "sparse index polled for visibility")
	f.DurationVar(&pf.timeout, "publish-timeout", publish.DefaultBackoff.MaxWait, "how long to wait for each crate to become visible")
	f.DurationVar(&pf.interval, "publish-interval", publish.DefaultBackoff.Initial, "first delay between visibility checks")
	f.StringVar(&pf.ledger, "ledger", "", "ledger location: a directory, redis://..., or none (default: user cache directory)")
	f.StringVar(&pf.runID, "run-id", "", "identifier recorded with ledger entries (default: random)")

	return cmd
}

// writeReport prints the publish outcome per crate.
func writeReport(w io.Writer, r *publish.Report) {
	line := func(icon, label string, names []string) {
		if len(names) == 0 {
			return
		}
		_, _ = io.WriteString(w, icon+" "+label+" "+strings.Join(names, ", ")+"\n")
	}
	line(styleIconSuccess.Render(iconSuccess), "published:", r.Confirmed)
	line(styleIconInfo.Render(iconInfo), "already published:", r.Skipped)
	line(styleIconWarning.Render(iconWarning), "uploaded, not yet visible:", r.Unconfirmed)
	line(styleIconError.Render(iconError), "failed:", r.Failed)
	line(styleIconWarning.Render(iconWarning), "not attempted:", r.NotAttempted)
}

func reportPublishError(ctx context.Context, result *pipeline.Result, err error) error {
	if result != nil && result.Report != nil {
		resume := appName + " publish --from-git && git push --follow-tags"
		switch {
		case len(result.Report.Unconfirmed) > 0:
			printNextStep("Resume waiting for the registry", resume)
		case ctx.Err() == nil && len(result.Report.Failed) > 0:
			printNextStep("Fix the failure, then resume", resume)
		}
	}
	return reportReleaseError(result, err)
}
