package cli

import (
	"github.com/spf13/cobra"

	"github.com/matzehuels/cratestack/pkg/changes"
	"github.com/matzehuels/cratestack/pkg/errors"
	"github.com/matzehuels/cratestack/pkg/pipeline"
	"github.com/matzehuels/cratestack/pkg/release"
	csemver "github.com/matzehuels/cratestack/pkg/semver"
	"github.com/matzehuels/cratestack/pkg/vcs"
)

// addChangeFlags binds change detection flags to opts.
func addChangeFlags(cmd *cobra.Command, opts *changes.Options) {
	f := cmd.Flags()
	f.StringVar(&opts.Since, "since", "", "use this git reference instead of the last release tag")
	f.StringVar(&opts.IgnoreChanges, "ignore-changes", "", "ignore changes in files matching this glob")
	f.StringVar(&opts.ForcePattern, "force", "", "always include packages matching this glob (\"*\" for all)")
	f.BoolVar(&opts.IncludeMergedTags, "include-merged-tags", false, "consider tags on merged branches too")
}

// versionFlags are the flags of commands that bump versions.
type versionFlags struct {
	release release.Options
	all     bool
	yes     bool
}

func addVersionFlags(cmd *cobra.Command, v *versionFlags) {
	f := cmd.Flags()
	f.StringVar(&v.release.Custom, "custom", "", "use this exact version for every changed unit")
	f.StringVar(&v.release.PreID, "pre-id", "", "prerelease identifier for pre* bumps (e.g. alpha)")
	f.BoolVar(&v.release.Exact, "exact", false, "pin rewritten dependency requirements with =")
	f.BoolVar(&v.all, "all", false, "also version private crates (they are never published)")
	f.BoolVarP(&v.yes, "yes", "y", false, "skip the confirmation prompt")
}

// parseBumpArgs reads `[bump [version]]`.
func (v *versionFlags) parseBumpArgs(args []string) error {
	if len(args) == 0 {
		if v.release.Custom != "" {
			v.release.Bump = csemver.Custom
		}
		return nil
	}
	b, err := csemver.ParseBump(args[0])
	if err != nil {
		return err
	}
	v.release.Bump = b
	if len(args) > 1 {
		if b != csemver.Custom {
			return errors.New(errors.ErrCodeInvalidInput, "a version argument is only accepted with the custom bump")
		}
		if v.release.Custom != "" && v.release.Custom != args[1] {
			return errors.New(errors.ErrCodeInvalidInput, "conflicting custom versions %q and %q", args[1], v.release.Custom)
		}
		v.release.Custom = args[1]
	}
	if b == csemver.Custom && v.release.Custom == "" {
		return errors.New(errors.ErrCodeInvalidInput, "the custom bump needs a version")
	}
	return nil
}

// addGitFlags binds commit, tag and push flags to opts.
func addGitFlags(cmd *cobra.Command, opts *vcs.GitOptions) {
	f := cmd.Flags()
	f.BoolVar(&opts.NoGitCommit, "no-git-commit", false, "do not commit version changes")
	f.StringVar(&opts.AllowBranch, "allow-branch", "", "branch glob releases may run on (default: workspace allow_branch, else master)")
	f.BoolVar(&opts.Amend, "amend", false, "amend the existing commit instead of creating a new one")
	f.StringVarP(&opts.Message, "message", "m", "", "commit message; %v is the version (default \"Release %v\")")

	f.BoolVar(&opts.NoGitTag, "no-git-tag", false, "do not tag the release")
	f.BoolVar(&opts.TagExisting, "tag-existing", false, "tag HEAD even with --no-git-commit")
	f.BoolVar(&opts.NoGlobalTag, "no-global-tag", false, "do not create the workspace version tag")
	f.BoolVar(&opts.NoIndividualTags, "no-individual-tags", false, "do not create per-crate tags")
	f.BoolVar(&opts.TagPrivate, "tag-private", false, "also tag private crates")
	f.StringVar(&opts.TagPrefix, "tag-prefix", "v", "prefix of the workspace version tag")
	f.StringVar(&opts.IndividualTagPrefix, "individual-tag-prefix", "%n@", "prefix of per-crate tags; %n is the crate name")
	f.StringVar(&opts.TagMsg, "tag-msg", "", "workspace tag message; %v, and %n inside %{...} for each crate")
	f.StringVar(&opts.IndividualTagMsg, "individual-tag-msg", "", "per-crate tag message; %n and %v are expanded")

	f.BoolVar(&opts.NoGitPush, "no-git-push", false, "do not push the release commit and tags")
	f.StringVar(&opts.Remote, "git-remote", "origin", "remote to push to")
}

// options assembles pipeline options from the global flags.
func (c *CLI) options() pipeline.Options {
	return pipeline.Options{ManifestPath: c.manifestPath}
}
