// Package pipeline runs cratestack's release flow end to end.
//
// The package centralizes the sequence every entry point needs so the CLI
// only binds flags and draws output:
//
//  1. Load: read the workspace and build its dependency graph
//  2. Detect: find the packages changed since their last release
//  3. Plan: resolve new versions and stage manifest edits
//  4. Apply: validate the repository, write manifests, commit and tag
//  5. Publish: upload in dependency order and wait for visibility
//  6. Push: push the release commit and tags
//
// Each stage can be run on its own or through [Runner.Version] and
// [Runner.Publish].
//
// # Usage
//
//	runner := pipeline.NewRunner(logger)
//	runner.Chooser = prompt
//	result, err := runner.Version(ctx, pipeline.Options{
//	    ManifestPath: "Cargo.toml",
//	    Release:      release.Options{Bump: semver.Minor},
//	})
package pipeline

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/matzehuels/cratestack/pkg/changes"
	"github.com/matzehuels/cratestack/pkg/dag"
	"github.com/matzehuels/cratestack/pkg/errors"
	"github.com/matzehuels/cratestack/pkg/manifest"
	"github.com/matzehuels/cratestack/pkg/publish"
	"github.com/matzehuels/cratestack/pkg/release"
	csemver "github.com/matzehuels/cratestack/pkg/semver"
	"github.com/matzehuels/cratestack/pkg/vcs"
	"github.com/matzehuels/cratestack/pkg/workspace"
)

// Format constants for reports.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Format constants for graphs.
const (
	FormatDOT = "dot"
	FormatSVG = "svg"
)

// ValidReportFormats is the set of supported report formats.
var ValidReportFormats = map[string]bool{
	FormatText: true,
	FormatJSON: true,
	FormatYAML: true,
}

// ValidGraphFormats is the set of supported graph formats.
var ValidGraphFormats = map[string]bool{
	FormatDOT: true,
	FormatSVG: true,
}

// ValidateReportFormat checks that a report format is valid.
func ValidateReportFormat(format string) error {
	if !ValidReportFormats[format] {
		return errors.New(errors.ErrCodeInvalidInput, "invalid format: %q (must be one of: text, json, yaml)", format)
	}
	return nil
}

// ValidateGraphFormat checks that a graph format is valid.
func ValidateGraphFormat(format string) error {
	if !ValidGraphFormats[format] {
		return errors.New(errors.ErrCodeInvalidInput, "invalid format: %q (must be one of: dot, svg)", format)
	}
	return nil
}

// =============================================================================
// Options
// =============================================================================

// Options configures a pipeline run.
type Options struct {
	// ManifestPath is the root Cargo.toml or its directory. Empty means
	// the current directory.
	ManifestPath string
	// IncludePrivate also versions private packages. They are never
	// published.
	IncludePrivate bool

	Changes changes.Options
	Release release.Options
	Git     vcs.GitOptions
	Publish publish.Options

	// FromGit publishes the versions already committed, skipping
	// detection, versioning and all git steps.
	FromGit bool

	// IncludeDev adds dev-dependency edges to rendered graphs.
	IncludeDev bool

	// Rename selects the packages [Runner.Rename] renames. Its group
	// filter is resolved from Groups once the workspace is loaded.
	Rename release.RenameOptions
	Groups []string

	validated bool
}

// ValidateAndSetDefaults checks flag combinations and fills defaults. It
// is idempotent.
func (o *Options) ValidateAndSetDefaults() error {
	if o.validated {
		return nil
	}
	if o.Changes.Since != "" && o.Changes.IncludeMergedTags {
		return errors.New(errors.ErrCodeInvalidInput, "--since cannot be combined with --include-merged-tags")
	}
	if o.Release.Custom != "" && o.Release.Bump != "" && o.Release.Bump != csemver.Custom {
		return errors.New(errors.ErrCodeInvalidInput, "bump %s cannot be combined with --custom", o.Release.Bump)
	}
	if err := errors.ValidateNameTemplate("individual-tag-prefix", o.Git.WithDefaults().IndividualTagPrefix); err != nil {
		return err
	}
	o.Git = o.Git.WithDefaults()
	// Detection must look for the same tags the release creates.
	o.Changes.TagPrefix = o.Git.TagPrefix
	o.Changes.IndividualTagPrefix = o.Git.IndividualTagPrefix
	o.Changes = o.Changes.WithDefaults()
	o.Publish.Backoff = o.Publish.Backoff.WithDefaults()
	o.Publish.FromExisting = o.FromGit
	o.validated = true
	return nil
}

// Root returns the workspace root directory named by ManifestPath.
func (o *Options) Root() (string, error) {
	p := o.ManifestPath
	if p == "" {
		p = "."
	}
	p, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("resolve manifest path: %w", err)
	}
	if filepath.Base(p) == manifest.FileName {
		return filepath.Dir(p), nil
	}
	return p, nil
}

// =============================================================================
// Result
// =============================================================================

// Result contains everything a run produced. Fields of stages that did not
// run are nil.
type Result struct {
	Workspace *workspace.Workspace
	Graph     *dag.DAG
	Changes   *changes.ChangeSet
	Plan      *release.Plan
	Rename    *release.Rename

	// Branch is the branch the release was validated on.
	Branch string
	// Tags lists the tags created.
	Tags []string
	// Report is the publish outcome.
	Report *publish.Report
	// HeadReleased is set when HEAD already carries the latest release tag
	// and detection was skipped.
	HeadReleased bool

	Stats Stats
}

// Stats contains stage timings.
type Stats struct {
	DetectTime  time.Duration
	PlanTime    time.Duration
	ApplyTime   time.Duration
	PublishTime time.Duration
}

// Released reports whether the run wrote a new release.
func (r *Result) Released() bool {
	return r != nil && r.Plan != nil && !r.Plan.Empty()
}
