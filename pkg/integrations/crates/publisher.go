package crates

import (
	"context"
	"io"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/cratestack/pkg/errors"
	"github.com/matzehuels/cratestack/pkg/process"
	"github.com/matzehuels/cratestack/pkg/workspace"
)

// PublishOptions are passed through to `cargo publish`.
type PublishOptions struct {
	NoVerify   bool
	AllowDirty bool
	Registry   string
	Token      string
	// Output receives cargo's output as it runs.
	Output io.Writer
}

// Publisher uploads crates with cargo.
type Publisher struct {
	Runner  process.Executor
	Dir     string
	Options PublishOptions
	Logger  *log.Logger
}

// NewPublisher returns a Publisher running cargo in dir.
func NewPublisher(dir string, opts PublishOptions, logger *log.Logger) *Publisher {
	return &Publisher{Runner: process.NewRunner(process.WithBaseDir(dir)), Dir: dir, Options: opts, Logger: logger}
}

// Args returns the cargo arguments for publishing pkg.
func (p *Publisher) Args(pkg *workspace.Package) []string {
	args := []string{"publish"}
	if p.Options.NoVerify {
		args = append(args, "--no-verify")
	}
	if p.Options.AllowDirty {
		args = append(args, "--allow-dirty")
	}
	if p.Options.Registry != "" {
		args = append(args, "--registry", p.Options.Registry)
	}
	if p.Options.Token != "" {
		args = append(args, "--token", p.Options.Token)
	}
	return append(args, "--manifest-path", pkg.ManifestPath)
}

// Publish runs `cargo publish` for pkg.
func (p *Publisher) Publish(ctx context.Context, pkg *workspace.Package) error {
	if p.Logger != nil {
		p.Logger.Debug("cargo publish", "package", pkg.Name, "manifest", pkg.ManifestPath)
	}
	res, err := p.Runner.Run(ctx, process.Command{
		Name: "cargo",
		Args: p.Args(pkg),
		Dir:  p.Dir,
		Tee:  p.Options.Output,
	})
	if err != nil {
		return errors.Wrap(errors.ErrCodePublish, err, "publish %s", pkg.Name)
	}
	if !res.Success() {
		return errors.New(errors.ErrCodePublish, "publish %s: cargo exited with %d: %s",
			pkg.Name, res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return nil
}

// Registry combines index reads and cargo uploads.
type Registry struct {
	*Index
	*Publisher
}
