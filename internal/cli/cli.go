// Package cli implements the cratestack command-line interface.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/cratestack/pkg/buildinfo"
	"github.com/matzehuels/cratestack/pkg/cache"
	"github.com/matzehuels/cratestack/pkg/observability"
	"github.com/matzehuels/cratestack/pkg/pipeline"
)

// =============================================================================
// Constants
// =============================================================================

// appName is the application name used for display.
const appName = "cratestack"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	// Global flags.
	manifestPath    string
	metricsTextfile string

	metrics *observability.Metrics
	store   cache.Cache
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "cratestack releases Cargo workspaces",
		Long: `cratestack coordinates releases of a Cargo workspace: it finds the crates
changed since their last release, bumps versions under fixed, grouped or
independent versioning, rewrites dependency requirements, commits and tags,
and publishes crates to the registry in dependency order.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if c.metricsTextfile != "" && c.metrics == nil {
				c.metrics = observability.NewMetrics()
				c.metrics.Register()
			}
			return nil
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().StringVar(&c.manifestPath, "manifest-path", "", "path to the workspace Cargo.toml (default: current directory)")
	root.PersistentFlags().StringVar(&c.metricsTextfile, "metrics-textfile", "", "write Prometheus metrics to this file on exit")

	// Register all subcommands
	root.AddCommand(c.changedCommand())
	root.AddCommand(c.planCommand())
	root.AddCommand(c.versionCommand())
	root.AddCommand(c.publishCommand())
	root.AddCommand(c.renameCommand())
	root.AddCommand(c.graphCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// Close flushes metrics and releases the ledger store.
func (c *CLI) Close() error {
	var errs []string
	if c.metrics != nil {
		if err := c.metrics.WriteTextfile(c.metricsTextfile); err != nil {
			errs = append(errs, fmt.Sprintf("write metrics: %v", err))
		}
	}
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			errs = append(errs, fmt.Sprintf("close ledger: %v", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// =============================================================================
// Runner Factory
// =============================================================================

// newRunner creates a pipeline runner for CLI use.
func (c *CLI) newRunner() *pipeline.Runner {
	return pipeline.NewRunner(c.Logger)
}

// openStore opens the ledger and index cache named by url: empty for the
// user cache directory, "none" for no persistence, redis:// or rediss://
// for a shared Redis.
func (c *CLI) openStore(ctx context.Context, url string) (cache.Cache, error) {
	var (
		store cache.Cache
		err   error
	)
	switch {
	case url == "none":
		store = cache.NewNullCache()
	case strings.HasPrefix(url, "redis://"), strings.HasPrefix(url, "rediss://"):
		store, err = cache.NewRedisCache(ctx, url)
	case url == "":
		store, err = cache.NewFileCache("")
	default:
		store, err = cache.NewFileCache(url)
	}
	if err != nil {
		return nil, fmt.Errorf("open ledger %q: %w", url, err)
	}
	c.store = store
	return store, nil
}

// isInteractive reports whether prompts can be shown.
func isInteractive() bool {
	return isTerminal(os.Stdin) && isTerminal(os.Stderr)
}
