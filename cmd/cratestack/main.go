package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/matzehuels/cratestack/internal/cli"
	cserrors "github.com/matzehuels/cratestack/pkg/errors"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err := run(ctx)
	code := exitCode(err)
	if err != nil && code != 130 {
		cli.PrintError(err)
	}
	if code != 0 {
		os.Exit(code)
	}
}

// exitCode maps a run error to the process status. An interrupt wins over
// the abort code it is wrapped in; only a declined prompt exits 0.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		return 130 // Standard shell convention for SIGINT
	case cserrors.Is(err, cserrors.ErrCodeAbort):
		return 0
	default:
		return 1
	}
}

func run(ctx context.Context) (err error) {
	var verbose bool

	c := cli.New(os.Stderr, cli.LogInfo)
	defer func() {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	root := c.RootCommand()
	root.SilenceErrors = true

	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	// Apply the log level before the commands' own pre-run hooks
	originalPreRun := root.PersistentPreRunE
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		level := cli.LogInfo
		if verbose {
			level = cli.LogDebug
		}
		c.SetLogLevel(level)

		if originalPreRun != nil {
			return originalPreRun(cmd, args)
		}
		return nil
	}

	return root.ExecuteContext(ctx)
}
