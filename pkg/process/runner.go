// Package process runs external commands (git, cargo) and captures their
// output.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// Command is one invocation.
type Command struct {
	Name string
	Args []string
	// Dir overrides the runner's base directory.
	Dir string
	// Env is appended to the inherited environment.
	Env []string
	// Tee receives a copy of stdout and stderr as they are produced.
	Tee io.Writer
	// Detach runs the process in its own process group, out of reach of
	// a terminal interrupt, and lets it finish once started even if ctx
	// is cancelled. Callers check ctx between detached steps.
	Detach bool
}

func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result is the outcome of a command that ran to completion.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Success reports a zero exit code.
func (r Result) Success() bool { return r.ExitCode == 0 }

// ExitError is returned by [Check] for a non-zero exit.
type ExitError struct {
	Command string
	Result  Result
}

func (e *ExitError) Error() string {
	msg := strings.TrimSpace(e.Result.Stderr)
	if msg == "" {
		msg = strings.TrimSpace(e.Result.Stdout)
	}
	return fmt.Sprintf("%s: exit status %d: %s", e.Command, e.Result.ExitCode, msg)
}

// Executor runs commands. [Runner] is the real implementation; tests
// substitute fakes.
type Executor interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// Runner executes local processes.
type Runner struct {
	baseDir string
	env     []string
}

// RunnerOption configures the runner.
type RunnerOption func(*Runner)

// WithBaseDir sets the working directory for executed processes.
func WithBaseDir(dir string) RunnerOption {
	return func(r *Runner) {
		r.baseDir = dir
	}
}

// WithEnv adds KEY=VALUE pairs to every command's environment.
func WithEnv(env ...string) RunnerOption {
	return func(r *Runner) {
		r.env = append(r.env, env...)
	}
}

// NewRunner creates a new process runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes cmd. A non-zero exit is reported in Result, not as an
// error; errors mean the process could not be started or ctx ended.
func (r *Runner) Run(ctx context.Context, cmd Command) (Result, error) {
	if cmd.Detach {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
	}
	c := r.command(ctx, cmd)

	var stdout, stderr bytes.Buffer
	c.Stdout, c.Stderr = &stdout, &stderr
	if cmd.Tee != nil {
		c.Stdout = io.MultiWriter(&stdout, cmd.Tee)
		c.Stderr = io.MultiWriter(&stderr, cmd.Tee)
	}

	err := c.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if ctxErr := ctx.Err(); ctxErr != nil && !cmd.Detach {
		return res, ctxErr
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("%s: %w", cmd, err)
	}
	return res, nil
}

func (r *Runner) command(ctx context.Context, cmd Command) *exec.Cmd {
	var c *exec.Cmd
	if cmd.Detach {
		c = exec.Command(cmd.Name, cmd.Args...)
		detach(c)
	} else {
		c = exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	}
	c.Dir = r.baseDir
	if cmd.Dir != "" {
		c.Dir = cmd.Dir
	}
	if len(r.env) > 0 || len(cmd.Env) > 0 {
		c.Env = append(append(c.Environ(), r.env...), cmd.Env...)
	}
	return c
}

// Check runs cmd and turns a non-zero exit into an [*ExitError].
func Check(ctx context.Context, e Executor, cmd Command) (Result, error) {
	res, err := e.Run(ctx, cmd)
	if err != nil {
		return res, err
	}
	if !res.Success() {
		return res, &ExitError{Command: cmd.String(), Result: res}
	}
	return res, nil
}
