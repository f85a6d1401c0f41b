// Package executor runs external programs from an argument vector with an
// optional timeout and captures their output. Every git and tool invocation
// in agentline goes through an Executor so tests can substitute a Recorder.
package executor

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/Iron-Ham/agentline/internal/errors"
	"github.com/Iron-Ham/agentline/internal/logging"
)

// Command describes one program invocation. Name and Args form the argument
// vector; nothing is interpreted by a shell.
type Command struct {
	Name string
	Args []string
	// Dir is the working directory; empty means the current directory.
	Dir string
	// Timeout kills the process after the given duration. Zero means no timeout.
	Timeout time.Duration
	// Env holds extra KEY=VALUE pairs appended to the inherited environment.
	Env []string
	// Stdin, if set, is connected to the process's standard input.
	Stdin io.Reader
	// Stream, if set, receives stdout and stderr as they are produced in
	// addition to being captured.
	Stream io.Writer
}

// Argv returns the full argument vector.
func (c Command) Argv() []string {
	return append([]string{c.Name}, c.Args...)
}

// String renders the argument vector for logs.
func (c Command) String() string {
	return strings.Join(c.Argv(), " ")
}

// Result is the outcome of a command that ran to completion. A non-zero
// ExitCode is not an error. ExitCode is -1 when the process was killed by a
// signal.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Success reports whether the command exited with status 0.
func (r Result) Success() bool {
	return r.ExitCode == 0
}

// Combined returns stdout followed by stderr.
func (r Result) Combined() string {
	switch {
	case r.Stderr == "":
		return r.Stdout
	case r.Stdout == "":
		return r.Stderr
	default:
		return strings.TrimRight(r.Stdout, "\n") + "\n" + r.Stderr
	}
}

// Executor runs commands. Run returns an error only when the command could
// not be started (wrapping errors.ErrSpawnFailed), when it exceeded its
// timeout (errors.ErrTimeout), or when ctx was canceled.
type Executor interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// waitDelay bounds how long Run waits for output pipes after the process is
// killed, so grandchildren holding the pipes open cannot hang a timeout.
const waitDelay = 5 * time.Second

// CLI is the os/exec backed Executor.
type CLI struct {
	logger *logging.Logger
}

// Option configures a CLI executor.
type Option func(*CLI)

// WithLogger sets the logger used for command tracing.
func WithLogger(l *logging.Logger) Option {
	return func(c *CLI) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a CLI executor.
func New(opts ...Option) *CLI {
	c := &CLI{logger: logging.NopLogger()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run executes cmd and waits for it to finish.
func (c *CLI) Run(ctx context.Context, cmd Command) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{ExitCode: -1}, errors.Join(errors.ErrCanceled, err)
	}

	runCtx := ctx
	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	proc := exec.CommandContext(runCtx, cmd.Name, cmd.Args...)
	proc.Dir = cmd.Dir
	proc.WaitDelay = waitDelay
	if len(cmd.Env) > 0 {
		proc.Env = append(os.Environ(), cmd.Env...)
	}
	if cmd.Stdin != nil {
		proc.Stdin = cmd.Stdin
	}

	var stdout, stderr bytes.Buffer
	proc.Stdout = &stdout
	proc.Stderr = &stderr
	if cmd.Stream != nil {
		proc.Stdout = io.MultiWriter(&stdout, cmd.Stream)
		proc.Stderr = io.MultiWriter(&stderr, cmd.Stream)
	}

	start := time.Now()
	if err := proc.Start(); err != nil {
		c.logger.Debug("command spawn failed", "cmd", cmd.String(), "dir", cmd.Dir, "error", err.Error())
		return Result{ExitCode: -1}, errors.NewCommandError("failed to start command", errors.Join(errors.ErrSpawnFailed, err)).
			WithCommand(cmd.Argv()).
			WithDir(cmd.Dir)
	}
	waitErr := proc.Wait()
	elapsed := time.Since(start)

	if cmd.Timeout > 0 && runCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		c.logger.Warn("command timed out", "cmd", cmd.String(), "dir", cmd.Dir, "timeout", cmd.Timeout.String())
		return Result{ExitCode: -1, Duration: elapsed}, errors.NewTimeoutError(cmd.String(), cmd.Timeout)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Result{ExitCode: -1, Duration: elapsed}, errors.Join(errors.ErrCanceled, ctxErr)
	}

	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: elapsed,
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return Result{ExitCode: -1, Duration: elapsed}, errors.NewCommandError("command failed", waitErr).
				WithCommand(cmd.Argv()).
				WithDir(cmd.Dir)
		}
		res.ExitCode = exitErr.ExitCode()
	}

	c.logger.Debug("command finished",
		"cmd", cmd.String(),
		"dir", cmd.Dir,
		"exit_code", res.ExitCode,
		"duration_ms", elapsed.Milliseconds(),
	)
	return res, nil
}

// Compile-time interface check
var _ Executor = (*CLI)(nil)
