package verify

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Iron-Ham/agentline/internal/errors"
	"github.com/Iron-Ham/agentline/internal/executor"
	"github.com/Iron-Ham/agentline/internal/logging"
	"github.com/dlclark/regexp2"
)

// DefaultStepTimeout applies to steps without their own timeout when the
// Runner is not given one.
const DefaultStepTimeout = 10 * time.Minute

// ErrNoStepsRun is reported when a pipeline finishes without executing a
// single step, because it is empty or every subsystem directory is missing.
var ErrNoStepsRun = errors.New("no verification step ran")

// Runner executes pipelines. Steps run one at a time and every step runs,
// whatever happened to the ones before it.
type Runner struct {
	exec    executor.Executor
	timeout time.Duration
	stream  io.Writer
	logger  *logging.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithStepTimeout sets the timeout for steps that do not set their own.
func WithStepTimeout(d time.Duration) Option {
	return func(r *Runner) { r.timeout = d }
}

// WithStream echoes step output to w while it runs.
func WithStream(w io.Writer) Option {
	return func(r *Runner) { r.stream = w }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRunner creates a Runner.
func NewRunner(exec executor.Executor, opts ...Option) *Runner {
	r := &Runner{
		exec:    exec,
		timeout: DefaultStepTimeout,
		logger:  logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes p against workDir.
func (r *Runner) Run(ctx context.Context, workDir string, p Pipeline) Result {
	start := time.Now()
	result := Result{WorkDir: workDir, Passed: true}

	for _, sub := range p.Subsystems {
		sr := r.runSubsystem(ctx, workDir, sub)
		if !sr.Passed {
			result.Passed = false
		}
		result.Subsystems = append(result.Subsystems, sr)
	}
	if result.Passed && result.StepsRun() == 0 {
		result.Passed = false
		result.Reason = ErrNoStepsRun.Error()
	}

	result.Duration = time.Since(start)
	r.logger.Info("verification finished",
		"work_dir", workDir,
		"passed", result.Passed,
		"failed_steps", len(result.Failures()),
		"steps_run", result.StepsRun(),
		"duration_ms", result.Duration.Milliseconds(),
	)
	return result
}

func (r *Runner) runSubsystem(ctx context.Context, workDir string, sub Subsystem) SubsystemResult {
	dir := subsystemDir(workDir, sub.Dir)
	sr := SubsystemResult{Name: sub.Name, Dir: dir, Passed: true}

	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		r.logger.Warn("verification subsystem directory missing, skipping", "subsystem", sub.Name, "dir", dir)
		sr.Skipped = true
		return sr
	}

	for _, step := range sub.Steps {
		res := r.runStep(ctx, dir, sub.Name, step)
		if !res.Passed {
			sr.Passed = false
		}
		sr.Steps = append(sr.Steps, res)
	}
	return sr
}

func (r *Runner) runStep(ctx context.Context, dir, subsystem string, step Step) StepResult {
	res := StepResult{
		Subsystem: subsystem,
		Name:      step.Name,
		Command:   append([]string(nil), step.Command...),
		ExitCode:  -1,
	}
	if len(step.Command) == 0 {
		res.Reason = "empty command"
		return res
	}

	timeout := step.Timeout
	if timeout <= 0 {
		timeout = r.timeout
	}

	log := r.logger.With("subsystem", subsystem, "step", step.Name)
	log.Info("running verification step", "cmd", executor.Command{Name: step.Command[0], Args: step.Command[1:]}.String())

	out, err := r.exec.Run(ctx, executor.Command{
		Name:    step.Command[0],
		Args:    step.Command[1:],
		Dir:     dir,
		Timeout: timeout,
		Stream:  r.stream,
	})
	res.Duration = out.Duration
	res.Output = out.Combined()

	switch {
	case errors.Is(err, errors.ErrTimeout):
		res.TimedOut = true
		res.Reason = fmt.Sprintf("timed out after %s", timeout)
	case err != nil:
		res.Reason = err.Error()
	default:
		res.ExitCode = out.ExitCode
		res.Passed = out.Success()
		if !res.Passed {
			res.Reason = fmt.Sprintf("exited with status %d", out.ExitCode)
		}
	}

	if res.Passed && step.ExpectOutput != "" {
		if ok, reason := matchOutput(step.ExpectOutput, res.Output); !ok {
			res.Passed = false
			res.Reason = reason
		}
	}

	if res.Passed {
		log.Info("verification step passed", "duration_ms", res.Duration.Milliseconds())
	} else {
		log.Warn("verification step failed", "reason", res.Reason, "exit_code", res.ExitCode)
	}
	return res
}

// matchOutput checks output against an RE2-compatible pattern.
func matchOutput(pattern, output string) (bool, string) {
	re, err := regexp2.Compile(pattern, regexp2.RE2|regexp2.Multiline)
	if err != nil {
		return false, fmt.Sprintf("invalid expect_output pattern %q: %v", pattern, err)
	}
	ok, err := re.MatchString(output)
	if err != nil {
		return false, fmt.Sprintf("expect_output match failed: %v", err)
	}
	if !ok {
		return false, fmt.Sprintf("output did not match %q", pattern)
	}
	return true, ""
}
