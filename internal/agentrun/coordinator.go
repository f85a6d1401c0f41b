// Package agentrun runs one agent against one task in an isolated worktree
// and commits whatever the agent changed onto a fresh branch.
//
// A run moves through these phases:
//
//	precheck -> load_config -> name_branch -> create_worktree -> run_agent
//	         -> commit -> release_worktree -> report
//
// The worktree is released on every path once it exists. An agent that
// exits non-zero, cannot be started, or times out does not fail the run:
// the failure is recorded in the Report and its changes are still committed.
package agentrun

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Iron-Ham/agentline/internal/activity"
	"github.com/Iron-Ham/agentline/internal/agentcfg"
	"github.com/Iron-Ham/agentline/internal/branch"
	"github.com/Iron-Ham/agentline/internal/errors"
	"github.com/Iron-Ham/agentline/internal/executor"
	"github.com/Iron-Ham/agentline/internal/logging"
	"github.com/Iron-Ham/agentline/internal/repo"
	"github.com/Iron-Ham/agentline/internal/worktree"
	"github.com/google/uuid"
)

// Phase names used in logs.
const (
	PhasePrecheck        = "precheck"
	PhaseLoadConfig      = "load_config"
	PhaseNameBranch      = "name_branch"
	PhaseCreateWorktree  = "create_worktree"
	PhaseRunAgent        = "run_agent"
	PhaseCommit          = "commit"
	PhaseReleaseWorktree = "release_worktree"
	PhaseReport          = "report"
)

// CommitTrailer is appended to every agent commit message.
const CommitTrailer = "Generated-By: agentline"

// Task is one unit of work for one agent.
type Task struct {
	Agent       string
	Description string
}

// Report describes a finished run.
type Report struct {
	RunID        string
	Agent        string
	Branch       string
	WorktreePath string
	// CommitSHA is empty when the agent changed nothing.
	CommitSHA  string
	HasChanges bool
	Duration   time.Duration
	// AgentExitCode is -1 when the agent could not be started or was killed.
	AgentExitCode int
	// AgentError describes an agent failure; empty on success.
	AgentError   string
	TouchedFiles []string
}

// DurationMs returns the run duration in milliseconds.
func (r Report) DurationMs() int64 {
	return r.Duration.Milliseconds()
}

// AgentSucceeded reports whether the agent exited cleanly.
func (r Report) AgentSucceeded() bool {
	return r.AgentError == ""
}

// Options wires a Coordinator.
type Options struct {
	Repo      *repo.Service
	Agents    *agentcfg.Loader
	Names     *branch.Generator
	Worktrees worktree.Lifecycle
	Executor  executor.Executor

	// Command is the agent argument vector template.
	Command []string
	// Timeout bounds the agent process; zero disables it.
	Timeout time.Duration
	// Stream receives the agent's output as it runs.
	Stream io.Writer
	// WatchActivity records touched files with an activity.Recorder.
	WatchActivity bool

	Logger *logging.Logger
}

// Coordinator executes agent runs.
type Coordinator struct {
	repo      *repo.Service
	agents    *agentcfg.Loader
	names     *branch.Generator
	worktrees worktree.Lifecycle
	exec      executor.Executor
	command   []string
	timeout   time.Duration
	stream    io.Writer
	watch     bool
	logger    *logging.Logger
	now       func() time.Time
}

// New creates a Coordinator.
func New(opts Options) *Coordinator {
	c := &Coordinator{
		repo:      opts.Repo,
		agents:    opts.Agents,
		names:     opts.Names,
		worktrees: opts.Worktrees,
		exec:      opts.Executor,
		command:   append([]string(nil), opts.Command...),
		timeout:   opts.Timeout,
		stream:    opts.Stream,
		watch:     opts.WatchActivity,
		logger:    opts.Logger,
		now:       time.Now,
	}
	if c.names == nil {
		c.names = branch.NewGenerator()
	}
	if c.logger == nil {
		c.logger = logging.NopLogger()
	}
	return c
}

// Run executes task. The returned error is non-nil only when the run could
// not produce a result: a dirty working copy, a missing or invalid agent
// descriptor, a worktree that could not be created, or a failed commit.
func (c *Coordinator) Run(ctx context.Context, task Task) (Report, error) {
	if strings.TrimSpace(task.Agent) == "" {
		return Report{}, errors.NewValidationError("agent name is required").WithField("agent")
	}
	if strings.TrimSpace(task.Description) == "" {
		return Report{}, errors.NewValidationError("task description is required").WithField("task")
	}

	if len(c.command) == 0 || c.command[0] == "" {
		return Report{}, errors.NewValidationError("agent command is empty").WithField("agent.command")
	}

	report := Report{RunID: uuid.NewString(), Agent: task.Agent}
	log := c.logger.WithRun(report.RunID).WithAgent(task.Agent)
	start := c.now()

	log.WithPhase(PhasePrecheck).Info("checking working copy")
	if err := c.repo.RequireClean(ctx); err != nil {
		return report, err
	}

	log.WithPhase(PhaseLoadConfig).Info("loading agent descriptor")
	cfg, err := c.agents.Load(task.Agent)
	if err != nil {
		return report, err
	}

	report.Branch = c.names.New(task.Agent, task.Description)
	report.WorktreePath = c.worktrees.PathFor(report.Branch)
	log = log.WithBranch(report.Branch)
	log.WithPhase(PhaseNameBranch).Info("branch named", "worktree", report.WorktreePath)

	log.WithPhase(PhaseCreateWorktree).Info("creating worktree")
	err = c.worktrees.With(ctx, report.WorktreePath, report.Branch, func(h worktree.Handle) error {
		wt, err := repo.New(c.exec, h.Path)
		if err != nil {
			return err
		}
		base, err := wt.HeadSHA(ctx, "HEAD")
		if err != nil {
			return err
		}
		log.Info("worktree ready", "worktree", h.Path, "repo_root", h.RepoRoot, "base", base)

		c.runAgent(ctx, h, cfg, task, &report, log.WithPhase(PhaseRunAgent))
		return c.commitIfChanged(ctx, wt, h, base, task, &report, log.WithPhase(PhaseCommit))
	})
	log.WithPhase(PhaseReleaseWorktree).Info("worktree released")

	report.Duration = c.now().Sub(start)
	if err != nil {
		log.Error("agent run failed", "error", err.Error())
		return report, err
	}

	log.WithPhase(PhaseReport).Info("agent run finished",
		"has_changes", report.HasChanges,
		"commit", report.CommitSHA,
		"agent_exit_code", report.AgentExitCode,
		"duration_ms", report.DurationMs(),
	)
	return report, nil
}

func (c *Coordinator) runAgent(ctx context.Context, h worktree.Handle, cfg agentcfg.Config, task Task, report *Report, log *logging.Logger) {
	var rec *activity.Recorder
	if c.watch {
		r, err := activity.New(h.Path, log)
		if err == nil {
			err = r.Start()
		}
		if err != nil {
			log.Warn("activity recording unavailable", "error", err.Error())
		} else {
			rec = r
		}
	}

	argv := ExpandCommand(c.command, cfg, task)
	log.Info("starting agent", "cmd", strings.Join(argv, " "), "timeout", c.timeout.String())

	res, err := c.exec.Run(ctx, executor.Command{
		Name:    argv[0],
		Args:    argv[1:],
		Dir:     h.Path,
		Timeout: c.timeout,
		Stream:  c.stream,
	})

	if rec != nil {
		report.TouchedFiles = rec.Stop()
	}

	switch {
	case err != nil:
		report.AgentExitCode = -1
		report.AgentError = err.Error()
		log.Warn("agent did not complete", "error", report.AgentError)
	case !res.Success():
		report.AgentExitCode = res.ExitCode
		report.AgentError = fmt.Sprintf("agent exited with status %d", res.ExitCode)
		log.Warn("agent exited non-zero", "exit_code", res.ExitCode)
	default:
		log.Info("agent finished", "duration_ms", res.Duration.Milliseconds())
	}
}

// commitIfChanged commits what the agent left uncommitted in the worktree.
// Commits the agent made itself, anything past base, count as changes too.
func (c *Coordinator) commitIfChanged(ctx context.Context, wt *repo.Service, h worktree.Handle, base string, task Task, report *Report, log *logging.Logger) error {
	changed, err := wt.ChangedFiles(ctx)
	if err != nil {
		return err
	}
	if len(changed) == 0 {
		head, err := wt.HeadSHA(ctx, "HEAD")
		if err != nil {
			return err
		}
		if head == base {
			log.Info("no changes to commit")
			return nil
		}
		report.HasChanges = true
		report.CommitSHA = head
		log.Info("agent committed its own changes", "commit", head)
		return nil
	}

	if _, err := executor.GitOutput(ctx, c.exec, h.Path, "add", "-A"); err != nil {
		return errors.NewGitError("failed to stage agent changes", err).WithBranch(h.Branch).WithWorktree(h.Path)
	}
	if _, err := executor.GitOutput(ctx, c.exec, h.Path, "commit", "-m", CommitMessage(task)); err != nil {
		return errors.NewGitError("failed to commit agent changes", err).WithBranch(h.Branch).WithWorktree(h.Path)
	}
	sha, err := wt.HeadSHA(ctx, "HEAD")
	if err != nil {
		return err
	}

	report.HasChanges = true
	report.CommitSHA = sha
	log.Info("committed agent changes", "commit", sha, "files", len(changed))
	return nil
}

// CommitMessage returns the message of the single commit a run creates.
func CommitMessage(task Task) string {
	return strings.TrimSpace(task.Description) + "\n\nAgent: " + task.Agent + "\n\n" + CommitTrailer
}

// ExpandCommand substitutes {agent}, {task}, {model}, {permission_mode} and
// {tools} in each element of template. Substitution is per argument, so a
// task containing spaces or quotes stays a single argument.
func ExpandCommand(template []string, cfg agentcfg.Config, task Task) []string {
	r := strings.NewReplacer(
		"{agent}", task.Agent,
		"{task}", task.Description,
		"{model}", cfg.Model,
		"{permission_mode}", cfg.PermissionMode,
		"{tools}", strings.Join(cfg.Tools, ","),
	)
	argv := make([]string, len(template))
	for i, arg := range template {
		argv[i] = r.Replace(arg)
	}
	return argv
}
