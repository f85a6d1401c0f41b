// Package merge integrates a task branch into the default branch, optionally
// gated by the verification pipeline.
//
// Expected outcomes, a failed verification or a conflict, come back as a
// Result with Merged=false. Errors are reserved for unmet preconditions and
// git failures that leave nothing to report.
package merge

import (
	"context"
	"strings"

	"github.com/Iron-Ham/agentline/internal/errors"
	"github.com/Iron-Ham/agentline/internal/executor"
	"github.com/Iron-Ham/agentline/internal/logging"
	"github.com/Iron-Ham/agentline/internal/repo"
	"github.com/Iron-Ham/agentline/internal/verify"
	"github.com/Iron-Ham/agentline/internal/worktree"
)

// Outcome classifies a finished merge attempt.
type Outcome string

const (
	OutcomeMerged             Outcome = "merged"
	OutcomeConflict           Outcome = "conflict"
	OutcomeVerificationFailed Outcome = "verification_failed"
)

// Request asks for branch to be merged.
type Request struct {
	Branch     string
	Squash     bool
	SkipVerify bool
}

// Result describes a merge attempt.
type Result struct {
	Branch  string
	Outcome Outcome
	Merged  bool
	// CommitSHA is HEAD of the default branch after a successful merge.
	CommitSHA        string
	ConflictingFiles []string
	// Verification is nil when verification was skipped.
	Verification  *verify.Result
	BranchDeleted bool
}

// Verifier runs a verification pipeline. *verify.Runner implements it.
type Verifier interface {
	Run(ctx context.Context, workDir string, p verify.Pipeline) verify.Result
}

// Options wires a Coordinator.
type Options struct {
	Repo      *repo.Service
	Worktrees worktree.Lifecycle
	Verifier  Verifier
	Pipeline  verify.Pipeline
	Logger    *logging.Logger
}

// Coordinator merges task branches. Merges are not safe to run
// concurrently against the same repository and no lock is taken.
type Coordinator struct {
	repo      *repo.Service
	worktrees worktree.Lifecycle
	verifier  Verifier
	pipeline  verify.Pipeline
	logger    *logging.Logger
}

// New creates a Coordinator.
func New(opts Options) *Coordinator {
	c := &Coordinator{
		repo:      opts.Repo,
		worktrees: opts.Worktrees,
		verifier:  opts.Verifier,
		pipeline:  opts.Pipeline,
		logger:    opts.Logger,
	}
	if c.logger == nil {
		c.logger = logging.NopLogger()
	}
	return c
}

// List returns every task branch with its age and commit count.
func (c *Coordinator) List(ctx context.Context) ([]repo.AgentBranchInfo, error) {
	return c.repo.ListAgentBranches(ctx)
}

// Merge runs the merge state machine for req.
func (c *Coordinator) Merge(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.Branch) == "" {
		return Result{}, errors.NewValidationError("branch name is required").WithField("branch")
	}
	log := c.logger.WithBranch(req.Branch)
	result := Result{Branch: req.Branch}

	exists, err := c.repo.BranchExists(ctx, req.Branch)
	if err != nil {
		return result, err
	}
	if !exists {
		return result, errors.NewNotFoundError("branch", req.Branch).WithCause(errors.ErrBranchNotFound)
	}
	if err := c.repo.RequireClean(ctx); err != nil {
		return result, err
	}

	original, err := c.repo.CurrentBranch(ctx)
	if err != nil {
		return result, err
	}
	// A detached HEAD is restored by commit.
	restorePoint := original
	if original == "HEAD" {
		if restorePoint, err = c.repo.HeadSHA(ctx, "HEAD"); err != nil {
			return result, err
		}
	}
	target := c.repo.DefaultBranch(ctx)
	if req.Branch == target {
		return result, errors.NewValidationError("cannot merge the default branch into itself").
			WithField("branch").
			WithValue(req.Branch)
	}
	log = log.With("default_branch", target, "original_branch", original)
	log.Info("merge starting", "squash", req.Squash, "skip_verify", req.SkipVerify)

	// A worktree still holding the branch would block checkout and deletion.
	if c.worktrees != nil {
		if n := c.worktrees.RemoveForBranch(ctx, req.Branch); n > 0 {
			log.Info("removed stale worktrees", "count", n)
		}
	}

	if !req.SkipVerify {
		v, passed, err := c.verifyBranch(ctx, req.Branch, restorePoint, log)
		if err != nil {
			return result, err
		}
		result.Verification = &v
		if !passed {
			result.Outcome = OutcomeVerificationFailed
			log.WithPhase("abort_verification_failed").Warn("verification failed, branch left intact",
				"failed_steps", strings.Join(v.FailedIDs(), ", "))
			return result, nil
		}
	}

	log.WithPhase("checkout_default_branch").Info("checking out default branch")
	if err := c.checkout(ctx, target); err != nil {
		c.restore(ctx, restorePoint, log)
		return result, err
	}

	// Subjects are read before merging; a squash merge leaves HEAD unchanged
	// until the commit.
	var subjects []string
	if req.Squash {
		subjects, err = c.repo.CommitSubjects(ctx, target, req.Branch)
		if err != nil {
			c.restore(ctx, restorePoint, log)
			return result, err
		}
	}

	log.WithPhase("merge").Info("merging")
	conflicts, err := c.merge(ctx, req, subjects, log)
	if err != nil {
		c.restore(ctx, restorePoint, log)
		return result, err
	}
	if len(conflicts) > 0 {
		c.restore(ctx, restorePoint, log)
		result.Outcome = OutcomeConflict
		result.ConflictingFiles = conflicts
		log.WithPhase("abort_conflict").Warn("merge conflict, branch left intact", "files", strings.Join(conflicts, ", "))
		return result, nil
	}

	sha, err := c.repo.HeadSHA(ctx, "HEAD")
	if err != nil {
		return result, err
	}
	result.Merged = true
	result.Outcome = OutcomeMerged
	result.CommitSHA = sha

	log.WithPhase("delete_agent_branch").Info("deleting merged branch")
	if err := c.repo.DeleteBranch(ctx, req.Branch); err != nil {
		log.Warn("failed to delete merged branch", "error", err.Error())
	} else {
		result.BranchDeleted = true
	}

	if original != target && original != req.Branch && original != "HEAD" {
		c.restore(ctx, original, log)
	}

	log.WithPhase("done").Info("merge finished", "commit", sha)
	return result, nil
}

func (c *Coordinator) verifyBranch(ctx context.Context, branch, original string, log *logging.Logger) (verify.Result, bool, error) {
	if c.verifier == nil {
		return verify.Result{Passed: true}, true, nil
	}
	log.WithPhase("checkout_agent_branch").Info("checking out branch for verification")
	if err := c.checkout(ctx, branch); err != nil {
		c.restore(ctx, original, log)
		return verify.Result{}, false, err
	}

	root, err := c.repo.Root(ctx)
	if err != nil {
		c.restore(ctx, original, log)
		return verify.Result{}, false, err
	}

	log.WithPhase("verify").Info("running verification", "work_dir", root)
	v := c.verifier.Run(ctx, root, c.pipeline)
	if !v.Passed {
		c.restore(ctx, original, log)
	}
	return v, v.Passed, nil
}

// merge performs the git merge. It returns the conflicting files when the
// merge conflicted, after aborting it.
func (c *Coordinator) merge(ctx context.Context, req Request, subjects []string, log *logging.Logger) ([]string, error) {
	dir := c.repo.Dir()
	exec := c.repo.Executor()

	args := []string{"merge", "--no-edit", req.Branch}
	if req.Squash {
		args = []string{"merge", "--squash", req.Branch}
	}

	res, err := executor.Git(ctx, exec, dir, args...)
	if err != nil {
		return nil, errors.NewGitError("merge failed", err).WithBranch(req.Branch).WithRepository(dir)
	}
	if !res.Success() {
		output := res.Combined()
		if isConflict(output) {
			files, listErr := executor.GitLines(ctx, exec, dir, "diff", "--name-only", "--diff-filter=U")
			if listErr != nil {
				log.Warn("failed to list conflicting files", "error", listErr.Error())
			}
			c.abort(ctx, req.Squash, log)
			if len(files) == 0 {
				files = conflictFilesFromOutput(output)
			}
			return files, nil
		}
		c.abort(ctx, req.Squash, log)
		return nil, errors.NewGitError("merge failed", errors.ErrCommandFailed).
			WithBranch(req.Branch).
			WithRepository(dir).
			WithGitOutput(output)
	}

	if !req.Squash {
		return nil, nil
	}

	// An empty branch squashes to nothing; there is nothing to commit.
	staged, err := executor.Git(ctx, exec, dir, "diff", "--cached", "--quiet")
	if err != nil {
		c.abort(ctx, true, log)
		return nil, errors.NewGitError("failed to inspect squashed changes", err).WithBranch(req.Branch)
	}
	if staged.Success() {
		log.Info("squash produced no changes")
		return nil, nil
	}

	if _, err := executor.GitOutput(ctx, exec, dir, "commit", "-m", SquashMessage(req.Branch, subjects)); err != nil {
		c.abort(ctx, true, log)
		return nil, errors.NewGitError("squash commit failed", err).WithBranch(req.Branch).WithRepository(dir)
	}
	return nil, nil
}

func (c *Coordinator) abort(ctx context.Context, squash bool, log *logging.Logger) {
	args := []string{"merge", "--abort"}
	if squash {
		args = []string{"reset", "--merge"}
	}
	if _, err := executor.GitOutput(ctx, c.repo.Executor(), c.repo.Dir(), args...); err != nil {
		log.Warn("failed to roll back merge", "error", err.Error())
	}
}

func (c *Coordinator) checkout(ctx context.Context, branch string) error {
	current, err := c.repo.CurrentBranch(ctx)
	if err == nil && current == branch {
		return nil
	}
	return c.repo.Checkout(ctx, branch)
}

// restore returns the working copy to the operator's branch, or to the
// commit they had detached at. Failures are logged only.
func (c *Coordinator) restore(ctx context.Context, original string, log *logging.Logger) {
	if original == "" || original == "HEAD" {
		return
	}
	if err := c.checkout(ctx, original); err != nil {
		log.Warn("failed to restore original branch", "branch", original, "error", err.Error())
	}
}

// SquashMessage returns the commit message for a squash merge of branch.
func SquashMessage(branch string, subjects []string) string {
	msg := "Squash merge " + branch
	if len(subjects) > 0 {
		msg += "\n\n" + strings.Join(subjects, "\n")
	}
	return msg
}

func isConflict(output string) bool {
	return strings.Contains(output, "CONFLICT") || strings.Contains(output, "Automatic merge failed")
}

// conflictFilesFromOutput extracts paths from lines such as
// "CONFLICT (content): Merge conflict in a.go".
func conflictFilesFromOutput(output string) []string {
	var files []string
	for _, line := range strings.Split(output, "\n") {
		if !strings.HasPrefix(line, "CONFLICT") {
			continue
		}
		if _, path, ok := strings.Cut(line, "Merge conflict in "); ok {
			files = append(files, strings.TrimSpace(path))
		}
	}
	return files
}
