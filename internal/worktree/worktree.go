// Package worktree creates and releases the isolated git worktrees agents
// run in.
package worktree

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/Iron-Ham/agentline/internal/errors"
	"github.com/Iron-Ham/agentline/internal/executor"
	"github.com/Iron-Ham/agentline/internal/logging"
)

// Handle identifies a worktree created by Create.
type Handle struct {
	Path   string
	Branch string
	// RepoRoot is the repository the worktree was added to.
	RepoRoot string
}

// Entry is one worktree as reported by git worktree list.
type Entry struct {
	Path     string
	Branch   string // short name, empty when detached
	Head     string
	Bare     bool
	Detached bool
	Prunable bool
}

// Manager handles git worktree operations for one repository.
type Manager struct {
	exec        executor.Executor
	repoDir     string
	worktreeDir string
	logger      *logging.Logger
}

// New creates a Manager that runs git in repoDir and places worktrees under
// worktreeDir.
func New(exec executor.Executor, repoDir, worktreeDir string, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Manager{
		exec:        exec,
		repoDir:     repoDir,
		worktreeDir: worktreeDir,
		logger:      logger,
	}
}

// Dir returns the directory worktrees are created under.
func (m *Manager) Dir() string {
	return m.worktreeDir
}

// Path returns the worktree path for branch under dir. Slashes in the branch
// name are flattened so every worktree is a direct child of dir.
func Path(dir, branch string) string {
	return filepath.Join(dir, strings.ReplaceAll(branch, "/", "-"))
}

// PathFor returns the worktree path for branch under the Manager's directory.
func (m *Manager) PathFor(branch string) string {
	return Path(m.worktreeDir, branch)
}

// Create adds a worktree at path on a new branch started from the current
// HEAD. An existing branch is never reused or renamed: Create fails with
// errors.ErrBranchExists instead.
func (m *Manager) Create(ctx context.Context, path, branch string) (Handle, error) {
	exists, err := m.branchExists(ctx, branch)
	if err != nil {
		return Handle{}, err
	}
	if exists {
		return Handle{}, errors.NewAlreadyExistsError("branch", branch).WithCause(errors.ErrBranchExists)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return Handle{}, errors.NewGitError("failed to create worktree parent directory", errors.Join(errors.ErrWorktreeCreation, err)).
			WithBranch(branch).
			WithWorktree(path)
	}

	res, err := executor.Git(ctx, m.exec, m.repoDir, "worktree", "add", "-b", branch, path)
	if err != nil {
		return Handle{}, errors.NewGitError("failed to create worktree", errors.Join(errors.ErrWorktreeCreation, err)).
			WithBranch(branch).
			WithWorktree(path)
	}
	if !res.Success() {
		return Handle{}, errors.NewGitError("failed to create worktree", errors.ErrWorktreeCreation).
			WithBranch(branch).
			WithWorktree(path).
			WithGitOutput(res.Combined())
	}

	m.logger.Info("worktree created", "branch", branch, "worktree", path)
	return Handle{Path: path, Branch: branch, RepoRoot: m.repoDir}, nil
}

// Remove deletes the worktree at path. It never fails: when git refuses,
// the directory is removed by hand and stale registrations are pruned.
// The branch is left in place.
func (m *Manager) Remove(ctx context.Context, path string) {
	res, err := executor.Git(ctx, m.exec, m.repoDir, "worktree", "remove", "--force", path)
	if err == nil && res.Success() {
		m.logger.Info("worktree removed", "worktree", path)
		return
	}

	reason := res.Combined()
	if err != nil {
		reason = err.Error()
	}
	m.logger.Warn("git worktree remove failed, cleaning up manually",
		"worktree", path,
		"error", strings.TrimSpace(reason),
	)

	if rmErr := os.RemoveAll(path); rmErr != nil {
		m.logger.Warn("failed to delete worktree directory", "worktree", path, "error", rmErr.Error())
	}
	if pruneErr := m.Prune(ctx); pruneErr != nil {
		m.logger.Warn("failed to prune worktrees", "error", pruneErr.Error())
	}
}

// With creates a worktree, runs fn against it and removes the worktree
// on every exit path, including a panic in fn, which continues after
// removal. Removal uses a context detached from ctx's cancellation so a
// canceled run still cleans up.
func (m *Manager) With(ctx context.Context, path, branch string, fn func(Handle) error) error {
	h, err := m.Create(ctx, path, branch)
	if err != nil {
		return err
	}
	defer m.Remove(context.WithoutCancel(ctx), h.Path)
	return fn(h)
}

// List returns every worktree registered in the repository, the main
// working tree first.
func (m *Manager) List(ctx context.Context) ([]Entry, error) {
	out, err := executor.GitOutput(ctx, m.exec, m.repoDir, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}
	return parseList(out), nil
}

// Managed returns the worktrees that live under the Manager's directory.
func (m *Manager) Managed(ctx context.Context) ([]Entry, error) {
	all, err := m.List(ctx)
	if err != nil {
		return nil, err
	}
	var managed []Entry
	for _, e := range all {
		rel, err := filepath.Rel(m.worktreeDir, e.Path)
		if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		managed = append(managed, e)
	}
	return managed, nil
}

// RemoveForBranch removes every worktree checked out on branch and reports
// how many were removed.
func (m *Manager) RemoveForBranch(ctx context.Context, branch string) int {
	entries, err := m.List(ctx)
	if err != nil {
		m.logger.Warn("failed to list worktrees", "branch", branch, "error", err.Error())
		return 0
	}
	n := 0
	for i, e := range entries {
		// the first entry is the main working tree
		if i == 0 || e.Branch != branch {
			continue
		}
		m.Remove(ctx, e.Path)
		n++
	}
	return n
}

// Prune drops registrations for worktrees whose directories are gone.
func (m *Manager) Prune(ctx context.Context) error {
	_, err := executor.GitOutput(ctx, m.exec, m.repoDir, "worktree", "prune")
	return err
}

func (m *Manager) branchExists(ctx context.Context, branch string) (bool, error) {
	res, err := executor.Git(ctx, m.exec, m.repoDir, "rev-parse", "--verify", "--quiet", "refs/heads/"+branch)
	if err != nil {
		return false, errors.NewGitError("failed to check branch", err).WithBranch(branch)
	}
	return res.Success(), nil
}

func parseList(out string) []Entry {
	var (
		entries []Entry
		cur     *Entry
	)
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if path, ok := strings.CutPrefix(line, "worktree "); ok {
			entries = append(entries, Entry{Path: path})
			cur = &entries[len(entries)-1]
			continue
		}
		if cur == nil {
			continue
		}
		switch {
		case strings.HasPrefix(line, "HEAD "):
			cur.Head = strings.TrimPrefix(line, "HEAD ")
		case strings.HasPrefix(line, "branch "):
			cur.Branch = strings.TrimPrefix(strings.TrimPrefix(line, "branch "), "refs/heads/")
		case line == "bare":
			cur.Bare = true
		case line == "detached":
			cur.Detached = true
		case line == "prunable" || strings.HasPrefix(line, "prunable "):
			cur.Prunable = true
		}
	}
	return entries
}
