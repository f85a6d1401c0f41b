// Package repo answers questions about the state of a git repository:
// current and default branch, root, cleanliness and task branches.
package repo

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Iron-Ham/agentline/internal/errors"
	"github.com/Iron-Ham/agentline/internal/executor"
	"github.com/Iron-Ham/agentline/internal/logging"
	"github.com/gobwas/glob"
)

// FallbackBranch is returned by DefaultBranch when neither main nor master exists.
const FallbackBranch = "master"

// Service queries one repository through an Executor. All methods run git
// in Dir.
type Service struct {
	exec          executor.Executor
	dir           string
	defaultBranch string
	ignore        []glob.Glob
	ignoreRaw     []string
	logger        *logging.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithDefaultBranch sets the configured integration branch.
func WithDefaultBranch(name string) Option {
	return func(s *Service) { s.defaultBranch = name }
}

// WithIgnorePaths sets glob patterns for paths that never count as dirty.
func WithIgnorePaths(patterns []string) Option {
	return func(s *Service) { s.ignoreRaw = append(s.ignoreRaw, patterns...) }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Service for the repository containing dir.
func New(exec executor.Executor, dir string, opts ...Option) (*Service, error) {
	if exec == nil {
		panic("repo: executor must not be nil")
	}
	s := &Service{
		exec:   exec,
		dir:    dir,
		logger: logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, pattern := range s.ignoreRaw {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, errors.NewValidationError("invalid ignore pattern").
				WithField("preflight.ignore_paths").
				WithValue(pattern).
				WithCause(err)
		}
		s.ignore = append(s.ignore, g)
	}
	return s, nil
}

// Dir returns the directory the Service runs git in.
func (s *Service) Dir() string {
	return s.dir
}

// Executor returns the executor used for git calls.
func (s *Service) Executor() executor.Executor {
	return s.exec
}

func (s *Service) git(ctx context.Context, args ...string) (string, error) {
	return executor.GitOutput(ctx, s.exec, s.dir, args...)
}

// Root returns the absolute, symlink-resolved top level of the working tree.
func (s *Service) Root(ctx context.Context) (string, error) {
	res, err := executor.Git(ctx, s.exec, s.dir, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", errors.NewGitError("failed to locate repository root", err).WithRepository(s.dir)
	}
	if !res.Success() {
		return "", errors.NewGitError("failed to locate repository root", errors.ErrNotGitRepository).
			WithRepository(s.dir).
			WithGitOutput(res.Combined())
	}
	root := strings.TrimSpace(res.Stdout)
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}
	return root, nil
}

// CurrentBranch returns the checked-out branch, or "HEAD" when detached.
func (s *Service) CurrentBranch(ctx context.Context) (string, error) {
	return s.git(ctx, "rev-parse", "--abbrev-ref", "HEAD")
}

// BranchExists reports whether a local branch named name exists.
func (s *Service) BranchExists(ctx context.Context, name string) (bool, error) {
	res, err := executor.Git(ctx, s.exec, s.dir, "rev-parse", "--verify", "--quiet", "refs/heads/"+name)
	if err != nil {
		return false, errors.NewGitError("failed to check branch", err).WithBranch(name).WithRepository(s.dir)
	}
	return res.Success(), nil
}

// DefaultBranch resolves the integration branch: the configured name, then
// main, then master, falling back to master when neither exists.
func (s *Service) DefaultBranch(ctx context.Context) string {
	if s.defaultBranch != "" {
		return s.defaultBranch
	}
	for _, candidate := range []string{"main", "master"} {
		ok, err := s.BranchExists(ctx, candidate)
		if err != nil {
			s.logger.Warn("default branch probe failed", "branch", candidate, "error", err.Error())
			continue
		}
		if ok {
			return candidate
		}
	}
	return FallbackBranch
}

// HeadSHA returns the full commit hash of rev.
func (s *Service) HeadSHA(ctx context.Context, rev string) (string, error) {
	return s.git(ctx, "rev-parse", "--verify", rev+"^{commit}")
}

// Checkout switches the working tree to name.
func (s *Service) Checkout(ctx context.Context, name string) error {
	res, err := executor.Git(ctx, s.exec, s.dir, "checkout", name)
	if err != nil {
		return errors.NewGitError("checkout failed", err).WithBranch(name).WithRepository(s.dir)
	}
	if !res.Success() {
		return errors.NewGitError("checkout failed", errors.ErrCommandFailed).
			WithBranch(name).
			WithRepository(s.dir).
			WithGitOutput(res.Combined())
	}
	return nil
}

// CommitCount returns the number of commits reachable from head but not base.
func (s *Service) CommitCount(ctx context.Context, base, head string) (int, error) {
	out, err := s.git(ctx, "rev-list", "--count", base+".."+head)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(out)
	if err != nil {
		return 0, errors.NewGitError("failed to parse commit count", err).WithRepository(s.dir)
	}
	return n, nil
}

// CommitSubjects returns the subjects of commits in base..head, oldest first.
func (s *Service) CommitSubjects(ctx context.Context, base, head string) ([]string, error) {
	return executor.GitLines(ctx, s.exec, s.dir, "log", "--reverse", "--format=%s", base+".."+head)
}

// DeleteBranch force-deletes a local branch.
func (s *Service) DeleteBranch(ctx context.Context, name string) error {
	res, err := executor.Git(ctx, s.exec, s.dir, "branch", "-D", name)
	if err != nil {
		return errors.NewGitError("failed to delete branch", err).WithBranch(name).WithRepository(s.dir)
	}
	if !res.Success() {
		return errors.NewGitError("failed to delete branch", errors.ErrCommandFailed).
			WithBranch(name).
			WithRepository(s.dir).
			WithGitOutput(res.Combined())
	}
	return nil
}

// lastCommitTime parses git's strict ISO 8601 dates.
func lastCommitTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}
	}
	return t
}
