package repo

import (
	"context"
	"strings"

	"github.com/Iron-Ham/agentline/internal/errors"
	"github.com/Iron-Ham/agentline/internal/executor"
)

// ChangedFiles returns every path with staged, unstaged or untracked
// changes, excluding paths matched by the ignore globs. Renames report the
// destination path.
func (s *Service) ChangedFiles(ctx context.Context) ([]string, error) {
	res, err := executor.Git(ctx, s.exec, s.dir, "status", "--porcelain=v1", "-z", "--untracked-files=all")
	if err != nil {
		return nil, errors.NewGitError("failed to read status", err).WithRepository(s.dir)
	}
	if !res.Success() {
		return nil, errors.NewGitError("failed to read status", errors.ErrCommandFailed).
			WithRepository(s.dir).
			WithGitOutput(res.Combined())
	}

	var files []string
	for _, path := range parsePorcelainZ(res.Stdout) {
		if s.ignored(path) {
			continue
		}
		files = append(files, path)
	}
	return files, nil
}

// IsClean reports whether ChangedFiles is empty.
func (s *Service) IsClean(ctx context.Context) (bool, error) {
	files, err := s.ChangedFiles(ctx)
	if err != nil {
		return false, err
	}
	return len(files) == 0, nil
}

// RequireClean returns an error wrapping errors.ErrDirtyWorkingDirectory
// that lists the dirty paths when the working copy is not clean.
func (s *Service) RequireClean(ctx context.Context) error {
	files, err := s.ChangedFiles(ctx)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return nil
	}
	const shown = 10
	list := files
	more := ""
	if len(list) > shown {
		more = ", ..."
		list = list[:shown]
	}
	return errors.NewGitError(
		"commit or stash changes first ("+strings.Join(list, ", ")+more+")",
		errors.ErrDirtyWorkingDirectory,
	).WithRepository(s.dir)
}

func (s *Service) ignored(path string) bool {
	for _, g := range s.ignore {
		if g.Match(path) {
			return true
		}
	}
	return false
}

// parsePorcelainZ extracts paths from `git status --porcelain=v1 -z`.
// Entries are "XY path\0"; rename and copy entries are followed by an extra
// "origPath\0" field.
func parsePorcelainZ(out string) []string {
	fields := strings.Split(out, "\x00")
	var paths []string
	for i := 0; i < len(fields); i++ {
		entry := fields[i]
		if len(entry) < 4 {
			continue
		}
		status, path := entry[:2], entry[3:]
		paths = append(paths, path)
		if status[0] == 'R' || status[0] == 'C' {
			i++
		}
	}
	return paths
}
