package executor

import (
	"context"
	"strings"

	"github.com/Iron-Ham/agentline/internal/errors"
)

// gitEnv pins git's messages to English so output such as "CONFLICT" can be
// matched, and stops git from prompting for credentials.
var gitEnv = []string{"LC_ALL=C", "GIT_TERMINAL_PROMPT=0"}

// Git runs git with args in dir through e.
func Git(ctx context.Context, e Executor, dir string, args ...string) (Result, error) {
	return e.Run(ctx, Command{Name: "git", Args: args, Dir: dir, Env: gitEnv})
}

// GitOutput runs git and returns trimmed stdout. A non-zero exit becomes a
// *errors.GitError carrying git's output.
func GitOutput(ctx context.Context, e Executor, dir string, args ...string) (string, error) {
	res, err := Git(ctx, e, dir, args...)
	if err != nil {
		return "", errors.NewGitError("git "+firstArg(args)+" failed", err).WithRepository(dir)
	}
	if !res.Success() {
		return "", errors.NewGitError("git "+firstArg(args)+" failed", errors.ErrCommandFailed).
			WithRepository(dir).
			WithGitOutput(res.Combined())
	}
	return strings.TrimSpace(res.Stdout), nil
}

// GitLines runs git and splits non-empty stdout lines.
func GitLines(ctx context.Context, e Executor, dir string, args ...string) ([]string, error) {
	out, err := GitOutput(ctx, e, dir, args...)
	if err != nil {
		return nil, err
	}
	return SplitLines(out), nil
}

// SplitLines splits s on newlines, dropping empty lines.
func SplitLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
