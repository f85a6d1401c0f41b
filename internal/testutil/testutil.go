// Package testutil provides real-git fixtures for agentline tests.
package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

// TestAuthor is the identity used for every commit made by fixtures.
const TestAuthor = "Agentline Test"

// TestEmail is the email used for every commit made by fixtures.
const TestEmail = "test@agentline.dev"

// SetupTestRepo creates a temporary git repository on branch main with one
// commit (README.md). The directory is removed when the test completes.
func SetupTestRepo(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	// Resolve /tmp symlinks (macOS) so paths compare equal to git's output.
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		dir = resolved
	}

	mustGit(t, dir, "init")
	mustGit(t, dir, "config", "user.email", TestEmail)
	mustGit(t, dir, "config", "user.name", TestAuthor)
	mustGit(t, dir, "config", "commit.gpgsign", "false")

	// git worktree requires at least one commit
	WriteFile(t, dir, "README.md", "# Test Repository\n")
	mustGit(t, dir, "add", ".")
	mustGit(t, dir, "commit", "-m", "Initial commit")
	mustGit(t, dir, "branch", "-M", "main")

	return dir
}

// SetupTestRepoWithContent creates a test repository and commits files
// (relative path to content) on main.
func SetupTestRepoWithContent(t *testing.T, files map[string]string) string {
	t.Helper()

	dir := SetupTestRepo(t)
	for path, content := range files {
		WriteFile(t, dir, path, content)
	}
	mustGit(t, dir, "add", ".")
	mustGit(t, dir, "commit", "-m", "Add test files")
	return dir
}

// WriteFile writes content to path under dir without staging it.
func WriteFile(t *testing.T, dir, path, content string) {
	t.Helper()

	full := filepath.Join(dir, path)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		t.Fatalf("failed to create directory for %s: %v", path, err)
	}
	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write file %s: %v", path, err)
	}
}

// CommitFile creates or updates a file and commits it.
func CommitFile(t *testing.T, repoDir, path, content, message string) {
	t.Helper()

	WriteFile(t, repoDir, path, content)
	mustGit(t, repoDir, "add", path)
	mustGit(t, repoDir, "commit", "-m", message)
}

// WriteAgentDescriptor commits .claude/agents/<name>.md with the given
// front-matter body (without the --- fences) followed by a prose section.
func WriteAgentDescriptor(t *testing.T, repoDir, name, frontMatter string) string {
	t.Helper()

	rel := filepath.Join(".claude", "agents", name+".md")
	content := "---\n" + strings.TrimSpace(frontMatter) + "\n---\n\nYou are the " + name + " agent.\n"
	CommitFile(t, repoDir, rel, content, "Add "+name+" agent")
	return filepath.Join(repoDir, rel)
}

// CreateBranch creates a new branch at HEAD.
func CreateBranch(t *testing.T, repoDir, branch string) {
	t.Helper()
	mustGit(t, repoDir, "branch", branch)
}

// CheckoutBranch switches to a branch.
func CheckoutBranch(t *testing.T, repoDir, branch string) {
	t.Helper()
	mustGit(t, repoDir, "checkout", branch)
}

// GetCurrentBranch returns the current branch name.
func GetCurrentBranch(t *testing.T, repoDir string) string {
	t.Helper()
	return Git(t, repoDir, "rev-parse", "--abbrev-ref", "HEAD")
}

// GetCommitCount returns the number of commits reachable from ref.
func GetCommitCount(t *testing.T, repoDir, ref string) int {
	t.Helper()

	out := Git(t, repoDir, "rev-list", "--count", ref)
	n, err := strconv.Atoi(out)
	if err != nil {
		t.Fatalf("failed to parse commit count %q: %v", out, err)
	}
	return n
}

// BranchExists reports whether a local branch exists.
func BranchExists(t *testing.T, repoDir, branch string) bool {
	t.Helper()
	return runGit(repoDir, "rev-parse", "--verify", "--quiet", "refs/heads/"+branch) == nil
}

// HasUncommittedChanges returns true if the repository has uncommitted changes.
func HasUncommittedChanges(t *testing.T, repoDir string) bool {
	t.Helper()
	return Git(t, repoDir, "status", "--porcelain") != ""
}

// ListWorktrees returns the paths of all worktrees, including the main one.
func ListWorktrees(t *testing.T, repoDir string) []string {
	t.Helper()

	var worktrees []string
	for _, line := range strings.Split(Git(t, repoDir, "worktree", "list", "--porcelain"), "\n") {
		if path, ok := strings.CutPrefix(line, "worktree "); ok {
			worktrees = append(worktrees, path)
		}
	}
	return worktrees
}

// Git runs git in dir and returns trimmed stdout, failing the test on error.
func Git(t *testing.T, dir string, args ...string) string {
	t.Helper()

	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = gitEnv()
	out, err := cmd.Output()
	if err != nil {
		stderr := ""
		if ee, ok := err.(*exec.ExitError); ok {
			stderr = string(ee.Stderr)
		}
		t.Fatalf("git %s: %v\n%s", strings.Join(args, " "), err, stderr)
	}
	return strings.TrimSpace(string(out))
}

// SkipIfNoGit skips the test if git is not installed.
func SkipIfNoGit(t *testing.T) {
	t.Helper()

	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not found in PATH, skipping test")
	}
}

func mustGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	if err := runGit(dir, args...); err != nil {
		t.Fatalf("%v", err)
	}
}

func runGit(dir string, args ...string) error {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = gitEnv()
	output, err := cmd.CombinedOutput()
	if err != nil {
		return &gitError{args: args, output: output, err: err}
	}
	return nil
}

func gitEnv() []string {
	return append(os.Environ(),
		"GIT_AUTHOR_NAME="+TestAuthor,
		"GIT_AUTHOR_EMAIL="+TestEmail,
		"GIT_COMMITTER_NAME="+TestAuthor,
		"GIT_COMMITTER_EMAIL="+TestEmail,
	)
}

type gitError struct {
	args   []string
	output []byte
	err    error
}

func (e *gitError) Error() string {
	return "git " + strings.Join(e.args, " ") + ": " + e.err.Error() + "\n" + string(e.output)
}

func (e *gitError) Unwrap() error {
	return e.err
}
