//go:build integration

package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Iron-Ham/agentline/internal/errors"
	"github.com/Iron-Ham/agentline/internal/testutil"
	"github.com/spf13/cobra"
)

// executeCommand runs a cobra command with args and returns captured output
func executeCommand(root *cobra.Command, args ...string) (output string, err error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err = root.Execute()
	return buf.String(), err
}

// setupTestEnvironment creates a test repo with a committed .agentline.yaml
// and a "demo" agent, and isolates the user config directory.
func setupTestEnvironment(t *testing.T, repoConfig string) string {
	t.Helper()

	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	repoDir := testutil.SetupTestRepo(t)
	testutil.CommitFile(t, repoDir, ".agentline.yaml", repoConfig, "Add agentline config")
	testutil.WriteAgentDescriptor(t, repoDir, "demo", "name: demo\ndescription: Demo agent")
	return repoDir
}

const baseConfig = `
logging:
  enabled: false
  level: error
agent:
  command: ["sh", "-c", "echo footer > footer.html"]
  timeout: 1m
verify:
  subsystems: []
`

// runExit executes args and returns the ExitError code, or 0 on success.
func runExit(t *testing.T, args ...string) (string, int) {
	t.Helper()

	out, err := executeCommand(rootCmd, args...)
	if err == nil {
		return out, 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return out, exitErr.Code
	}
	t.Fatalf("%v: unexpected error: %v\n%s", args, err, out)
	return out, -1
}

func agentBranches(t *testing.T, dir string) []string {
	t.Helper()
	out := testutil.Git(t, dir, "for-each-ref", "--format=%(refname:short)", "refs/heads/agent/")
	if out == "" {
		return nil
	}
	return strings.Split(out, "\n")
}

func TestRootCommand(t *testing.T) {
	if rootCmd.Use != "agentline" {
		t.Errorf("rootCmd.Use = %q, want %q", rootCmd.Use, "agentline")
	}

	// Check for expected subcommands (compare by Name(), not Use which includes args)
	expected := map[string][]string{
		"agent":  {"run", "list", "cleanup"},
		"merge":  {"list"},
		"verify": nil,
		"wave":   {"list", "status", "run"},
		"config": {"show", "set", "init", "path"},
	}
	cmdMap := make(map[string]*cobra.Command)
	for _, c := range rootCmd.Commands() {
		cmdMap[c.Name()] = c
	}

	for name, subs := range expected {
		c, ok := cmdMap[name]
		if !ok {
			t.Errorf("expected subcommand %q not found", name)
			continue
		}
		have := make(map[string]bool)
		for _, sub := range c.Commands() {
			have[sub.Name()] = true
		}
		for _, sub := range subs {
			if !have[sub] {
				t.Errorf("expected subcommand %q %q not found", name, sub)
			}
		}
	}
}

func TestAgentRunThenMerge(t *testing.T) {
	testutil.SkipIfNoGit(t)
	dir := setupTestEnvironment(t, baseConfig)
	before := testutil.GetCommitCount(t, dir, "main")

	out, code := runExit(t, "--repo", dir, "agent", "run", "--quiet", "demo", "add footer link")
	if code != 0 {
		t.Fatalf("agent run exit = %d\n%s", code, out)
	}
	if !strings.Contains(out, "agent/demo/") {
		t.Errorf("agent run output missing branch:\n%s", out)
	}

	branches := agentBranches(t, dir)
	if len(branches) != 1 {
		t.Fatalf("agent branches = %v, want one", branches)
	}
	branch := branches[0]
	if !strings.HasPrefix(branch, "agent/demo/") || !strings.Contains(branch, "-add-footer-link-") {
		t.Errorf("branch = %q", branch)
	}
	if wts := testutil.ListWorktrees(t, dir); len(wts) != 1 {
		t.Errorf("worktrees after run = %v, want only the main one", wts)
	}

	out, code = runExit(t, "--repo", dir, "merge", "list")
	if code != 0 || !strings.Contains(out, branch) {
		t.Errorf("merge list (exit %d) missing %s:\n%s", code, branch, out)
	}

	out, code = runExit(t, "--repo", dir, "merge", branch, "--skip-verify")
	if code != 0 {
		t.Fatalf("merge exit = %d\n%s", code, out)
	}
	if !strings.Contains(out, "merged") {
		t.Errorf("merge output = %q", out)
	}
	if testutil.BranchExists(t, dir, branch) {
		t.Error("agent branch still exists after merge")
	}
	if _, err := os.Stat(filepath.Join(dir, "footer.html")); err != nil {
		t.Errorf("footer.html not on main: %v", err)
	}
	if got := testutil.GetCommitCount(t, dir, "main"); got != before+1 {
		t.Errorf("main commits = %d, want %d", got, before+1)
	}
}

func TestAgentRun_Preconditions(t *testing.T) {
	testutil.SkipIfNoGit(t)
	dir := setupTestEnvironment(t, baseConfig)

	_, err := executeCommand(rootCmd, "--repo", dir, "agent", "run", "--quiet", "missing", "do something")
	if !errors.Is(err, errors.ErrAgentNotFound) {
		t.Errorf("missing agent error = %v, want ErrAgentNotFound", err)
	}

	testutil.WriteFile(t, dir, "scratch.txt", "local edit\n")
	_, err = executeCommand(rootCmd, "--repo", dir, "agent", "run", "--quiet", "demo", "do something")
	if !errors.Is(err, errors.ErrDirtyWorkingDirectory) {
		t.Errorf("dirty error = %v, want ErrDirtyWorkingDirectory", err)
	}
	if got := agentBranches(t, dir); len(got) != 0 {
		t.Errorf("branches created despite failed precondition: %v", got)
	}
}

func TestMerge_VerificationFailureExitsNonZero(t *testing.T) {
	testutil.SkipIfNoGit(t)
	dir := setupTestEnvironment(t, strings.Replace(baseConfig, "  subsystems: []\n", `  subsystems:
    - name: checks
      dir: .
      steps:
        - name: always-fails
          command: ["sh", "-c", "echo broken; exit 1"]
`, 1))

	testutil.CreateBranch(t, dir, "agent/demo/20240101-000000-add-footer-link-ab12cd")
	testutil.CheckoutBranch(t, dir, "agent/demo/20240101-000000-add-footer-link-ab12cd")
	testutil.CommitFile(t, dir, "footer.html", "footer\n", "Add footer")
	testutil.CheckoutBranch(t, dir, "main")
	head := testutil.Git(t, dir, "rev-parse", "main")

	out, code := runExit(t, "--repo", dir, "merge", "agent/demo/20240101-000000-add-footer-link-ab12cd", "--skip-verify=false")
	if code != ExitNotMerged {
		t.Fatalf("merge exit = %d, want %d\n%s", code, ExitNotMerged, out)
	}
	for _, want := range []string{"always-fails", "broken", "verification failed"} {
		if !strings.Contains(out, want) {
			t.Errorf("merge output missing %q:\n%s", want, out)
		}
	}
	if got := testutil.Git(t, dir, "rev-parse", "main"); got != head {
		t.Errorf("main moved from %s to %s", head, got)
	}
	if !testutil.BranchExists(t, dir, "agent/demo/20240101-000000-add-footer-link-ab12cd") {
		t.Error("agent branch deleted after failed verification")
	}
	if got := testutil.GetCurrentBranch(t, dir); got != "main" {
		t.Errorf("current branch = %q, want main", got)
	}
}

func TestWaveCommands(t *testing.T) {
	testutil.SkipIfNoGit(t)
	dir := setupTestEnvironment(t, baseConfig)

	out, code := runExit(t, "--repo", dir, "wave", "list")
	if code != 0 || !strings.Contains(out, "Wave 1") || !strings.Contains(out, "wave2-projects") {
		t.Errorf("wave list (exit %d):\n%s", code, out)
	}

	out, code = runExit(t, "--repo", dir, "wave", "run", "1")
	if code != 0 || !strings.Contains(out, "agentline agent run wave1-schema") {
		t.Errorf("wave run (exit %d):\n%s", code, out)
	}

	testutil.CreateBranch(t, dir, "claude/wave1/auth/20240101-000000-oauth-ab12cd")
	out, code = runExit(t, "--repo", dir, "wave", "status", "1")
	if code != 0 || !strings.Contains(out, "claude/wave1/auth/20240101-000000-oauth-ab12cd") || !strings.Contains(out, "1/3 task(s) started") {
		t.Errorf("wave status (exit %d):\n%s", code, out)
	}

	if _, err := executeCommand(rootCmd, "--repo", dir, "wave", "run", "zero"); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("wave run zero error = %v, want ErrInvalidInput", err)
	}
}

func TestVerifyCommand(t *testing.T) {
	testutil.SkipIfNoGit(t)
	dir := setupTestEnvironment(t, strings.Replace(baseConfig, "  subsystems: []\n", `  subsystems:
    - name: checks
      dir: .
      steps:
        - name: readme
          command: ["test", "-f", "README.md"]
`, 1))

	out, code := runExit(t, "--repo", dir, "verify")
	if code != 0 || !strings.Contains(out, "All verification steps passed") {
		t.Errorf("verify (exit %d):\n%s", code, out)
	}
}

func TestConfigSet(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	out, err := executeCommand(rootCmd, "config", "set", "verify.step_timeout", "15m")
	if err != nil {
		t.Fatalf("config set: %v\n%s", err, out)
	}
	data, err := os.ReadFile(filepath.Join(os.Getenv("XDG_CONFIG_HOME"), "agentline", "config.yaml"))
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if !strings.Contains(string(data), "step_timeout: 15m") {
		t.Errorf("config file = %s", data)
	}

	if _, err := executeCommand(rootCmd, "config", "set", "nope.key", "1"); err == nil {
		t.Error("config set accepted an unknown key")
	}
	if _, err := executeCommand(rootCmd, "config", "set", "merge.squash", "maybe"); err == nil {
		t.Error("config set accepted a non-bool value")
	}
}

func TestParseSetting(t *testing.T) {
	tests := []struct {
		key, value string
		want       any
		wantErr    bool
	}{
		{"merge.squash", "true", true, false},
		{"verify.output_limit", "500", 500, false},
		{"verify.output_limit", "-1", nil, true},
		{"agent.timeout", "45m", "45m", false},
		{"agent.timeout", "soon", nil, true},
		{"logging.level", "DEBUG", "debug", false},
		{"logging.level", "loud", nil, true},
		{"repo.default_branch", "develop", "develop", false},
		{"unknown.key", "x", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			got, err := parseSetting(tt.key, tt.value)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseSetting() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("parseSetting() = %v, want %v", got, tt.want)
			}
		})
	}
}
