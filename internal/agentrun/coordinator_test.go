package agentrun

import (
	"context"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/Iron-Ham/agentline/internal/agentcfg"
	"github.com/Iron-Ham/agentline/internal/branch"
	"github.com/Iron-Ham/agentline/internal/errors"
	"github.com/Iron-Ham/agentline/internal/executor"
	"github.com/Iron-Ham/agentline/internal/repo"
	"github.com/Iron-Ham/agentline/internal/testutil"
	"github.com/Iron-Ham/agentline/internal/worktree"
)

type fixture struct {
	repoDir string
	coord   *Coordinator
}

func newFixture(t *testing.T, command []string, timeout time.Duration, genOpts ...branch.Option) fixture {
	t.Helper()
	testutil.SkipIfNoGit(t)

	repoDir := testutil.SetupTestRepo(t)
	testutil.WriteAgentDescriptor(t, repoDir, "tester", "description: Writes tests\ntools: Read, Edit\nmodel: sonnet")

	exec := executor.New()
	svc, err := repo.New(exec, repoDir, repo.WithIgnorePaths([]string{".agentline/**"}))
	if err != nil {
		t.Fatal(err)
	}
	coord := New(Options{
		Repo:          svc,
		Agents:        agentcfg.NewLoader(repoDir, []string{".claude/agents", "agents"}, []string{".md"}),
		Names:         branch.NewGenerator(genOpts...),
		Worktrees:     worktree.New(exec, repoDir, filepath.Join(repoDir, ".agentline", "worktrees"), nil),
		Executor:      exec,
		Command:       command,
		Timeout:       timeout,
		WatchActivity: true,
	})
	return fixture{repoDir: repoDir, coord: coord}
}

func (f fixture) assertNoWorktrees(t *testing.T) {
	t.Helper()
	if wts := testutil.ListWorktrees(t, f.repoDir); len(wts) != 1 {
		t.Errorf("worktrees = %q, want only the main working tree", wts)
	}
}

func TestCoordinator_Run_CommitsChanges(t *testing.T) {
	f := newFixture(t, []string{"sh", "-c", `printf '%s' "$1" > result.txt`, "agent", "{task}"}, time.Minute)
	ctx := context.Background()

	task := Task{Agent: "tester", Description: "Add login form"}
	report, err := f.coord.Run(ctx, task)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if !report.HasChanges || report.CommitSHA == "" {
		t.Fatalf("report = %+v, want a commit", report)
	}
	if !report.AgentSucceeded() || report.AgentExitCode != 0 {
		t.Errorf("agent failure recorded: %+v", report)
	}
	if report.RunID == "" {
		t.Error("RunID is empty")
	}
	info, ok := branch.Parse(report.Branch)
	if !ok || info.Agent != "tester" || info.Slug != "add-login-form" {
		t.Errorf("branch %q parsed as %+v", report.Branch, info)
	}
	if !testutil.BranchExists(t, f.repoDir, report.Branch) {
		t.Fatalf("branch %s missing", report.Branch)
	}
	if got := testutil.GetCommitCount(t, f.repoDir, "main.."+report.Branch); got != 1 {
		t.Errorf("commits on branch = %d, want 1", got)
	}
	if got := testutil.Git(t, f.repoDir, "rev-parse", report.Branch); got != report.CommitSHA {
		t.Errorf("branch head = %s, want %s", got, report.CommitSHA)
	}
	if got := testutil.Git(t, f.repoDir, "show", report.Branch+":result.txt"); got != "Add login form" {
		t.Errorf("result.txt = %q", got)
	}
	msg := testutil.Git(t, f.repoDir, "log", "-1", "--format=%B", report.Branch)
	if want := "Add login form\n\nAgent: tester\n\nGenerated-By: agentline"; msg != want {
		t.Errorf("commit message = %q, want %q", msg, want)
	}
	if !slices.Contains(report.TouchedFiles, "result.txt") {
		t.Errorf("TouchedFiles = %q, want result.txt", report.TouchedFiles)
	}
	if testutil.GetCurrentBranch(t, f.repoDir) != "main" {
		t.Error("operator checkout moved")
	}
	f.assertNoWorktrees(t)
}

func TestCoordinator_Run_NoChanges(t *testing.T) {
	f := newFixture(t, []string{"true"}, time.Minute)

	report, err := f.coord.Run(context.Background(), Task{Agent: "tester", Description: "Look around"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.HasChanges || report.CommitSHA != "" {
		t.Errorf("report = %+v, want no commit", report)
	}
	if !testutil.BranchExists(t, f.repoDir, report.Branch) {
		t.Error("empty branch should be kept")
	}
	if got := testutil.GetCommitCount(t, f.repoDir, "main.."+report.Branch); got != 0 {
		t.Errorf("commits on branch = %d, want 0", got)
	}
	f.assertNoWorktrees(t)
}

func TestCoordinator_Run_AgentCommitsItself(t *testing.T) {
	f := newFixture(t, []string{"sh", "-c", `echo done > self.txt && git add self.txt && git commit -q -m "Agent commit"`}, time.Minute)

	report, err := f.coord.Run(context.Background(), Task{Agent: "tester", Description: "Commit on your own"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !report.HasChanges {
		t.Errorf("HasChanges = false although the agent committed")
	}
	if got := testutil.Git(t, f.repoDir, "rev-parse", report.Branch); report.CommitSHA != got {
		t.Errorf("CommitSHA = %q, want branch head %s", report.CommitSHA, got)
	}
	if got := testutil.GetCommitCount(t, f.repoDir, "main.."+report.Branch); got != 1 {
		t.Errorf("commits on branch = %d, want only the agent's own", got)
	}
	if got := testutil.Git(t, f.repoDir, "log", "-1", "--format=%s", report.Branch); got != "Agent commit" {
		t.Errorf("branch head subject = %q", got)
	}
	f.assertNoWorktrees(t)
}

func TestCoordinator_Run_AgentFailuresAreRecorded(t *testing.T) {
	tests := []struct {
		name        string
		command     []string
		timeout     time.Duration
		wantExit    int
		wantErrPart string
		wantChanges bool
	}{
		{
			name:        "non-zero exit keeps partial work",
			command:     []string{"sh", "-c", "echo partial > partial.txt; exit 3"},
			timeout:     time.Minute,
			wantExit:    3,
			wantErrPart: "status 3",
			wantChanges: true,
		},
		{
			name:        "spawn failure",
			command:     []string{"agentline-no-such-agent-binary"},
			timeout:     time.Minute,
			wantExit:    -1,
			wantErrPart: "start",
		},
		{
			name:        "timeout",
			command:     []string{"sleep", "10"},
			timeout:     200 * time.Millisecond,
			wantExit:    -1,
			wantErrPart: "timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.command, tt.timeout)

			report, err := f.coord.Run(context.Background(), Task{Agent: "tester", Description: "Try something"})
			if err != nil {
				t.Fatalf("Run() error = %v, agent failures must not fail the run", err)
			}
			if report.AgentExitCode != tt.wantExit {
				t.Errorf("AgentExitCode = %d, want %d", report.AgentExitCode, tt.wantExit)
			}
			if !strings.Contains(report.AgentError, tt.wantErrPart) {
				t.Errorf("AgentError = %q, want it to contain %q", report.AgentError, tt.wantErrPart)
			}
			if report.HasChanges != tt.wantChanges {
				t.Errorf("HasChanges = %v, want %v", report.HasChanges, tt.wantChanges)
			}
			f.assertNoWorktrees(t)
		})
	}
}

func TestCoordinator_Run_DirtyWorkingCopy(t *testing.T) {
	f := newFixture(t, []string{"true"}, time.Minute)
	testutil.WriteFile(t, f.repoDir, "scratch.txt", "uncommitted")

	_, err := f.coord.Run(context.Background(), Task{Agent: "tester", Description: "Anything"})
	if !errors.Is(err, errors.ErrDirtyWorkingDirectory) {
		t.Fatalf("Run() error = %v, want ErrDirtyWorkingDirectory", err)
	}
	if !strings.Contains(err.Error(), "scratch.txt") {
		t.Errorf("error %q does not name the dirty file", err)
	}
	if branches := testutil.Git(t, f.repoDir, "branch", "--list", "agent/*"); branches != "" {
		t.Errorf("branches created despite dirty working copy: %q", branches)
	}
	f.assertNoWorktrees(t)
}

func TestCoordinator_Run_AgentNotFound(t *testing.T) {
	f := newFixture(t, []string{"true"}, time.Minute)

	_, err := f.coord.Run(context.Background(), Task{Agent: "ghost", Description: "Anything"})
	if !errors.Is(err, errors.ErrAgentNotFound) {
		t.Fatalf("Run() error = %v, want ErrAgentNotFound", err)
	}
	if branches := testutil.Git(t, f.repoDir, "branch", "--list", "agent/*"); branches != "" {
		t.Errorf("branches created for missing agent: %q", branches)
	}
}

func TestCoordinator_Run_BranchExists(t *testing.T) {
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	f := newFixture(t, []string{"true"}, time.Minute,
		branch.WithClock(func() time.Time { return fixed }),
		branch.WithSuffix(func() string { return "abc123" }),
	)
	taken := "agent/tester/20250102-030405-anything-abc123"
	testutil.CreateBranch(t, f.repoDir, taken)

	_, err := f.coord.Run(context.Background(), Task{Agent: "tester", Description: "Anything"})
	if !errors.Is(err, errors.ErrBranchExists) {
		t.Fatalf("Run() error = %v, want ErrBranchExists", err)
	}
	f.assertNoWorktrees(t)
}

func TestCoordinator_Run_Validation(t *testing.T) {
	c := New(Options{Command: []string{"true"}})
	for _, task := range []Task{{Agent: "", Description: "x"}, {Agent: "tester", Description: "  "}} {
		if _, err := c.Run(context.Background(), task); !errors.Is(err, errors.ErrInvalidInput) {
			t.Errorf("Run(%+v) error = %v, want ErrInvalidInput", task, err)
		}
	}
	empty := New(Options{})
	if _, err := empty.Run(context.Background(), Task{Agent: "a", Description: "b"}); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("Run() with empty command error = %v, want ErrInvalidInput", err)
	}
}

func TestExpandCommand(t *testing.T) {
	cfg := agentcfg.Config{Model: "opus", PermissionMode: "acceptEdits", Tools: []string{"Read", "Bash"}}
	task := Task{Agent: "tester", Description: `fix "quoted" bug; rm -rf /`}

	got := ExpandCommand([]string{"claude", "--agent", "{agent}", "--model={model}", "--mode", "{permission_mode}", "--tools", "{tools}", "{task}"}, cfg, task)
	want := []string{"claude", "--agent", "tester", "--model=opus", "--mode", "acceptEdits", "--tools", "Read,Bash", `fix "quoted" bug; rm -rf /`}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExpandCommand() = %q, want %q", got, want)
	}
}

func TestCommitMessage(t *testing.T) {
	got := CommitMessage(Task{Agent: "wave1-auth", Description: "  Implement OAuth  "})
	want := "Implement OAuth\n\nAgent: wave1-auth\n\nGenerated-By: agentline"
	if got != want {
		t.Errorf("CommitMessage() = %q, want %q", got, want)
	}
}

func TestReport_DurationMs(t *testing.T) {
	r := Report{Duration: 1500 * time.Millisecond}
	if r.DurationMs() != 1500 {
		t.Errorf("DurationMs() = %d", r.DurationMs())
	}
}
