package worktree

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Iron-Ham/agentline/internal/errors"
	"github.com/Iron-Ham/agentline/internal/executor"
	"github.com/Iron-Ham/agentline/internal/testutil"
)

func newTestManager(t *testing.T) (*Manager, string) {
	t.Helper()
	testutil.SkipIfNoGit(t)

	repoDir := testutil.SetupTestRepo(t)
	wtDir := filepath.Join(repoDir, ".agentline", "worktrees")
	return New(executor.New(), repoDir, wtDir, nil), repoDir
}

func TestPath(t *testing.T) {
	tests := []struct {
		branch string
		want   string
	}{
		{"agent/tester/20250101-120000-fix-abc123", "/wt/agent-tester-20250101-120000-fix-abc123"},
		{"claude/wave1/auth/20250101-120000-x-abc123", "/wt/claude-wave1-auth-20250101-120000-x-abc123"},
		{"plain", "/wt/plain"},
	}
	for _, tt := range tests {
		if got := Path("/wt", tt.branch); got != tt.want {
			t.Errorf("Path(%q) = %q, want %q", tt.branch, got, tt.want)
		}
	}
}

func TestManager_CreateAndRemove(t *testing.T) {
	m, repoDir := newTestManager(t)
	ctx := context.Background()

	branch := "agent/tester/20250101-120000-fix-abc123"
	path := m.PathFor(branch)

	h, err := m.Create(ctx, path, branch)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if h.Path != path || h.Branch != branch || h.RepoRoot != repoDir {
		t.Errorf("Handle = %+v", h)
	}
	if _, err := os.Stat(filepath.Join(path, "README.md")); err != nil {
		t.Errorf("worktree not checked out: %v", err)
	}
	if got := testutil.GetCurrentBranch(t, path); got != branch {
		t.Errorf("worktree branch = %q, want %q", got, branch)
	}
	if got := testutil.GetCurrentBranch(t, repoDir); got != "main" {
		t.Errorf("main checkout moved to %q", got)
	}

	m.Remove(ctx, path)

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("worktree directory still exists: %v", err)
	}
	if !testutil.BranchExists(t, repoDir, branch) {
		t.Error("Remove() deleted the branch")
	}
	if n := len(testutil.ListWorktrees(t, repoDir)); n != 1 {
		t.Errorf("worktree count = %d, want 1", n)
	}
}

func TestManager_Create_BranchExists(t *testing.T) {
	m, repoDir := newTestManager(t)
	testutil.CreateBranch(t, repoDir, "agent/tester/taken")

	_, err := m.Create(context.Background(), m.PathFor("agent/tester/taken"), "agent/tester/taken")
	if !errors.Is(err, errors.ErrBranchExists) {
		t.Fatalf("Create() error = %v, want ErrBranchExists", err)
	}
	if n := len(testutil.ListWorktrees(t, repoDir)); n != 1 {
		t.Errorf("worktree count = %d, want 1", n)
	}
}

func TestManager_Create_GitFailure(t *testing.T) {
	rec := &executor.Recorder{Handler: func(cmd executor.Command) (executor.Result, error) {
		if len(cmd.Args) > 0 && cmd.Args[0] == "rev-parse" {
			return executor.Result{ExitCode: 1}, nil
		}
		return executor.Result{ExitCode: 128, Stderr: "fatal: invalid reference\n"}, nil
	}}
	m := New(rec, "/repo", t.TempDir(), nil)

	_, err := m.Create(context.Background(), filepath.Join(m.Dir(), "x"), "agent/a/x")
	if !errors.Is(err, errors.ErrWorktreeCreation) {
		t.Fatalf("Create() error = %v, want ErrWorktreeCreation", err)
	}
	var gitErr *errors.GitError
	if !errors.As(err, &gitErr) || !strings.Contains(gitErr.GitOutput, "invalid reference") {
		t.Errorf("error = %#v, want GitError with git output", err)
	}
}

func TestManager_Remove_FallsBackToManualCleanup(t *testing.T) {
	rec := &executor.Recorder{Handler: func(cmd executor.Command) (executor.Result, error) {
		if cmd.String() == "git worktree prune" {
			return executor.Result{}, nil
		}
		return executor.Result{ExitCode: 128, Stderr: "fatal: not a working tree"}, nil
	}}
	dir := t.TempDir()
	path := filepath.Join(dir, "wt")
	if err := os.MkdirAll(filepath.Join(path, "sub"), 0755); err != nil {
		t.Fatal(err)
	}

	New(rec, "/repo", dir, nil).Remove(context.Background(), path)

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("directory still exists: %v", err)
	}
	if !rec.Ran("git worktree prune") {
		t.Errorf("prune not run; calls = %q", rec.CommandLines())
	}
}

func TestManager_With(t *testing.T) {
	tests := []struct {
		name    string
		body    func(Handle) error
		wantErr error
	}{
		{"success", func(Handle) error { return nil }, nil},
		{"body error", func(Handle) error { return errors.ErrCommandFailed }, errors.ErrCommandFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, repoDir := newTestManager(t)
			branch := "agent/tester/" + strings.ReplaceAll(tt.name, " ", "-")
			path := m.PathFor(branch)

			var seen Handle
			err := m.With(context.Background(), path, branch, func(h Handle) error {
				seen = h
				if _, statErr := os.Stat(h.Path); statErr != nil {
					t.Errorf("worktree missing inside body: %v", statErr)
				}
				return tt.body(h)
			})

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("With() error = %v, want %v", err, tt.wantErr)
			}
			if seen.Branch != branch {
				t.Errorf("body saw branch %q", seen.Branch)
			}
			if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
				t.Error("worktree not removed")
			}
			if !testutil.BranchExists(t, repoDir, branch) {
				t.Error("branch deleted")
			}
		})
	}
}

func TestManager_With_Panic(t *testing.T) {
	m, _ := newTestManager(t)
	branch := "agent/tester/panic"
	path := m.PathFor(branch)

	func() {
		defer func() {
			if r := recover(); r != "boom" {
				t.Errorf("recover() = %v, want boom", r)
			}
		}()
		_ = m.With(context.Background(), path, branch, func(Handle) error {
			panic("boom")
		})
	}()

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("worktree not removed after panic")
	}
}

func TestManager_With_CanceledContextStillCleansUp(t *testing.T) {
	m, _ := newTestManager(t)
	branch := "agent/tester/cancel"
	path := m.PathFor(branch)

	ctx, cancel := context.WithCancel(context.Background())
	err := m.With(ctx, path, branch, func(Handle) error {
		cancel()
		return ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("With() error = %v", err)
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Error("worktree not removed after cancellation")
	}
}

func TestManager_ListManagedAndRemoveForBranch(t *testing.T) {
	m, repoDir := newTestManager(t)
	ctx := context.Background()

	a, b := "agent/tester/a", "agent/tester/b"
	for _, br := range []string{a, b} {
		if _, err := m.Create(ctx, m.PathFor(br), br); err != nil {
			t.Fatalf("Create(%s) error = %v", br, err)
		}
	}

	all, err := m.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("List() = %d entries, want 3", len(all))
	}
	if all[0].Path != repoDir || all[0].Branch != "main" {
		t.Errorf("first entry = %+v, want main working tree", all[0])
	}

	managed, err := m.Managed(ctx)
	if err != nil {
		t.Fatalf("Managed() error = %v", err)
	}
	if len(managed) != 2 {
		t.Fatalf("Managed() = %+v, want 2 entries", managed)
	}

	if n := m.RemoveForBranch(ctx, a); n != 1 {
		t.Errorf("RemoveForBranch() = %d, want 1", n)
	}
	if n := m.RemoveForBranch(ctx, "main"); n != 0 {
		t.Errorf("RemoveForBranch(main) = %d, want 0", n)
	}
	managed, _ = m.Managed(ctx)
	if len(managed) != 1 || managed[0].Branch != b {
		t.Errorf("Managed() after removal = %+v", managed)
	}
}

func TestManager_Prune(t *testing.T) {
	m, repoDir := newTestManager(t)
	ctx := context.Background()

	branch := "agent/tester/gone"
	h, err := m.Create(ctx, m.PathFor(branch), branch)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.RemoveAll(h.Path); err != nil {
		t.Fatal(err)
	}
	if err := m.Prune(ctx); err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if n := len(testutil.ListWorktrees(t, repoDir)); n != 1 {
		t.Errorf("worktree count after prune = %d, want 1", n)
	}
}

func TestParseList(t *testing.T) {
	out := strings.Join([]string{
		"worktree /repo",
		"HEAD 1111",
		"branch refs/heads/main",
		"",
		"worktree /repo/.agentline/worktrees/x",
		"HEAD 2222",
		"detached",
		"prunable gitdir file points to non-existent location",
		"",
		"worktree /bare",
		"bare",
	}, "\n")

	got := parseList(out)
	if len(got) != 3 {
		t.Fatalf("parseList() = %d entries, want 3", len(got))
	}
	if got[0].Branch != "main" || got[0].Head != "1111" {
		t.Errorf("entry 0 = %+v", got[0])
	}
	if !got[1].Detached || !got[1].Prunable || got[1].Branch != "" {
		t.Errorf("entry 1 = %+v", got[1])
	}
	if !got[2].Bare {
		t.Errorf("entry 2 = %+v", got[2])
	}
}
