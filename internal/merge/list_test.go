package merge

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/Iron-Ham/agentline/internal/branch"
	"github.com/Iron-Ham/agentline/internal/repo"
	"github.com/Iron-Ham/agentline/internal/styles"
)

func TestFormatList(t *testing.T) {
	now := time.Date(2025, 1, 3, 12, 0, 0, 0, time.UTC)
	branches := []repo.AgentBranchInfo{
		{
			Info:              branch.Info{Branch: "agent/tester/20250103-110000-fix-abc123", Agent: "tester"},
			CommitCount:       2,
			LastCommitMessage: "Fix the flaky test",
			LastCommitAt:      now.Add(-90 * time.Minute),
		},
		{
			Info:        branch.Info{Branch: "claude/wave1/auth/20250101-120000-x-def456", Agent: "wave1-auth", Timestamp: now.Add(-48 * time.Hour)},
			CommitCount: 0,
		},
	}

	var buf bytes.Buffer
	out := FormatList(branches, now, styles.New(&buf))
	for _, want := range []string{
		"BRANCH", "AGENT", "AGE", "COMMITS", "LAST COMMIT",
		"agent/tester/20250103-110000-fix-abc123", "tester", "1h", "Fix the flaky test",
		"claude/wave1/auth/20250101-120000-x-def456", "wave1-auth", "2d",
		"2 branch(es)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("FormatList() missing %q in:\n%s", want, out)
		}
	}

	long := strings.Repeat("x", maxSubjectWidth+10)
	branches[0].LastCommitMessage = "\x1b[1m" + long + "\x1b[0m"
	out = FormatList(branches[:1], now, styles.New(&buf))
	if strings.Contains(out, long) || !strings.Contains(out, strings.Repeat("x", maxSubjectWidth-3)+"...") {
		t.Errorf("FormatList() did not truncate the subject to %d cells:\n%s", maxSubjectWidth, out)
	}

	if out := FormatList(nil, now, styles.New(&buf)); !strings.Contains(out, "No agent branches") {
		t.Errorf("FormatList(nil) = %q", out)
	}
}

func TestFormatResult(t *testing.T) {
	var buf bytes.Buffer
	th := styles.New(&buf)

	tests := []struct {
		name string
		r    Result
		want []string
	}{
		{"merged", Result{Branch: "b", Outcome: OutcomeMerged, Merged: true, CommitSHA: "0123456789abcdef", BranchDeleted: true}, []string{"merged", "b", "01234567"}},
		{"merged, delete failed", Result{Branch: "b", Outcome: OutcomeMerged, Merged: true, CommitSHA: "0123"}, []string{"could not be deleted"}},
		{"conflict", Result{Branch: "b", Outcome: OutcomeConflict, ConflictingFiles: []string{"x.go"}}, []string{"conflict", "x.go", "branch kept"}},
		{"verification", Result{Branch: "b", Outcome: OutcomeVerificationFailed}, []string{"verification failed for b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := FormatResult(tt.r, th)
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("FormatResult() = %q, missing %q", out, w)
				}
			}
		})
	}
}
