package agentrun

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/Iron-Ham/agentline/internal/styles"
)

func TestFormatReport(t *testing.T) {
	var buf bytes.Buffer
	th := styles.New(&buf)

	tests := []struct {
		name    string
		report  Report
		want    []string
		notWant []string
	}{
		{
			name: "committed",
			report: Report{
				RunID:        "run-1",
				Agent:        "demo",
				Branch:       "agent/demo/20240101-000000-add-footer-link-ab12cd",
				WorktreePath: "/repo/.agentline/worktrees/agent-demo",
				CommitSHA:    "0123456789abcdef",
				HasChanges:   true,
				Duration:     1500 * time.Millisecond,
				TouchedFiles: []string{"footer.html"},
			},
			want:    []string{"run-1", "demo", "agent/demo/20240101-000000-add-footer-link-ab12cd", "0123456789abcdef", "1.5s", "footer.html"},
			notWant: []string{"agent failed"},
		},
		{
			name:    "no changes",
			report:  Report{Agent: "demo"},
			want:    []string{"none (no changes)"},
			notWant: []string{"touched"},
		},
		{
			name:   "agent failed with changes",
			report: Report{Agent: "demo", HasChanges: true, CommitSHA: "abc", AgentExitCode: 3, AgentError: "agent exited with status 3"},
			want:   []string{"agent failed: agent exited with status 3", "kept on the branch"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := FormatReport(tt.report, th)
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("FormatReport() missing %q in:\n%s", w, out)
				}
			}
			for _, w := range tt.notWant {
				if strings.Contains(out, w) {
					t.Errorf("FormatReport() unexpectedly contains %q in:\n%s", w, out)
				}
			}
		})
	}
}

func TestFormatReport_TruncatesTouchedFiles(t *testing.T) {
	var files []string
	for i := 0; i < maxTouchedShown+5; i++ {
		files = append(files, fmt.Sprintf("file%02d.txt", i))
	}
	out := FormatReport(Report{TouchedFiles: files}, styles.New(&bytes.Buffer{}))
	if !strings.Contains(out, "... 5 more") {
		t.Errorf("FormatReport() missing overflow line in:\n%s", out)
	}
	if strings.Contains(out, files[len(files)-1]) {
		t.Errorf("FormatReport() listed a file past the limit")
	}
}
