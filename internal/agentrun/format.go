package agentrun

import (
	"fmt"
	"strings"
	"time"

	"github.com/Iron-Ham/agentline/internal/styles"
)

// maxTouchedShown bounds the touched-file list in FormatReport.
const maxTouchedShown = 20

// FormatReport renders the summary printed after a run.
func FormatReport(r Report, th *styles.Theme) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s\n", th.Title.Render("Agent run"), th.Muted.Render(r.RunID))
	fmt.Fprintf(&b, "  agent:     %s\n", th.Code.Render(r.Agent))
	fmt.Fprintf(&b, "  branch:    %s\n", r.Branch)
	fmt.Fprintf(&b, "  worktree:  %s %s\n", r.WorktreePath, th.Muted.Render("(released)"))
	if r.HasChanges {
		fmt.Fprintf(&b, "  commit:    %s\n", r.CommitSHA)
	} else {
		fmt.Fprintf(&b, "  commit:    %s\n", th.Muted.Render("none (no changes)"))
	}
	fmt.Fprintf(&b, "  duration:  %s\n", r.Duration.Round(time.Millisecond))

	if !r.AgentSucceeded() {
		fmt.Fprintf(&b, "%s\n", th.Warning.Render("agent failed: "+r.AgentError))
		if r.HasChanges {
			b.WriteString(th.Muted.Render("changes were kept on the branch for inspection") + "\n")
		}
	}

	if len(r.TouchedFiles) > 0 {
		fmt.Fprintf(&b, "  touched %d file(s):\n", len(r.TouchedFiles))
		for i, f := range r.TouchedFiles {
			if i == maxTouchedShown {
				fmt.Fprintf(&b, "    %s\n", th.Muted.Render(fmt.Sprintf("... %d more", len(r.TouchedFiles)-maxTouchedShown)))
				break
			}
			fmt.Fprintf(&b, "    %s\n", f)
		}
	}
	return b.String()
}
