package verify

import (
	"fmt"
	"strings"
	"time"

	"github.com/Iron-Ham/agentline/internal/styles"
	"github.com/Iron-Ham/agentline/internal/util"
)

// maxOutputLineWidth bounds each line of failing step output, in terminal
// cells. Tools often colour their output, so escapes are kept intact.
const maxOutputLineWidth = 160

// Format renders r for the terminal. Failed steps show their command,
// reason and output; call Truncate first to bound the output.
func Format(r Result, th *styles.Theme) string {
	var b strings.Builder

	b.WriteString(th.Title.Render("Verification"))
	b.WriteString(" ")
	b.WriteString(th.Muted.Render(r.WorkDir))
	b.WriteString("\n")

	for _, sub := range r.Subsystems {
		switch {
		case sub.Skipped:
			fmt.Fprintf(&b, "%s %s\n", th.Status(styles.StatusSkipped), sub.Name+th.Muted.Render(" (no directory "+sub.Dir+")"))
			continue
		case sub.Passed:
			fmt.Fprintf(&b, "%s %s\n", th.Status(styles.StatusPassed), sub.Name)
		default:
			fmt.Fprintf(&b, "%s %s\n", th.Status(styles.StatusFailed), sub.Name)
		}

		for _, step := range sub.Steps {
			status := styles.StatusPassed
			switch {
			case step.TimedOut:
				status = styles.StatusTimeout
			case !step.Passed:
				status = styles.StatusFailed
			}
			fmt.Fprintf(&b, "    %s %s %s\n", th.Status(status), step.Name, th.Muted.Render(fmt.Sprintf("(%s)", step.Duration.Round(time.Millisecond))))
			if step.Passed {
				continue
			}
			fmt.Fprintf(&b, "      %s %s\n", th.Muted.Render("$"), th.Code.Render(strings.Join(step.Command, " ")))
			if step.Reason != "" {
				fmt.Fprintf(&b, "      %s\n", th.Error.Render(step.Reason))
			}
			if out := strings.TrimSpace(step.Output); out != "" {
				b.WriteString(th.Box.Render(clampLines(out, maxOutputLineWidth)))
				b.WriteString("\n")
			}
		}
	}

	switch {
	case r.Passed:
		b.WriteString(th.Success.Render("All verification steps passed"))
	case r.Reason != "":
		b.WriteString(th.Error.Render(r.Reason))
	default:
		b.WriteString(th.Error.Render(fmt.Sprintf("%d verification step(s) failed: %s",
			len(r.Failures()), strings.Join(r.FailedIDs(), ", "))))
	}
	b.WriteString("\n")
	return b.String()
}

func clampLines(s string, width int) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = util.TruncateANSI(line, width)
	}
	return strings.Join(lines, "\n")
}
