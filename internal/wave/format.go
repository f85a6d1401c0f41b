package wave

import (
	"fmt"
	"strings"
	"time"

	"github.com/Iron-Ham/agentline/internal/styles"
	"github.com/Iron-Ham/agentline/internal/util"
)

// FormatList renders every wave and its tasks.
func FormatList(waves []Wave, th *styles.Theme) string {
	var b strings.Builder
	for i, w := range waves {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s %s\n", th.Title.Render(fmt.Sprintf("Wave %d", w.Number)), w.Name)
		if w.Description != "" {
			b.WriteString(th.Subtitle.Render(w.Description) + "\n")
		}
		for _, t := range w.Tasks {
			fmt.Fprintf(&b, "  %s  %s\n", th.Code.Render(t.Agent), t.Task)
		}
	}
	return b.String()
}

// FormatStatus renders the progress of one wave.
func FormatStatus(st Status, now time.Time, th *styles.Theme) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", th.Title.Render(fmt.Sprintf("Wave %d", st.Wave.Number)), st.Wave.Name)

	started := 0
	for _, ts := range st.Tasks {
		status := styles.StatusPending
		if ts.Started() {
			started++
			status = styles.StatusPassed
		}
		fmt.Fprintf(&b, "  %s %s  %s\n", th.Status(status), th.Code.Render(ts.Task.Agent), th.Muted.Render(ts.Task.Task))
		for _, br := range ts.Branches {
			fmt.Fprintf(&b, "      %s  %s\n", br.Branch, th.Muted.Render(fmt.Sprintf("%d commit(s), %s old", br.CommitCount, util.FormatAge(br.LastCommitAt, now))))
		}
	}
	for _, br := range st.Other {
		fmt.Fprintf(&b, "  %s %s  %s\n", th.Status("other"), br.Branch, th.Muted.Render(fmt.Sprintf("%d commit(s)", br.CommitCount)))
	}
	fmt.Fprintf(&b, "%s\n", th.Muted.Render(fmt.Sprintf("%d/%d task(s) started", started, len(st.Tasks))))
	return b.String()
}
