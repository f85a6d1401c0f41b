package merge

import (
	"fmt"
	"strconv"
	"time"

	"github.com/Iron-Ham/agentline/internal/repo"
	"github.com/Iron-Ham/agentline/internal/styles"
	"github.com/Iron-Ham/agentline/internal/util"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// maxSubjectWidth bounds the last-commit column, in terminal cells.
const maxSubjectWidth = 48

// FormatList renders task branches as a table, newest first as given.
func FormatList(branches []repo.AgentBranchInfo, now time.Time, th *styles.Theme) string {
	if len(branches) == 0 {
		return th.Muted.Render("No agent branches.") + "\n"
	}

	rows := make([][]string, 0, len(branches))
	for _, b := range branches {
		when := b.LastCommitAt
		if when.IsZero() {
			when = b.Timestamp
		}
		rows = append(rows, []string{
			b.Branch,
			b.Agent,
			util.FormatAge(when, now),
			strconv.Itoa(b.CommitCount),
			util.TruncateANSI(b.LastCommitMessage, maxSubjectWidth),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(th.Border).
		Headers("BRANCH", "AGENT", "AGE", "COMMITS", "LAST COMMIT").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return th.Header
			case col == 3 && rows[row][3] == "0":
				return th.Muted.Padding(0, 1)
			default:
				return th.Cell
			}
		})

	return t.Render() + "\n" + th.Muted.Render(fmt.Sprintf("%d branch(es)", len(branches))) + "\n"
}

// FormatResult renders the outcome of a merge for the terminal.
func FormatResult(r Result, th *styles.Theme) string {
	switch r.Outcome {
	case OutcomeMerged:
		msg := fmt.Sprintf("%s %s into default branch at %s", th.Status(styles.StatusMerged), r.Branch, shortSHA(r.CommitSHA))
		if !r.BranchDeleted {
			msg += "\n" + th.Warning.Render("branch could not be deleted; remove it manually")
		}
		return msg + "\n"
	case OutcomeConflict:
		msg := fmt.Sprintf("%s merging %s; merge aborted and branch kept\n", th.Status(styles.StatusConflict), r.Branch)
		for _, f := range r.ConflictingFiles {
			msg += "  " + th.Error.Render(f) + "\n"
		}
		return msg
	case OutcomeVerificationFailed:
		return th.Error.Render(fmt.Sprintf("verification failed for %s; branch kept", r.Branch)) + "\n"
	default:
		return ""
	}
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
