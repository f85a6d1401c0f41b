package repo

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/Iron-Ham/agentline/internal/branch"
	"github.com/Iron-Ham/agentline/internal/executor"
)

// AgentBranchInfo describes one task branch.
type AgentBranchInfo struct {
	branch.Info
	// CommitCount is the number of commits ahead of the default branch.
	CommitCount       int
	LastCommitSHA     string
	LastCommitMessage string
	LastCommitAt      time.Time
}

// Age returns the time since the branch's last commit, or since its name
// timestamp when the commit date is unknown.
func (b AgentBranchInfo) Age(now time.Time) time.Duration {
	if !b.LastCommitAt.IsZero() {
		return now.Sub(b.LastCommitAt)
	}
	return now.Sub(b.Timestamp)
}

const refFormat = "%(refname:short)%00%(objectname)%00%(committerdate:iso-strict)%00%(subject)"

// ListAgentBranches returns every local task branch (both grammars), newest
// first, with commit counts relative to the default branch.
func (s *Service) ListAgentBranches(ctx context.Context) ([]AgentBranchInfo, error) {
	lines, err := executor.GitLines(ctx, s.exec, s.dir,
		"for-each-ref", "--format="+refFormat,
		"refs/heads/"+branch.StandardPrefix, "refs/heads/"+branch.WavePrefix)
	if err != nil {
		return nil, err
	}

	base := s.DefaultBranch(ctx)
	var out []AgentBranchInfo
	for _, line := range lines {
		fields := strings.SplitN(line, "\x00", 4)
		if len(fields) < 4 {
			continue
		}
		info, ok := branch.Parse(fields[0])
		if !ok {
			continue
		}
		entry := AgentBranchInfo{
			Info:              info,
			LastCommitSHA:     fields[1],
			LastCommitAt:      lastCommitTime(fields[2]),
			LastCommitMessage: fields[3],
		}
		count, err := s.CommitCount(ctx, base, info.Branch)
		if err != nil {
			s.logger.Warn("commit count failed", "branch", info.Branch, "base", base, "error", err.Error())
		}
		entry.CommitCount = count
		out = append(out, entry)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out, nil
}
