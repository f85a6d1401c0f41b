package cmd

import (
	"fmt"
	"io"

	"github.com/Iron-Ham/agentline/internal/agentcfg"
	"github.com/Iron-Ham/agentline/internal/agentrun"
	"github.com/spf13/cobra"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run agents and manage their worktrees",
}

var agentRunCmd = &cobra.Command{
	Use:   "run <agent> <task>",
	Short: "Run an agent on a task in an isolated worktree",
	Long: `Run an agent on a task in an isolated worktree.

The working copy must be clean. A fresh branch and worktree are created,
the agent command (agent.command) runs inside the worktree, and any changes
it makes are committed to the branch. The worktree is always removed
afterwards; the branch is kept for 'agentline merge'.

An agent that fails or changes nothing does not make this command fail.`,
	Args: cobra.ExactArgs(2),
	RunE: runAgentRun,
}

var agentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List agent descriptors found in the repository",
	Args:  cobra.NoArgs,
	RunE:  runAgentList,
}

var agentCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove leftover agent worktrees",
	Long: `Remove worktrees left under the worktree directory by interrupted runs.
Branches are not touched.`,
	Args: cobra.NoArgs,
	RunE: runAgentCleanup,
}

var (
	agentRunQuiet   bool
	agentRunNoWatch bool
	cleanupDryRun   bool
)

func init() {
	rootCmd.AddCommand(agentCmd)
	agentCmd.AddCommand(agentRunCmd)
	agentCmd.AddCommand(agentListCmd)
	agentCmd.AddCommand(agentCleanupCmd)

	agentRunCmd.Flags().BoolVarP(&agentRunQuiet, "quiet", "q", false, "do not stream agent output")
	agentRunCmd.Flags().BoolVar(&agentRunNoWatch, "no-watch", false, "do not record which files the agent touched")
	agentCleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "show what would be removed without removing anything")
}

func runAgentRun(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	var stream io.Writer = a.errOut
	if agentRunQuiet {
		stream = nil
	}

	report, err := a.agentRunner(stream, !agentRunNoWatch).Run(cmd.Context(), agentrun.Task{
		Agent:       args[0],
		Description: args[1],
	})
	if err != nil {
		return &ExitError{Code: ExitFailure, Err: err}
	}

	fmt.Fprint(a.out, agentrun.FormatReport(report, a.theme))
	return nil
}

func runAgentList(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	loader := a.agents()
	names := loader.List()
	if len(names) == 0 {
		fmt.Fprintln(a.out, a.theme.Muted.Render("No agent descriptors found. Searched:"))
		for _, dir := range loader.Dirs {
			fmt.Fprintf(a.out, "  %s\n", dir)
		}
		return nil
	}

	for _, name := range names {
		cfg, err := loader.Load(name)
		switch agentcfg.StatusOf(err) {
		case agentcfg.StatusFound:
			fmt.Fprintf(a.out, "%s  %s\n", a.theme.Code.Render(name), cfg.Description)
			fmt.Fprintf(a.out, "    %s\n", a.theme.Muted.Render(fmt.Sprintf("model=%s permission_mode=%s %s", cfg.Model, cfg.PermissionMode, cfg.Path)))
		default:
			fmt.Fprintf(a.out, "%s  %s\n", a.theme.Code.Render(name), a.theme.Error.Render(err.Error()))
		}
	}
	return nil
}

func runAgentCleanup(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	entries, err := a.worktrees.Managed(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(a.out, "No agent worktrees to clean up.")
		return a.worktrees.Prune(ctx)
	}

	for _, e := range entries {
		if cleanupDryRun {
			fmt.Fprintf(a.out, "Would remove %s (%s)\n", e.Path, e.Branch)
			continue
		}
		a.worktrees.Remove(ctx, e.Path)
		fmt.Fprintf(a.out, "Removed %s (%s)\n", e.Path, e.Branch)
	}
	if cleanupDryRun {
		return nil
	}
	return a.worktrees.Prune(ctx)
}
