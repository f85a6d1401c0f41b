package cmd

import (
	"fmt"
	"time"

	"github.com/Iron-Ham/agentline/internal/errors"
	"github.com/Iron-Ham/agentline/internal/merge"
	"github.com/Iron-Ham/agentline/internal/verify"
	"github.com/spf13/cobra"
)

var mergeCmd = &cobra.Command{
	Use:   "merge <branch>",
	Short: "Verify and merge an agent branch into the default branch",
	Long: `Verify and merge an agent branch into the default branch.

The working copy must be clean. Unless --skip-verify is given, the branch is
checked out and the verification pipeline (verify.subsystems) runs against
it; any failing step aborts the merge. The branch is then merged into the
default branch, directly or as a single squash commit, and deleted.

On a verification failure or a conflict nothing is merged, the branch is
kept and your original branch is checked out again. The command exits with
status 2 in both cases.`,
	Args: cobra.ExactArgs(1),
	RunE: runMerge,
}

var mergeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List agent branches with their age and commit count",
	Args:  cobra.NoArgs,
	RunE:  runMergeList,
}

var (
	mergeSquash     bool
	mergeSkipVerify bool
)

func init() {
	rootCmd.AddCommand(mergeCmd)
	mergeCmd.AddCommand(mergeListCmd)

	mergeCmd.Flags().BoolVar(&mergeSquash, "squash", false, "squash the branch into one commit (default from merge.squash)")
	mergeCmd.Flags().BoolVar(&mergeSkipVerify, "skip-verify", false, "merge without running the verification pipeline")
}

func runMerge(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	squash := a.cfg.Merge.Squash
	if cmd.Flags().Changed("squash") {
		squash = mergeSquash
	}

	res, err := a.merger(a.errOut).Merge(cmd.Context(), merge.Request{
		Branch:     args[0],
		Squash:     squash,
		SkipVerify: mergeSkipVerify,
	})
	if err != nil {
		return &ExitError{Code: ExitFailure, Err: err}
	}

	if res.Verification != nil {
		fmt.Fprint(a.out, verify.Format(res.Verification.Truncate(a.cfg.Verify.OutputLimit), a.theme))
	}
	fmt.Fprint(a.out, merge.FormatResult(res, a.theme))

	if !res.Merged {
		return &ExitError{Code: ExitNotMerged, Err: notMergedError(res)}
	}
	return nil
}

// notMergedError describes why res was not merged.
func notMergedError(res merge.Result) error {
	if res.Outcome == merge.OutcomeConflict {
		return errors.NewMergeConflictError(res.Branch, res.ConflictingFiles)
	}
	var failed []string
	if res.Verification != nil {
		failed = res.Verification.FailedIDs()
	}
	return errors.NewVerificationError(res.Branch, failed)
}

func runMergeList(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	branches, err := a.merger(nil).List(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprint(a.out, merge.FormatList(branches, time.Now(), a.theme))
	return nil
}
