package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/Iron-Ham/agentline/internal/verify"
	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify [dir]",
	Short: "Run the verification pipeline",
	Long: `Run the verification pipeline (verify.subsystems) in dir, which defaults
to the repository root. Every step runs even when an earlier one fails.
Subsystems whose directory does not exist are skipped.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runVerify,
}

var verifyStream bool

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().BoolVar(&verifyStream, "stream", false, "stream step output while running")
}

func runVerify(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	dir := a.root
	if len(args) == 1 {
		dir, err = filepath.Abs(args[0])
		if err != nil {
			return err
		}
	}

	runner := a.verifier(nil)
	if verifyStream {
		runner = a.verifier(a.errOut)
	}

	res := runner.Run(cmd.Context(), dir, verify.FromConfig(a.cfg.Verify))
	fmt.Fprint(a.out, verify.Format(res.Truncate(a.cfg.Verify.OutputLimit), a.theme))
	if !res.Passed {
		return &ExitError{Code: ExitFailure}
	}
	return nil
}
