package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/Iron-Ham/agentline/internal/agentrun"
	"github.com/Iron-Ham/agentline/internal/errors"
	"github.com/Iron-Ham/agentline/internal/wave"
	"github.com/spf13/cobra"
)

var waveCmd = &cobra.Command{
	Use:   "wave",
	Short: "Plan batches of agent tasks",
	Long: `Plan batches ("waves") of agent tasks.

Waves come from the file named by wave.file, or the built-in registry.
Agentline does not dispatch a wave concurrently; 'wave run' prints one
command per task for you or a process supervisor to launch.`,
}

var waveListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every wave and its tasks",
	Args:  cobra.NoArgs,
	RunE:  runWaveList,
}

var waveStatusCmd = &cobra.Command{
	Use:   "status [n]",
	Short: "Show which tasks of a wave have produced branches",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runWaveStatus,
}

var waveRunCmd = &cobra.Command{
	Use:   "run <n>",
	Short: "Print the command that runs each task of a wave",
	Long: `Print the command that runs each task of wave n, one per line.

With --sequential the tasks are run one after another in this process
instead. A task whose agent fails does not stop the wave; a precondition
failure (such as a dirty working copy) does.`,
	Args: cobra.ExactArgs(1),
	RunE: runWaveRun,
}

var waveSequential bool

func init() {
	rootCmd.AddCommand(waveCmd)
	waveCmd.AddCommand(waveListCmd)
	waveCmd.AddCommand(waveStatusCmd)
	waveCmd.AddCommand(waveRunCmd)

	waveRunCmd.Flags().BoolVar(&waveSequential, "sequential", false, "run the tasks one after another instead of printing them")
}

func parseWave(arg string) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil || n <= 0 {
		return 0, errors.NewValidationError("wave must be a positive number").WithField("n").WithValue(arg)
	}
	return n, nil
}

func runWaveList(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	reg, err := a.waves()
	if err != nil {
		return err
	}
	fmt.Fprint(a.out, wave.FormatList(reg.All(), a.theme))
	return nil
}

func runWaveStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	reg, err := a.waves()
	if err != nil {
		return err
	}

	var numbers []int
	if len(args) == 1 {
		n, err := parseWave(args[0])
		if err != nil {
			return err
		}
		numbers = []int{n}
	} else {
		for _, w := range reg.All() {
			numbers = append(numbers, w.Number)
		}
	}

	now := time.Now()
	for i, n := range numbers {
		st, err := reg.Status(cmd.Context(), a.repo, n)
		if err != nil {
			return err
		}
		if i > 0 {
			fmt.Fprintln(a.out)
		}
		fmt.Fprint(a.out, wave.FormatStatus(st, now, a.theme))
	}
	return nil
}

func runWaveRun(cmd *cobra.Command, args []string) error {
	n, err := parseWave(args[0])
	if err != nil {
		return err
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	reg, err := a.waves()
	if err != nil {
		return err
	}

	if !waveSequential {
		lines, err := reg.Commands(n)
		if err != nil {
			return err
		}
		for _, line := range lines {
			fmt.Fprintln(a.out, line)
		}
		return nil
	}

	w, err := reg.Get(n)
	if err != nil {
		return err
	}
	runner := a.agentRunner(a.errOut, true)
	for i, t := range w.Tasks {
		fmt.Fprintf(a.out, "%s %s\n", a.theme.Title.Render(fmt.Sprintf("[%d/%d]", i+1, len(w.Tasks))), t.Agent)
		report, err := runner.Run(cmd.Context(), agentrun.Task{Agent: t.Agent, Description: t.Task})
		if err != nil {
			return &ExitError{Code: ExitFailure, Err: errors.Wrapf(err, "wave %d task %s", n, t.Agent)}
		}
		fmt.Fprint(a.out, agentrun.FormatReport(report, a.theme))
	}
	return nil
}
