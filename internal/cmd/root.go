package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Iron-Ham/agentline/internal/config"
	"github.com/Iron-Ham/agentline/internal/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "agentline",
	Short: "Run coding agents on isolated branches and merge their work",
	Long: `Agentline runs automated coding agents against a shared git repository.
Each run gets its own worktree and branch; finished branches are verified
and merged back into the integration branch, with rollback on failure.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// ExitError carries the process exit code for a command that failed. Err,
// when set, is printed by main; a nil Err means the command already
// reported the failure in full.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// Diagnostic renders err as the line main prints to stderr. Our own errors
// are labelled by severity and flagged when a retry may succeed; anything
// else prints its message under "Error".
func Diagnostic(err error) string {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		err = exitErr.Err
	}
	if err == nil {
		return ""
	}
	if !errors.IsUserFacing(err) {
		return "Error: " + err.Error()
	}

	label := "Error"
	if errors.GetSeverity(err) <= errors.SeverityWarning {
		label = "Warning"
	}
	msg := label + ": " + err.Error()
	if errors.IsRetryable(err) {
		msg += " (this may succeed if retried)"
	}
	return msg
}

// Exit codes
const (
	ExitFailure   = 1
	ExitNotMerged = 2
)

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/agentline/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringP("repo", "C", "", "repository to operate on (default is the current directory)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("AGENTLINE")
	// Replace dots with underscores for nested keys in env vars
	// e.g., AGENTLINE_VERIFY_STEP_TIMEOUT for verify.step_timeout
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}

// mergeRepoConfig layers <root>/.agentline.yaml over the user config. A
// missing file is not an error.
func mergeRepoConfig(root string) error {
	path := repoConfigPath(root)
	if _, err := os.Stat(path); err != nil {
		return nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return errors.Wrapf(err, "failed to read %s", path)
	}
	return viper.MergeConfigMap(v.AllSettings())
}

func repoConfigPath(root string) string {
	return filepath.Join(root, config.RepoConfigName+".yaml")
}
