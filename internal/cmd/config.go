package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Iron-Ham/agentline/internal/config"
	"github.com/Iron-Ham/agentline/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or modify agentline configuration",
	Long: `View or modify agentline configuration.

Without arguments, displays the current configuration.
Use subcommands to modify settings or create a config file.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the user's config file.

Keys use dot notation, e.g.:
  agentline config set merge.squash true
  agentline config set verify.step_timeout 15m
  agentline config set logging.level debug

Valid keys:
  repo.default_branch     - Integration branch (default: main, then master)
  agent.timeout           - Agent run timeout (duration, e.g. 30m)
  verify.step_timeout     - Default verification step timeout (duration)
  verify.output_limit     - Characters of failing output shown
  merge.squash            - Squash by default (true/false)
  wave.file               - Wave registry YAML file
  logging.enabled         - Write the log file (true/false)
  logging.level           - debug, info, warn, error
  logging.max_size_mb     - Log rotation size
  logging.max_backups     - Rotated log files kept
  paths.worktree_dir      - Where agent worktrees are created
  paths.log_dir           - Where the log file is written`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long: `Create a default config file at ~/.config/agentline/config.yaml with all
available options. With --local the file is written to .agentline.yaml in
the repository root instead.`,
	RunE: runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

var configInitLocal bool

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)

	configInitCmd.Flags().BoolVar(&configInitLocal, "local", false, "write .agentline.yaml in the repository root")
}

// showRoot returns the repository root with its config merged in, or ""
// when not run inside a repository.
func showRoot(cmd *cobra.Command) string {
	a, err := newApp(cmd)
	if err != nil {
		return ""
	}
	defer a.Close()
	return a.root
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	root := showRoot(cmd)
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "Current configuration:")
	fmt.Fprintln(out)

	// Show where config is being read from
	if files := configFileUsed(root); len(files) > 0 {
		fmt.Fprintf(out, "Config files: %s\n", strings.Join(files, ", "))
	} else {
		fmt.Fprintf(out, "Config file: (none - using defaults)\n")
	}
	fmt.Fprintln(out)

	writeConfig(out, cfg)
	return nil
}

func writeConfig(out io.Writer, cfg *config.Config) {
	fmt.Fprintln(out, "repo:")
	fmt.Fprintf(out, "  default_branch: %s\n", cfg.Repo.DefaultBranch)

	fmt.Fprintln(out, "agent:")
	fmt.Fprintf(out, "  command: %s\n", util.ShellQuote(cfg.Agent.Command))
	fmt.Fprintf(out, "  timeout: %s\n", cfg.Agent.Timeout)
	fmt.Fprintf(out, "  descriptor_dirs: [%s]\n", strings.Join(cfg.Agent.DescriptorDirs, ", "))
	fmt.Fprintf(out, "  descriptor_extensions: [%s]\n", strings.Join(cfg.Agent.DescriptorExtensions, ", "))

	fmt.Fprintln(out, "preflight:")
	fmt.Fprintf(out, "  ignore_paths: [%s]\n", strings.Join(cfg.Preflight.IgnorePaths, ", "))

	fmt.Fprintln(out, "verify:")
	fmt.Fprintf(out, "  step_timeout: %s\n", cfg.Verify.StepTimeout)
	fmt.Fprintf(out, "  output_limit: %d\n", cfg.Verify.OutputLimit)
	fmt.Fprintln(out, "  subsystems:")
	for _, sub := range cfg.Verify.Subsystems {
		fmt.Fprintf(out, "    - %s (dir: %s)\n", sub.Name, sub.Dir)
		for _, step := range sub.Steps {
			fmt.Fprintf(out, "        %s: %s\n", step.Name, util.ShellQuote(step.Command))
		}
	}

	fmt.Fprintln(out, "merge:")
	fmt.Fprintf(out, "  squash: %v\n", cfg.Merge.Squash)

	fmt.Fprintln(out, "wave:")
	fmt.Fprintf(out, "  file: %s\n", cfg.Wave.File)

	fmt.Fprintln(out, "logging:")
	fmt.Fprintf(out, "  enabled: %v\n", cfg.Logging.Enabled)
	fmt.Fprintf(out, "  level: %s\n", cfg.Logging.Level)
	fmt.Fprintf(out, "  max_size_mb: %d\n", cfg.Logging.MaxSizeMB)
	fmt.Fprintf(out, "  max_backups: %d\n", cfg.Logging.MaxBackups)

	fmt.Fprintln(out, "paths:")
	fmt.Fprintf(out, "  worktree_dir: %s\n", cfg.Paths.WorktreeDir)
	fmt.Fprintf(out, "  log_dir: %s\n", cfg.Paths.LogDir)
}

// settableKeys maps each key accepted by 'config set' to its value type.
var settableKeys = map[string]string{
	"repo.default_branch": "string",
	"agent.timeout":       "duration",
	"verify.step_timeout": "duration",
	"verify.output_limit": "int",
	"merge.squash":        "bool",
	"wave.file":           "string",
	"logging.enabled":     "bool",
	"logging.level":       "level",
	"logging.max_size_mb": "int",
	"logging.max_backups": "int",
	"paths.worktree_dir":  "string",
	"paths.log_dir":       "string",
}

// parseSetting converts value to the type key expects.
func parseSetting(key, value string) (any, error) {
	keyType, ok := settableKeys[key]
	if !ok {
		return nil, fmt.Errorf("unknown configuration key: %s\nRun 'agentline config set --help' to see valid keys", key)
	}

	switch keyType {
	case "bool":
		if value != "true" && value != "false" {
			return nil, fmt.Errorf("invalid value for %s: expected true or false", key)
		}
		return value == "true", nil
	case "int":
		intVal, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: expected integer", key)
		}
		if intVal < 0 {
			return nil, fmt.Errorf("invalid value for %s: must be non-negative", key)
		}
		return intVal, nil
	case "duration":
		d, err := time.ParseDuration(value)
		if err != nil || d < 0 {
			return nil, fmt.Errorf("invalid value for %s: expected a duration such as 10m", key)
		}
		return value, nil
	case "level":
		for _, l := range config.ValidLogLevels() {
			if strings.EqualFold(value, l) {
				return l, nil
			}
		}
		return nil, fmt.Errorf("invalid value for %s: %s\nValid options: %s",
			key, value, strings.Join(config.ValidLogLevels(), ", "))
	default:
		return value, nil
	}
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := args[0]
	typedValue, err := parseSetting(key, args[1])
	if err != nil {
		return err
	}

	// Ensure config directory exists
	configDir := config.ConfigDir()
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Write only the user file's own settings, not defaults or repo config.
	configFile := config.ConfigFile()
	v := viper.New()
	v.SetConfigFile(configFile)
	if _, err := os.Stat(configFile); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}
	v.Set(key, typedValue)
	if err := v.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Set %s = %v\n", key, typedValue)
	fmt.Fprintf(out, "Config saved to %s\n", configFile)
	return nil
}

const configTemplate = `# agentline configuration

# Integration branch. Empty means main, then master.
repo:
  default_branch: ""

agent:
  # Argument vector used to start an agent. Placeholders: {agent}, {task},
  # {model}, {permission_mode}, {tools}
  command: ["claude", "--print", "--agent", "{agent}", "{task}"]
  # Upper bound for one agent run
  timeout: 30m
  # Where agent descriptors (<name>.md) are looked up, relative to the repo root
  descriptor_dirs: [".claude/agents", "agents"]
  descriptor_extensions: [".md", ".markdown", ".txt"]

preflight:
  # Glob patterns for paths that never make the working copy dirty
  ignore_paths: [".agentline/**"]

verify:
  # Timeout for steps that do not set their own
  step_timeout: 10m
  # Characters of failing step output shown
  output_limit: 2000
  # Every step of every subsystem runs; a missing dir skips the subsystem
  subsystems:
    - name: backend
      dir: backend
      steps:
        - name: build
          command: ["go", "build", "./..."]
        - name: test
          command: ["go", "test", "./..."]
    - name: frontend
      dir: frontend
      steps:
        - name: type-check
          command: ["npm", "run", "type-check"]
        - name: lint
          command: ["npm", "run", "lint"]
        - name: test
          command: ["npm", "test"]

merge:
  # Squash agent branches into one commit by default
  squash: false

wave:
  # YAML wave registry replacing the built-in one
  file: ""

logging:
  # Write JSON logs to paths.log_dir; when false logs go to stderr
  enabled: true
  # debug, info, warn, error
  level: info
  max_size_mb: 10
  max_backups: 3

paths:
  # Default: .agentline/worktrees under the repository root
  worktree_dir: ""
  # Default: .agentline/logs under the repository root
  log_dir: ""
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configFile := config.ConfigFile()
	if configInitLocal {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		a.Close()
		configFile = repoConfigPath(a.root)
	}

	// Check if config file already exists
	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s\nUse 'agentline config set' to modify values", configFile)
	}

	if err := os.MkdirAll(filepath.Dir(configFile), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(configFile, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created config file at %s\n", configFile)
	fmt.Fprintln(out, "Edit this file to customize agentline's behavior.")
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	configFile := config.ConfigFile()

	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "Active config: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "Default path: %s (not created)\n", configFile)
	}

	fmt.Fprintln(out, "\nSearch paths (later entries win):")
	fmt.Fprintf(out, "  1. %s\n", configFile)
	fmt.Fprintf(out, "  2. <repository root>/%s.yaml\n", config.RepoConfigName)
	fmt.Fprintln(out, "\nEnvironment variables: AGENTLINE_* (e.g., AGENTLINE_MERGE_SQUASH)")
	return nil
}
