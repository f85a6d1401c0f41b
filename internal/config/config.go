package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete agentline configuration
type Config struct {
	Repo      RepoConfig      `mapstructure:"repo"`
	Agent     AgentConfig     `mapstructure:"agent"`
	Preflight PreflightConfig `mapstructure:"preflight"`
	Verify    VerifyConfig    `mapstructure:"verify"`
	Merge     MergeConfig     `mapstructure:"merge"`
	Wave      WaveConfig      `mapstructure:"wave"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Paths     PathsConfig     `mapstructure:"paths"`
}

// RepoConfig controls how the integration branch is resolved
type RepoConfig struct {
	// DefaultBranch overrides detection of the integration branch.
	// When empty, main is used if it exists, then master.
	DefaultBranch string `mapstructure:"default_branch"`
}

// AgentConfig controls how agent processes are launched
type AgentConfig struct {
	// Command is the argument vector used to start an agent. Each element may
	// contain the placeholders {agent}, {task}, {model}, {permission_mode}
	// and {tools}.
	Command []string `mapstructure:"command"`
	// Timeout bounds a single agent run (default: 30m)
	Timeout time.Duration `mapstructure:"timeout"`
	// DescriptorDirs are searched in order for agent descriptors,
	// relative to the repository root unless absolute.
	DescriptorDirs []string `mapstructure:"descriptor_dirs"`
	// DescriptorExtensions are tried in order within each directory.
	DescriptorExtensions []string `mapstructure:"descriptor_extensions"`
}

// PreflightConfig controls the clean-working-copy precondition
type PreflightConfig struct {
	// IgnorePaths are glob patterns (gobwas/glob syntax, '/' separated)
	// for paths that never make the working copy dirty.
	IgnorePaths []string `mapstructure:"ignore_paths"`
}

// VerifyConfig controls the verification pipeline run before merges
type VerifyConfig struct {
	// StepTimeout bounds any step that does not set its own timeout (default: 10m)
	StepTimeout time.Duration `mapstructure:"step_timeout"`
	// OutputLimit is the number of characters of failing output shown (default: 2000)
	OutputLimit int `mapstructure:"output_limit"`
	// Subsystems are run in order; every step of every subsystem runs.
	Subsystems []VerifySubsystem `mapstructure:"subsystems"`
}

// VerifySubsystem is a named group of verification steps run in Dir
type VerifySubsystem struct {
	Name  string       `mapstructure:"name"`
	Dir   string       `mapstructure:"dir"`
	Steps []VerifyStep `mapstructure:"steps"`
}

// VerifyStep is one command in a verification subsystem
type VerifyStep struct {
	Name    string        `mapstructure:"name"`
	Command []string      `mapstructure:"command"`
	Timeout time.Duration `mapstructure:"timeout"`
	// ExpectOutput, when set, is a regular expression the combined output
	// must match for the step to pass.
	ExpectOutput string `mapstructure:"expect_output"`
}

// MergeConfig controls merge defaults
type MergeConfig struct {
	// Squash makes squash the default merge mode (default: false)
	Squash bool `mapstructure:"squash"`
}

// WaveConfig controls the wave registry
type WaveConfig struct {
	// File points at a YAML registry that replaces the built-in one
	File string `mapstructure:"file"`
}

// LoggingConfig controls debug logging
type LoggingConfig struct {
	// Enabled writes the JSON log to the log directory; when false logs go to stderr
	Enabled bool `mapstructure:"enabled"`
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `mapstructure:"level"`
	// MaxSizeMB is the size at which the log file is rotated (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is the number of rotated log files kept (default: 3)
	MaxBackups int `mapstructure:"max_backups"`
}

// PathsConfig controls where agentline stores its state
type PathsConfig struct {
	// WorktreeDir is where agent worktrees are created.
	// Default: .agentline/worktrees under the repository root.
	WorktreeDir string `mapstructure:"worktree_dir"`
	// LogDir is where the debug log is written.
	// Default: .agentline/logs under the repository root.
	LogDir string `mapstructure:"log_dir"`
}

// StateDirName is the per-repository state directory.
const StateDirName = ".agentline"

// ResolveWorktreeDir returns the resolved worktree directory path.
// If WorktreeDir is empty, it returns the default path relative to baseDir.
func (p *PathsConfig) ResolveWorktreeDir(baseDir string) string {
	return resolvePath(p.WorktreeDir, baseDir, filepath.Join(StateDirName, "worktrees"))
}

// ResolveLogDir returns the resolved log directory path.
func (p *PathsConfig) ResolveLogDir(baseDir string) string {
	return resolvePath(p.LogDir, baseDir, filepath.Join(StateDirName, "logs"))
}

// ResolvePath expands a leading ~ in path and anchors it at baseDir when
// relative.
func ResolvePath(path, baseDir string) string {
	return resolvePath(path, baseDir, "")
}

// resolvePath expands a leading ~ and anchors relative paths at baseDir.
func resolvePath(path, baseDir, fallback string) string {
	if path == "" {
		return filepath.Join(baseDir, fallback)
	}

	if strings.HasPrefix(path, "~/") || path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
		}
	}

	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	return path
}

// DefaultAgentCommand is the argument vector used when agent.command is unset.
func DefaultAgentCommand() []string {
	return []string{"claude", "--print", "--agent", "{agent}", "{task}"}
}

// DefaultSubsystems is the verification pipeline used when verify.subsystems is unset.
func DefaultSubsystems() []VerifySubsystem {
	return []VerifySubsystem{
		{
			Name: "backend",
			Dir:  "backend",
			Steps: []VerifyStep{
				{Name: "build", Command: []string{"go", "build", "./..."}},
				{Name: "test", Command: []string{"go", "test", "./..."}},
			},
		},
		{
			Name: "frontend",
			Dir:  "frontend",
			Steps: []VerifyStep{
				{Name: "type-check", Command: []string{"npm", "run", "type-check"}},
				{Name: "lint", Command: []string{"npm", "run", "lint"}},
				{Name: "test", Command: []string{"npm", "test"}},
			},
		},
	}
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Agent: AgentConfig{
			Command:              DefaultAgentCommand(),
			Timeout:              30 * time.Minute,
			DescriptorDirs:       []string{filepath.Join(".claude", "agents"), "agents"},
			DescriptorExtensions: []string{".md", ".markdown", ".txt"},
		},
		Preflight: PreflightConfig{
			IgnorePaths: []string{StateDirName + "/**"},
		},
		Verify: VerifyConfig{
			StepTimeout: 10 * time.Minute,
			OutputLimit: 2000,
			Subsystems:  DefaultSubsystems(),
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// SetDefaults registers default values with viper. Verification subsystems
// are structured and are filled in by Load when absent.
func SetDefaults() {
	SetDefaultsOn(viper.GetViper())
}

// SetDefaultsOn registers default values with v.
func SetDefaultsOn(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("repo.default_branch", defaults.Repo.DefaultBranch)

	v.SetDefault("agent.command", defaults.Agent.Command)
	v.SetDefault("agent.timeout", defaults.Agent.Timeout)
	v.SetDefault("agent.descriptor_dirs", defaults.Agent.DescriptorDirs)
	v.SetDefault("agent.descriptor_extensions", defaults.Agent.DescriptorExtensions)

	v.SetDefault("preflight.ignore_paths", defaults.Preflight.IgnorePaths)

	v.SetDefault("verify.step_timeout", defaults.Verify.StepTimeout)
	v.SetDefault("verify.output_limit", defaults.Verify.OutputLimit)

	v.SetDefault("merge.squash", defaults.Merge.Squash)

	v.SetDefault("wave.file", defaults.Wave.File)

	v.SetDefault("logging.enabled", defaults.Logging.Enabled)
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)

	v.SetDefault("paths.worktree_dir", defaults.Paths.WorktreeDir)
	v.SetDefault("paths.log_dir", defaults.Paths.LogDir)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom is Load against a specific viper instance.
func LoadFrom(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if len(cfg.Verify.Subsystems) == 0 && !v.IsSet("verify.subsystems") {
		cfg.Verify.Subsystems = DefaultSubsystems()
	}
	if len(cfg.Agent.Command) == 0 {
		cfg.Agent.Command = DefaultAgentCommand()
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return &cfg, nil
}

// Get returns the current configuration, falling back to defaults
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "agentline")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return StateDirName
	}
	return filepath.Join(home, ".config", "agentline")
}

// ConfigFile returns the path to the user config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// RepoConfigName is the per-repository config file name (without extension),
// looked up in the repository root.
const RepoConfigName = ".agentline"
