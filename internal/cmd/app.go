package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/Iron-Ham/agentline/internal/agentcfg"
	"github.com/Iron-Ham/agentline/internal/agentrun"
	"github.com/Iron-Ham/agentline/internal/config"
	"github.com/Iron-Ham/agentline/internal/errors"
	"github.com/Iron-Ham/agentline/internal/executor"
	"github.com/Iron-Ham/agentline/internal/logging"
	"github.com/Iron-Ham/agentline/internal/merge"
	"github.com/Iron-Ham/agentline/internal/repo"
	"github.com/Iron-Ham/agentline/internal/styles"
	"github.com/Iron-Ham/agentline/internal/verify"
	"github.com/Iron-Ham/agentline/internal/wave"
	"github.com/Iron-Ham/agentline/internal/worktree"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// app holds the services one command invocation works with.
type app struct {
	cfg       *config.Config
	root      string
	logger    *logging.Logger
	exec      executor.Executor
	repo      *repo.Service
	worktrees *worktree.Manager
	theme     *styles.Theme
	out       io.Writer
	errOut    io.Writer
}

// newApp resolves the repository, loads configuration (user config layered
// with the repository's .agentline.yaml) and wires the shared services.
// Callers must Close the app.
func newApp(cmd *cobra.Command) (*app, error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	dir, err := repoDir(cmd)
	if err != nil {
		return nil, err
	}

	// Locate the repository with a bare executor first; the configured
	// logger depends on settings read from the repository.
	probe, err := repo.New(executor.New(), dir)
	if err != nil {
		return nil, err
	}
	root, err := probe.Root(ctx)
	if err != nil {
		return nil, err
	}

	if err := mergeRepoConfig(root); err != nil {
		return nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := openLogger(cfg, root, cmd.ErrOrStderr())
	exec := executor.New(executor.WithLogger(logger))

	svc, err := repo.New(exec, root,
		repo.WithDefaultBranch(cfg.Repo.DefaultBranch),
		repo.WithIgnorePaths(cfg.Preflight.IgnorePaths),
		repo.WithLogger(logger),
	)
	if err != nil {
		_ = logger.Close()
		return nil, err
	}

	return &app{
		cfg:       cfg,
		root:      root,
		logger:    logger,
		exec:      exec,
		repo:      svc,
		worktrees: worktree.New(exec, root, cfg.Paths.ResolveWorktreeDir(root), logger),
		theme:     styles.New(cmd.OutOrStdout()),
		out:       cmd.OutOrStdout(),
		errOut:    cmd.ErrOrStderr(),
	}, nil
}

// Close releases the log file.
func (a *app) Close() {
	_ = a.logger.Close()
}

func repoDir(cmd *cobra.Command) (string, error) {
	dir, _ := cmd.Flags().GetString("repo")
	if dir != "" {
		return dir, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", errors.Wrap(err, "failed to get working directory")
	}
	return cwd, nil
}

// openLogger writes to the rotating log under the log directory when file
// logging is enabled, and to stderr otherwise or when the file cannot be
// opened.
func openLogger(cfg *config.Config, root string, stderr io.Writer) *logging.Logger {
	if !cfg.Logging.Enabled {
		return logging.NewWriterLogger(stderr, cfg.Logging.Level)
	}
	logger, err := logging.NewLogger(cfg.Paths.ResolveLogDir(root), cfg.Logging.Level, logging.RotationConfig{
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Warning: %v; logging to stderr\n", err)
		return logging.NewWriterLogger(stderr, cfg.Logging.Level)
	}
	return logger
}

func (a *app) agents() *agentcfg.Loader {
	return agentcfg.NewLoader(a.root, a.cfg.Agent.DescriptorDirs, a.cfg.Agent.DescriptorExtensions)
}

func (a *app) verifier(stream io.Writer) *verify.Runner {
	return verify.NewRunner(a.exec,
		verify.WithStepTimeout(a.cfg.Verify.StepTimeout),
		verify.WithStream(stream),
		verify.WithLogger(a.logger),
	)
}

func (a *app) agentRunner(stream io.Writer, watch bool) *agentrun.Coordinator {
	return agentrun.New(agentrun.Options{
		Repo:          a.repo,
		Agents:        a.agents(),
		Worktrees:     a.worktrees,
		Executor:      a.exec,
		Command:       a.cfg.Agent.Command,
		Timeout:       a.cfg.Agent.Timeout,
		Stream:        stream,
		WatchActivity: watch,
		Logger:        a.logger,
	})
}

func (a *app) merger(stream io.Writer) *merge.Coordinator {
	return merge.New(merge.Options{
		Repo:      a.repo,
		Worktrees: a.worktrees,
		Verifier:  a.verifier(stream),
		Pipeline:  verify.FromConfig(a.cfg.Verify),
		Logger:    a.logger,
	})
}

// waves returns the registry named by wave.file, or the built-in one.
func (a *app) waves() (*wave.Registry, error) {
	return loadWaves(a.cfg.Wave.File, a.root)
}

func loadWaves(file, root string) (*wave.Registry, error) {
	if file == "" {
		return wave.Builtin()
	}
	return wave.LoadFile(config.ResolvePath(file, root))
}

// configFileUsed reports the files configuration was read from.
func configFileUsed(root string) []string {
	var files []string
	if f := viper.ConfigFileUsed(); f != "" {
		files = append(files, f)
	}
	if root != "" {
		if _, err := os.Stat(repoConfigPath(root)); err == nil {
			files = append(files, repoConfigPath(root))
		}
	}
	return files
}
