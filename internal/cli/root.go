// Package cli implements the cobra command tree for assetflow.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/hupe1980/assetflow/internal/config"
	"github.com/hupe1980/assetflow/internal/logging"
	"github.com/hupe1980/assetflow/internal/pipeline"
)

// ExitError wraps an error with a specific process exit code.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}

	return fmt.Sprintf("exit code %d", e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

// Execute builds the command tree, runs it until it finishes or the process
// is interrupted, and returns the exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals...)
	defer stop()

	cmd := NewRootCommand()

	return exitCode(cmd.ExecuteContext(ctx), cmd.ErrOrStderr())
}

// exitCode prints err unless the console already showed it and maps it to
// a process exit code: 2 for usage and configuration errors, 1 otherwise.
func exitCode(err error, stderr io.Writer) int {
	if err == nil {
		return 0
	}

	if !pipeline.IsReported(err) {
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	if errors.Is(err, pipeline.ErrDegraded) {
		return 2
	}

	return 1
}

// Option customises the command tree.
type Option func(*rootOptions)

type rootOptions struct {
	deps func(childEnv []string) pipeline.Deps
}

// WithDeps replaces the collaborators that spawn processes, run commands
// and watch files.
func WithDeps(fn func(childEnv []string) pipeline.Deps) Option {
	return func(o *rootOptions) {
		o.deps = fn
	}
}

// NewRootCommand constructs the top-level cobra.Command with all
// subcommands attached. Without a subcommand the default task runs.
func NewRootCommand(opts ...Option) *cobra.Command {
	ro := &rootOptions{deps: pipeline.DefaultDeps}
	for _, opt := range opts {
		opt(ro)
	}

	var cfgFile string

	cmd := &cobra.Command{
		Use:   "assetflow",
		Short: "Build front-end assets and restart the pipeline when the workflow changes",
		Long: `assetflow runs the asset pipeline of a front-end project: HTML includes,
Sass compilation, file watching and a browser-sync server or proxy.

Without a subcommand the default task runs. On Linux and macOS it
supervises the main pipeline in a child process and, in debug mode,
restarts it whenever the workflow configuration changes. Elsewhere it
runs the main pipeline directly.

The project is described by assetflow.config.yaml in the project directory;
assetflow.config.user.yaml, when present, is deep-merged over it.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd, cfgFile)
			if err != nil {
				return &ExitError{Code: 2, Err: err}
			}

			logger := logging.SetupWithWriter(cfg, cmd.ErrOrStderr())

			ctx := cmd.Context()
			ctx = config.NewContext(ctx, cfg)
			ctx = logging.NewContext(ctx, logger)
			cmd.SetContext(ctx)

			logger.Debug("configuration loaded",
				slog.String("logLevel", cfg.LogLevel),
				slog.String("logFormat", cfg.LogFormat),
				slog.String("projectDir", cfg.ProjectDir),
				slog.Bool("debug", cfg.Debug),
			)

			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTasks(cmd, ro, config.TaskDefault)
		},
	}

	// Global persistent flags.
	pf := cmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "settings file (default: .assetflow.yaml)")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.String("log-format", "text", "log format: text, json")
	pf.Bool("no-color", false, "disable colored output")
	pf.String("color", "", "force colored output on or off (true, false)")
	pf.Lookup("color").NoOptDefVal = "true"
	pf.BoolP("quiet", "q", false, "suppress non-essential output")
	pf.BoolP("debug", "d", false, "restart the main pipeline when the workflow source changes")
	pf.StringP("project-dir", "C", ".", "project directory")

	// Flag parsing errors return exit code 2.
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &ExitError{Code: 2, Err: err}
	})

	// Register subcommands.
	cmd.AddCommand(
		newStartCommand(ro),
		newMainCommand(ro),
		newRunCommand(ro),
		newTasksCommand(ro),
		newConfigCommand(),
		newInitCommand(),
		newVersionCommand(),
		newCompletionCommand(),
	)

	return cmd
}
