package cli

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/hupe1980/assetflow/internal/config"
	"github.com/hupe1980/assetflow/internal/console"
	"github.com/hupe1980/assetflow/internal/logging"
	"github.com/hupe1980/assetflow/internal/pipeline"
	"github.com/hupe1980/assetflow/internal/pkginfo"
)

// newPipelineContext loads the project and the manifest snapshot shared by
// every task. A project that cannot be loaded is recorded, not returned:
// the pipeline degrades instead of refusing to start.
func newPipelineContext(cmd *cobra.Command) *pipeline.Context {
	ctx := cmd.Context()
	cfg := config.FromContext(ctx)
	logger := logging.FromContext(ctx)

	dir := cfg.ProjectDir
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}

	pc := &pipeline.Context{
		Settings: cfg,
		Console:  console.New(cmd.ErrOrStderr(), useColor(cmd, cfg)),
		Logger:   logger,
	}

	pc.Project, pc.ProjectErr = config.LoadProject(dir)
	if pc.ProjectErr != nil {
		logger.Debug("project configuration unavailable", slog.String("error", pc.ProjectErr.Error()))
		return pc
	}

	logger.Debug("project configuration loaded",
		slog.String("default", pc.Project.DefaultFile),
		slog.String("user", pc.Project.UserFile),
	)

	pkg, err := pkginfo.Load(pc.Project.ManifestPath())
	if err != nil {
		logger.Debug("package manifest unavailable", slog.String("error", err.Error()))
		return pc
	}

	pc.Package = pkg

	return pc
}

// useColor decides whether the console paints its output. An explicit
// --color wins over terminal detection.
func useColor(cmd *cobra.Command, cfg *config.Config) bool {
	if cfg.ColorExplicitlyDisabled() {
		return false
	}

	if cfg.Color != "" {
		return true
	}

	return console.ColorSupported(cmd.ErrOrStderr())
}

// openPipeline declares every task for the current project.
func openPipeline(cmd *cobra.Command, ro *rootOptions) (*pipeline.Pipeline, *pipeline.Context, error) {
	pc := newPipelineContext(cmd)

	p, err := pipeline.New(pc, ro.deps(pc.Settings.ChildEnv(pc.Dir())))
	if err != nil {
		return nil, nil, &ExitError{Code: 1, Err: err}
	}

	return p, pc, nil
}

// runTasks runs the named tasks and waits for their background work until
// the command context is cancelled.
func runTasks(cmd *cobra.Command, ro *rootOptions, names ...string) error {
	p, _, err := openPipeline(cmd, ro)
	if err != nil {
		return err
	}

	for _, name := range names {
		if !p.Registry().Has(name) {
			return unavailable(name)
		}
	}

	return p.Run(cmd.Context(), names...)
}

func unavailable(name string) error {
	if name == config.TaskStart {
		return &ExitError{Code: 1, Err: fmt.Errorf(
			"task '%s' is not available on %s: supervising the main pipeline requires linux or darwin", name, runtime.GOOS)}
	}

	return &ExitError{Code: 2, Err: fmt.Errorf("task '%s' is not declared; run `assetflow tasks` to list tasks", name)}
}

func newStartCommand(ro *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Supervise the main pipeline in a child process",
		Long: `Run the main pipeline as a child process and watch the workflow sources
and the package manifest.

A manifest change is reported together with the version and dependency
differences; the child keeps running. A workflow source change restarts the
child in debug mode (--debug) and is reported otherwise.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTasks(cmd, ro, config.TaskStart)
		},
	}
}

func newMainCommand(ro *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "main",
		Short: "Run the main pipeline in this process",
		Long: `Run include, sass and watch, the browser-sync task selected by
browserSyncMod and every custom task, in series. Background work (watchers,
the browser-sync server or proxy) keeps running until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTasks(cmd, ro, config.TaskMain)
		},
	}
}

func newRunCommand(ro *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:               "run <task>...",
		Short:             "Run tasks by name, in series",
		Args:              cobra.MinimumNArgs(1),
		ValidArgsFunction: completeTaskNames(ro),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTasks(cmd, ro, args...)
		},
	}
}
