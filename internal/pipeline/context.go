// Package pipeline declares the assetflow tasks: the external build commands,
// the watch task, custom tasks, the main pipeline and the supervised start
// and default tasks.
package pipeline

import (
	"context"
	"log/slog"
	"os"
	"os/exec"

	"github.com/hupe1980/assetflow/internal/config"
	"github.com/hupe1980/assetflow/internal/pkginfo"
	"github.com/hupe1980/assetflow/internal/supervisor"
	"github.com/hupe1980/assetflow/internal/watch"
)

// Context is built once at startup and shared by every task.
type Context struct {
	Settings *config.Config

	// Project is nil when ProjectErr reports why it could not be loaded.
	Project    *config.Project
	ProjectErr error

	// Package is the manifest snapshot taken at startup. It may be nil.
	Package *pkginfo.Info

	Console supervisor.Reporter
	Logger  *slog.Logger
}

// Dir returns the project directory.
func (c *Context) Dir() string {
	if c.Project != nil && c.Project.Dir != "" {
		return c.Project.Dir
	}

	if c.Settings != nil && c.Settings.ProjectDir != "" {
		return c.Settings.ProjectDir
	}

	return "."
}

// WatchFunc starts a file watcher. watch.Start is the production value.
type WatchFunc func(ctx context.Context, opts watch.Options, sets ...watch.Set) (<-chan watch.Event, error)

// CommandRunner runs an external tool to completion.
type CommandRunner interface {
	RunCommand(ctx context.Context, dir string, argv []string) error
}

// CommandRunnerFunc adapts a function to CommandRunner.
type CommandRunnerFunc func(ctx context.Context, dir string, argv []string) error

// RunCommand calls f.
func (f CommandRunnerFunc) RunCommand(ctx context.Context, dir string, argv []string) error {
	return f(ctx, dir, argv)
}

// Deps are the collaborators that touch the host.
type Deps struct {
	Capability supervisor.Capability
	Spawner    supervisor.Spawner
	Commands   CommandRunner
	Watch      WatchFunc
}

// DefaultDeps returns the production collaborators. The spawned main
// pipeline inherits stdio and gets childEnv on top of the parent's
// environment (see config.Config.ChildEnv).
func DefaultDeps(childEnv []string) Deps {
	return Deps{
		Capability: supervisor.Detect(),
		Spawner:    &supervisor.ExecSpawner{Env: childEnv},
		Commands:   CommandRunnerFunc(runExec),
		Watch:      watch.Start,
	}
}

func runExec(ctx context.Context, dir string, argv []string) error {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr

	return cmd.Run()
}
