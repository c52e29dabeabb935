package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/assetflow/internal/config"
	"github.com/hupe1980/assetflow/internal/task"
)

// ErrDegraded is returned by the main task when a fatal configuration error
// disabled the pipeline. The error itself has already been reported.
var ErrDegraded = errors.New("main pipeline disabled by configuration error")

// ReportedError marks an error that was already shown on the console.
type ReportedError struct {
	Err error
}

func (e *ReportedError) Error() string { return e.Err.Error() }

func (e *ReportedError) Unwrap() error { return e.Err }

// IsReported reports whether err, or an error it wraps, was already shown
// on the console.
func IsReported(err error) bool {
	var r *ReportedError
	return errors.As(err, &r)
}

// Pipeline owns the task registry and the background work (watchers and
// servers) started by tasks.
type Pipeline struct {
	pc   *Context
	deps Deps
	reg  *task.Registry

	main TaskSet
	err  error

	bgCtx context.Context
	bg    *errgroup.Group
}

// New registers every task into a fresh registry.
func New(pc *Context, deps Deps) (*Pipeline, error) {
	if pc.Logger == nil {
		pc.Logger = slog.Default()
	}

	if pc.Console == nil {
		return nil, errors.New("pipeline: console is required")
	}

	p := &Pipeline{
		pc:   pc,
		deps: deps,
		reg:  task.NewRegistry(pc.Logger),
	}

	switch {
	case pc.ProjectErr != nil:
		p.err = pc.ProjectErr
		// A missing project is reported as soon as it is noticed.
		if errors.Is(p.err, config.ErrDefaultConfigMissing) {
			pc.Console.Error("Config", p.err.Error())
		}
	case pc.Project == nil:
		p.err = fmt.Errorf("%w: no project loaded", config.ErrDefaultConfigMissing)
	default:
		p.main, p.err = Assemble(pc.Project)
	}

	if err := p.register(); err != nil {
		return nil, err
	}

	return p, nil
}

// Registry returns the registry holding the declared tasks.
func (p *Pipeline) Registry() *task.Registry { return p.reg }

// Main returns the assembled main sequence, or nil when degraded.
func (p *Pipeline) Main() TaskSet { return append(TaskSet(nil), p.main...) }

// Err returns the fatal configuration error, if any.
func (p *Pipeline) Err() error { return p.err }

// Run runs the named tasks in series and then waits for the background work
// they started until ctx is cancelled. A task failure stops the background
// work.
func (p *Pipeline) Run(ctx context.Context, names ...string) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// A failing background command stops the other background work.
	p.bg, p.bgCtx = errgroup.WithContext(runCtx)

	for _, name := range names {
		if err := p.reg.Run(runCtx, name); err != nil {
			cancel()
			_ = p.bg.Wait()

			return err
		}
	}

	err := p.bg.Wait()
	if ctx.Err() != nil {
		return nil
	}

	return err
}

// background returns the group and context for work that outlives the task
// starting it. The context ends when the current Run ends.
func (p *Pipeline) background() (*errgroup.Group, context.Context) {
	if p.bg == nil {
		p.bg, p.bgCtx = errgroup.WithContext(context.Background())
	}

	return p.bg, p.bgCtx
}

func (p *Pipeline) register() error {
	steps := []func() error{
		p.registerCommands,
		p.registerWatch,
		p.registerCustomTasks,
		p.registerMain,
		p.registerDefault,
	}

	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}

	p.describe()

	return nil
}

func (p *Pipeline) registerCommands() error {
	builtin := []struct {
		name       string
		background bool
	}{
		{config.TaskInclude, false},
		{config.TaskSass, false},
		{config.TaskServer, true},
		{config.TaskProxy, true},
	}

	for _, b := range builtin {
		if err := p.reg.Register(b.name, p.commandTask(b.name, b.background)); err != nil {
			return err
		}
	}

	return nil
}

func (p *Pipeline) registerCustomTasks() error {
	if p.pc.Project == nil || p.err != nil {
		return nil
	}

	for _, name := range p.pc.Project.CustomTaskOrder {
		if err := p.reg.Register(name, p.commandTask(name, false)); err != nil {
			return err
		}
	}

	return nil
}

// registerMain declares main as the assembled series or, when the
// configuration is unusable, as a task that only reports the error.
func (p *Pipeline) registerMain() error {
	if p.err != nil {
		return p.reg.Register(config.TaskMain, p.degraded)
	}

	return p.reg.Series(config.TaskMain, p.main...)
}

func (p *Pipeline) degraded(context.Context) error {
	p.pc.Console.Error("Config", p.err.Error())

	return &ReportedError{Err: fmt.Errorf("%w: %w", ErrDegraded, p.err)}
}

// registerDefault declares start on hosts that support supervision, and
// default as start there (with a valid configuration) or main elsewhere.
func (p *Pipeline) registerDefault() error {
	target := config.TaskMain

	if p.deps.Capability.Supervise {
		if err := p.reg.Register(config.TaskStart, p.start); err != nil {
			return err
		}

		if p.err == nil {
			target = config.TaskStart
		}
	}

	return p.reg.Parallel(config.TaskDefault, target)
}

func (p *Pipeline) describe() {
	p.reg.Describe(config.TaskInclude, "assemble HTML partials with the include command", nil)
	p.reg.Describe(config.TaskSass, "compile stylesheets with the sass command", nil)
	p.reg.Describe(config.TaskWatch, "re-run tasks when the files in the watch section change", nil)
	p.reg.Describe(config.TaskServer, "serve the project with live reload", nil)
	p.reg.Describe(config.TaskProxy, "proxy an existing server with live reload", nil)
	if p.err != nil {
		p.reg.Describe(config.TaskMain, "report the configuration error; nothing is built", nil)
	} else {
		p.reg.Describe(config.TaskMain, "run "+strings.Join(p.main, ", ")+" in series", nil)
	}

	p.reg.Describe(config.TaskStart, "run main as a child process and watch the workflow sources", map[string]string{
		"debug": "restart main automatically when the workflow sources change",
	})
	p.reg.Describe(config.TaskDefault, "default task: runs include and sass once, then the watch task", map[string]string{
		"debug": "restart the default task automatically when the workflow sources change",
	})

	if p.pc.Project == nil || p.err != nil {
		return
	}

	for _, name := range p.pc.Project.CustomTaskOrder {
		ct := p.pc.Project.CustomTasks[name]

		text := ct.Description
		if text == "" {
			text = "custom task: " + strings.Join(ct.Command, " ")
		}

		p.reg.Describe(name, text, ct.Options)
	}
}

// commandTask runs the argv configured for name. Tasks without a command
// only warn. Background commands are started and left running until the
// pipeline stops.
func (p *Pipeline) commandTask(name string, background bool) task.Func {
	return func(ctx context.Context) error {
		argv := p.command(name)
		if len(argv) == 0 {
			p.pc.Console.Warn("Task", fmt.Sprintf("no command configured for '%s', skipping", name))
			return nil
		}

		if background {
			p.pc.Console.Log(fmt.Sprintf("Starting '%s' in the background", name))
			g, bgCtx := p.background()
			g.Go(func() error {
				err := p.deps.Commands.RunCommand(bgCtx, p.pc.Dir(), argv)
				if err != nil && bgCtx.Err() == nil {
					p.pc.Console.Error("Task", fmt.Sprintf("'%s' stopped: %v", name, err))
					return &ReportedError{Err: fmt.Errorf("%s: %w", name, err)}
				}

				return nil
			})

			return nil
		}

		start := time.Now()
		p.pc.Console.Log(fmt.Sprintf("Starting '%s'...", name))

		if err := p.deps.Commands.RunCommand(ctx, p.pc.Dir(), argv); err != nil {
			p.pc.Console.Error("Task", fmt.Sprintf("'%s' failed: %v", name, err))
			return &ReportedError{Err: err}
		}

		p.pc.Console.Log(fmt.Sprintf("Finished '%s' after %s", name, time.Since(start).Round(time.Millisecond)))

		return nil
	}
}

func (p *Pipeline) command(name string) []string {
	proj := p.pc.Project
	if proj == nil {
		return nil
	}

	if ct, ok := proj.CustomTasks[name]; ok && !config.IsReservedTaskName(name) {
		return ct.Command
	}

	return proj.Commands[name]
}
