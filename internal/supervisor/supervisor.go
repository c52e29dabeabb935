// Package supervisor keeps the main pipeline running as a child process
// and reacts to changes of the package manifest and the workflow sources.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hupe1980/assetflow/internal/watch"
)

// Watch set names the supervisor reacts to.
const (
	ManifestSet = "manifest"
	SourceSet   = "source"
)

// DefaultGrace is how long a child may take to exit after SIGTERM.
const DefaultGrace = 5 * time.Second

// Reporter is the operator-facing output the supervisor writes through.
type Reporter interface {
	Log(msg string)
	Warn(category, msg string)
	Error(category, msg string)
	Beep(times int)
}

// Options configures a Supervisor.
type Options struct {
	// Debug restarts the child when the workflow sources change and is
	// forwarded to the child.
	Debug bool

	// NoColor forwards --no-color to the child.
	NoColor bool

	// Manifest is the file name used in operator messages.
	Manifest string

	// Grace bounds how long a restart waits for the old child to exit
	// before killing it.
	Grace time.Duration

	Spawner  Spawner
	Reporter Reporter
	Logger   *slog.Logger

	// OnManifestChange is called after the manifest warning was reported.
	OnManifestChange func(watch.Event)
}

// Supervisor owns at most one child running the main pipeline. All state
// is confined to the goroutine calling Run.
type Supervisor struct {
	opts  Options
	child Process
}

// New validates opts and returns a Supervisor.
func New(opts Options) (*Supervisor, error) {
	if opts.Spawner == nil {
		return nil, errors.New("supervisor: spawner is required")
	}

	if opts.Reporter == nil {
		return nil, errors.New("supervisor: reporter is required")
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.Grace <= 0 {
		opts.Grace = DefaultGrace
	}

	if opts.Manifest == "" {
		opts.Manifest = "package.json"
	}

	return &Supervisor{opts: opts}, nil
}

// Args returns the arguments every child is started with.
func (s *Supervisor) Args() []string {
	args := []string{"main"}

	if s.opts.Debug {
		args = append(args, "--debug")
	}

	if s.opts.NoColor {
		args = append(args, "--no-color")
	}

	return args
}

// Run spawns the child and then reacts to events until ctx is cancelled,
// at which point the child is terminated. Failures are reported and never
// end the loop.
func (s *Supervisor) Run(ctx context.Context, events <-chan watch.Event) {
	if s.opts.Debug {
		s.opts.Reporter.Log("Debug: assetflow entered debug mode")
	}

	s.spawn()
	defer s.shutdown()

	for {
		var exited <-chan struct{}
		if s.child != nil {
			exited = s.child.Done()
		}

		select {
		case <-ctx.Done():
			return

		case ev, ok := <-events:
			if !ok {
				s.opts.Logger.Warn("watch events closed; no further restarts")
				events = nil

				continue
			}

			s.handle(ev)

		case <-exited:
			s.childExited()
		}
	}
}

func (s *Supervisor) handle(ev watch.Event) {
	s.opts.Logger.Debug("change detected",
		slog.String("set", ev.Set),
		slog.String("kind", ev.Kind.String()),
		slog.String("path", ev.Path),
		slog.Int("events", ev.Coalesced))

	r := s.opts.Reporter

	switch ev.Set {
	case ManifestSet:
		r.Log("")
		r.Warn("Update", fmt.Sprintf(
			"%s changed. To avoid errors, stop assetflow, run npm install and start it again", s.opts.Manifest))
		r.Beep(3)

		if s.opts.OnManifestChange != nil {
			s.opts.OnManifestChange(ev)
		}

	case SourceSet:
		r.Log("")

		if s.opts.Debug {
			r.Warn("Debug", "workflow source changed, restarting main")
			r.Beep(3)
			s.restart()

			return
		}

		r.Warn("Update", fmt.Sprintf(
			"workflow source changed. Stop assetflow and start it again to load it; if %s changed too, run npm install first",
			s.opts.Manifest))
		r.Beep(3)

	default:
		s.opts.Logger.Debug("ignoring event for unknown watch set", slog.String("set", ev.Set))
	}
}

// restart terminates the current child, waiting for it to exit, and spawns
// its replacement. A child that could not be stopped is kept and nothing is
// spawned next to it.
func (s *Supervisor) restart() {
	if err := s.stopChild(); err != nil {
		s.opts.Reporter.Warn("Supervisor", "main was not restarted; the previous process is still running")
		return
	}

	s.spawn()
}

func (s *Supervisor) spawn() {
	args := s.Args()

	p, err := s.opts.Spawner.Spawn(args)
	if err != nil {
		s.opts.Reporter.Error("Supervisor", fmt.Sprintf("cannot start main: %v", err))
		s.opts.Logger.Error("spawn failed", slog.Any("args", args), slog.String("error", err.Error()))

		return
	}

	s.child = p
	s.opts.Logger.Debug("main started", slog.Int("child", p.PID()), slog.Any("args", args))
}

// stopChild terminates the child and forgets it once it is known to have
// exited. On failure the handle is kept so its exit is still observed.
func (s *Supervisor) stopChild() error {
	if s.child == nil {
		return nil
	}

	pid := s.child.PID()

	if err := s.child.Terminate(s.opts.Grace); err != nil && !errors.Is(err, ErrNotRunning) {
		select {
		case <-s.child.Done():
		default:
			s.opts.Reporter.Error("Supervisor", fmt.Sprintf("cannot stop main (pid %d): %v", pid, err))
			return err
		}
	}

	s.child = nil
	s.opts.Logger.Debug("main stopped", slog.Int("child", pid))

	return nil
}

func (s *Supervisor) childExited() {
	pid := s.child.PID()
	err := s.child.ExitErr()
	s.child = nil

	if err != nil {
		s.opts.Reporter.Error("Supervisor", fmt.Sprintf("main (pid %d) exited: %v; waiting for changes", pid, err))
		return
	}

	s.opts.Reporter.Warn("Supervisor", fmt.Sprintf("main (pid %d) exited; waiting for changes", pid))
}

func (s *Supervisor) shutdown() {
	if s.child != nil {
		s.opts.Logger.Debug("terminating main on shutdown", slog.Int("child", s.child.PID()))
	}

	_ = s.stopChild()
}
