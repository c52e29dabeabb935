// Package task is the task registry: named task functions, series and
// parallel compositions of them, and the descriptions shown by
// `assetflow tasks`.
package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Sentinel errors returned by the registry.
var (
	ErrUnknownTask   = errors.New("unknown task")
	ErrDuplicateTask = errors.New("task already registered")
)

// Func is the body of a task.
type Func func(ctx context.Context) error

// Kind tells how a task was registered.
type Kind string

// Task kinds.
const (
	KindFunc     Kind = "func"
	KindSeries   Kind = "series"
	KindParallel Kind = "parallel"
)

// Description documents a task for operators.
type Description struct {
	Name string `json:"name"`
	Kind Kind   `json:"kind"`
	Text string `json:"description,omitempty"`

	// Members lists the composed tasks of a series or parallel task.
	Members []string `json:"members,omitempty"`

	// Options maps a command-line option to what it does for this task.
	Options map[string]string `json:"options,omitempty"`
}

// Error reports the failure of a named task.
type Error struct {
	Task string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("task %q: %v", e.Task, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

type entry struct {
	kind    Kind
	fn      Func
	members []string
}

// Registry holds named tasks. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	tasks  map[string]*entry
	order  []string
	descs  map[string]Description
	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	return &Registry{
		tasks:  make(map[string]*entry),
		descs:  make(map[string]Description),
		logger: logger,
	}
}

// Register adds a task function under name.
func (r *Registry) Register(name string, fn Func) error {
	if fn == nil {
		return fmt.Errorf("task %q: nil function", name)
	}

	return r.add(name, &entry{kind: KindFunc, fn: fn})
}

// Series registers name as running members one after another, stopping at
// the first failure. Members are resolved when the task runs.
func (r *Registry) Series(name string, members ...string) error {
	return r.add(name, &entry{kind: KindSeries, members: append([]string(nil), members...)})
}

// Parallel registers name as running members concurrently. The first
// failure cancels the context of the others.
func (r *Registry) Parallel(name string, members ...string) error {
	return r.add(name, &entry{kind: KindParallel, members: append([]string(nil), members...)})
}

func (r *Registry) add(name string, e *entry) error {
	if name == "" {
		return fmt.Errorf("task name must not be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateTask, name)
	}

	r.tasks[name] = e
	r.order = append(r.order, name)

	return nil
}

// Describe attaches an operator-facing description to name. The task does
// not need to be registered yet.
func (r *Registry) Describe(name, text string, options map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	opts := make(map[string]string, len(options))
	for k, v := range options {
		opts[k] = v
	}

	r.descs[name] = Description{Name: name, Text: text, Options: opts}
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.tasks[name]

	return ok
}

// Names returns the registered task names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]string(nil), r.order...)
}

// Members returns the members of a series or parallel task.
func (r *Registry) Members(name string) ([]string, error) {
	e, err := r.lookup(name)
	if err != nil {
		return nil, err
	}

	return append([]string(nil), e.members...), nil
}

// Descriptions returns one Description per registered task, in
// registration order, merged with the text attached by Describe.
func (r *Registry) Descriptions() []Description {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Description, 0, len(r.order))

	for _, name := range r.order {
		e := r.tasks[name]

		d := r.descs[name]
		d.Name = name
		d.Kind = e.kind
		d.Members = append([]string(nil), e.members...)

		out = append(out, d)
	}

	return out
}

// Run executes the task called name.
func (r *Registry) Run(ctx context.Context, name string) error {
	e, err := r.lookup(name)
	if err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	r.logger.Debug("task started", slog.String("task", name), slog.String("kind", string(e.kind)))

	switch e.kind {
	case KindSeries:
		err = r.runSeries(ctx, e.members)
	case KindParallel:
		err = r.runParallel(ctx, e.members)
	default:
		err = e.fn(ctx)
	}

	elapsed := time.Since(start)

	if err != nil {
		r.logger.Debug("task failed", slog.String("task", name), slog.Duration("elapsed", elapsed), slog.String("error", err.Error()))

		var taskErr *Error
		if errors.As(err, &taskErr) || errors.Is(err, context.Canceled) {
			return err
		}

		return &Error{Task: name, Err: err}
	}

	r.logger.Debug("task finished", slog.String("task", name), slog.Duration("elapsed", elapsed))

	return nil
}

func (r *Registry) runSeries(ctx context.Context, members []string) error {
	for _, m := range members {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := r.Run(ctx, m); err != nil {
			return err
		}
	}

	return nil
}

func (r *Registry) runParallel(ctx context.Context, members []string) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, m := range members {
		g.Go(func() error {
			return r.Run(gctx, m)
		})
	}

	return g.Wait()
}

func (r *Registry) lookup(name string) (*entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.tasks[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTask, name)
	}

	return e, nil
}
