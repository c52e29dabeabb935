package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"

	"github.com/hupe1980/assetflow/internal/config"
	"github.com/hupe1980/assetflow/internal/watch"
)

// tasks the watch task refuses to re-run. server and proxy keep running
// once started; another run would start a second browser-sync on the port.
var unwatchable = map[string]bool{
	config.TaskServer:  true,
	config.TaskProxy:   true,
	config.TaskWatch:   true,
	config.TaskMain:    true,
	config.TaskStart:   true,
	config.TaskDefault: true,
}

func (p *Pipeline) registerWatch() error {
	return p.reg.Register(config.TaskWatch, p.watchTask)
}

// watchTask starts one watch set per entry of the watch section and returns.
// Changes re-run the named task until the pipeline stops.
func (p *Pipeline) watchTask(context.Context) error {
	sets := p.watchSets()
	if len(sets) == 0 {
		p.pc.Console.Warn("Watch", "the watch section is empty, nothing to watch")
		return nil
	}

	g, ctx := p.background()

	events, err := p.deps.Watch(ctx, watch.Options{
		Root:     p.pc.Dir(),
		Debounce: p.pc.Project.Supervisor.Debounce,
		Logger:   p.pc.Logger,
	}, sets...)
	if err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}

	for _, s := range sets {
		p.pc.Logger.Debug("watching", slog.String("task", s.Name), slog.Any("patterns", s.Patterns))
	}

	g.Go(func() error {
		watch.Dispatch(ctx, events, p.rerun, p.pc.Logger)
		return nil
	})

	return nil
}

func (p *Pipeline) watchSets() []watch.Set {
	proj := p.pc.Project
	if proj == nil || p.err != nil {
		return nil
	}

	names := make([]string, 0, len(proj.Watch))
	for name := range proj.Watch {
		names = append(names, name)
	}

	sort.Strings(names)

	sets := make([]watch.Set, 0, len(names))

	for _, name := range names {
		if unwatchable[name] || !p.reg.Has(name) {
			p.pc.Console.Warn("Watch", fmt.Sprintf("'%s' cannot be re-run on change, ignored", name))
			continue
		}

		if len(proj.Watch[name]) == 0 {
			continue
		}

		sets = append(sets, watch.Set{Name: name, Patterns: proj.Watch[name]})
	}

	return sets
}

func (p *Pipeline) rerun(ctx context.Context, ev watch.Event) error {
	path := ev.Path
	if root, err := filepath.Abs(p.pc.Dir()); err == nil {
		if rel, relErr := filepath.Rel(root, ev.Path); relErr == nil {
			path = rel
		}
	}

	p.pc.Console.Log(fmt.Sprintf("%s %s, running '%s'", path, ev.Kind, ev.Set))

	return p.reg.Run(ctx, ev.Set)
}
