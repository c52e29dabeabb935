package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hupe1980/assetflow/internal/pkginfo"
	"github.com/hupe1980/assetflow/internal/supervisor"
	"github.com/hupe1980/assetflow/internal/watch"
)

// start runs main as a supervised child process and blocks until ctx is
// cancelled. With a fatal configuration error it behaves like the degraded
// main task and neither watches nor spawns.
func (p *Pipeline) start(ctx context.Context) error {
	if p.err != nil {
		return p.degraded(ctx)
	}

	proj := p.pc.Project
	settings := p.pc.Settings

	sup, err := supervisor.New(supervisor.Options{
		Debug:            settings != nil && settings.Debug,
		NoColor:          settings != nil && settings.ColorExplicitlyDisabled(),
		Manifest:         proj.Supervisor.Manifest,
		Grace:            proj.Supervisor.TerminateTimeout,
		Spawner:          p.deps.Spawner,
		Reporter:         p.pc.Console,
		Logger:           p.pc.Logger,
		OnManifestChange: p.manifestChanged,
	})
	if err != nil {
		return err
	}

	events, err := p.deps.Watch(ctx, watch.Options{
		Root:     p.pc.Dir(),
		Debounce: proj.Supervisor.Debounce,
		Logger:   p.pc.Logger,
	},
		watch.Set{Name: supervisor.ManifestSet, Patterns: []string{proj.Supervisor.Manifest}},
		watch.Set{Name: supervisor.SourceSet, Patterns: proj.Supervisor.Sources},
	)
	if err != nil {
		return fmt.Errorf("watching workflow sources: %w", err)
	}

	sup.Run(ctx, events)

	return nil
}

// manifestChanged reports what changed in the manifest since startup.
func (p *Pipeline) manifestChanged(watch.Event) {
	curr, err := pkginfo.Load(p.pc.Project.ManifestPath())
	if err != nil {
		p.pc.Logger.Warn("cannot read changed manifest", slog.String("error", err.Error()))
		return
	}

	change, err := pkginfo.Compare(p.pc.Package, curr)
	if err != nil {
		p.pc.Logger.Warn("cannot compare manifest", slog.String("error", err.Error()))
		return
	}

	if change.Version != "" {
		p.pc.Console.Log(fmt.Sprintf("%s %s", curr.Name, change.Version))
	}

	for _, line := range strings.Split(strings.TrimRight(change.Dependencies, "\n"), "\n") {
		if line != "" {
			p.pc.Console.Log(line)
		}
	}
}
