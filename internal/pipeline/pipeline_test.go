package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/assetflow/internal/config"
	"github.com/hupe1980/assetflow/internal/pkginfo"
	"github.com/hupe1980/assetflow/internal/supervisor"
	"github.com/hupe1980/assetflow/internal/watch"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeConsole struct {
	mu    sync.Mutex
	lines []string
	beeps int
}

func (c *fakeConsole) add(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lines = append(c.lines, s)
}

func (c *fakeConsole) Log(msg string)             { c.add("log:" + msg) }
func (c *fakeConsole) Warn(category, msg string)  { c.add("warn:" + category + ":" + msg) }
func (c *fakeConsole) Error(category, msg string) { c.add("error:" + category + ":" + msg) }

func (c *fakeConsole) Beep(times int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.beeps += times
}

func (c *fakeConsole) matching(prefix string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []string

	for _, l := range c.lines {
		if strings.HasPrefix(l, prefix) {
			out = append(out, l)
		}
	}

	return out
}

// fakeCommands records the argv[0] of every command. Commands named
// "block" run until their context ends.
type fakeCommands struct {
	mu  sync.Mutex
	ran []string
	err map[string]error
}

func (f *fakeCommands) RunCommand(ctx context.Context, _ string, argv []string) error {
	f.mu.Lock()
	f.ran = append(f.ran, argv[0])
	err := f.err[argv[0]]
	f.mu.Unlock()

	if argv[0] == "block" {
		<-ctx.Done()
		return ctx.Err()
	}

	return err
}

func (f *fakeCommands) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.ran...)
}

type fakeWatch struct {
	mu     sync.Mutex
	calls  [][]watch.Set
	events chan watch.Event
}

func newFakeWatch() *fakeWatch {
	return &fakeWatch{events: make(chan watch.Event)}
}

func (f *fakeWatch) start(_ context.Context, _ watch.Options, sets ...watch.Set) (<-chan watch.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, sets)

	return f.events, nil
}

func (f *fakeWatch) setNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var names []string

	for _, call := range f.calls {
		for _, s := range call {
			names = append(names, s.Name)
		}
	}

	return names
}

type fakeProcess struct {
	done chan struct{}
	once sync.Once
}

func (p *fakeProcess) PID() int              { return 42 }
func (p *fakeProcess) Done() <-chan struct{} { return p.done }
func (p *fakeProcess) ExitErr() error        { return nil }

func (p *fakeProcess) Terminate(time.Duration) error {
	p.once.Do(func() { close(p.done) })
	return nil
}

type fakeSpawner struct {
	mu   sync.Mutex
	args [][]string
}

func (s *fakeSpawner) Spawn(args []string) (supervisor.Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.args = append(s.args, args)

	return &fakeProcess{done: make(chan struct{})}, nil
}

func (s *fakeSpawner) calls() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([][]string(nil), s.args...)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type fixture struct {
	console  *fakeConsole
	commands *fakeCommands
	watcher  *fakeWatch
	spawner  *fakeSpawner
	pc       *Context
	deps     Deps
}

func newFixture(t *testing.T, goos string, project *config.Project, projectErr error) *fixture {
	t.Helper()

	f := &fixture{
		console:  &fakeConsole{},
		commands: &fakeCommands{err: map[string]error{}},
		watcher:  newFakeWatch(),
		spawner:  &fakeSpawner{},
	}

	f.pc = &Context{
		Settings:   config.Default(),
		Project:    project,
		ProjectErr: projectErr,
		Console:    f.console,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	f.deps = Deps{
		Capability: supervisor.ForPlatform(goos),
		Spawner:    f.spawner,
		Commands:   f.commands,
		Watch:      f.watcher.start,
	}

	return f
}

func (f *fixture) build(t *testing.T) *Pipeline {
	t.Helper()

	p, err := New(f.pc, f.deps)
	require.NoError(t, err)

	return p
}

func project(t *testing.T, doc map[string]interface{}) *config.Project {
	t.Helper()

	p, err := config.Resolve(doc, nil)
	require.NoError(t, err)

	p.Dir = t.TempDir()

	return p
}

func baseDoc(mode string) map[string]interface{} {
	return map[string]interface{}{
		"browserSync": map[string]interface{}{"browserSyncMod": mode},
		"commands": map[string]interface{}{
			"include": "include-cli src dist",
			"sass":    []interface{}{"sass", "src:dist"},
			"server":  "block",
			"proxy":   "block",
		},
	}
}

// ---------------------------------------------------------------------------
// Assemble
// ---------------------------------------------------------------------------

func TestAssemble(t *testing.T) {
	tests := []struct {
		mode string
		want TaskSet
	}{
		{"close", TaskSet{"include", "sass", "watch", "lint", "deploy"}},
		{"server", TaskSet{"include", "sass", "watch", "server", "lint", "deploy"}},
		{"proxy", TaskSet{"include", "sass", "watch", "proxy", "lint", "deploy"}},
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			doc := baseDoc(tt.mode)
			doc["customTasks"] = map[string]interface{}{
				"lint":   map[string]interface{}{"command": "stylelint"},
				"deploy": map[string]interface{}{"command": "rsync"},
			}

			p := project(t, doc)
			p.CustomTaskOrder = []string{"lint", "deploy"}

			got, err := Assemble(p)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAssemble_NoCustomTasks(t *testing.T) {
	got, err := Assemble(project(t, baseDoc("close")))
	require.NoError(t, err)
	assert.Equal(t, TaskSet{"include", "sass", "watch"}, got)
}

func TestAssemble_Rejects(t *testing.T) {
	invalid := project(t, baseDoc("invalid"))

	_, err := Assemble(invalid)
	assert.ErrorIs(t, err, config.ErrInvalidBrowserSyncMode)

	doc := baseDoc("server")
	doc["customTasks"] = map[string]interface{}{"sass": map[string]interface{}{"command": "x"}}

	_, err = Assemble(project(t, doc))
	assert.ErrorIs(t, err, config.ErrReservedTaskName)
}

// ---------------------------------------------------------------------------
// Main
// ---------------------------------------------------------------------------

func TestMain_RunsSeries(t *testing.T) {
	doc := baseDoc("close")
	doc["customTasks"] = map[string]interface{}{
		"lint": map[string]interface{}{"command": "stylelint src", "description": "lint styles"},
	}

	f := newFixture(t, "windows", project(t, doc), nil)
	p := f.build(t)

	members, err := p.Registry().Members("main")
	require.NoError(t, err)
	assert.Equal(t, []string{"include", "sass", "watch", "lint"}, members)

	require.NoError(t, p.Run(context.Background(), "main"))
	assert.Equal(t, []string{"include-cli", "sass", "stylelint"}, f.commands.names())
	assert.Len(t, f.console.matching("warn:Watch:the watch section is empty"), 1)
}

func TestMain_StopsAtFailedCommand(t *testing.T) {
	f := newFixture(t, "windows", project(t, baseDoc("close")), nil)
	f.commands.err["include-cli"] = errors.New("exit status 1")
	p := f.build(t)

	err := p.Run(context.Background(), "main")
	require.Error(t, err)
	assert.True(t, IsReported(err))
	assert.Equal(t, []string{"include-cli"}, f.commands.names())
	assert.Len(t, f.console.matching("error:Task:'include' failed"), 1)
}

func TestMain_DegradedOnInvalidMode(t *testing.T) {
	f := newFixture(t, "windows", project(t, baseDoc("invalid")), nil)
	p := f.build(t)

	assert.Nil(t, p.Main())
	require.ErrorIs(t, p.Err(), config.ErrInvalidBrowserSyncMode)

	err := p.Run(context.Background(), "main")
	require.ErrorIs(t, err, ErrDegraded)
	assert.ErrorIs(t, err, config.ErrInvalidBrowserSyncMode)
	assert.True(t, config.IsFatal(err))
	assert.True(t, IsReported(err))

	assert.Empty(t, f.commands.names(), "no build work")
	assert.Empty(t, f.watcher.setNames())

	errs := f.console.matching("error:Config:")
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "browserSyncMod only supports server, proxy, close")
}

func TestMain_DegradedOnMissingConfig(t *testing.T) {
	missing := config.ErrDefaultConfigMissing

	f := newFixture(t, "linux", nil, missing)
	p := f.build(t)

	assert.Len(t, f.console.matching("error:Config:"), 1, "reported once when noticed")

	err := p.Run(context.Background(), "default")
	require.ErrorIs(t, err, ErrDegraded)

	assert.Len(t, f.console.matching("error:Config:"), 2, "main reports it again")
	assert.Empty(t, f.spawner.calls())
	assert.Empty(t, f.watcher.setNames())
}

func TestCommandTask_MissingCommandWarns(t *testing.T) {
	doc := baseDoc("close")
	delete(doc["commands"].(map[string]interface{}), "include")

	f := newFixture(t, "windows", project(t, doc), nil)
	p := f.build(t)

	require.NoError(t, p.Run(context.Background(), "include"))
	assert.Empty(t, f.commands.names())
	assert.Len(t, f.console.matching("warn:Task:no command configured for 'include'"), 1)
}

func TestMain_BackgroundServerRunsUntilCancelled(t *testing.T) {
	f := newFixture(t, "windows", project(t, baseDoc("server")), nil)
	p := f.build(t)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, "main") }()

	require.Eventually(t, func() bool {
		return len(f.commands.names()) == 3
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"include-cli", "sass", "block"}, f.commands.names())

	select {
	case <-done:
		t.Fatal("main returned while the server was running")
	case <-time.After(50 * time.Millisecond):
	}

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("main did not stop")
	}
}

// ---------------------------------------------------------------------------
// Default / start
// ---------------------------------------------------------------------------

func TestDefault_UnsupportedPlatformRunsMainOnce(t *testing.T) {
	f := newFixture(t, "windows", project(t, baseDoc("close")), nil)
	p := f.build(t)

	assert.False(t, p.Registry().Has("start"))

	members, err := p.Registry().Members("default")
	require.NoError(t, err)
	assert.Equal(t, []string{"main"}, members)

	require.NoError(t, p.Run(context.Background(), "default"))

	assert.Equal(t, []string{"include-cli", "sass"}, f.commands.names())
	assert.Empty(t, f.watcher.setNames(), "no watcher registrations")
	assert.Empty(t, f.spawner.calls(), "no child process")
}

func TestDefault_SupervisedPlatformStartsSupervisor(t *testing.T) {
	f := newFixture(t, "linux", project(t, baseDoc("server")), nil)
	f.pc.Settings.Debug = true
	f.pc.Settings.Color = "false"
	p := f.build(t)

	members, err := p.Registry().Members("default")
	require.NoError(t, err)
	assert.Equal(t, []string{"start"}, members)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, "default") }()

	require.Eventually(t, func() bool { return len(f.spawner.calls()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"main", "--debug", "--no-color"}, f.spawner.calls()[0])
	assert.Equal(t, []string{supervisor.ManifestSet, supervisor.SourceSet}, f.watcher.setNames())
	assert.Empty(t, f.commands.names(), "the parent runs no build work itself")

	f.watcher.events <- watch.Event{Set: supervisor.SourceSet, Path: filepath.Join(p.pc.Dir(), "workflow", "x.yaml")}

	require.Eventually(t, func() bool { return len(f.spawner.calls()) == 2 }, time.Second, 5*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("default did not stop")
	}
}

func TestStart_DegradedDoesNotWatchOrSpawn(t *testing.T) {
	f := newFixture(t, "darwin", project(t, baseDoc("nope")), nil)
	p := f.build(t)

	members, err := p.Registry().Members("default")
	require.NoError(t, err)
	assert.Equal(t, []string{"main"}, members)

	err = p.Run(context.Background(), "start")
	assert.ErrorIs(t, err, ErrDegraded)
	assert.Empty(t, f.spawner.calls())
	assert.Empty(t, f.watcher.setNames())
}

// ---------------------------------------------------------------------------
// Watch task
// ---------------------------------------------------------------------------

func TestWatchTask_IgnoresLongRunningTasks(t *testing.T) {
	doc := baseDoc("server")
	doc["watch"] = map[string]interface{}{
		"server": []interface{}{"src/**"},
		"proxy":  []interface{}{"src/**"},
		"sass":   []interface{}{"src/**/*.scss"},
	}

	f := newFixture(t, "windows", project(t, doc), nil)
	p := f.build(t)
	require.True(t, p.Registry().Has("server"))

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, "watch") }()

	require.Eventually(t, func() bool { return len(f.watcher.setNames()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"sass"}, f.watcher.setNames())
	assert.Len(t, f.console.matching("warn:Watch:'server' cannot be re-run on change"), 1)
	assert.Len(t, f.console.matching("warn:Watch:'proxy' cannot be re-run on change"), 1)

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestWatchTask_RerunsTasks(t *testing.T) {
	doc := baseDoc("close")
	doc["watch"] = map[string]interface{}{
		"sass":    []interface{}{"src/**/*.scss"},
		"main":    []interface{}{"src/**"},
		"missing": []interface{}{"x"},
	}

	f := newFixture(t, "windows", project(t, doc), nil)
	p := f.build(t)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, "watch") }()

	require.Eventually(t, func() bool { return len(f.watcher.setNames()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"sass"}, f.watcher.setNames())
	assert.Len(t, f.console.matching("warn:Watch:"), 2)

	f.watcher.events <- watch.Event{Set: "sass", Kind: watch.Modified, Path: filepath.Join(p.pc.Dir(), "src", "a.scss")}

	require.Eventually(t, func() bool { return len(f.commands.names()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"sass"}, f.commands.names())
	assert.Len(t, f.console.matching("log:"+filepath.Join("src", "a.scss")+" modified, running 'sass'"), 1)

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop")
	}
}

// ---------------------------------------------------------------------------
// Descriptions / manifest change
// ---------------------------------------------------------------------------

func TestDescriptions(t *testing.T) {
	doc := baseDoc("close")
	doc["customTasks"] = map[string]interface{}{
		"lint": map[string]interface{}{
			"command": "stylelint",
			"options": map[string]interface{}{"fix": "apply fixes"},
		},
	}

	f := newFixture(t, "linux", project(t, doc), nil)
	p := f.build(t)

	byName := map[string]string{}
	opts := map[string]map[string]string{}

	for _, d := range p.Registry().Descriptions() {
		byName[d.Name] = d.Text
		opts[d.Name] = d.Options
	}

	assert.Contains(t, byName["default"], "default task")
	assert.Contains(t, opts["default"], "debug")
	assert.Equal(t, "custom task: stylelint", byName["lint"])
	assert.Equal(t, "apply fixes", opts["lint"]["fix"])
	assert.Equal(t, "run include, sass, watch, lint in series", byName["main"])
}

func TestManifestChanged_ReportsDifferences(t *testing.T) {
	proj := project(t, baseDoc("close"))
	manifest := filepath.Join(proj.Dir, "package.json")

	require.NoError(t, os.WriteFile(manifest, []byte(`{"name": "site", "version": "1.0.0", "dependencies": {"sass": "^1.0.0"}}`), 0o644))

	snapshot, err := pkginfo.Load(manifest)
	require.NoError(t, err)

	f := newFixture(t, "linux", proj, nil)
	f.pc.Package = snapshot
	p := f.build(t)

	require.NoError(t, os.WriteFile(manifest, []byte(`{"name": "site", "version": "1.1.0", "dependencies": {"sass": "^1.1.0"}}`), 0o644))

	p.manifestChanged(watch.Event{Set: supervisor.ManifestSet, Path: manifest})

	assert.Len(t, f.console.matching("log:site upgraded 1.0.0 -> 1.1.0"), 1)
	assert.Len(t, f.console.matching("log:-dependencies: sass ^1.0.0"), 1)
	assert.Len(t, f.console.matching("log:+dependencies: sass ^1.1.0"), 1)
}

func TestManifestChanged_UnreadableIsIgnored(t *testing.T) {
	f := newFixture(t, "linux", project(t, baseDoc("close")), nil)
	p := f.build(t)

	p.manifestChanged(watch.Event{Set: supervisor.ManifestSet})
	assert.Empty(t, f.console.matching("log:"))
}

func TestNew_RequiresConsole(t *testing.T) {
	_, err := New(&Context{}, Deps{})
	assert.Error(t, err)
}
