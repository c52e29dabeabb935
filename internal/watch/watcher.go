package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"
)

// Kind classifies a file-system change.
type Kind int

// Change kinds.
const (
	Modified Kind = iota
	Created
	Deleted
	Renamed
)

func (k Kind) String() string {
	switch k {
	case Created:
		return "created"
	case Deleted:
		return "deleted"
	case Renamed:
		return "renamed"
	default:
		return "modified"
	}
}

// Event is a debounced change notification for one watch set.
type Event struct {
	Set  string
	Kind Kind
	Path string

	// Coalesced is the number of raw file-system events folded into this
	// one, at least 1 for delivered events.
	Coalesced int
}

// Set is a named group of glob patterns. Relative patterns are resolved
// against Options.Root. A pattern without glob meta characters also matches
// everything below it when it names a directory.
type Set struct {
	Name     string
	Patterns []string
}

// Options configures a watcher.
type Options struct {
	// Root is the directory relative patterns are resolved against.
	Root string

	// Debounce is the quiet period before an event is delivered.
	Debounce time.Duration

	// Logger is used for structured logging.
	Logger *slog.Logger
}

// DefaultOptions returns sensible default watch options.
func DefaultOptions() Options {
	return Options{
		Root:     ".",
		Debounce: 200 * time.Millisecond,
		Logger:   slog.Default(),
	}
}

type pattern struct {
	raw     string
	glob    glob.Glob
	literal string
	abs     bool

	// anchor is the absolute directory (or literal path) the pattern can
	// match below.
	anchor string
}

type matcher struct {
	name     string
	patterns []pattern
}

// Start begins watching sets and returns the channel events are delivered
// on. Watching stops when ctx is cancelled. The channel is never closed;
// receivers must also select on ctx.Done().
func Start(ctx context.Context, opts Options, sets ...Set) (<-chan Event, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.Root == "" {
		opts.Root = "."
	}

	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("resolving watch root %q: %w", opts.Root, err)
	}

	if info, statErr := os.Stat(root); statErr != nil || !info.IsDir() {
		return nil, fmt.Errorf("watch root %s is not a directory", root)
	}

	matchers := make([]*matcher, 0, len(sets))
	for _, s := range sets {
		m, compileErr := compileSet(root, s)
		if compileErr != nil {
			return nil, compileErr
		}

		matchers = append(matchers, m)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	for _, m := range matchers {
		for _, p := range m.patterns {
			if addErr := addAnchor(fsw, p.anchor); addErr != nil {
				_ = fsw.Close()
				return nil, fmt.Errorf("watching %q for set %q: %w", p.raw, m.name, addErr)
			}
		}
	}

	out := make(chan Event)

	debouncers := make(map[string]*Debouncer, len(matchers))
	for _, m := range matchers {
		debouncers[m.name] = NewDebouncer(opts.Debounce, func(ev Event) {
			select {
			case out <- ev:
			case <-ctx.Done():
			}
		})
	}

	go loop(ctx, fsw, root, matchers, debouncers, opts.Logger)

	return out, nil
}

// Handler reacts to one watch event.
type Handler func(ctx context.Context, ev Event) error

// Dispatch calls fn for every event, one at a time, until ctx is cancelled.
// Errors from fn are logged and do not stop the loop.
func Dispatch(ctx context.Context, events <-chan Event, fn Handler, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			if err := fn(ctx, ev); err != nil {
				logger.Error("watch handler failed",
					slog.String("set", ev.Set),
					slog.String("path", ev.Path),
					slog.String("error", err.Error()))
			}
		}
	}
}

func loop(ctx context.Context, fsw *fsnotify.Watcher, root string, matchers []*matcher, debouncers map[string]*Debouncer, logger *slog.Logger) {
	defer func() {
		for _, d := range debouncers {
			d.Stop()
		}

		_ = fsw.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fsw.Events:
			if !ok {
				return
			}

			if !isRelevant(event) {
				continue
			}

			if event.Has(fsnotify.Create) {
				if info, statErr := os.Stat(event.Name); statErr == nil && info.IsDir() {
					watchNewDir(fsw, matchers, event.Name, logger)
				}
			}

			rel := relativeTo(root, event.Name)
			abs := filepath.ToSlash(event.Name)

			for _, m := range matchers {
				if m.match(rel, abs) {
					debouncers[m.name].Trigger(Event{Set: m.name, Kind: kindOf(event.Op), Path: event.Name})
				}
			}

		case watchErr, ok := <-fsw.Errors:
			if !ok {
				return
			}

			logger.Error("watcher error", slog.String("error", watchErr.Error()))
		}
	}
}

func compileSet(root string, s Set) (*matcher, error) {
	if s.Name == "" {
		return nil, fmt.Errorf("watch set name must not be empty")
	}

	m := &matcher{name: s.Name}

	for _, raw := range s.Patterns {
		p, err := compilePattern(root, raw)
		if err != nil {
			return nil, fmt.Errorf("watch set %q: %w", s.Name, err)
		}

		m.patterns = append(m.patterns, p)
	}

	return m, nil
}

func compilePattern(root, raw string) (pattern, error) {
	norm := filepath.ToSlash(filepath.Clean(raw))
	p := pattern{raw: raw, abs: filepath.IsAbs(raw)}

	full := norm
	if !p.abs {
		full = filepath.ToSlash(filepath.Join(root, norm))
	}

	if !hasMeta(norm) {
		p.literal = norm
		p.anchor = filepath.FromSlash(full)

		return p, nil
	}

	g, err := glob.Compile(norm, '/')
	if err != nil {
		return pattern{}, fmt.Errorf("invalid pattern %q: %w", raw, err)
	}

	p.glob = g
	p.anchor = filepath.FromSlash(staticPrefix(full))

	return p, nil
}

func (m *matcher) match(rel, abs string) bool {
	for _, p := range m.patterns {
		subject := rel
		if p.abs {
			subject = abs
		}

		if p.literal != "" {
			if subject == p.literal || strings.HasPrefix(subject, p.literal+"/") {
				return true
			}

			continue
		}

		if p.glob.Match(subject) {
			return true
		}
	}

	return false
}

// addAnchor watches anchor recursively when it is a directory. Otherwise
// the closest existing parent directory is watched so that the anchor's
// creation or modification is observed.
func addAnchor(fsw *fsnotify.Watcher, anchor string) error {
	if info, err := os.Stat(anchor); err == nil && info.IsDir() {
		return addRecursive(fsw, anchor)
	}

	dir := filepath.Dir(anchor)

	for {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return fsw.Add(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return fmt.Errorf("no existing parent directory for %s", anchor)
		}

		dir = parent
	}
}

// watchNewDir extends the watch to a directory created after Start.
func watchNewDir(fsw *fsnotify.Watcher, matchers []*matcher, dir string, logger *slog.Logger) {
	if skipDir(filepath.Base(dir)) {
		return
	}

	for _, m := range matchers {
		for _, p := range m.patterns {
			var err error

			switch {
			case dir == p.anchor || within(dir, p.anchor):
				err = addRecursive(fsw, dir)
			case within(p.anchor, dir):
				err = fsw.Add(dir)
			default:
				continue
			}

			if err != nil {
				logger.Warn("cannot watch new directory", slog.String("dir", dir), slog.String("error", err.Error()))
			}

			return
		}
	}
}

// addRecursive walks root and adds all directories to the watcher.
func addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if path != root && skipDir(d.Name()) {
				return filepath.SkipDir
			}

			return watcher.Add(path)
		}

		return nil
	})
}

// skipDir reports directories never worth watching: hidden ones (.git)
// and installed front-end dependencies.
func skipDir(name string) bool {
	return strings.HasPrefix(name, ".") || name == "node_modules"
}

// isRelevant filters out events that cannot matter to a watch set.
func isRelevant(event fsnotify.Event) bool {
	if event.Op == 0 {
		return false
	}

	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}

	name := filepath.Base(event.Name)

	// Ignore editor temporary files and hidden files.
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, "~") ||
		strings.HasSuffix(name, ".swp") || strings.HasPrefix(name, "#") {
		return false
	}

	return true
}

func kindOf(op fsnotify.Op) Kind {
	switch {
	case op.Has(fsnotify.Remove):
		return Deleted
	case op.Has(fsnotify.Rename):
		return Renamed
	case op.Has(fsnotify.Create):
		return Created
	default:
		return Modified
	}
}

func hasMeta(p string) bool {
	return strings.ContainsAny(p, `*?[{\`)
}

// staticPrefix returns the leading path segments of a slash pattern that
// contain no glob meta characters.
func staticPrefix(p string) string {
	segments := strings.Split(p, "/")

	var static []string

	for _, s := range segments {
		if hasMeta(s) {
			break
		}

		static = append(static, s)
	}

	prefix := strings.Join(static, "/")
	if prefix == "" && strings.HasPrefix(p, "/") {
		return "/"
	}

	return prefix
}

func relativeTo(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}

	return filepath.ToSlash(rel)
}

// within reports whether path lies strictly below dir.
func within(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}

	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
