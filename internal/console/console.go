// Package console renders operator-facing messages: timestamped log lines,
// categorised warnings and errors, and terminal bells. Everything the
// pipeline and the supervisor tell the operator goes through a Console.
package console

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"golang.org/x/term"
)

const bell = "\a"

// Console writes operator messages to a single stream. It is safe for
// concurrent use; each message is written with one Write call.
type Console struct {
	mu  sync.Mutex
	out io.Writer
	now func() time.Time

	stampStyle  *color.Color
	warnStyle   *color.Color
	errorStyle  *color.Color
	accentStyle *color.Color
}

// New creates a Console writing to w. Colour is used only when enabled is
// true; the decision is made per console, not through color.NoColor, so a
// forced --color works on redirected output.
func New(w io.Writer, enabled bool) *Console {
	if w == nil {
		w = io.Discard
	}

	c := &Console{
		out:         w,
		now:         time.Now,
		stampStyle:  color.New(color.FgHiBlack),
		warnStyle:   color.New(color.FgYellow),
		errorStyle:  color.New(color.FgRed),
		accentStyle: color.New(color.FgCyan),
	}

	for _, style := range []*color.Color{c.stampStyle, c.warnStyle, c.errorStyle, c.accentStyle} {
		if enabled {
			style.EnableColor()
		} else {
			style.DisableColor()
		}
	}

	return c
}

// ColorSupported reports whether w should receive colour codes. Standard
// output follows color.NoColor (NO_COLOR, TERM=dumb, terminal detection);
// any other stream must be a terminal and NO_COLOR must be unset.
func ColorSupported(w io.Writer) bool {
	if w == os.Stdout {
		return !color.NoColor
	}

	if _, ok := os.LookupEnv("NO_COLOR"); ok || os.Getenv("TERM") == "dumb" {
		return false
	}

	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	return term.IsTerminal(int(f.Fd()))
}

// Log prints a timestamped message. An empty message prints a blank
// separator line.
func (c *Console) Log(msg string) {
	if msg == "" {
		c.write("\n")
		return
	}

	c.write(c.stamp() + " " + msg + "\n")
}

// Logf is Log with formatting.
func (c *Console) Logf(format string, args ...any) {
	c.Log(fmt.Sprintf(format, args...))
}

// Warn prints a warning under category.
func (c *Console) Warn(category, msg string) {
	c.write(c.stamp() + " " + c.warnStyle.Sprint(category+":") + " " + msg + "\n")
}

// Error prints an error under category.
func (c *Console) Error(category, msg string) {
	c.write(c.stamp() + " " + c.errorStyle.Sprint(category+":") + " " + msg + "\n")
}

// Highlight renders s in the accent colour, for values embedded in messages.
func (c *Console) Highlight(s string) string {
	return c.accentStyle.Sprint(s)
}

// Beep rings the terminal bell times times.
func (c *Console) Beep(times int) {
	if times <= 0 {
		return
	}

	c.write(strings.Repeat(bell, times))
}

func (c *Console) stamp() string {
	return c.stampStyle.Sprint("[" + c.now().Format("15:04:05") + "]")
}

func (c *Console) write(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, _ = io.WriteString(c.out, s)
}
