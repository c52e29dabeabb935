// Package docs renders the task reference shown by `assetflow tasks`:
// every registered task with its kind, description, members and the
// command-line options that change its behaviour. Plain text, Markdown and
// HTML are supported.
package docs

import (
	"sort"

	"github.com/hupe1980/assetflow/internal/task"
)

// OptionInfo describes one option of a task.
type OptionInfo struct {
	// Name is the option as typed on the command line, without dashes.
	Name string
	// Description says what the option does for this task.
	Description string
}

// TaskInfo describes a single task.
type TaskInfo struct {
	Name        string
	Kind        string
	Description string
	// Members are the composed tasks of a series or parallel task.
	Members []string
	Options []OptionInfo
}

// Model is the data rendered by a Formatter.
type Model struct {
	// Title overrides the document title.
	Title string
	// Project is shown under the title when set, e.g. "site@1.2.0".
	Project string
	Tasks   []TaskInfo
}

// DefaultTitle is used when Model.Title is empty.
const DefaultTitle = "assetflow tasks"

// FromDescriptions builds a Model from registry descriptions, keeping their
// order. Options are sorted by name.
func FromDescriptions(descs []task.Description) *Model {
	m := &Model{Tasks: make([]TaskInfo, 0, len(descs))}

	for _, d := range descs {
		info := TaskInfo{
			Name:        d.Name,
			Kind:        string(d.Kind),
			Description: d.Text,
			Members:     append([]string(nil), d.Members...),
		}

		names := make([]string, 0, len(d.Options))
		for name := range d.Options {
			names = append(names, name)
		}

		sort.Strings(names)

		for _, name := range names {
			info.Options = append(info.Options, OptionInfo{Name: name, Description: d.Options[name]})
		}

		m.Tasks = append(m.Tasks, info)
	}

	return m
}

func (m *Model) title() string {
	if m.Title == "" {
		return DefaultTitle
	}

	return m.Title
}
