package pipeline

import (
	"github.com/hupe1980/assetflow/internal/config"
)

// TaskSet is the ordered list of tasks the main pipeline runs in series.
type TaskSet []string

// Assemble validates p and builds the main task sequence: include, sass and
// watch, then the browser-sync task for the server and proxy modes, then
// the custom tasks in declaration order. Nothing is assembled when the
// project is invalid.
func Assemble(p *config.Project) (TaskSet, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	set := TaskSet{config.TaskInclude, config.TaskSass, config.TaskWatch}

	switch p.BrowserSync.Mode {
	case config.ModeServer:
		set = append(set, config.TaskServer)
	case config.ModeProxy:
		set = append(set, config.TaskProxy)
	}

	return append(set, p.CustomTaskOrder...), nil
}
