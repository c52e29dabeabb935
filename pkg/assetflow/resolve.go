// Package assetflow provides a public Go API for resolving the project
// configuration of an assetflow project, allowing programmatic use without
// the CLI.
//
// Basic usage:
//
//	result, err := assetflow.Resolve("path/to/project")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(result.Mode, result.MainTasks)
//
// With options:
//
//	result, err := assetflow.Resolve("path/to/project",
//	    assetflow.WithJSON(),
//	    assetflow.WithoutValidation(),
//	)
package assetflow

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/hupe1980/assetflow/internal/config"
	"github.com/hupe1980/assetflow/internal/maputil"
	"github.com/hupe1980/assetflow/internal/output"
	"github.com/hupe1980/assetflow/internal/pipeline"
)

// Errors returned by Resolve for configurations that would disable the main
// pipeline. Use errors.Is to test for them.
var (
	ErrConfigMissing     = config.ErrDefaultConfigMissing
	ErrInvalidMode       = config.ErrInvalidBrowserSyncMode
	ErrReservedTaskName  = config.ErrReservedTaskName
	ErrInvalidCustomTask = config.ErrInvalidCustomTask
	errEmptyDir          = errors.New("project directory must not be empty")
)

// Option configures Resolve.
// Use the With* functions to create Options.
type Option func(*options)

type options struct {
	json     bool
	validate bool
	logger   *slog.Logger
}

// WithJSON renders Result.Document as JSON instead of YAML.
func WithJSON() Option { return func(o *options) { o.json = true } }

// WithoutValidation returns the merged configuration even when it would
// disable the main pipeline. Result.MainTasks is empty in that case.
func WithoutValidation() Option { return func(o *options) { o.validate = false } }

// WithLogger sets the logger used while resolving. Output is discarded by
// default.
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// Result holds a resolved project configuration.
type Result struct {
	// Values is the user configuration deep-merged over the shared one.
	Values map[string]interface{}

	// Document is Values rendered as YAML, or JSON with WithJSON.
	Document []byte

	// Files lists the configuration files that were merged, shared first.
	Files []string

	// Mode is the configured browser-sync mode.
	Mode string

	// MainTasks is the series the main task runs.
	MainTasks []string
}

// Resolve loads the shared and the optional user configuration from dir
// and merges them.
func Resolve(dir string, opts ...Option) (*Result, error) {
	if dir == "" {
		return nil, errEmptyDir
	}

	o := &options{validate: true, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(o)
	}

	proj, err := config.LoadProject(dir)
	if err != nil {
		return nil, err
	}

	o.logger.Debug("project configuration loaded",
		slog.String("default", proj.DefaultFile),
		slog.String("user", proj.UserFile),
	)

	res := &Result{
		Values: proj.Raw,
		Files:  []string{proj.DefaultFile},
		Mode:   string(proj.BrowserSync.Mode),
	}

	if proj.UserFile != "" {
		res.Files = append(res.Files, proj.UserFile)
	}

	tasks, err := pipeline.Assemble(proj)
	switch {
	case err == nil:
		res.MainTasks = tasks
	case o.validate:
		return nil, err
	default:
		o.logger.Warn("configuration disables the main pipeline", slog.String("error", err.Error()))
	}

	if o.json {
		res.Document, err = output.SerializeJSON(res.Values, "  ")
	} else {
		res.Document, err = output.Serialize(res.Values, output.SerializeOptions{})
	}

	if err != nil {
		return nil, fmt.Errorf("rendering configuration: %w", err)
	}

	return res, nil
}

// Merge deep-merges override over base the way the user configuration is
// merged over the shared one: maps merge key by key, anything else in
// override replaces the base value. Neither input is modified.
func Merge(base, override map[string]interface{}) map[string]interface{} {
	return maputil.DeepMerge(base, override)
}
