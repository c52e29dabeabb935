package cli

import (
	"bytes"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/assetflow/internal/docs"
	"github.com/hupe1980/assetflow/internal/output"
)

type tasksOptions struct {
	format     string
	title      string
	outputFile string
}

func newTasksCommand(ro *rootOptions) *cobra.Command {
	opts := &tasksOptions{}

	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List the declared tasks",
		Long: `List every task assetflow declares for the project: the build commands,
watch, the custom tasks, main and, where supported, start and default.

Series and parallel tasks show their members. Options that change what a
task does are listed below it.

Supports text, markdown, and HTML output formats.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTasksList(cmd, ro, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "output format (text, markdown, html)")
	cmd.Flags().StringVar(&opts.title, "title", "", "override document title")
	cmd.Flags().StringVarP(&opts.outputFile, "output", "o", "", "write to file instead of stdout")

	return cmd
}

func runTasksList(cmd *cobra.Command, ro *rootOptions, opts *tasksOptions) error {
	// 1. Build the formatter.
	formatter, err := docs.NewFormatter(opts.format)
	if err != nil {
		return &ExitError{Code: 2, Err: err}
	}

	// 2. Declare the tasks.
	p, pc, err := openPipeline(cmd, ro)
	if err != nil {
		return err
	}

	// 3. Extract the doc model.
	model := docs.FromDescriptions(p.Registry().Descriptions())
	model.Title = opts.title

	if pc.Package != nil {
		model.Project = pc.Package.String()
	}

	// 4. Render.
	var buf bytes.Buffer
	if err := formatter.Format(&buf, model); err != nil {
		return &ExitError{Code: 1, Err: fmt.Errorf("formatting tasks: %w", err)}
	}

	// 5. Write to the destination.
	return output.Destination(opts.outputFile, cmd.OutOrStdout()).Write(buf.Bytes())
}
