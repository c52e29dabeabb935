package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hupe1980/assetflow/internal/output"
)

type configOptions struct {
	json       bool
	outputFile string
}

func newConfigCommand() *cobra.Command {
	opts := &configOptions{}

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the resolved project configuration",
		Long: `Print the project configuration after the user file has been merged
over the shared one. Maps merge key by key; lists and scalars from the user
file replace the shared value.

Problems that would disable the main pipeline are reported as warnings.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfig(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.json, "json", false, "output as JSON instead of YAML")
	cmd.Flags().StringVarP(&opts.outputFile, "output", "o", "", "write to file instead of stdout")

	return cmd
}

func runConfig(cmd *cobra.Command, opts *configOptions) error {
	pc := newPipelineContext(cmd)
	if pc.Project == nil {
		return &ExitError{Code: 2, Err: pc.ProjectErr}
	}

	proj := pc.Project

	if err := proj.Validate(); err != nil {
		pc.Console.Warn("Config", err.Error())
	}

	format := output.FormatYAML
	if opts.json {
		format = output.FormatJSON
	}

	sources := []string{proj.DefaultFile}
	if proj.UserFile != "" {
		sources = append(sources, proj.UserFile)
	}

	data, err := output.Render(proj.Raw, format, output.SerializeOptions{
		Header: "Resolved from " + strings.Join(sources, " and "),
	})
	if err != nil {
		return &ExitError{Code: 1, Err: fmt.Errorf("rendering configuration: %w", err)}
	}

	return output.Destination(opts.outputFile, cmd.OutOrStdout()).Write(data)
}
