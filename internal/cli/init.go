package cli

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hupe1980/assetflow/internal/config"
	"github.com/hupe1980/assetflow/internal/logging"
	"github.com/hupe1980/assetflow/internal/output"
)

type starterFile struct {
	name string
	data []byte
}

type initOptions struct {
	mode  string
	user  bool
	force bool
}

func newInitCommand() *cobra.Command {
	opts := &initOptions{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a starter project configuration",
		Long: `Write assetflow.config.yaml to the project directory. With --user a
commented assetflow.config.user.yaml is written too.

Existing files are kept unless --force is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.mode, "mode", string(config.ModeServer), "browser-sync mode: "+config.JoinModes())
	cmd.Flags().BoolVar(&opts.user, "user", false, "also write a user override file")
	cmd.Flags().BoolVar(&opts.force, "force", false, "overwrite existing files")

	return cmd
}

func runInit(cmd *cobra.Command, opts *initOptions) error {
	cfg := config.FromContext(cmd.Context())
	logger := logging.FromContext(cmd.Context())

	project, err := config.Template(config.BrowserSyncMode(opts.mode))
	if err != nil {
		return &ExitError{Code: 2, Err: err}
	}

	files := []starterFile{{config.DefaultProjectFiles[0], project}}
	if opts.user {
		files = append(files, starterFile{config.UserProjectFiles[0], config.UserTemplate()})
	}

	for _, f := range files {
		path := filepath.Join(cfg.ProjectDir, f.name)

		writerOpts := []output.FileWriterOption{output.WithLogger(logger)}
		if !opts.force {
			writerOpts = append(writerOpts, output.WithoutOverwrite())
		}

		if err := output.NewFileWriter(path, writerOpts...).Write(f.data); err != nil {
			if errors.Is(err, output.ErrExists) {
				return &ExitError{Code: 1, Err: fmt.Errorf("%w (use --force to replace it)", err)}
			}

			return &ExitError{Code: 1, Err: err}
		}

		fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", path)
	}

	return nil
}
