package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/assetflow/internal/version"
)

type versionOptions struct {
	json  bool
	short bool
}

func newVersionCommand() *cobra.Command {
	opts := &versionOptions{}

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long: `Display the version, git commit, build date, Go version and platform,
and whether this platform supervises the main pipeline (start and the
supervised default task).`,
		Args: cobra.NoArgs,
		// Version needs no settings.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runVersion(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.json, "json", false, "output version info as JSON")
	cmd.Flags().BoolVar(&opts.short, "short", false, "print only the version number")
	cmd.MarkFlagsMutuallyExclusive("json", "short")

	return cmd
}

func runVersion(cmd *cobra.Command, opts *versionOptions) error {
	info := version.GetInfo()
	out := info.String()

	switch {
	case opts.short:
		out = info.Version
	case opts.json:
		j, err := info.JSON()
		if err != nil {
			return err
		}

		out = j
	}

	_, err := fmt.Fprintln(cmd.OutOrStdout(), out)

	return err
}
