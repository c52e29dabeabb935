package cli

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/hupe1980/assetflow/internal/config"
)

func newCompletionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "completion <shell>",
		Short: "Generate shell completion scripts",
		Long: `Generate a completion script for bash, zsh, fish or PowerShell.

Task names offered after "assetflow run" are read from the project in the
current (or --project-dir) directory.

Bash:
  $ source <(assetflow completion bash)

Zsh:
  $ assetflow completion zsh > "${fpath[1]}/_assetflow"

Fish:
  $ assetflow completion fish > ~/.config/fish/completions/assetflow.fish

PowerShell:
  PS> assetflow completion powershell | Out-String | Invoke-Expression
`,
		// Completion needs no settings.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Args:              cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs:         []string{"bash", "zsh", "fish", "powershell"},
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			root := cmd.Root()

			switch args[0] {
			case "bash":
				return root.GenBashCompletionV2(w, true)
			case "zsh":
				return root.GenZshCompletion(w)
			case "fish":
				return root.GenFishCompletion(w, true)
			default:
				return root.GenPowerShellCompletionWithDesc(w)
			}
		},
	}
}

// completeTaskNames offers the tasks declared for the project. Persistent
// pre-runs do not run during completion, so settings are loaded here and
// console output is discarded.
func completeTaskNames(ro *rootOptions) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(cmd *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		cfg, err := config.Load(cmd, "")
		if err != nil {
			return nil, cobra.ShellCompDirectiveError
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		cmd.SetContext(config.NewContext(ctx, cfg))
		cmd.SetErr(io.Discard)

		p, _, err := openPipeline(cmd, ro)
		if err != nil {
			return nil, cobra.ShellCompDirectiveError
		}

		return p.Registry().Names(), cobra.ShellCompDirectiveNoFileComp
	}
}
