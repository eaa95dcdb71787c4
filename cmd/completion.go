package cmd

import (
	"log/slog"

	"github.com/msalah0e/graphlens/internal/config"
	"github.com/spf13/cobra"
)

// completionCmd generates shell completion scripts.
func completionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate completion scripts for your shell.

  # Bash (add to ~/.bashrc)
  eval "$(graphlens completion bash)"

  # Zsh (add to ~/.zshrc)
  eval "$(graphlens completion zsh)"

  # Fish
  graphlens completion fish | source`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "bash":
				return rootCmd.GenBashCompletion(cmd.OutOrStdout())
			case "zsh":
				return rootCmd.GenZshCompletion(cmd.OutOrStdout())
			case "fish":
				return rootCmd.GenFishCompletion(cmd.OutOrStdout(), true)
			case "powershell":
				return rootCmd.GenPowerShellCompletionWithDesc(cmd.OutOrStdout())
			}
			return nil
		},
	}

	return cmd
}

// queryCompletionFunc completes query names from the endpoint catalogue.
func queryCompletionFunc(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if cfg == nil {
		cfg, logger = config.Load(), slog.Default()
	}
	eps, err := newClient().Endpoints(cmd.Context())
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	completions := make([]string, 0, len(eps))
	for _, ep := range eps {
		completions = append(completions, ep.QueryName+"\t"+ep.Method)
	}
	return completions, cobra.ShellCompDirectiveNoFileComp
}
