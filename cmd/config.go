package cmd

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/msalah0e/graphlens/internal/config"
	"github.com/msalah0e/graphlens/internal/ui"
	"github.com/spf13/cobra"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or initialise the configuration",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration",
			RunE: func(cmd *cobra.Command, args []string) error {
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, ui.Subtle.Sprint("# "+config.Path()))
				shown := *cfg
				if shown.Source.APIKey != "" {
					shown.Source.APIKey = "********"
				}
				return toml.NewEncoder(out).Encode(shown)
			},
		},
		&cobra.Command{
			Use:   "init",
			Short: "Write the default configuration file if none exists",
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := config.EnsureExists(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "  %s %s\n", ui.StatusIcon(true), config.Path())
				return nil
			},
		},
	)

	return cmd
}
