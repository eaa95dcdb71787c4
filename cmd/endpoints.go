package cmd

import (
	"strings"

	"github.com/msalah0e/graphlens/internal/dispatch"
	"github.com/msalah0e/graphlens/internal/ui"
	"github.com/spf13/cobra"
)

func endpointsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "endpoints",
		Short:   "List the queries the database service exposes",
		Aliases: []string{"queries"},
		RunE: func(cmd *cobra.Command, args []string) error {
			eps, err := newClient().Endpoints(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			ui.Banner(out, "endpoints at "+cfg.Source.URL)
			rows := make([][]string, 0, len(eps))
			for _, ep := range eps {
				params := make([]string, len(ep.Parameters))
				for i, p := range ep.Parameters {
					params[i] = p.Name + ":" + p.Type
				}
				rows = append(rows, []string{
					ep.QueryName,
					ep.Method,
					ui.Kind(dispatch.Classify(ep.QueryName).String()),
					strings.Join(params, " "),
				})
			}
			ui.Table(out, []string{"QUERY", "METHOD", "KIND", "PARAMETERS"}, rows)
			return nil
		},
	}
}
