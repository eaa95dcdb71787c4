package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/msalah0e/graphlens/internal/client"
	"github.com/msalah0e/graphlens/internal/dispatch"
	"github.com/msalah0e/graphlens/internal/session"
	"github.com/msalah0e/graphlens/internal/ui"
	"github.com/spf13/cobra"
)

func schemaCmd() *cobra.Command {
	var samples []string

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Show node and edge types",
		Long: `Show the node and edge types of the database.

When the schema endpoint is unavailable, --sample runs the given queries and
describes the types found in their results instead.

  graphlens schema
  graphlens schema --sample getDoctors --sample getPatients`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient()
			out := cmd.OutOrStdout()

			schema, err := c.Schema(cmd.Context())
			if err == nil {
				ui.Banner(out, "schema")
				printSchema(cmd, schema)
				return nil
			}
			if len(samples) == 0 {
				return fmt.Errorf("schema endpoint: %w (use --sample to discover types from query results)", err)
			}

			fmt.Fprintf(out, "  %s schema endpoint failed: %v\n", ui.WarnIcon(), err)
			fmt.Fprintln(out, ui.Subtle.Sprint("  discovering types from sampled queries"))
			fmt.Fprintln(out)

			sess := session.New(c, sessionOptions()...)
			sels := make([]dispatch.Selection, len(samples))
			for i, name := range samples {
				sels[i] = dispatch.Selection{Name: name, Method: client.MethodFor(name)}
			}
			if _, err := sess.Select(cmd.Context(), sels); err != nil {
				fmt.Fprintf(out, "  %s %v\n", ui.WarnIcon(), err)
			}

			nodes, edges := sess.Store().Snapshot().DiscoverSchema()
			rows := make([][]string, 0, len(nodes))
			for _, n := range nodes {
				rows = append(rows, []string{n.Name, fmt.Sprint(n.Count), strings.Join(n.Properties, ", ")})
			}
			ui.Table(out, []string{"NODE TYPE", "COUNT", "PROPERTIES"}, rows)
			if len(edges) > 0 {
				fmt.Fprintln(out)
				rows = rows[:0]
				for _, e := range edges {
					rows = append(rows, []string{e.Name, e.From + " → " + e.To, fmt.Sprint(e.Count)})
				}
				ui.Table(out, []string{"EDGE TYPE", "ENDPOINTS", "COUNT"}, rows)
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&samples, "sample", nil, "Query to sample when the schema endpoint fails (repeatable)")
	_ = cmd.RegisterFlagCompletionFunc("sample", queryCompletionFunc)
	return cmd
}

func printSchema(cmd *cobra.Command, s client.Schema) {
	out := cmd.OutOrStdout()
	var rows [][]string
	for _, n := range s.Nodes {
		rows = append(rows, []string{n.Name, "node", "", props(n.Properties)})
	}
	for _, v := range s.Vectors {
		rows = append(rows, []string{v.Name, "vector", "", props(v.Properties)})
	}
	for _, e := range s.Edges {
		rows = append(rows, []string{e.Name, "edge", e.From + " → " + e.To, props(e.Properties)})
	}
	if len(rows) == 0 {
		fmt.Fprintln(out, ui.Subtle.Sprint("  no types defined"))
		return
	}
	ui.Table(out, []string{"TYPE", "KIND", "ENDPOINTS", "PROPERTIES"}, rows)
}

func props(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for i, k := range keys {
		if t := m[k]; t != "" {
			keys[i] = k + ":" + t
		}
	}
	return strings.Join(keys, ", ")
}
