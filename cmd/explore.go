package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	jsoniter "github.com/json-iterator/go"
	"github.com/msalah0e/graphlens/internal/client"
	"github.com/msalah0e/graphlens/internal/dispatch"
	"github.com/msalah0e/graphlens/internal/graph"
	"github.com/msalah0e/graphlens/internal/layout"
	"github.com/msalah0e/graphlens/internal/session"
	"github.com/msalah0e/graphlens/internal/ui"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// exploreResult is the machine-readable output of explore.
type exploreResult struct {
	graph.Document `yaml:",inline"`
	Positions      map[string]layout.Point `json:"positions" yaml:"positions"`
}

func exploreCmd() *cobra.Command {
	var (
		queries  []string
		params   map[string]string
		topK     int
		doExpand bool
		focus    string
		ticks    int
		format   string

		sample    bool
		label     string
		limit     int
		nodesOnly bool
	)

	cmd := &cobra.Command{
		Use:   "explore",
		Short: "Run queries, expand neighbourhoods and print the resulting graph",
		Long: `Run the selected queries concurrently, merge their results, optionally
expand every node's neighbourhood, relax the layout and print the graph.
--sample seeds the graph from the service's sampling routes instead of, or
alongside, stored queries.

  graphlens explore -q getDoctors -q getPatients -q assignDoctorToPatient
  graphlens explore -q getDoctors --expand --format dot | dot -Tsvg > g.svg
  graphlens explore -q searchNotes --param query=fever --top 5 --format json
  graphlens explore --sample --label Doctor --limit 100
  graphlens explore --sample --label Patient --nodes-only --expand`,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch format {
			case "table", "json", "yaml", "dot":
			default:
				return fmt.Errorf("unknown format %q (table, json, yaml, dot)", format)
			}
			if len(queries) == 0 && !sample {
				return errors.New("select at least one query with -q, or use --sample")
			}
			if !sample && (label != "" || limit != 0 || nodesOnly) {
				return errors.New("--label, --limit and --nodes-only need --sample")
			}
			if nodesOnly && label == "" {
				return errors.New("--nodes-only needs --label")
			}
			if limit < 0 || limit > client.MaxLimit {
				return fmt.Errorf("--limit must be at most %d", client.MaxLimit)
			}

			ctx := cmd.Context()
			c := newClient()
			sess := session.New(c, sessionOptions()...)

			var (
				report  dispatch.Report
				errs    *multierror.Error
				fetches int
			)
			if sample {
				r, err := sess.LoadSample(ctx, dispatch.SampleRequest{Label: label, Limit: limit, NodesOnly: nodesOnly})
				report.Queries = append(report.Queries, r.Queries...)
				errs = multierror.Append(errs, err)
				fetches++
			}
			if len(queries) > 0 {
				sels, err := selectionsFor(ctx, c, queries, params, topK)
				if err != nil {
					return err
				}
				r, err := sess.Select(ctx, sels)
				report.Queries = append(report.Queries, r.Queries...)
				errs = multierror.Append(errs, err)
				fetches += len(sels)
			}
			selErr := errs.ErrorOrNil()
			if failures(report) == fetches {
				return selErr
			}

			var expandErr error
			if doExpand {
				_, expandErr = sess.ExpandAll(ctx)
			}
			frames := sess.Relax(ticks)
			logger.Debug("layout relaxed", "frames", frames, "state", sess.LayoutState())

			snap := sess.Store().Snapshot()
			if focus != "" && !snap.Has(focus) {
				return fmt.Errorf("focus %q is not in the graph", focus)
			}

			out := cmd.OutOrStdout()
			switch format {
			case "dot":
				fmt.Fprint(out, snap.ExportDOT(focus))
				return nil
			case "json", "yaml":
				res := exploreResult{Document: snap.Document(focus), Positions: make(map[string]layout.Point)}
				for _, n := range res.Nodes {
					if p, ok := sess.Position(n.ID); ok {
						res.Positions[n.ID] = p
					}
				}
				return encode(out, format, res)
			}

			printReport(out, report, selErr, expandErr)
			printGraph(out, sess, snap, focus)
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&queries, "query", "q", nil, "Query to run (repeatable)")
	cmd.Flags().StringToStringVar(&params, "param", nil, "Query parameter as key=value (repeatable)")
	cmd.Flags().IntVar(&topK, "top", 0, "Keep at most N results per query (0 uses the config default)")
	cmd.Flags().BoolVar(&doExpand, "expand", false, "Expand the neighbourhood of every loaded node")
	cmd.Flags().StringVar(&focus, "focus", "", "Restrict output to one node and its neighbours")
	cmd.Flags().IntVar(&ticks, "ticks", 600, "Maximum layout iterations")
	cmd.Flags().StringVarP(&format, "format", "o", "table", "Output format: table, json, yaml, dot")
	cmd.Flags().BoolVar(&sample, "sample", false, "Seed the graph with a sample of nodes and edges")
	cmd.Flags().StringVar(&label, "label", "", "Restrict the sample to one node label")
	cmd.Flags().IntVar(&limit, "limit", 0, "Sample size, at most 300 (0 uses the service default)")
	cmd.Flags().BoolVar(&nodesOnly, "nodes-only", false, "Sample nodes carrying --label without their edges")
	_ = cmd.RegisterFlagCompletionFunc("query", queryCompletionFunc)
	return cmd
}

// selectionsFor builds selections, converting parameters with the types
// the endpoint catalogue declares. Without a catalogue parameters are sent
// as strings.
func selectionsFor(ctx context.Context, c *client.Client, names []string, raw map[string]string, topK int) ([]dispatch.Selection, error) {
	catalogue := make(map[string]client.Endpoint)
	if eps, err := c.Endpoints(ctx); err == nil {
		for _, ep := range eps {
			catalogue[ep.QueryName] = ep
		}
	} else {
		logger.Warn("endpoint catalogue unavailable", "error", err)
	}

	sels := make([]dispatch.Selection, len(names))
	for i, name := range names {
		ep, ok := catalogue[name]
		method := ep.Method
		if !ok || method == "" {
			method = client.MethodFor(name)
		}
		var params map[string]any
		if len(raw) > 0 {
			converted, err := client.ConvertParams(ep, raw)
			if err != nil {
				return nil, fmt.Errorf("query %s: %w", name, err)
			}
			params = converted
		}
		sels[i] = dispatch.Selection{Name: name, Method: method, Params: params, TopK: topK}
	}
	return sels, nil
}

func failures(r dispatch.Report) int {
	n := 0
	for _, q := range r.Queries {
		if q.Err != nil {
			n++
		}
	}
	return n
}

func encode(w io.Writer, format string, v any) error {
	if format == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	}
	enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printReport(w io.Writer, r dispatch.Report, selErr, expandErr error) {
	ui.Banner(w, "explore")
	rows := make([][]string, 0, len(r.Queries))
	for _, q := range r.Queries {
		status := ui.StatusIcon(q.Err == nil)
		items := fmt.Sprint(q.Items)
		if q.Err != nil {
			items = "-"
		}
		rows = append(rows, []string{q.Name, ui.Kind(q.Kind.String()), items, q.Extractor, q.Elapsed.Round(time.Millisecond).String(), status})
	}
	ui.Table(w, []string{"QUERY", "KIND", "ITEMS", "FROM", "TIME", ""}, rows)
	fmt.Fprintln(w)

	for _, err := range []error{selErr, expandErr} {
		if err == nil {
			continue
		}
		var merr *multierror.Error
		if errors.As(err, &merr) {
			for _, e := range merr.Errors {
				fmt.Fprintf(w, "  %s %v\n", ui.WarnIcon(), e)
			}
		} else {
			fmt.Fprintf(w, "  %s %v\n", ui.WarnIcon(), err)
		}
	}
}

func printGraph(w io.Writer, sess *session.Session, snap *graph.Snapshot, focus string) {
	st := snap.Stats()
	fmt.Fprintf(w, "  %s  %d\n", ui.Brand.Sprintf("%-14s", "Entities"), st.Entities)
	fmt.Fprintf(w, "  %s  %d\n", ui.Brand.Sprintf("%-14s", "Relationships"), st.Relationships)
	fmt.Fprintf(w, "  %s  %d\n", ui.Brand.Sprintf("%-14s", "Types"), st.Types)
	if st.Dangling > 0 {
		fmt.Fprintf(w, "  %s  %d %s\n", ui.Brand.Sprintf("%-14s", "Dangling"), st.Dangling, ui.Subtle.Sprint("(endpoint not loaded, hidden)"))
	}
	fmt.Fprintf(w, "  %s  %s\n", ui.Brand.Sprintf("%-14s", "Layout"), sess.LayoutState())
	fmt.Fprintln(w)

	v := snap.View(focus)
	nodes := append([]graph.Entity(nil), v.Nodes...)
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].Label != nodes[j].Label {
			return nodes[i].Label < nodes[j].Label
		}
		return nodes[i].ID < nodes[j].ID
	})
	rows := make([][]string, 0, len(nodes))
	for _, n := range nodes {
		pos := "-"
		if p, ok := sess.Position(n.ID); ok {
			pos = fmt.Sprintf("%.0f,%.0f", p.X, p.Y)
		}
		rows = append(rows, []string{n.ID, n.Label, fmt.Sprint(snap.Degree(n.ID)), pos, summary(n)})
	}
	ui.Table(w, []string{"ID", "LABEL", "DEGREE", "POSITION", "PROPERTIES"}, rows)
}

// summary lists the first few properties of an entity.
func summary(e graph.Entity) string {
	keys := e.Keys()
	parts := make([]string, 0, 3)
	for _, k := range keys {
		if len(parts) == 3 {
			parts = append(parts, fmt.Sprintf("+%d", len(keys)-3))
			break
		}
		parts = append(parts, fmt.Sprintf("%s=%v", k, e.Props[k]))
	}
	return strings.Join(parts, " ")
}
