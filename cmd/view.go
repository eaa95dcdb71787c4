package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/msalah0e/graphlens/internal/server"
	"github.com/msalah0e/graphlens/internal/ui"
	"github.com/spf13/cobra"
)

func viewCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "view",
		Short: "Open the interactive explorer in the browser",
		Long: `Serve the interactive explorer. Each browser tab gets its own session:
pick queries, expand neighbourhoods, focus and drag nodes.

  graphlens view
  graphlens view --addr 127.0.0.1:9000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = cfg.View.Addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := server.New(newClient(), server.Config{
				Addr:     addr,
				Logger:   logger,
				Sessions: sessionOptions(),
			})

			out := cmd.OutOrStdout()
			ui.Banner(out, "view")
			fmt.Fprintf(out, "  Source:   %s\n", ui.Info.Sprint(cfg.Source.URL))
			fmt.Fprintf(out, "  Explorer: %s\n", ui.Brand.Sprint("http://"+displayAddr(addr)))
			fmt.Fprintf(out, "  Metrics:  %s\n", ui.Subtle.Sprint("http://"+displayAddr(addr)+"/metrics"))
			fmt.Fprintln(out)
			fmt.Fprintln(out, ui.Subtle.Sprint("  Press Ctrl+C to stop"))

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config, :7070)")
	return cmd
}

func displayAddr(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "localhost" + addr
	}
	return addr
}
