package cmd

import (
	"io"
	"log/slog"
	"time"

	"github.com/msalah0e/graphlens/internal/client"
	"github.com/msalah0e/graphlens/internal/config"
	"github.com/msalah0e/graphlens/internal/dispatch"
	"github.com/msalah0e/graphlens/internal/expand"
	"github.com/msalah0e/graphlens/internal/extract"
	"github.com/msalah0e/graphlens/internal/layout"
	"github.com/msalah0e/graphlens/internal/logging"
	"github.com/msalah0e/graphlens/internal/render"
	"github.com/msalah0e/graphlens/internal/session"
	"github.com/msalah0e/graphlens/internal/ui"
	"github.com/spf13/cobra"
)

var version = "0.3.0"

var (
	cfg      *config.Config
	logger   *slog.Logger
	logClose io.Closer

	flagURL      string
	flagAPIKey   string
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:   "graphlens",
	Short: "graphlens — explore a graph database as an interactive diagram",
	Long: ui.Brand.Sprint("graphlens") + " — explore a graph database as an interactive diagram\n" +
		ui.Subtle.Sprint("Fan out queries, expand neighbourhoods and browse the result in a live layout"),
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg = config.Load()
		if flagURL != "" {
			cfg.Source.URL = flagURL
		}
		if flagAPIKey != "" {
			cfg.Source.APIKey = flagAPIKey
		}
		if flagLogLevel != "" {
			cfg.Log.Level = flagLogLevel
		}
		logger, logClose = logging.New(cfg.Log)
		slog.SetDefault(logger)
		if err := cfg.Render.Validate(); err != nil {
			logger.Warn("ignoring render zoom band, using defaults", "error", err)
		}
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logClose != nil {
			_ = logClose.Close()
		}
	},
}

func init() {
	rootCmd.SetVersionTemplate("graphlens {{ .Version }}\n")
	rootCmd.PersistentFlags().StringVar(&flagURL, "url", "", "Database service base URL (overrides config and GRAPHLENS_URL)")
	rootCmd.PersistentFlags().StringVar(&flagAPIKey, "api-key", "", "API key sent as x-api-key")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(
		endpointsCmd(),
		schemaCmd(),
		exploreCmd(),
		viewCmd(),
		configCmd(),
		completionCmd(),
	)
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		ui.Bad.Fprintf(rootCmd.ErrOrStderr(), "graphlens: %v\n", err)
	}
	return err
}

func newClient() *client.Client {
	return client.New(cfg.Source.URL, client.WithAPIKey(cfg.Source.APIKey), client.WithLogger(logger))
}

// lodFromConfig builds the level-of-detail policy. An invalid zoom band
// falls back to the default one.
func lodFromConfig(rc config.RenderConfig) render.LOD {
	lod := render.DefaultLOD()
	if rc.LowCount > 0 {
		lod.LowCount = rc.LowCount
	}
	if rc.Validate() == nil {
		lod.LowZoom, lod.HighZoom = rc.LowZoom, rc.HighZoom
	}
	if rc.ViewportPadding > 0 {
		lod.Padding = rc.ViewportPadding
	}
	return lod
}

// extractorsFor puts the configured result keys ahead of the default chain.
func extractorsFor(keys []string) extract.Chain {
	if len(keys) == 0 {
		return extract.Default
	}
	return append(extract.Chain{extract.Property(keys...)}, extract.Default...)
}

// sessionOptions maps the explorer, layout and render config onto a session.
func sessionOptions() []session.Option {
	renderOpts := []render.Option{render.WithLOD(lodFromConfig(cfg.Render))}
	if cfg.Render.MaxFields > 0 {
		renderOpts = append(renderOpts, render.WithMaxFields(cfg.Render.MaxFields))
	}
	layoutOpts := []layout.Option{layout.WithStickyDrop(cfg.Explorer.StickyDrop)}
	if cfg.Layout.SettleDelayMS > 0 {
		layoutOpts = append(layoutOpts, layout.WithSettleDelay(time.Duration(cfg.Layout.SettleDelayMS)*time.Millisecond))
	}

	return []session.Option{
		session.WithLogger(logger),
		session.WithFPS(cfg.View.FPS),
		session.WithDragThreshold(cfg.View.DragThreshold),
		session.WithDispatchOptions(
			dispatch.WithExtractors(extractorsFor(cfg.Explorer.ResultKeys)),
			dispatch.WithConcurrency(cfg.Explorer.Concurrency),
			dispatch.WithTopK(cfg.Explorer.TopK),
			dispatch.WithTypeMesh(cfg.Explorer.TypeMesh),
		),
		session.WithExpandOptions(
			expand.WithBatchSize(cfg.Explorer.BatchSize),
			expand.WithTypeMesh(cfg.Explorer.TypeMesh),
		),
		session.WithLayoutOptions(layoutOpts...),
		session.WithRenderOptions(renderOpts...),
	}
}
