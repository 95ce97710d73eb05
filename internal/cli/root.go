// Package cli wires the mosaic commands: one per pipeline stage, the
// in-memory run, and the MCP server.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/ironsheep/photomosaic/internal/config"
	"github.com/ironsheep/photomosaic/internal/metrics"
	"github.com/ironsheep/photomosaic/internal/pipeline"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// BuildInfo is stamped into the binary by ldflags.
type BuildInfo struct {
	Version   string
	BuildTime string
	GitCommit string
}

// Execute runs the root command with ctx.
func Execute(ctx context.Context, info BuildInfo) error {
	return NewRootCmd(info).ExecuteContext(ctx)
}

// app is the state shared by the commands of one invocation.
type app struct {
	v        *viper.Viper
	info     BuildInfo
	cfg      config.Config
	logger   *slog.Logger
	recorder *metrics.Recorder
}

// NewRootCmd builds the command tree with a fresh viper instance.
func NewRootCmd(info BuildInfo) *cobra.Command {
	a := &app{v: viper.New(), info: info}

	rootCmd := &cobra.Command{
		Use:   "mosaic",
		Short: "Build photomosaics from a pool of source images",
		Long: "mosaic averages a directory of source images into a pool, samples target images into grids of " +
			"block colors, assigns one source to every block and renders the collage.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.ErrOrStderr())
		},
	}

	d := config.Default()
	flags := rootCmd.PersistentFlags()
	flags.String(config.KeyConfigFile, "", "config file (default: mosaic.toml in . or $HOME/.config/mosaic)")
	flags.Int("cache-size", d.CacheSize, "source images kept decoded in memory")
	flags.Int("side", d.SideCount, "grid side count (0 derives it from the pool size)")
	flags.Float64("blend-weight", d.BlendWeight, "weight of the tile against the target, within [0,1]")
	flags.String("resample", string(d.Resample), "tile filter: nearest, box, linear or lanczos")
	flags.Bool("fill-unassigned", d.FillUnassigned, "paint unassigned cells with their target color")
	flags.String("background", d.Background, "canvas color of unassigned cells: #RGB, #RRGGBB or #RRGGBBAA")
	flags.String("metric", d.Metric, "color distance: rgb or lab")
	flags.Float64("max-residual", d.MaxResidual, "drop sources whose best distance exceeds this (0 disables)")
	flags.Int("jpeg-quality", d.JPEGQuality, "JPEG quality of written collages")
	flags.String("log-level", d.LogLevel, "debug, info, warn or error")
	flags.String("metrics-file", d.MetricsFile, "write prometheus metrics to this file after each command")

	for key, flag := range map[string]string{
		config.KeyConfigFile:     config.KeyConfigFile,
		config.KeyCacheSize:      "cache-size",
		config.KeySideCount:      "side",
		config.KeyBlendWeight:    "blend-weight",
		config.KeyResample:       "resample",
		config.KeyFillUnassigned: "fill-unassigned",
		config.KeyBackground:     "background",
		config.KeyMetric:         "metric",
		config.KeyMaxResidual:    "max-residual",
		config.KeyJPEGQuality:    "jpeg-quality",
		config.KeyLogLevel:       "log-level",
		config.KeyMetricsFile:    "metrics-file",
	} {
		_ = a.v.BindPFlag(key, flags.Lookup(flag))
	}

	rootCmd.AddCommand(
		newVersionCmd(a),
		newSourcesCmd(a),
		newTargetsCmd(a),
		newMapsCmd(a),
		newCollagesCmd(a),
		newRunCmd(a),
		newServeCmd(a),
	)

	return rootCmd
}

func (a *app) setup(stderr io.Writer) error {
	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = cfg.NewLogger(stderr)
	a.recorder = metrics.New()
	if cfg.File != "" {
		a.logger.Debug("config loaded", "file", cfg.File)
	}
	return nil
}

// runner builds a runner writing below outDir that logs progress.
func (a *app) runner(outDir string) (*pipeline.Runner, error) {
	return pipeline.NewRunner(a.cfg,
		pipeline.WithLogger(a.logger),
		pipeline.WithRecorder(a.recorder),
		pipeline.WithObserver(progressLogger(a.logger)),
		pipeline.WithOutputDir(outDir),
	)
}

// progressLogger reports every finished item as n/total.
func progressLogger(logger *slog.Logger) pipeline.Observer {
	return pipeline.ObserverFunc(func(r pipeline.ItemResult) {
		if r.Err != nil {
			return
		}
		logger.Info("progress",
			"stage", r.Stage,
			"item", fmt.Sprintf("%d/%d", r.Index, r.Total),
			"input", r.Input,
		)
	})
}

// writeMetrics dumps the registry when a metrics file is configured.
func (a *app) writeMetrics() {
	if a.cfg.MetricsFile == "" {
		return
	}
	if err := a.recorder.WriteTextfile(a.cfg.MetricsFile); err != nil {
		a.logger.Warn("metrics not written", "path", a.cfg.MetricsFile, "error", err)
	}
}

// report prints the summary of a stage. A stage in which every item failed
// is an error.
func (a *app) report(w io.Writer, stage string, r pipeline.BatchReport) error {
	a.writeMetrics()

	_, _ = fmt.Fprintf(w, "%s: %s\n", stage, r)
	for _, out := range r.Outputs {
		_, _ = fmt.Fprintf(w, "\t-> %s\n", out)
	}
	for _, f := range r.Failed {
		_, _ = fmt.Fprintf(w, "\tskipped %s\n", f)
	}

	if r.Processed == 0 && len(r.Failed) > 0 {
		return fmt.Errorf("%s: every item failed: %w", stage, r.Err())
	}
	return nil
}
