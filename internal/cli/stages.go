package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ironsheep/photomosaic/internal/config"
	"github.com/ironsheep/photomosaic/internal/imaging"
	"github.com/ironsheep/photomosaic/internal/pipeline"
	"github.com/spf13/cobra"
)

const sourcesSuffix = ".sources.json"

func newSourcesCmd(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "sources <image-dir>",
		Short: "Average every image of a directory into a source pool",
		Long: "Average every image of a directory into a source pool. The pool format follows the output " +
			"extension: .json, .toml or .txt. The default is <dir>" + sourcesSuffix + " in the working directory.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := args[0]
			if out == "" {
				out = filepath.Base(filepath.Clean(dir)) + sourcesSuffix
			}

			r, err := a.runner(".")
			if err != nil {
				return err
			}
			p, report, err := r.Sources(cmd.Context(), dir, out)
			if err != nil {
				return err
			}
			a.logger.Debug("pool built", "sources", p.Len())
			return a.report(cmd.OutOrStdout(), pipeline.StageSources, report)
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "pool file to write")
	return cmd
}

func newTargetsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "targets <image|dir>",
		Short: "Sample target images into grids of block colors",
		Long: "Sample target images into grids of block colors, one <image>" + pipeline.TargetSuffix +
			" record each. A directory <dir> writes into <dir>.targets/. Requires --side.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.SideCount < 1 {
				return fmt.Errorf("targets needs a side count: pass --side or set %s", config.KeySideCount)
			}
			item, err := pipeline.ResolveWorkItem(args[0], imaging.IsImageFile)
			if err != nil {
				return err
			}
			r, err := a.runner(".")
			if err != nil {
				return err
			}
			report, err := r.Targets(cmd.Context(), item, a.cfg.SideCount)
			if err != nil {
				return err
			}
			return a.report(cmd.OutOrStdout(), pipeline.StageTargets, report)
		},
	}
}

func newMapsCmd(a *app) *cobra.Command {
	var poolPath string
	cmd := &cobra.Command{
		Use:   "maps <target|dir>",
		Short: "Assign pool sources to the cells of target records",
		Long: "Assign pool sources to the cells of target records, one <name>" + pipeline.MapSuffix +
			" record each. A directory <x>.targets writes into the sibling <x>.maps/.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			item, err := pipeline.ResolveWorkItem(args[0], hasSuffix(pipeline.TargetSuffix))
			if err != nil {
				return err
			}
			r, err := a.runner(".")
			if err != nil {
				return err
			}
			report, err := r.Maps(cmd.Context(), item, poolPath)
			if err != nil {
				return err
			}
			return a.report(cmd.OutOrStdout(), pipeline.StageMaps, report)
		},
	}
	cmd.Flags().StringVar(&poolPath, "pool", "", "source pool file")
	_ = cmd.MarkFlagRequired("pool")
	return cmd
}

func newCollagesCmd(a *app) *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "collages <map|dir>",
		Short: "Render the collages of map records",
		Long: "Render the collages of map records as <name>" + pipeline.CollageSuffix +
			". A directory <x>.maps writes into the sibling <x>.collages/.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 0 {
				return fmt.Errorf("--count must not be negative, got %d", count)
			}
			item, err := pipeline.ResolveWorkItem(args[0], hasSuffix(pipeline.MapSuffix))
			if err != nil {
				return err
			}
			r, err := a.runner(".")
			if err != nil {
				return err
			}
			report, err := r.Collages(cmd.Context(), item, count)
			if err != nil {
				return err
			}
			return a.report(cmd.OutOrStdout(), pipeline.StageCollages, report)
		},
	}
	cmd.Flags().IntVar(&count, "count", 0, "render only the maps with the lowest sum of squares (0 renders all)")
	return cmd
}

func newRunCmd(a *app) *cobra.Command {
	var (
		poolPath string
		outDir   string
	)
	cmd := &cobra.Command{
		Use:   "run <image|dir>",
		Short: "Build collages in one pass without intermediate records",
		Long: "Take every target image through grid, assignment and composition in memory. The side count " +
			"is --side when given, otherwise derived from the pool size. A directory <dir> writes " +
			"into <out>/<dir>.collages/.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			item, err := pipeline.ResolveWorkItem(args[0], imaging.IsImageFile)
			if err != nil {
				return err
			}
			r, err := a.runner(outDir)
			if err != nil {
				return err
			}
			report, err := r.Run(cmd.Context(), item, poolPath, 0)
			if err != nil {
				return err
			}
			return a.report(cmd.OutOrStdout(), pipeline.StageRun, report)
		},
	}
	cmd.Flags().StringVar(&poolPath, "pool", "", "source pool file")
	cmd.Flags().StringVarP(&outDir, "output", "o", ".", "directory for the collages")
	_ = cmd.MarkFlagRequired("pool")
	return cmd
}

func hasSuffix(suffix string) func(string) bool {
	return func(name string) bool { return strings.HasSuffix(name, suffix) }
}
