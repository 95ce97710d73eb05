package cli

import (
	"fmt"

	"github.com/ironsheep/photomosaic/internal/server"
	"github.com/spf13/cobra"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the mosaic tools over MCP on stdin/stdout",
		Long: "Serve the mosaic tools over the Model Context Protocol. Requests are read from stdin one per " +
			"line and responses written to stdout; logs go to stderr.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := a.runner(".")
			if err != nil {
				return err
			}
			a.logger.Info("mcp server starting", "version", a.info.Version, "cache_size", a.cfg.CacheSize)

			srv := server.New(r, a.logger, a.info.Version)
			err = srv.Run(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
			a.recorder.ObserveCache(r.Cache().Stats())
			a.writeMetrics()
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		// Printing the version never needs the configuration.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "mosaic %s\n  Build time: %s\n  Git commit: %s\n",
				a.info.Version, a.info.BuildTime, a.info.GitCommit)
			return err
		},
	}
}
