package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ironsheep/image-pipeline/internal/server"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve pipelines to an MCP client over stdin/stdout",
		Long: "serve speaks the MCP protocol over stdin/stdout. Configure it in your MCP client; " +
			"logs go to stderr.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			gov, err := flags.governor()
			if err != nil {
				return err
			}
			logger := flags.logger()
			logger.WithField("version", Version).WithField("commit", GitCommit).Debug("image pipeline server starting")

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := server.New(
				server.WithGovernor(gov),
				server.WithLogger(logger),
				server.WithVersion(Version),
			)
			return srv.Run(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}
