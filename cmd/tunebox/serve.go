package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"tunebox/internal/server"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  `Start the tunebox HTTP API, audio streaming and remote player endpoints.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		musicServer := server.NewMusicServer(a.config, a.store, a.delivery, a.library, a.logger)
		if err := musicServer.Run(ctx); err != nil {
			a.logger.WithError(err).Error("Server stopped with error")
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// commandContext returns cmd's context, which is nil when a command runs
// outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
