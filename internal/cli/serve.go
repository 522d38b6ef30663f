package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/longmans/prompt-agent/internal/app"
	"github.com/longmans/prompt-agent/internal/server"
)

func newServeCmd(a *cliApp) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP, WebSocket and gRPC health server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			// The server logs with the configured application logger.
			ap, err := app.New(ctx, app.Options{ConfigPath: a.configPath, Factory: a.factory})
			if err != nil {
				return err
			}
			defer a.closeApp(ap)

			return server.Run(ctx, server.Deps{
				Config:   ap.Config,
				Service:  ap.Service,
				Registry: ap.Registry,
				Store:    ap.Store,
				Budget:   ap.Budget,
				Logger:   ap.Logger,
				Audit:    ap.Audit,
			})
		},
	}
}
