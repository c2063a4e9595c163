package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"products/internal/app"
)

func newServeCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := app.Build(e.cfg, e.log)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return svc.Run(ctx)
		},
	}

	cmd.Flags().String("port", ":8080", "listen address")
	cmd.Flags().String("users-url", "http://localhost:3000", "base URL of the users service")
	e.v.BindPFlag("APP_PORT", cmd.Flags().Lookup("port"))
	e.v.BindPFlag("USERS_SERVICE_URL", cmd.Flags().Lookup("users-url"))
	return cmd
}
