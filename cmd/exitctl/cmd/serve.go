package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Estalvo/GeminiV26-sub001/internal/app"
)

func newServeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API over a paper host",
		Long: `Starts one exit engine per configured instrument against the paper host,
rehydrates live positions and serves the API. Ctrl+C stops it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, opts.cfg, opts.catalog)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.Rehydrate(ctx)
			if err != nil {
				return err
			}
			log.Info().Int("rehydrated", n).Str("version", app.Version).Msg("🚀 Starting exit engine API")

			return serve(ctx, opts.cfg.Server, a.Router())
		},
	}
}
