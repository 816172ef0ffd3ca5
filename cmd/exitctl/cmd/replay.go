package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Estalvo/GeminiV26-sub001/internal/app"
	"github.com/Estalvo/GeminiV26-sub001/internal/service/replay"
)

func newReplayCmd(opts *options) *cobra.Command {
	var (
		serveAPI  bool
		rehydrate bool
	)

	cmd := &cobra.Command{
		Use:   "replay FILE",
		Short: "Drive exit engines from a CSV event stream",
		Long: `Replays tick, bar and entry rows against the paper host.

Row formats ('#' starts a comment):
  tick,<RFC3339>,<symbol>,<bid>,<ask>
  bar,<RFC3339>,<symbol>,<timeframe>,<open>,<high>,<low>,<close>
  entry,<RFC3339>,<symbol>,<LONG|SHORT>,<score>[,<entry_type>[,<reason>]]

With --serve the API stays up after the replay until Ctrl+C.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			a, err := app.New(ctx, opts.cfg, opts.catalog)
			if err != nil {
				return err
			}
			defer a.Close()

			serveErr := make(chan error, 1)
			if serveAPI {
				go func() { serveErr <- serve(ctx, opts.cfg.Server, a.Router()) }()
			}

			if rehydrate {
				n, err := a.Rehydrate(ctx)
				if err != nil {
					return err
				}
				log.Info().Int("rehydrated", n).Msg("Rehydrated live positions")
			}

			stats, err := replay.NewRunner(a.Host, a.Entry).Run(ctx, f)
			if err != nil {
				return fmt.Errorf("replay %s: %w", args[0], err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(stats); err != nil {
				return err
			}

			if !serveAPI {
				return nil
			}
			log.Info().Msg("Replay done, API still serving (Ctrl+C to stop)")
			return <-serveErr
		},
	}

	cmd.Flags().BoolVar(&serveAPI, "serve", false, "serve the API while replaying")
	cmd.Flags().BoolVar(&rehydrate, "rehydrate", false, "rehydrate host positions before replaying")

	return cmd
}
