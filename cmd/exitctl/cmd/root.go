// Package cmd - exitctl CLI commands
package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Estalvo/GeminiV26-sub001/internal/app"
	"github.com/Estalvo/GeminiV26-sub001/internal/pkg/config"
	"github.com/Estalvo/GeminiV26-sub001/internal/pkg/logger"
)

// options shared by every subcommand, filled by the root pre-run
type options struct {
	envFile         string
	instrumentsFile string
	verbose         bool

	cfg     *config.Config
	catalog *config.Catalog
}

// Execute runs the root command
func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd builds the command tree
func NewRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "exitctl",
		Short: "Score-driven sizing and exit management - CLI",
		Long: `Score-driven sizing and exit management - CLI

Usage:
    go run ./cmd/exitctl [command]

Commands:
    instruments               - list the validated instrument catalog
    policy SYMBOL             - evaluate the sizing policy for a score
    replay FILE               - drive exit engines from a CSV event stream
    serve                     - run the read API over a paper host
`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.init()
		},
	}

	root.PersistentFlags().StringVar(&opts.envFile, "env", "", "env file loaded before .env")
	root.PersistentFlags().StringVar(&opts.instrumentsFile, "instruments", "", "instruments TOML (overrides INSTRUMENTS_FILE)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(newInstrumentsCmd(opts))
	root.AddCommand(newPolicyCmd(opts))
	root.AddCommand(newReplayCmd(opts))
	root.AddCommand(newServeCmd(opts))

	return root
}

// init loads env files, configuration, logging and the instrument catalog
func (o *options) init() error {
	if o.envFile != "" {
		if err := godotenv.Load(o.envFile); err != nil {
			return fmt.Errorf("load %s: %w", o.envFile, err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if o.verbose {
		cfg.Logging.Level = "debug"
	}
	if o.instrumentsFile != "" {
		cfg.Engine.InstrumentsFile = o.instrumentsFile
	}

	if err := logger.Init(app.LoggerConfig(cfg)); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return err
	}

	catalog, err := config.LoadInstruments(cfg.Engine.InstrumentsFile)
	if err != nil {
		log.Error().Err(err).Str("path", cfg.Engine.InstrumentsFile).Msg("Failed to load instruments")
		return err
	}

	o.cfg = cfg
	o.catalog = catalog
	return nil
}
