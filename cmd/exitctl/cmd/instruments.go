package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newInstrumentsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "instruments",
		Short: "List configured instruments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tTICK\tPIP\tMIN VOL\tSTEP\tSCORES\tNEUTRAL\tTP1 R\tTP2 R\tBAR TRAIL")

			for _, key := range opts.catalog.Keys() {
				spec, err := opts.catalog.Spec(key)
				if err != nil {
					return err
				}
				p := spec.Policy
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d-%d\t%d\t%g\t%g\t%t\n",
					key,
					spec.Contract.TickSize,
					spec.Contract.PipSize,
					spec.Contract.MinVolume,
					spec.Contract.VolumeStep,
					p.ScoreMin, p.ScoreMax,
					p.NeutralScore,
					p.TP1R, p.TP2R,
					spec.Exit.TrailOnBarClose,
				)
			}
			return w.Flush()
		},
	}
}
