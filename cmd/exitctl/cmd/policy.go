package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/Estalvo/GeminiV26-sub001/internal/domain/sizing"
)

// sizingOutput is the policy result plus the optional volume calculation
type sizingOutput struct {
	Symbol       string          `json:"symbol"`
	EntryType    string          `json:"entry_type,omitempty"`
	Result       sizing.Result   `json:"result"`
	Blocked      bool            `json:"blocked"`
	StopDistance decimal.Decimal `json:"stop_distance"`
	Volume       decimal.Decimal `json:"volume"`
	SizingError  string          `json:"sizing_error,omitempty"`
}

func newPolicyCmd(opts *options) *cobra.Command {
	var (
		score      int
		entryType  string
		balance    string
		volatility string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "policy SYMBOL",
		Short: "Evaluate the sizing policy for a score",
		Long: `Evaluates the sizing policy of SYMBOL for a score.
With --balance and --volatility it also computes the stop distance and volume.

Examples:
  exitctl policy EURUSD --score 80
  exitctl policy BTCUSD --score 80 --balance 10000 --volatility 400`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			policy, err := opts.catalog.Policy(args[0])
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("score") {
				score = policy.NeutralScore
			}

			res := policy.Evaluate(score, entryType)
			out := sizingOutput{
				Symbol:    policy.Key,
				EntryType: entryType,
				Result:    res,
				Blocked:   res.Blocked(),
			}

			if balance != "" && volatility != "" && !out.Blocked {
				if err := out.size(opts, balance, volatility); err != nil {
					return err
				}
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}
			return out.print(cmd)
		},
	}

	cmd.Flags().IntVar(&score, "score", 0, "signal score (default: the policy's neutral score)")
	cmd.Flags().StringVar(&entryType, "entry-type", "", "entry type tag")
	cmd.Flags().StringVar(&balance, "balance", "", "account balance for volume sizing")
	cmd.Flags().StringVar(&volatility, "volatility", "", "volatility (ATR) in price units for volume sizing")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")

	return cmd
}

func (o *sizingOutput) size(opts *options, balanceArg, volatilityArg string) error {
	balance, err := decimal.NewFromString(balanceArg)
	if err != nil {
		return fmt.Errorf("--balance: %w", err)
	}
	vol, err := decimal.NewFromString(volatilityArg)
	if err != nil {
		return fmt.Errorf("--volatility: %w", err)
	}

	in, err := opts.catalog.Instrument(o.Symbol)
	if err != nil {
		return err
	}

	o.StopDistance = in.RoundPrice(vol.Mul(decimal.NewFromFloat(o.Result.StopATRMultiplier)))
	if !o.StopDistance.IsPositive() {
		o.SizingError = sizing.ErrInvalidStopDistance.Error()
		return nil
	}
	o.Volume, err = in.ComputeVolume(balance, o.Result.RiskPercent, o.StopDistance, o.Result.LotCap)
	if err != nil {
		o.SizingError = err.Error()
	}
	return nil
}

func (o *sizingOutput) print(cmd *cobra.Command) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	r := o.Result

	fmt.Fprintf(w, "symbol\t%s\n", o.Symbol)
	fmt.Fprintf(w, "score\t%d\n", r.Score)
	fmt.Fprintf(w, "risk %%\t%.4f\n", r.RiskPercent)
	fmt.Fprintf(w, "stop x ATR\t%.4f\n", r.StopATRMultiplier)
	fmt.Fprintf(w, "tp1\t%gR close %g\n", r.TP1R, r.TP1Ratio)
	fmt.Fprintf(w, "tp2\t%gR close %g\n", r.TP2R, r.TP2Ratio)
	fmt.Fprintf(w, "lot cap\t%g\n", r.LotCap)
	fmt.Fprintf(w, "blocked\t%t\n", o.Blocked)
	if !o.StopDistance.IsZero() {
		fmt.Fprintf(w, "stop distance\t%s\n", o.StopDistance)
	}
	if o.SizingError != "" {
		fmt.Fprintf(w, "volume\t- (%s)\n", o.SizingError)
	} else if !o.Volume.IsZero() {
		fmt.Fprintf(w, "volume\t%s\n", o.Volume)
	}
	return w.Flush()
}
