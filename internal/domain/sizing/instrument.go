package sizing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Instrument holds the tradable increments of a symbol.
// Volume is in units; TickValue is account currency per tick per unit.
type Instrument struct {
	Symbol     string          `toml:"symbol" json:"symbol"`
	TickSize   decimal.Decimal `toml:"tick_size" json:"tick_size"`
	TickValue  decimal.Decimal `toml:"tick_value" json:"tick_value"`
	PipSize    decimal.Decimal `toml:"pip_size" json:"pip_size"`
	VolumeStep decimal.Decimal `toml:"volume_step" json:"volume_step"`
	MinVolume  decimal.Decimal `toml:"min_volume" json:"min_volume"`
	MaxVolume  decimal.Decimal `toml:"max_volume" json:"max_volume"` // zero = unlimited
	LotSize    decimal.Decimal `toml:"lot_size" json:"lot_size"`     // units per lot
}

// Validate checks that every increment is positive
func (in Instrument) Validate() error {
	checks := []struct {
		name string
		v    decimal.Decimal
	}{
		{"tick_size", in.TickSize},
		{"tick_value", in.TickValue},
		{"pip_size", in.PipSize},
		{"volume_step", in.VolumeStep},
		{"min_volume", in.MinVolume},
		{"lot_size", in.LotSize},
	}
	for _, c := range checks {
		if !c.v.IsPositive() {
			return fmt.Errorf("%w: %s %s must be positive", ErrInvalidInstrument, in.Symbol, c.name)
		}
	}
	if in.MaxVolume.IsPositive() && in.MaxVolume.LessThan(in.MinVolume) {
		return fmt.Errorf("%w: %s max_volume below min_volume", ErrInvalidInstrument, in.Symbol)
	}
	return nil
}

// NormalizeVolume rounds raw units down to the volume step and caps at MaxVolume
func (in Instrument) NormalizeVolume(raw decimal.Decimal) decimal.Decimal {
	if !raw.IsPositive() {
		return decimal.Zero
	}
	v := raw.Div(in.VolumeStep).Floor().Mul(in.VolumeStep)
	if in.MaxVolume.IsPositive() && v.GreaterThan(in.MaxVolume) {
		v = in.MaxVolume.Div(in.VolumeStep).Floor().Mul(in.VolumeStep)
	}
	return v
}

// ComputeVolume converts a risk budget into a tradable volume.
//
//	units = (balance × riskPercent/100) / (stopDistance/tickSize × tickValue)
//
// capped by lotCap lots, rounded down to the step; below MinVolume means skip.
func (in Instrument) ComputeVolume(balance decimal.Decimal, riskPercent float64, stopDistance decimal.Decimal, lotCap float64) (decimal.Decimal, error) {
	if riskPercent <= 0 {
		return decimal.Zero, ErrNonPositiveRisk
	}
	if !stopDistance.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrInvalidStopDistance, stopDistance)
	}

	riskAmount := balance.Mul(decimal.NewFromFloat(riskPercent)).Div(decimal.NewFromInt(100))
	perUnit := stopDistance.Div(in.TickSize).Mul(in.TickValue)
	raw := riskAmount.Div(perUnit)

	if lotCap > 0 {
		capUnits := decimal.NewFromFloat(lotCap).Mul(in.LotSize)
		if raw.GreaterThan(capUnits) {
			raw = capUnits
		}
	}

	v := in.NormalizeVolume(raw)
	if v.LessThan(in.MinVolume) {
		return decimal.Zero, fmt.Errorf("%w: %s < %s", ErrVolumeBelowMinimum, v, in.MinVolume)
	}
	return v, nil
}

// RoundPrice rounds a price to the nearest tick
func (in Instrument) RoundPrice(p decimal.Decimal) decimal.Decimal {
	return p.Div(in.TickSize).Round(0).Mul(in.TickSize)
}

// PriceToTicks converts a price distance to ticks
func (in Instrument) PriceToTicks(distance decimal.Decimal) decimal.Decimal {
	return distance.Div(in.TickSize)
}

// PriceToPips converts a price distance to pips
func (in Instrument) PriceToPips(distance decimal.Decimal) decimal.Decimal {
	return distance.Div(in.PipSize)
}

// PipsToPrice converts pips to a price distance
func (in Instrument) PipsToPrice(pips decimal.Decimal) decimal.Decimal {
	return pips.Mul(in.PipSize)
}

// MoneyValue returns the account currency value of a price move over volume units
func (in Instrument) MoneyValue(priceDistance, volume decimal.Decimal) decimal.Decimal {
	return priceDistance.Div(in.TickSize).Mul(in.TickValue).Mul(volume)
}
