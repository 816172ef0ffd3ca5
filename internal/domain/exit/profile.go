package exit

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Profile is the per-instrument exit configuration.
// One generic engine runs every instrument; only this value differs.
type Profile struct {
	BreakevenOffsetR float64 `toml:"breakeven_offset_r" json:"breakeven_offset_r"`

	// Trailing distance = volatility × multiplier of the context's mode
	TrailTight  float64 `toml:"trail_tight" json:"trail_tight"`
	TrailNormal float64 `toml:"trail_normal" json:"trail_normal"`
	TrailLoose  float64 `toml:"trail_loose" json:"trail_loose"`

	// MinImprovementSteps is the smallest stop move (in ticks) worth sending to the host
	MinImprovementSteps int64 `toml:"min_improvement_steps" json:"min_improvement_steps"`

	// TrailOnBarClose moves trailing from the tick hook to the bar hook
	TrailOnBarClose bool `toml:"trail_on_bar_close" json:"trail_on_bar_close"`

	// FallbackRiskDistance is used by rehydration when neither stop nor volatility is usable
	FallbackRiskDistance decimal.Decimal `toml:"fallback_risk_distance" json:"fallback_risk_distance"`
}

// DefaultProfile returns the baseline tiers (tight 1.2 < normal 1.8 < loose 2.5)
func DefaultProfile() Profile {
	return Profile{
		BreakevenOffsetR:    0.05,
		TrailTight:          1.2,
		TrailNormal:         1.8,
		TrailLoose:          2.5,
		MinImprovementSteps: 1,
	}
}

// Multiplier returns the trailing multiplier for mode
func (p Profile) Multiplier(mode TrailingMode) (float64, bool) {
	switch mode {
	case TrailingTight:
		return p.TrailTight, true
	case TrailingNormal:
		return p.TrailNormal, true
	case TrailingLoose:
		return p.TrailLoose, true
	}
	return 0, false
}

// Validate checks tier ordering and bounds
func (p Profile) Validate() error {
	if p.BreakevenOffsetR < 0 {
		return fmt.Errorf("%w: negative breakeven offset", ErrInvalidProfile)
	}
	if p.TrailTight <= 0 || p.TrailTight >= p.TrailNormal || p.TrailNormal >= p.TrailLoose {
		return fmt.Errorf("%w: trailing tiers must satisfy 0 < tight < normal < loose (%.2f, %.2f, %.2f)",
			ErrInvalidProfile, p.TrailTight, p.TrailNormal, p.TrailLoose)
	}
	if p.MinImprovementSteps < 0 {
		return fmt.Errorf("%w: negative min improvement", ErrInvalidProfile)
	}
	if p.FallbackRiskDistance.IsNegative() {
		return fmt.Errorf("%w: negative fallback risk distance", ErrInvalidProfile)
	}
	return nil
}
