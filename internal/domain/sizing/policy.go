package sizing

import (
	"fmt"
	"math"
	"sort"

	"github.com/Estalvo/GeminiV26-sub001/internal/domain/exit"
)

// Point is one knot of a piecewise-linear curve over the normalized score [0,1]
type Point struct {
	Score float64 `toml:"score" json:"score"`
	Value float64 `toml:"value" json:"value"`
}

// Curve is a piecewise-linear function; outside its knots it is flat
type Curve []Point

// At evaluates the curve at normalized score x
func (c Curve) At(x float64) float64 {
	if len(c) == 0 {
		return 0
	}
	if x <= c[0].Score {
		return c[0].Value
	}
	last := c[len(c)-1]
	if x >= last.Score {
		return last.Value
	}
	for i := 1; i < len(c); i++ {
		lo, hi := c[i-1], c[i]
		if x <= hi.Score {
			if hi.Score == lo.Score {
				return hi.Value
			}
			t := (x - lo.Score) / (hi.Score - lo.Score)
			return lo.Value + t*(hi.Value-lo.Value)
		}
	}
	return last.Value
}

func (c Curve) validate(name string, strictlyPositive bool) error {
	if len(c) == 0 {
		return fmt.Errorf("%w: %s curve is empty", ErrInvalidPolicy, name)
	}
	for i, p := range c {
		if p.Score < 0 || p.Score > 1 {
			return fmt.Errorf("%w: %s knot %d score %.3f outside [0,1]", ErrInvalidPolicy, name, i, p.Score)
		}
		if i > 0 && p.Score < c[i-1].Score {
			return fmt.Errorf("%w: %s knots not sorted by score", ErrInvalidPolicy, name)
		}
		if strictlyPositive && p.Value <= 0 {
			return fmt.Errorf("%w: %s knot %d value %.4f must be positive", ErrInvalidPolicy, name, i, p.Value)
		}
		if p.Value < 0 {
			return fmt.Errorf("%w: %s knot %d value %.4f is negative", ErrInvalidPolicy, name, i, p.Value)
		}
	}
	return nil
}

// LotStep caps volume (in lots) from MinScore upward
type LotStep struct {
	MinScore float64 `toml:"min_score" json:"min_score"`
	Lots     float64 `toml:"lots" json:"lots"`
}

// Policy maps a confidence score to risk, stop distance, targets and a volume cap.
// It is a pure value: no state, no I/O.
type Policy struct {
	Key          string `toml:"key" json:"key"`
	ScoreMin     int    `toml:"score_min" json:"score_min"`
	ScoreMax     int    `toml:"score_max" json:"score_max"`
	NeutralScore int    `toml:"neutral_score" json:"neutral_score"`

	RiskPercent Curve `toml:"risk_percent" json:"risk_percent"`
	StopATR     Curve `toml:"stop_atr" json:"stop_atr"`

	// EntryTypeStop scales the stop multiplier per entry type tag (e.g. "pullback": 0.9)
	EntryTypeStop map[string]float64 `toml:"entry_type_stop" json:"entry_type_stop,omitempty"`

	TP1R     float64 `toml:"tp1_r" json:"tp1_r"`
	TP1Ratio float64 `toml:"tp1_ratio" json:"tp1_ratio"`
	TP2R     float64 `toml:"tp2_r" json:"tp2_r"`
	TP2Ratio float64 `toml:"tp2_ratio" json:"tp2_ratio"`

	LotCaps []LotStep `toml:"lot_caps" json:"lot_caps"`
}

// Result is the policy output for one score
type Result struct {
	Score             int     `json:"score"`
	RiskPercent       float64 `json:"risk_percent"`
	StopATRMultiplier float64 `json:"stop_atr_multiplier"`
	TP1R              float64 `json:"tp1_r"`
	TP1Ratio          float64 `json:"tp1_ratio"`
	TP2R              float64 `json:"tp2_r"`
	TP2Ratio          float64 `json:"tp2_ratio"`
	LotCap            float64 `json:"lot_cap"`
}

// Blocked reports whether the result forbids entry
func (r Result) Blocked() bool {
	return r.RiskPercent <= 0 || r.StopATRMultiplier <= 0
}

// Targets converts the result into a context target structure
func (r Result) Targets(breakevenOffsetR float64) exit.Targets {
	return exit.Targets{
		TP1R:             r.TP1R,
		TP1CloseFraction: r.TP1Ratio,
		TP2R:             r.TP2R,
		TP2CloseFraction: r.TP2Ratio,
		BreakevenOffsetR: breakevenOffsetR,
	}
}

// Normalize maps a raw score onto [0,1]
func (p Policy) Normalize(score int) float64 {
	span := float64(p.ScoreMax - p.ScoreMin)
	if span <= 0 {
		return 0
	}
	x := float64(score-p.ScoreMin) / span
	return math.Max(0, math.Min(1, x))
}

// Evaluate returns the sizing result for score and entry type tag
func (p Policy) Evaluate(score int, entryType string) Result {
	x := p.Normalize(score)

	stop := p.StopATR.At(x)
	if f, ok := p.EntryTypeStop[entryType]; ok {
		stop *= f
	}

	return Result{
		Score:             score,
		RiskPercent:       p.RiskPercent.At(x),
		StopATRMultiplier: stop,
		TP1R:              p.TP1R,
		TP1Ratio:          p.TP1Ratio,
		TP2R:              p.TP2R,
		TP2Ratio:          p.TP2Ratio,
		LotCap:            p.LotCap(score),
	}
}

// Neutral evaluates the policy at its neutral score with no entry type
func (p Policy) Neutral() Result {
	return p.Evaluate(p.NeutralScore, "")
}

// LotCap returns the volume cap in lots for score
func (p Policy) LotCap(score int) float64 {
	x := p.Normalize(score)
	idx := sort.Search(len(p.LotCaps), func(i int) bool { return p.LotCaps[i].MinScore > x })
	if idx == 0 {
		return 0
	}
	return p.LotCaps[idx-1].Lots
}

// Validate checks the policy contract
func (p Policy) Validate() error {
	if p.Key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidPolicy)
	}
	if p.ScoreMax <= p.ScoreMin {
		return fmt.Errorf("%w: %s score range [%d,%d] is empty", ErrInvalidPolicy, p.Key, p.ScoreMin, p.ScoreMax)
	}
	if p.NeutralScore < p.ScoreMin || p.NeutralScore > p.ScoreMax {
		return fmt.Errorf("%w: %s neutral score %d outside range", ErrInvalidPolicy, p.Key, p.NeutralScore)
	}
	if err := p.RiskPercent.validate("risk_percent", false); err != nil {
		return fmt.Errorf("%s: %w", p.Key, err)
	}
	if err := p.StopATR.validate("stop_atr", true); err != nil {
		return fmt.Errorf("%s: %w", p.Key, err)
	}
	for tag, f := range p.EntryTypeStop {
		if f <= 0 {
			return fmt.Errorf("%w: %s entry type %q stop factor %.3f must be positive", ErrInvalidPolicy, p.Key, tag, f)
		}
	}
	if p.TP1R <= 0 || p.TP2R < p.TP1R {
		return fmt.Errorf("%w: %s requires 0 < tp1_r <= tp2_r", ErrInvalidPolicy, p.Key)
	}
	if p.TP1Ratio <= 0 || p.TP1Ratio >= 1 {
		return fmt.Errorf("%w: %s tp1_ratio %.3f outside (0,1)", ErrInvalidPolicy, p.Key, p.TP1Ratio)
	}
	if math.Abs(p.TP1Ratio+p.TP2Ratio-1) > 1e-9 {
		return fmt.Errorf("%w: %s tp1_ratio + tp2_ratio = %.4f, want 1", ErrInvalidPolicy, p.Key, p.TP1Ratio+p.TP2Ratio)
	}
	if len(p.LotCaps) == 0 {
		return fmt.Errorf("%w: %s has no lot caps", ErrInvalidPolicy, p.Key)
	}
	if p.LotCaps[0].MinScore != 0 {
		return fmt.Errorf("%w: %s first lot cap must start at score 0", ErrInvalidPolicy, p.Key)
	}
	for i, s := range p.LotCaps {
		if s.Lots <= 0 {
			return fmt.Errorf("%w: %s lot cap %d must be positive", ErrInvalidPolicy, p.Key, i)
		}
		if i > 0 && (s.MinScore <= p.LotCaps[i-1].MinScore || s.Lots < p.LotCaps[i-1].Lots) {
			return fmt.Errorf("%w: %s lot caps must be non-decreasing in score", ErrInvalidPolicy, p.Key)
		}
	}
	if p.Neutral().Blocked() {
		return fmt.Errorf("%w: %s blocks entry at its neutral score", ErrInvalidPolicy, p.Key)
	}
	return nil
}
