package exit

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Context is the per-position record the exit engine decides from.
//
// Entry facts and Targets are fixed at creation. Progress fields only move
// through the methods below so that TP1 fires once, the stop never loosens
// and the remaining volume only decreases.
type Context struct {
	// Identity
	PositionID string `json:"position_id"`
	Symbol     string `json:"symbol"`

	// Entry facts
	Direction    Direction       `json:"direction"`
	EntryPrice   decimal.Decimal `json:"entry_price"`
	EntryTime    time.Time       `json:"entry_time"`
	RiskDistance decimal.Decimal `json:"risk_distance"` // 1R, always > 0
	EntryVolume  decimal.Decimal `json:"entry_volume"`

	Targets Targets `json:"targets"`

	// Progress
	TP1Hit             bool            `json:"tp1_hit"`
	TP1FillPrice       decimal.Decimal `json:"tp1_fill_price"`
	BreakevenPrice     decimal.Decimal `json:"breakeven_price"` // zero before TP1
	TrailingMode       TrailingMode    `json:"trailing_mode"`
	TrailingActivated  bool            `json:"trailing_activated"`
	LastKnownStopPrice decimal.Decimal `json:"last_known_stop_price"`
	TargetPrice        decimal.Decimal `json:"target_price"`
	RemainingVolume    decimal.Decimal `json:"remaining_volume"`
	ClosedVolumeAtTP1  decimal.Decimal `json:"closed_volume_at_tp1"`
	LastExitPrice      decimal.Decimal `json:"last_exit_price"`

	// DefensiveOnly contexts never partial-close; they only protect and trail.
	DefensiveOnly bool `json:"defensive_only"`

	Meta       *Metadata `json:"meta,omitempty"`
	Rehydrated bool      `json:"rehydrated"`
}

// ContextParams carries the fields needed to build a Context
type ContextParams struct {
	PositionID   string
	Symbol       string
	Direction    Direction
	EntryPrice   decimal.Decimal
	EntryTime    time.Time
	RiskDistance decimal.Decimal
	Volume       decimal.Decimal
	StopPrice    decimal.Decimal
	TargetPrice  decimal.Decimal
	Targets      Targets
	Meta         *Metadata
	Rehydrated   bool
}

// Validate checks target structure bounds
func (t Targets) Validate() error {
	if t.TP1R <= 0 || t.TP2R <= 0 {
		return fmt.Errorf("%w: target R must be positive (tp1=%.3f tp2=%.3f)", ErrInvalidTargets, t.TP1R, t.TP2R)
	}
	if t.TP1CloseFraction <= 0 || t.TP1CloseFraction >= 1 {
		return fmt.Errorf("%w: tp1 close fraction %.3f outside (0,1)", ErrInvalidTargets, t.TP1CloseFraction)
	}
	if t.TP2CloseFraction < 0 || t.TP2CloseFraction > 1 {
		return fmt.Errorf("%w: tp2 close fraction %.3f outside [0,1]", ErrInvalidTargets, t.TP2CloseFraction)
	}
	if t.BreakevenOffsetR < 0 || t.BreakevenOffsetR >= t.TP1R {
		return fmt.Errorf("%w: breakeven offset %.3f must be in [0, tp1 R)", ErrInvalidTargets, t.BreakevenOffsetR)
	}
	return nil
}

// NewContext validates params and builds a Context in the AwaitingTP1 phase
func NewContext(p ContextParams) (*Context, error) {
	if p.PositionID == "" {
		return nil, ErrInvalidPositionID
	}
	if !p.Direction.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDirection, p.Direction)
	}
	if !p.EntryPrice.IsPositive() {
		return nil, fmt.Errorf("%w: entry price %s", ErrInvalidPrice, p.EntryPrice)
	}
	if !p.RiskDistance.IsPositive() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRiskDistance, p.RiskDistance)
	}
	if !p.Volume.IsPositive() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidVolume, p.Volume)
	}
	if err := p.Targets.Validate(); err != nil {
		return nil, err
	}

	entryTime := p.EntryTime
	if entryTime.IsZero() {
		entryTime = time.Now()
	}

	return &Context{
		PositionID:         p.PositionID,
		Symbol:             p.Symbol,
		Direction:          p.Direction,
		EntryPrice:         p.EntryPrice,
		EntryTime:          entryTime,
		RiskDistance:       p.RiskDistance,
		EntryVolume:        p.Volume,
		Targets:            p.Targets,
		TrailingMode:       TrailingNone,
		LastKnownStopPrice: p.StopPrice,
		TargetPrice:        p.TargetPrice,
		RemainingVolume:    p.Volume,
		ClosedVolumeAtTP1:  decimal.Zero,
		Meta:               p.Meta,
		Rehydrated:         p.Rehydrated,
	}, nil
}

// Phase returns the FSM phase derived from progress state
func (c *Context) Phase() Phase {
	if c.TP1Hit {
		return PhaseTP1Filled
	}
	return PhaseAwaitingTP1
}

// PriceAtR returns entry + direction × risk × r
func (c *Context) PriceAtR(r float64) decimal.Decimal {
	offset := c.RiskDistance.Mul(decimal.NewFromFloat(r)).Mul(c.Direction.Sign())
	return c.EntryPrice.Add(offset)
}

// TP1Price returns the first profit target level
func (c *Context) TP1Price() decimal.Decimal {
	return c.PriceAtR(c.Targets.TP1R)
}

// TP2Price returns the second profit target level
func (c *Context) TP2Price() decimal.Decimal {
	return c.PriceAtR(c.Targets.TP2R)
}

// BreakevenCandidate returns the unclamped breakeven stop level
func (c *Context) BreakevenCandidate() decimal.Decimal {
	return c.PriceAtR(c.Targets.BreakevenOffsetR)
}

// TP1Reached reports whether the quote crosses TP1 (bid for long, ask for short)
func (c *Context) TP1Reached(q Quote) bool {
	level := c.TP1Price()
	if c.Direction == DirectionShort {
		return q.Ask.IsPositive() && q.Ask.LessThanOrEqual(level)
	}
	return q.Bid.GreaterThanOrEqual(level)
}

// AtLeastAsProtective reports whether stop a protects at least as much as b.
// A zero b means "no stop" and is beaten by anything.
func (c *Context) AtLeastAsProtective(a, b decimal.Decimal) bool {
	if b.IsZero() {
		return true
	}
	if a.IsZero() {
		return false
	}
	if c.Direction == DirectionShort {
		return a.LessThanOrEqual(b)
	}
	return a.GreaterThanOrEqual(b)
}

// MostProtective returns the most protective of the non-zero prices
func (c *Context) MostProtective(prices ...decimal.Decimal) decimal.Decimal {
	best := decimal.Zero
	for _, p := range prices {
		if p.IsZero() {
			continue
		}
		if best.IsZero() || !c.AtLeastAsProtective(best, p) {
			best = p
		}
	}
	return best
}

// StopImprovement returns how far candidate tightens the current stop, in price.
// Negative means candidate is looser.
func (c *Context) StopImprovement(candidate decimal.Decimal) decimal.Decimal {
	return candidate.Sub(c.LastKnownStopPrice).Mul(c.Direction.Sign())
}

// TrailingAllowed reports whether trailing evaluation may run
func (c *Context) TrailingAllowed() bool {
	return c.TP1Hit && c.TrailingMode != TrailingNone
}

// MarkTP1 commits the TP1 transition. It fails if TP1 already fired.
func (c *Context) MarkTP1(closedVolume, breakeven, fillPrice decimal.Decimal) error {
	if c.TP1Hit {
		return ErrTP1AlreadyHit
	}
	if closedVolume.IsNegative() || closedVolume.GreaterThanOrEqual(c.RemainingVolume) {
		return fmt.Errorf("%w: close %s of remaining %s", ErrInvalidVolume, closedVolume, c.RemainingVolume)
	}

	c.TP1Hit = true
	c.TP1FillPrice = fillPrice
	c.ClosedVolumeAtTP1 = closedVolume
	c.RemainingVolume = c.RemainingVolume.Sub(closedVolume)
	c.BreakevenPrice = breakeven
	if c.TrailingMode == TrailingNone {
		c.TrailingMode = TrailingNormal
	}
	return nil
}

// ApplyStop records an accepted stop move, refusing anything looser than
// the current stop or, after TP1, the breakeven price.
func (c *Context) ApplyStop(stop decimal.Decimal) error {
	if !c.AtLeastAsProtective(stop, c.LastKnownStopPrice) {
		return fmt.Errorf("%w: %s vs current %s", ErrStopLoosened, stop, c.LastKnownStopPrice)
	}
	if c.TP1Hit && !c.AtLeastAsProtective(stop, c.BreakevenPrice) {
		return fmt.Errorf("%w: %s vs breakeven %s", ErrStopBelowBreakeven, stop, c.BreakevenPrice)
	}
	c.LastKnownStopPrice = stop
	return nil
}

// SyncFromHost aligns volume and stop with the host snapshot.
// Volume only ever decreases; a larger host volume is ignored.
func (c *Context) SyncFromHost(pos LivePosition) {
	if pos.Volume.IsPositive() && pos.Volume.LessThan(c.RemainingVolume) {
		c.RemainingVolume = pos.Volume
	}
	if pos.HasStop() {
		c.LastKnownStopPrice = pos.StopPrice
	}
	if pos.TargetPrice.IsPositive() {
		c.TargetPrice = pos.TargetPrice
	}
}

// Clone returns a copy safe to hand out of the engine
func (c *Context) Clone() *Context {
	cp := *c
	if c.Meta != nil {
		meta := *c.Meta
		cp.Meta = &meta
	}
	return &cp
}
