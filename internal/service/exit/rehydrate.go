package exit

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Estalvo/GeminiV26-sub001/internal/domain/exit"
	"github.com/Estalvo/GeminiV26-sub001/internal/domain/sizing"
)

// RehydrationInput is what a policy may use to rebuild a context
type RehydrationInput struct {
	Policy     sizing.Policy
	Profile    exit.Profile
	Instrument sizing.Instrument
	Volatility exit.VolatilitySource
}

// RehydrationPolicy rebuilds a context from a live position after restart.
// Entry metadata and history are not available to it.
type RehydrationPolicy interface {
	Name() string
	Build(pos exit.LivePosition, in RehydrationInput) (*exit.Context, error)
}

// DefaultTargetsPolicy assumes the instrument's neutral-score targets.
//
// Risk distance is |entry - stop| when the stop is on the loss side. A stop
// at or beyond entry means the position already passed TP1: tp1Hit is set and
// the stop becomes the breakeven floor. Without a usable stop, risk comes from
// volatility × neutral stop multiplier, then the profile fallback distance.
type DefaultTargetsPolicy struct{}

// Name implements RehydrationPolicy
func (DefaultTargetsPolicy) Name() string { return "default" }

// Build implements RehydrationPolicy
func (DefaultTargetsPolicy) Build(pos exit.LivePosition, in RehydrationInput) (*exit.Context, error) {
	neutral := in.Policy.Neutral()
	sign := pos.Direction.Sign()

	var risk decimal.Decimal
	pastTP1 := false
	if pos.HasStop() {
		lossSide := pos.EntryPrice.Sub(pos.StopPrice).Mul(sign)
		if lossSide.IsPositive() {
			risk = lossSide
		} else {
			pastTP1 = true
		}
	}

	if !risk.IsPositive() {
		if in.Volatility != nil {
			if vol, ok := in.Volatility.Volatility(pos.Symbol); ok {
				risk = vol.Mul(decimal.NewFromFloat(neutral.StopATRMultiplier))
			}
		}
	}
	if !risk.IsPositive() {
		risk = in.Profile.FallbackRiskDistance
	}
	if !risk.IsPositive() {
		return nil, fmt.Errorf("%w: position %s", exit.ErrNoRiskReference, pos.PositionID)
	}

	c, err := exit.NewContext(exit.ContextParams{
		PositionID:   pos.PositionID,
		Symbol:       pos.Symbol,
		Direction:    pos.Direction,
		EntryPrice:   pos.EntryPrice,
		EntryTime:    pos.OpenedAt,
		RiskDistance: risk,
		Volume:       pos.Volume,
		StopPrice:    pos.StopPrice,
		TargetPrice:  pos.TargetPrice,
		Targets:      neutral.Targets(in.Profile.BreakevenOffsetR),
		Rehydrated:   true,
	})
	if err != nil {
		return nil, err
	}

	if pastTP1 {
		if err := c.MarkTP1(decimal.Zero, pos.StopPrice, decimal.Zero); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// DefensivePolicy manages every rehydrated position trailing-only:
// no partial close, the current stop is the breakeven floor.
type DefensivePolicy struct {
	Base DefaultTargetsPolicy
}

// Name implements RehydrationPolicy
func (DefensivePolicy) Name() string { return "defensive" }

// Build implements RehydrationPolicy
func (p DefensivePolicy) Build(pos exit.LivePosition, in RehydrationInput) (*exit.Context, error) {
	c, err := p.Base.Build(pos, in)
	if err != nil {
		return nil, err
	}
	c.DefensiveOnly = true
	if !c.TP1Hit {
		if err := c.MarkTP1(decimal.Zero, pos.StopPrice, decimal.Zero); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// RehydrationPolicyByName maps a configured name onto a policy
func RehydrationPolicyByName(name string) (RehydrationPolicy, error) {
	switch name {
	case "", "default":
		return DefaultTargetsPolicy{}, nil
	case "defensive":
		return DefensivePolicy{}, nil
	}
	return nil, fmt.Errorf("unknown rehydration policy %q", name)
}

// Rehydrate builds contexts for live positions that have none registered.
// It is safe to run repeatedly: registered positions are never replaced.
func (e *Engine) Rehydrate(ctx context.Context) (int, error) {
	positions, err := e.host.Positions(ctx, e.symbol)
	if err != nil {
		mtxHostFailures.WithLabelValues(e.symbol, opPositions).Inc()
		return 0, fmt.Errorf("rehydrate %s: %w", e.symbol, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	in := RehydrationInput{
		Policy:     e.policy,
		Profile:    e.profile,
		Instrument: e.instrument,
		Volatility: e.volatility,
	}

	created := 0
	for _, pos := range positions {
		if _, exists := e.contexts[pos.PositionID]; exists {
			continue
		}
		if pos.Symbol == "" {
			pos.Symbol = e.symbol
		}

		c, err := e.rehydration.Build(pos, in)
		if err != nil {
			e.logger.Warn().Err(err).Str("position_id", pos.PositionID).Msg("Cannot rehydrate position, leaving unmanaged")
			continue
		}
		if e.meta != nil {
			if meta, ok := e.meta.Lookup(pos.PositionID); ok {
				c.Meta = &meta
			}
		}

		e.insert(c)
		created++
		mtxRehydrated.WithLabelValues(e.symbol, e.rehydration.Name()).Inc()

		e.logger.Info().
			Str("position_id", c.PositionID).
			Str("direction", c.Direction.String()).
			Str("entry", c.EntryPrice.String()).
			Str("risk", c.RiskDistance.String()).
			Bool("tp1_hit", c.TP1Hit).
			Str("policy", e.rehydration.Name()).
			Msg("Context rehydrated")
	}

	return created, nil
}
