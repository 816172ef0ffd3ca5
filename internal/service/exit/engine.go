package exit

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/Estalvo/GeminiV26-sub001/internal/domain/exit"
	"github.com/Estalvo/GeminiV26-sub001/internal/domain/sizing"
)

// InstrumentSource resolves per-instrument configuration
type InstrumentSource interface {
	Policy(symbol string) (sizing.Policy, error)
	Instrument(symbol string) (sizing.Instrument, error)
	Profile(symbol string) (exit.Profile, error)
}

// MetaStore is the bound side of the pending-entry store
type MetaStore interface {
	Lookup(positionID string) (exit.Metadata, bool)
	Remove(positionID string)
}

// Config wires one engine
type Config struct {
	Symbol      string
	Host        exit.ExecutionHost
	Instruments InstrumentSource
	Volatility  exit.VolatilitySource

	// Optional
	Sink        exit.TradeRecordSink // nil = LogSink
	Meta        MetaStore
	Rehydration RehydrationPolicy // nil = DefaultTargetsPolicy
}

// Engine manages the exit lifecycle of every position of one instrument.
//
// Tick and bar handlers are expected one at a time per instrument; the lock
// only protects readers (API snapshots) against the handler in progress.
type Engine struct {
	symbol     string
	policy     sizing.Policy
	instrument sizing.Instrument
	profile    exit.Profile

	host        exit.ExecutionHost
	volatility  exit.VolatilitySource
	sink        exit.TradeRecordSink
	meta        MetaStore
	rehydration RehydrationPolicy

	logger zerolog.Logger

	mu        sync.RWMutex
	order     []string
	contexts  map[string]*exit.Context
	lastQuote exit.Quote
}

// NewEngine creates an engine for cfg.Symbol.
// An instrument without a sizing policy is rejected with sizing.ErrUnconfiguredInstrument.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Host == nil {
		return nil, errors.New("exit engine requires an execution host")
	}
	if cfg.Instruments == nil {
		return nil, errors.New("exit engine requires an instrument source")
	}

	policy, err := cfg.Instruments.Policy(cfg.Symbol)
	if err != nil {
		return nil, fmt.Errorf("exit engine %s: %w", cfg.Symbol, err)
	}
	instrument, err := cfg.Instruments.Instrument(cfg.Symbol)
	if err != nil {
		return nil, fmt.Errorf("exit engine %s: %w", cfg.Symbol, err)
	}
	profile, err := cfg.Instruments.Profile(cfg.Symbol)
	if err != nil {
		return nil, fmt.Errorf("exit engine %s: %w", cfg.Symbol, err)
	}
	if err := profile.Validate(); err != nil {
		return nil, fmt.Errorf("exit engine %s: %w", cfg.Symbol, err)
	}

	e := &Engine{
		symbol:      cfg.Symbol,
		policy:      policy,
		instrument:  instrument,
		profile:     profile,
		host:        cfg.Host,
		volatility:  cfg.Volatility,
		sink:        cfg.Sink,
		meta:        cfg.Meta,
		rehydration: cfg.Rehydration,
		logger:      log.With().Str("symbol", cfg.Symbol).Logger(),
		contexts:    make(map[string]*exit.Context),
	}
	if e.sink == nil {
		e.sink = LogSink{}
	}
	if e.rehydration == nil {
		e.rehydration = DefaultTargetsPolicy{}
	}

	e.logger.Info().
		Str("policy", policy.Key).
		Str("rehydration", e.rehydration.Name()).
		Float64("trail_normal", profile.TrailNormal).
		Bool("trail_on_bar_close", profile.TrailOnBarClose).
		Msg("Exit engine created")

	return e, nil
}

// Symbol returns the managed instrument symbol
func (e *Engine) Symbol() string {
	return e.symbol
}

// Profile returns the exit profile in use
func (e *Engine) Profile() exit.Profile {
	return e.profile
}

// Policy returns the sizing policy in use
func (e *Engine) Policy() sizing.Policy {
	return e.policy
}

// Instrument returns the contract increments in use
func (e *Engine) Instrument() sizing.Instrument {
	return e.instrument
}

// ====================
// Registry
// ====================

// RegisterContext inserts c by position id; a second register for the same id replaces the first
func (e *Engine) RegisterContext(c *exit.Context) error {
	if c == nil {
		return errors.New("nil context")
	}
	if sizing.NormalizeKey(c.Symbol) != sizing.NormalizeKey(e.symbol) {
		return fmt.Errorf("context %s symbol %q does not belong to engine %s", c.PositionID, c.Symbol, e.symbol)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.insert(c)
	return nil
}

func (e *Engine) insert(c *exit.Context) {
	if _, exists := e.contexts[c.PositionID]; exists {
		e.logger.Debug().Str("position_id", c.PositionID).Msg("Context replaced")
	} else {
		e.order = append(e.order, c.PositionID)
	}
	e.contexts[c.PositionID] = c
	mtxContexts.WithLabelValues(e.symbol).Set(float64(len(e.contexts)))
}

// Unregister removes the context for positionID; unknown ids are ignored
func (e *Engine) Unregister(positionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.remove(positionID)
}

func (e *Engine) remove(positionID string) {
	if _, exists := e.contexts[positionID]; !exists {
		return
	}
	delete(e.contexts, positionID)
	for i, id := range e.order {
		if id == positionID {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
	mtxContexts.WithLabelValues(e.symbol).Set(float64(len(e.contexts)))
}

// Context returns a copy of the context for positionID
func (e *Engine) Context(positionID string) (*exit.Context, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	c, ok := e.contexts[positionID]
	if !ok {
		return nil, false
	}
	return c.Clone(), true
}

// Snapshot returns copies of every context in registration order
func (e *Engine) Snapshot() []*exit.Context {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*exit.Context, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.contexts[id].Clone())
	}
	return out
}

// Len returns the number of registered contexts
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.contexts)
}

// ids copies the registration order so handlers can remove while scanning
func (e *Engine) ids() []string {
	ids := make([]string, len(e.order))
	copy(ids, e.order)
	return ids
}

// ====================
// Event handlers
// ====================

// OnTick reconciles with the host and evaluates every context against q.
// Per-position failures are logged and retried on the next tick; only
// context cancellation is returned.
func (e *Engine) OnTick(ctx context.Context, q exit.Quote) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if q.Bid.IsPositive() || q.Ask.IsPositive() {
		e.lastQuote = q
	}

	if !e.reconcile(ctx, q) {
		return nil
	}

	for _, id := range e.ids() {
		c, ok := e.contexts[id]
		if !ok {
			continue
		}
		e.evaluateTick(ctx, c, q)
	}
	return nil
}

// OnBar feeds the volatility source and, for bar-close profiles, runs trailing
func (e *Engine) OnBar(ctx context.Context, bar exit.Bar) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if obs, ok := e.volatility.(exit.BarObserver); ok {
		obs.Observe(bar)
	}
	if !e.profile.TrailOnBarClose {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, id := range e.ids() {
		c, ok := e.contexts[id]
		if !ok {
			continue
		}
		guard := e.lastQuote.ExitPrice(c.Direction)
		if !guard.IsPositive() {
			guard = bar.Close
		}
		e.trail(ctx, c, bar.Close, guard)
	}
	return nil
}

// reconcile drops contexts whose position is gone and syncs the rest.
// It returns false when the host snapshot is unavailable.
func (e *Engine) reconcile(ctx context.Context, q exit.Quote) bool {
	positions, err := e.host.Positions(ctx, e.symbol)
	if err != nil {
		e.logger.Error().Err(err).Msg("Failed to read live positions, skipping tick")
		mtxHostFailures.WithLabelValues(e.symbol, opPositions).Inc()
		return false
	}

	live := make(map[string]exit.LivePosition, len(positions))
	for _, p := range positions {
		live[p.PositionID] = p
	}

	for _, id := range e.ids() {
		c := e.contexts[id]
		pos, ok := live[id]
		if !ok {
			e.closeContext(ctx, c, q)
			continue
		}
		c.SyncFromHost(pos)
		if c.Meta == nil && e.meta != nil {
			if meta, found := e.meta.Lookup(id); found {
				c.Meta = &meta
			}
		}
	}
	return true
}

func (e *Engine) evaluateTick(ctx context.Context, c *exit.Context, q exit.Quote) {
	switch c.Phase() {
	case exit.PhaseAwaitingTP1:
		if c.TP1Reached(q) {
			e.fillTP1(ctx, c, q)
		}
	case exit.PhaseTP1Filled:
		if !e.repairBreakeven(ctx, c) {
			return
		}
		if e.profile.TrailOnBarClose {
			return
		}
		price := q.ExitPrice(c.Direction)
		if !price.IsPositive() {
			e.logger.Debug().Str("position_id", c.PositionID).Msg("Quote has no exit side, trailing skipped")
			return
		}
		e.trail(ctx, c, price, price)
	}
}

// ====================
// Transitions
// ====================

// fillTP1 closes the TP1 fraction, then moves the stop to breakeven.
// Nothing is committed if the host refuses the partial close.
func (e *Engine) fillTP1(ctx context.Context, c *exit.Context, q exit.Quote) {
	if c.DefensiveOnly {
		return
	}

	fill := q.ExitPrice(c.Direction)
	volume := e.partialVolume(c)

	if volume.IsPositive() {
		if err := e.host.ClosePartial(ctx, c.PositionID, volume); err != nil {
			e.logger.Error().Err(err).
				Str("position_id", c.PositionID).
				Str("volume", volume.String()).
				Msg("TP1 partial close failed, retrying next tick")
			mtxHostFailures.WithLabelValues(e.symbol, opClosePartial).Inc()
			return
		}
	} else {
		e.logger.Warn().
			Str("position_id", c.PositionID).
			Str("remaining", c.RemainingVolume.String()).
			Msg("Remaining volume too small to split, TP1 without partial close")
	}

	be := c.MostProtective(e.instrument.RoundPrice(c.BreakevenCandidate()), c.LastKnownStopPrice)
	if err := c.MarkTP1(volume, be, fill); err != nil {
		e.logger.Error().Err(err).Str("position_id", c.PositionID).Msg("TP1 commit rejected")
		return
	}
	mtxTP1Fills.WithLabelValues(e.symbol).Inc()

	e.logger.Info().
		Str("position_id", c.PositionID).
		Str("fill", fill.String()).
		Str("closed", volume.String()).
		Str("remaining", c.RemainingVolume.String()).
		Str("breakeven", be.String()).
		Msg("✅ TP1 filled")

	if !be.Equal(c.LastKnownStopPrice) {
		e.moveStop(ctx, c, be, reasonBreakeven)
	}
}

// partialVolume returns the TP1 close volume: fraction of remaining rounded
// down to the step, at least the minimum, leaving at least the minimum open.
// Zero means no valid split exists.
func (e *Engine) partialVolume(c *exit.Context) decimal.Decimal {
	step, minVol := e.instrument.VolumeStep, e.instrument.MinVolume
	remaining := c.RemainingVolume

	raw := remaining.Mul(decimal.NewFromFloat(c.Targets.TP1CloseFraction))
	v := raw.Div(step).Floor().Mul(step)
	if v.LessThan(minVol) {
		v = minVol
	}
	if remaining.Sub(v).LessThan(minVol) {
		v = remaining.Sub(minVol).Div(step).Floor().Mul(step)
	}
	if v.LessThan(minVol) || !v.IsPositive() {
		return decimal.Zero
	}
	return v
}

// repairBreakeven re-sends the breakeven stop when the host stop is looser.
// Returns false if the stop is still below breakeven.
func (e *Engine) repairBreakeven(ctx context.Context, c *exit.Context) bool {
	if c.BreakevenPrice.IsZero() || c.AtLeastAsProtective(c.LastKnownStopPrice, c.BreakevenPrice) {
		return true
	}
	return e.moveStop(ctx, c, c.BreakevenPrice, reasonBreakevenRepair)
}

// trail moves the stop toward price minus the volatility distance.
// guard is the current exit-side quote the stop must stay behind; without
// a positive price and guard nothing moves.
func (e *Engine) trail(ctx context.Context, c *exit.Context, price, guard decimal.Decimal) {
	if !c.TrailingAllowed() {
		return
	}
	if !price.IsPositive() || !guard.IsPositive() {
		return
	}
	if e.volatility == nil {
		return
	}
	vol, ok := e.volatility.Volatility(e.symbol)
	if !ok {
		e.logger.Debug().Str("position_id", c.PositionID).Msg("Volatility unavailable, trailing skipped")
		return
	}
	mult, ok := e.profile.Multiplier(c.TrailingMode)
	if !ok {
		return
	}

	distance := vol.Mul(decimal.NewFromFloat(mult))
	proposed := e.instrument.RoundPrice(price.Sub(distance.Mul(c.Direction.Sign())))
	if !proposed.IsPositive() {
		return
	}
	stop := c.MostProtective(proposed, c.LastKnownStopPrice, c.BreakevenPrice)

	if stop.Equal(c.LastKnownStopPrice) {
		return
	}
	if !c.LastKnownStopPrice.IsZero() {
		ticks := e.instrument.PriceToTicks(c.StopImprovement(stop))
		if ticks.LessThan(decimal.NewFromInt(e.profile.MinImprovementSteps)) {
			e.logger.Debug().
				Str("position_id", c.PositionID).
				Str("stop", stop.String()).
				Msg("Trailing improvement below threshold")
			return
		}
	}
	// the stop must stay on the protective side of the market
	if !stop.Sub(guard).Mul(c.Direction.Sign()).IsNegative() {
		e.logger.Debug().
			Str("position_id", c.PositionID).
			Str("stop", stop.String()).
			Str("market", guard.String()).
			Msg("Trailing stop would cross the market")
		return
	}

	if e.moveStop(ctx, c, stop, reasonTrailing) {
		c.TrailingActivated = true
	}
}

// moveStop sends stop to the host and records it once accepted
func (e *Engine) moveStop(ctx context.Context, c *exit.Context, stop decimal.Decimal, reason string) bool {
	if !c.AtLeastAsProtective(stop, c.LastKnownStopPrice) ||
		(c.TP1Hit && !c.AtLeastAsProtective(stop, c.BreakevenPrice)) {
		e.logger.Error().
			Str("position_id", c.PositionID).
			Str("stop", stop.String()).
			Str("current", c.LastKnownStopPrice.String()).
			Str("reason", reason).
			Msg("Refusing stop move that loosens protection")
		return false
	}

	if err := e.host.ModifyStopAndTarget(ctx, c.PositionID, stop, c.TargetPrice); err != nil {
		e.logger.Error().Err(err).
			Str("position_id", c.PositionID).
			Str("stop", stop.String()).
			Str("reason", reason).
			Msg("Stop modification failed, retrying next tick")
		mtxHostFailures.WithLabelValues(e.symbol, opModifyStop).Inc()
		return false
	}

	prev := c.LastKnownStopPrice
	if err := c.ApplyStop(stop); err != nil {
		e.logger.Error().Err(err).Str("position_id", c.PositionID).Msg("Accepted stop not recorded")
		return false
	}
	mtxStopMoves.WithLabelValues(e.symbol, reason).Inc()

	e.logger.Info().
		Str("position_id", c.PositionID).
		Str("from", prev.String()).
		Str("to", stop.String()).
		Str("reason", reason).
		Msg("Stop moved")
	return true
}
