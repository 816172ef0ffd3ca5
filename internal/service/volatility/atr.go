package volatility

import (
	"sync"

	"github.com/markcheno/go-talib"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/Estalvo/GeminiV26-sub001/internal/domain/exit"
)

const (
	DefaultPeriod = 14

	// bars kept per symbol = period × historyFactor
	historyFactor = 10
)

type series struct {
	highs  []float64
	lows   []float64
	closes []float64
}

func (s *series) push(bar exit.Bar, max int) {
	s.highs = append(s.highs, bar.High.InexactFloat64())
	s.lows = append(s.lows, bar.Low.InexactFloat64())
	s.closes = append(s.closes, bar.Close.InexactFloat64())
	if n := len(s.closes); n > max {
		s.highs = s.highs[n-max:]
		s.lows = s.lows[n-max:]
		s.closes = s.closes[n-max:]
	}
}

// ATRTracker keeps closed-bar history per symbol and exposes the
// Average True Range as the exit engine's volatility measure.
type ATRTracker struct {
	period    int
	timeframe string // empty = accept every timeframe

	mu     sync.RWMutex
	series map[string]*series
}

// NewATRTracker creates a tracker; period <= 0 uses DefaultPeriod
func NewATRTracker(period int, timeframe string) *ATRTracker {
	if period <= 0 {
		period = DefaultPeriod
	}
	return &ATRTracker{
		period:    period,
		timeframe: timeframe,
		series:    make(map[string]*series),
	}
}

// Period returns the ATR lookback
func (t *ATRTracker) Period() int {
	return t.period
}

// Observe appends a closed bar (implements exit.BarObserver)
func (t *ATRTracker) Observe(bar exit.Bar) {
	if t.timeframe != "" && bar.Timeframe != t.timeframe {
		return
	}
	if !bar.High.IsPositive() || bar.Low.GreaterThan(bar.High) {
		log.Debug().Str("symbol", bar.Symbol).Msg("Ignoring malformed bar")
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.series[bar.Symbol]
	if !ok {
		s = &series{}
		t.series[bar.Symbol] = s
	}
	s.push(bar, t.period*historyFactor)
}

// Volatility returns the latest ATR (implements exit.VolatilitySource).
// ok is false until more than period bars have been observed.
func (t *ATRTracker) Volatility(symbol string) (decimal.Decimal, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.series[symbol]
	if !ok || len(s.closes) <= t.period {
		return decimal.Zero, false
	}

	values := talib.Atr(s.highs, s.lows, s.closes, t.period)
	if len(values) == 0 {
		return decimal.Zero, false
	}
	atr := values[len(values)-1]
	if atr <= 0 {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(atr), true
}

// Bars returns how many bars are held for symbol
func (t *ATRTracker) Bars(symbol string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if s, ok := t.series[symbol]; ok {
		return len(s.closes)
	}
	return 0
}

// Static is a fixed per-symbol volatility source, used by replays and tests
type Static map[string]decimal.Decimal

// Volatility implements exit.VolatilitySource
func (s Static) Volatility(symbol string) (decimal.Decimal, bool) {
	v, ok := s[symbol]
	if !ok || !v.IsPositive() {
		return decimal.Zero, false
	}
	return v, true
}
