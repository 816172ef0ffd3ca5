package exit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Estalvo/GeminiV26-sub001/internal/domain/exit"
	"github.com/Estalvo/GeminiV26-sub001/internal/domain/sizing"
	"github.com/Estalvo/GeminiV26-sub001/internal/pkg/config"
	"github.com/Estalvo/GeminiV26-sub001/internal/service/pending"
	"github.com/Estalvo/GeminiV26-sub001/internal/service/volatility"
)

// ====================
// Fakes
// ====================

type modifyCall struct {
	id     string
	stop   decimal.Decimal
	target decimal.Decimal
}

type fakeHost struct {
	positions map[string]*exit.LivePosition
	order     []string

	closes   []decimal.Decimal
	modifies []modifyCall

	failClose     int
	failModify    int
	failPositions bool
}

func newFakeHost() *fakeHost {
	return &fakeHost{positions: make(map[string]*exit.LivePosition)}
}

func (h *fakeHost) add(p exit.LivePosition) {
	h.positions[p.PositionID] = &p
	h.order = append(h.order, p.PositionID)
}

func (h *fakeHost) remove(id string) {
	delete(h.positions, id)
}

func (h *fakeHost) Positions(_ context.Context, symbol string) ([]exit.LivePosition, error) {
	if h.failPositions {
		return nil, errors.New("host offline")
	}
	var out []exit.LivePosition
	for _, id := range h.order {
		if p, ok := h.positions[id]; ok && p.Symbol == symbol {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (h *fakeHost) ClosePartial(_ context.Context, id string, volume decimal.Decimal) error {
	if h.failClose > 0 {
		h.failClose--
		return exit.ErrHostRejected
	}
	p, ok := h.positions[id]
	if !ok {
		return exit.ErrPositionNotFound
	}
	p.Volume = p.Volume.Sub(volume)
	h.closes = append(h.closes, volume)
	return nil
}

func (h *fakeHost) ModifyStopAndTarget(_ context.Context, id string, stop, target decimal.Decimal) error {
	if h.failModify > 0 {
		h.failModify--
		return exit.ErrHostRejected
	}
	p, ok := h.positions[id]
	if !ok {
		return exit.ErrPositionNotFound
	}
	p.StopPrice = stop
	p.TargetPrice = target
	h.modifies = append(h.modifies, modifyCall{id: id, stop: stop, target: target})
	return nil
}

func (h *fakeHost) PlaceMarketOrder(context.Context, exit.OrderRequest) (*exit.LivePosition, error) {
	return nil, errors.New("not supported")
}

type recordingSink struct {
	records []*exit.TradeRecord
}

func (s *recordingSink) RecordTrade(_ context.Context, rec *exit.TradeRecord) error {
	s.records = append(s.records, rec)
	return nil
}

// ====================
// Helpers
// ====================

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDec(t *testing.T, want string, got decimal.Decimal, note ...string) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "want %s got %s %v", want, got.String(), note)
}

func catalog(t *testing.T) *config.Catalog {
	t.Helper()
	c, err := config.DefaultCatalog()
	require.NoError(t, err)
	return c
}

func quote(symbol, bid string) exit.Quote {
	b := dec(bid)
	return exit.Quote{Symbol: symbol, Bid: b, Ask: b.Add(dec("0.01")), TS: time.Now()}
}

// btcSetup registers the reference long: entry 50000, stop 49000, volume 2
func btcSetup(t *testing.T, vol exit.VolatilitySource) (*Engine, *fakeHost, *exit.Context) {
	t.Helper()
	cat := catalog(t)
	host := newFakeHost()

	e, err := NewEngine(Config{Symbol: "BTCUSD", Host: host, Instruments: cat, Volatility: vol})
	require.NoError(t, err)

	c := btcContext(t, e, "1", exit.DirectionLong, "50000", "49000", "52000")
	host.add(exit.LivePosition{
		PositionID: "1", Symbol: "BTCUSD", Direction: exit.DirectionLong,
		EntryPrice: dec("50000"), Volume: dec("2"), StopPrice: dec("49000"), TargetPrice: dec("52000"),
	})
	require.NoError(t, e.RegisterContext(c))
	return e, host, c
}

func btcContext(t *testing.T, e *Engine, id string, dir exit.Direction, entry, stop, target string) *exit.Context {
	t.Helper()
	c, err := exit.NewContext(exit.ContextParams{
		PositionID:   id,
		Symbol:       "BTCUSD",
		Direction:    dir,
		EntryPrice:   dec(entry),
		RiskDistance: dec(entry).Sub(dec(stop)).Abs(),
		Volume:       dec("2"),
		StopPrice:    dec(stop),
		TargetPrice:  dec(target),
		Targets:      e.Policy().Neutral().Targets(e.Profile().BreakevenOffsetR),
	})
	require.NoError(t, err)
	return c
}

// ====================
// Construction / registry
// ====================

func TestNewEngine_Unconfigured(t *testing.T) {
	_, err := NewEngine(Config{Symbol: "ETHUSD", Host: newFakeHost(), Instruments: catalog(t)})
	assert.ErrorIs(t, err, sizing.ErrUnconfiguredInstrument)

	_, err = NewEngine(Config{Symbol: "BTCUSD", Instruments: catalog(t)})
	assert.Error(t, err)
}

func TestEngine_Registry(t *testing.T) {
	e, _, c := btcSetup(t, nil)

	t.Run("last write wins", func(t *testing.T) {
		replacement := c.Clone()
		replacement.TrailingMode = exit.TrailingLoose
		require.NoError(t, e.RegisterContext(replacement))

		assert.Equal(t, 1, e.Len())
		got, ok := e.Context("1")
		require.True(t, ok)
		assert.Equal(t, exit.TrailingLoose, got.TrailingMode)
	})

	t.Run("wrong symbol rejected", func(t *testing.T) {
		other := c.Clone()
		other.PositionID = "x"
		other.Symbol = "EURUSD"
		assert.Error(t, e.RegisterContext(other))
	})

	t.Run("unregister is idempotent", func(t *testing.T) {
		e.Unregister("1")
		e.Unregister("1")
		e.Unregister("never")
		assert.Equal(t, 0, e.Len())
		assert.Empty(t, e.Snapshot())
	})
}

// ====================
// TP1 / breakeven
// ====================

func TestEngine_TP1(t *testing.T) {
	ctx := context.Background()
	e, host, _ := btcSetup(t, nil)

	require.NoError(t, e.OnTick(ctx, quote("BTCUSD", "50300")))

	c, ok := e.Context("1")
	require.True(t, ok)
	assert.True(t, c.TP1Hit)
	assert.Equal(t, exit.PhaseTP1Filled, c.Phase())
	assert.Equal(t, exit.TrailingNormal, c.TrailingMode)
	assertDec(t, "1", c.ClosedVolumeAtTP1)
	assertDec(t, "1", c.RemainingVolume)
	assertDec(t, "50050", c.BreakevenPrice)
	assertDec(t, "50050", c.LastKnownStopPrice)
	assertDec(t, "50300", c.TP1FillPrice)

	require.Len(t, host.closes, 1)
	assertDec(t, "1", host.closes[0])
	require.Len(t, host.modifies, 1)
	assertDec(t, "50050", host.modifies[0].stop)
	assertDec(t, "52000", host.modifies[0].target, "target unchanged")

	t.Run("fires at most once", func(t *testing.T) {
		for _, bid := range []string{"50300", "50350", "50301", "50400"} {
			require.NoError(t, e.OnTick(ctx, quote("BTCUSD", bid)))
		}
		assert.Len(t, host.closes, 1)
		c, _ := e.Context("1")
		assertDec(t, "1", c.ClosedVolumeAtTP1)
	})
}

func TestEngine_TP1Short(t *testing.T) {
	ctx := context.Background()
	cat := catalog(t)
	host := newFakeHost()
	e, err := NewEngine(Config{Symbol: "BTCUSD", Host: host, Instruments: cat})
	require.NoError(t, err)

	c := btcContext(t, e, "s", exit.DirectionShort, "50000", "51000", "48000")
	host.add(exit.LivePosition{
		PositionID: "s", Symbol: "BTCUSD", Direction: exit.DirectionShort,
		EntryPrice: dec("50000"), Volume: dec("2"), StopPrice: dec("51000"), TargetPrice: dec("48000"),
	})
	require.NoError(t, e.RegisterContext(c))

	// ask 49700.01 is still above TP1 49700
	require.NoError(t, e.OnTick(ctx, quote("BTCUSD", "49700")))
	got, _ := e.Context("s")
	assert.False(t, got.TP1Hit)

	require.NoError(t, e.OnTick(ctx, quote("BTCUSD", "49690")))
	got, _ = e.Context("s")
	assert.True(t, got.TP1Hit)
	assertDec(t, "49950", got.LastKnownStopPrice)
}

func TestEngine_NoPrematureTrailing(t *testing.T) {
	ctx := context.Background()
	e, host, _ := btcSetup(t, volatility.Static{"BTCUSD": dec("100")})

	for _, bid := range []string{"50200", "50299.99", "49500", "50100"} {
		require.NoError(t, e.OnTick(ctx, quote("BTCUSD", bid)))
	}

	c, _ := e.Context("1")
	assert.False(t, c.TP1Hit)
	assert.Equal(t, exit.TrailingNone, c.TrailingMode)
	assertDec(t, "49000", c.LastKnownStopPrice)
	assert.Empty(t, host.modifies)
	assert.Empty(t, host.closes)
}

func TestEngine_PartialCloseRejected(t *testing.T) {
	ctx := context.Background()
	e, host, _ := btcSetup(t, nil)
	host.failClose = 1

	require.NoError(t, e.OnTick(ctx, quote("BTCUSD", "50300")))
	c, _ := e.Context("1")
	assert.False(t, c.TP1Hit, "nothing commits when the close fails")
	assertDec(t, "2", c.RemainingVolume)
	assert.Empty(t, host.modifies)

	require.NoError(t, e.OnTick(ctx, quote("BTCUSD", "50320")))
	c, _ = e.Context("1")
	assert.True(t, c.TP1Hit)
	assert.Len(t, host.closes, 1)
}

func TestEngine_BreakevenRepair(t *testing.T) {
	ctx := context.Background()
	e, host, _ := btcSetup(t, nil)
	host.failModify = 1

	require.NoError(t, e.OnTick(ctx, quote("BTCUSD", "50300")))
	c, _ := e.Context("1")
	assert.True(t, c.TP1Hit)
	assertDec(t, "49000", c.LastKnownStopPrice, "rejected move not recorded")

	require.NoError(t, e.OnTick(ctx, quote("BTCUSD", "50310")))
	c, _ = e.Context("1")
	assertDec(t, "50050", c.LastKnownStopPrice)
	require.Len(t, host.modifies, 1)
	assertDec(t, "50050", host.positions["1"].StopPrice)
	assert.Len(t, host.closes, 1, "repair never repeats the partial close")
}

func TestEngine_VolumeConservation(t *testing.T) {
	e, _, _ := btcSetup(t, nil)

	for _, v := range []string{"0.01", "0.02", "0.03", "0.05", "0.11", "1.37", "2", "7.77"} {
		t.Run(v, func(t *testing.T) {
			c := btcContext(t, e, "v"+v, exit.DirectionLong, "50000", "49000", "52000")
			c.RemainingVolume = dec(v)
			c.EntryVolume = dec(v)

			closed := e.partialVolume(c)
			require.NoError(t, c.MarkTP1(closed, dec("50050"), dec("50300")))

			assertDec(t, v, c.ClosedVolumeAtTP1.Add(c.RemainingVolume))
			if closed.IsPositive() {
				assert.True(t, closed.GreaterThanOrEqual(dec("0.01")))
				assert.True(t, c.RemainingVolume.GreaterThanOrEqual(dec("0.01")))
			}
		})
	}
}

// ====================
// Trailing
// ====================

func TestEngine_Trailing(t *testing.T) {
	ctx := context.Background()
	e, host, _ := btcSetup(t, volatility.Static{"BTCUSD": dec("500")})

	require.NoError(t, e.OnTick(ctx, quote("BTCUSD", "50300")))
	require.Len(t, host.modifies, 1)

	t.Run("clamped to breakeven is no update", func(t *testing.T) {
		// 50500 - 500×1.8 = 49600, below breakeven 50050
		require.NoError(t, e.OnTick(ctx, quote("BTCUSD", "50500")))
		assert.Len(t, host.modifies, 1)
		c, _ := e.Context("1")
		assertDec(t, "50050", c.LastKnownStopPrice)
		assert.False(t, c.TrailingActivated)
	})

	t.Run("advances with price", func(t *testing.T) {
		require.NoError(t, e.OnTick(ctx, quote("BTCUSD", "51500")))
		c, _ := e.Context("1")
		assertDec(t, "50600", c.LastKnownStopPrice)
		assert.True(t, c.TrailingActivated)
	})

	t.Run("never loosens", func(t *testing.T) {
		moves := len(host.modifies)
		require.NoError(t, e.OnTick(ctx, quote("BTCUSD", "51200")))
		c, _ := e.Context("1")
		assertDec(t, "50600", c.LastKnownStopPrice)
		assert.Len(t, host.modifies, moves)
	})

	t.Run("below min improvement", func(t *testing.T) {
		moves := len(host.modifies)
		// +5 < 10 (1000 ticks of 0.01)
		require.NoError(t, e.OnTick(ctx, quote("BTCUSD", "51505")))
		assert.Len(t, host.modifies, moves)
	})

	t.Run("every accepted stop is monotonic", func(t *testing.T) {
		for _, bid := range []string{"51800", "51700", "52300", "52000", "53000"} {
			require.NoError(t, e.OnTick(ctx, quote("BTCUSD", bid)))
		}
		prev := dec("49000")
		for _, m := range host.modifies {
			assert.True(t, m.stop.GreaterThanOrEqual(prev), m.stop.String())
			assert.True(t, m.stop.GreaterThanOrEqual(dec("50050")))
			prev = m.stop
		}
	})
}

func TestEngine_OneSidedQuotes(t *testing.T) {
	ctx := context.Background()
	vol := volatility.Static{"BTCUSD": dec("500")}
	ts := time.Now()

	t.Run("long", func(t *testing.T) {
		e, host, _ := btcSetup(t, vol)
		require.NoError(t, e.OnTick(ctx, quote("BTCUSD", "50300")))
		moves := len(host.modifies)

		// ask only: no bid to trail from
		require.NoError(t, e.OnTick(ctx, exit.Quote{Symbol: "BTCUSD", Ask: dec("51500"), TS: ts}))
		c, _ := e.Context("1")
		assertDec(t, "50050", c.LastKnownStopPrice)
		assert.Len(t, host.modifies, moves)

		// bid only: the long exit side is present
		require.NoError(t, e.OnTick(ctx, exit.Quote{Symbol: "BTCUSD", Bid: dec("51500"), TS: ts}))
		c, _ = e.Context("1")
		assertDec(t, "50600", c.LastKnownStopPrice)
	})

	t.Run("short", func(t *testing.T) {
		host := newFakeHost()
		e, err := NewEngine(Config{Symbol: "BTCUSD", Host: host, Instruments: catalog(t), Volatility: vol})
		require.NoError(t, err)

		c := btcContext(t, e, "s", exit.DirectionShort, "50000", "51000", "48000")
		host.add(exit.LivePosition{
			PositionID: "s", Symbol: "BTCUSD", Direction: exit.DirectionShort,
			EntryPrice: dec("50000"), Volume: dec("2"), StopPrice: dec("51000"), TargetPrice: dec("48000"),
		})
		require.NoError(t, e.RegisterContext(c))

		require.NoError(t, e.OnTick(ctx, quote("BTCUSD", "49690")))
		got, _ := e.Context("s")
		require.True(t, got.TP1Hit)
		assertDec(t, "49950", got.LastKnownStopPrice)
		moves := len(host.modifies)

		// bid only: the short exit side is missing
		require.NoError(t, e.OnTick(ctx, exit.Quote{Symbol: "BTCUSD", Bid: dec("49600"), TS: ts}))
		got, _ = e.Context("s")
		assertDec(t, "49950", got.LastKnownStopPrice)
		assert.Len(t, host.modifies, moves)

		// ask only: 48500 + 500×1.8 = 49400
		require.NoError(t, e.OnTick(ctx, exit.Quote{Symbol: "BTCUSD", Ask: dec("48500"), TS: ts}))
		got, _ = e.Context("s")
		assertDec(t, "49400", got.LastKnownStopPrice)

		for _, m := range host.modifies {
			assert.True(t, m.stop.LessThanOrEqual(dec("49950")), m.stop.String())
		}
	})
}

func TestEngine_TrailingGuard(t *testing.T) {
	ctx := context.Background()
	e, host, _ := btcSetup(t, volatility.Static{"BTCUSD": dec("0.001")})

	require.NoError(t, e.OnTick(ctx, quote("BTCUSD", "50300")))
	moves := len(host.modifies)

	// proposed stop rounds onto the bid itself
	require.NoError(t, e.OnTick(ctx, quote("BTCUSD", "51000")))
	assert.Len(t, host.modifies, moves)
}

func TestEngine_VolatilityUnavailable(t *testing.T) {
	ctx := context.Background()
	e, host, _ := btcSetup(t, volatility.NewATRTracker(14, ""))

	require.NoError(t, e.OnTick(ctx, quote("BTCUSD", "50300")))
	require.NoError(t, e.OnTick(ctx, quote("BTCUSD", "55000")))
	assert.Len(t, host.modifies, 1, "only the breakeven move")
}

func TestEngine_TrailOnBarClose(t *testing.T) {
	ctx := context.Background()
	cat := catalog(t)
	host := newFakeHost()
	vol := volatility.Static{"XAUUSD": dec("3")}

	e, err := NewEngine(Config{Symbol: "XAUUSD", Host: host, Instruments: cat, Volatility: vol})
	require.NoError(t, err)
	require.True(t, e.Profile().TrailOnBarClose)

	c, err := exit.NewContext(exit.ContextParams{
		PositionID:   "g1",
		Symbol:       "XAUUSD",
		Direction:    exit.DirectionLong,
		EntryPrice:   dec("2000"),
		RiskDistance: dec("10"),
		Volume:       dec("10"),
		StopPrice:    dec("1990"),
		Targets:      e.Policy().Neutral().Targets(e.Profile().BreakevenOffsetR),
	})
	require.NoError(t, err)
	host.add(exit.LivePosition{
		PositionID: "g1", Symbol: "XAUUSD", Direction: exit.DirectionLong,
		EntryPrice: dec("2000"), Volume: dec("10"), StopPrice: dec("1990"),
	})
	require.NoError(t, e.RegisterContext(c))

	require.NoError(t, e.OnTick(ctx, quote("XAUUSD", "2004")))
	got, _ := e.Context("g1")
	require.True(t, got.TP1Hit)
	assertDec(t, "4", got.ClosedVolumeAtTP1)
	assertDec(t, "2000.8", got.LastKnownStopPrice)

	require.NoError(t, e.OnTick(ctx, quote("XAUUSD", "2020")))
	got, _ = e.Context("g1")
	assertDec(t, "2000.8", got.LastKnownStopPrice, "ticks do not trail")

	bar := exit.Bar{Symbol: "XAUUSD", Timeframe: "M15", Open: dec("2010"), High: dec("2021"), Low: dec("2009"), Close: dec("2020")}
	require.NoError(t, e.OnBar(ctx, bar))
	got, _ = e.Context("g1")
	assertDec(t, "2014", got.LastKnownStopPrice)
	assert.True(t, got.TrailingActivated)
}

func TestEngine_OnBarFeedsObserver(t *testing.T) {
	tracker := volatility.NewATRTracker(3, "")
	e, _, _ := btcSetup(t, tracker)

	bar := exit.Bar{Symbol: "BTCUSD", High: dec("50100"), Low: dec("49900"), Close: dec("50000")}
	require.NoError(t, e.OnBar(context.Background(), bar))
	assert.Equal(t, 1, tracker.Bars("BTCUSD"))
}

// ====================
// Reconciliation
// ====================

func TestEngine_CloseEmitsTradeRecord(t *testing.T) {
	ctx := context.Background()
	cat := catalog(t)
	host := newFakeHost()
	sink := &recordingSink{}
	store := pending.NewStore()

	e, err := NewEngine(Config{Symbol: "BTCUSD", Host: host, Instruments: cat, Sink: sink, Meta: store})
	require.NoError(t, err)

	store.RegisterPending("BTCUSD", exit.Metadata{EntryType: "breakout", Reason: "range break", Confidence: 72})
	require.True(t, store.BindToPosition("1", "BTCUSD"))

	c := btcContext(t, e, "1", exit.DirectionLong, "50000", "49000", "52000")
	host.add(exit.LivePosition{
		PositionID: "1", Symbol: "BTCUSD", Direction: exit.DirectionLong,
		EntryPrice: dec("50000"), Volume: dec("2"), StopPrice: dec("49000"), TargetPrice: dec("52000"),
	})
	require.NoError(t, e.RegisterContext(c))

	require.NoError(t, e.OnTick(ctx, quote("BTCUSD", "50300")))
	host.remove("1")
	require.NoError(t, e.OnTick(ctx, quote("BTCUSD", "50040")))

	assert.Equal(t, 0, e.Len())
	_, bound := store.Lookup("1")
	assert.False(t, bound, "metadata dropped with the context")

	require.Len(t, sink.records, 1)
	rec := sink.records[0]
	assert.Equal(t, "1", rec.PositionID)
	assert.True(t, rec.TP1Hit)
	assert.False(t, rec.TP2Hit)
	assert.True(t, rec.BreakevenActivated)
	assert.False(t, rec.TrailingActivated)
	assertDec(t, "50040", rec.ExitPrice)
	assertDec(t, "1", rec.ClosedVolumeAtTP1)
	assertDec(t, "50050", rec.FinalStop)
	// 300 on the TP1 half + 40 on the rest
	assertDec(t, "340", rec.RealizedPnL)
	assert.Equal(t, "breakout", rec.EntryType)
	assert.Equal(t, 72, rec.Confidence)
	assert.NotEmpty(t, rec.ID)
}

func TestEngine_RemovalDuringScan(t *testing.T) {
	ctx := context.Background()
	e, host, _ := btcSetup(t, nil)

	for _, id := range []string{"2", "3"} {
		require.NoError(t, e.RegisterContext(btcContext(t, e, id, exit.DirectionLong, "50000", "49000", "52000")))
		host.add(exit.LivePosition{
			PositionID: id, Symbol: "BTCUSD", Direction: exit.DirectionLong,
			EntryPrice: dec("50000"), Volume: dec("2"), StopPrice: dec("49000"),
		})
	}
	host.remove("2")

	require.NoError(t, e.OnTick(ctx, quote("BTCUSD", "50300")))

	snap := e.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "1", snap[0].PositionID)
	assert.Equal(t, "3", snap[1].PositionID)
	for _, c := range snap {
		assert.True(t, c.TP1Hit, c.PositionID)
	}
	assert.Len(t, host.closes, 2, "each survivor visited once")
}

func TestEngine_HostSnapshotUnavailable(t *testing.T) {
	ctx := context.Background()
	e, host, _ := btcSetup(t, nil)
	host.failPositions = true

	require.NoError(t, e.OnTick(ctx, quote("BTCUSD", "50300")))
	c, ok := e.Context("1")
	require.True(t, ok)
	assert.False(t, c.TP1Hit)
	assert.Empty(t, host.closes)
}

func TestEngine_VolumeSyncsDownward(t *testing.T) {
	ctx := context.Background()
	e, host, _ := btcSetup(t, nil)

	host.positions["1"].Volume = dec("1.5")
	require.NoError(t, e.OnTick(ctx, quote("BTCUSD", "50100")))
	c, _ := e.Context("1")
	assertDec(t, "1.5", c.RemainingVolume)

	host.positions["1"].Volume = dec("3")
	require.NoError(t, e.OnTick(ctx, quote("BTCUSD", "50100")))
	c, _ = e.Context("1")
	assertDec(t, "1.5", c.RemainingVolume)
}

func TestEngine_CancelledContext(t *testing.T) {
	e, _, _ := btcSetup(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, e.OnTick(ctx, quote("BTCUSD", "50300")), context.Canceled)
	assert.ErrorIs(t, e.OnBar(ctx, exit.Bar{}), context.Canceled)
}
