package paper

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Estalvo/GeminiV26-sub001/internal/domain/exit"
	"github.com/Estalvo/GeminiV26-sub001/internal/pkg/config"
	exitsvc "github.com/Estalvo/GeminiV26-sub001/internal/service/exit"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func q(symbol, bid, ask string) exit.Quote {
	return exit.Quote{Symbol: symbol, Bid: dec(bid), Ask: dec(ask), TS: time.Now()}
}

func newHost(t *testing.T) *Host {
	t.Helper()
	cat, err := config.DefaultCatalog()
	require.NoError(t, err)
	return NewHost(cat, dec("10000"), 100)
}

func TestHost_Orders(t *testing.T) {
	ctx := context.Background()
	h := newHost(t)

	_, err := h.PlaceMarketOrder(ctx, exit.OrderRequest{Symbol: "BTCUSD", Direction: exit.DirectionLong, Volume: dec("1")})
	assert.ErrorIs(t, err, exit.ErrHostRejected, "no quote yet")

	h.SetQuote(q("BTCUSD", "49999", "50000"))

	long, err := h.PlaceMarketOrder(ctx, exit.OrderRequest{
		Symbol: "BTCUSD", Direction: exit.DirectionLong, Volume: dec("2"),
		StopDistance: dec("1000"), TargetDistance: dec("2000"),
	})
	require.NoError(t, err)
	assert.Equal(t, "100", long.PositionID)
	assert.True(t, long.EntryPrice.Equal(dec("50000")), "long fills at ask")
	assert.True(t, long.StopPrice.Equal(dec("49000")))
	assert.True(t, long.TargetPrice.Equal(dec("52000")))

	short, err := h.PlaceMarketOrder(ctx, exit.OrderRequest{
		Symbol: "BTCUSD", Direction: exit.DirectionShort, Volume: dec("1"), StopDistance: dec("500"),
	})
	require.NoError(t, err)
	assert.Equal(t, "101", short.PositionID)
	assert.True(t, short.EntryPrice.Equal(dec("49999")), "short fills at bid")
	assert.True(t, short.StopPrice.Equal(dec("50499")))
	assert.True(t, short.TargetPrice.IsZero())

	positions, err := h.Positions(ctx, "BTCUSD")
	require.NoError(t, err)
	assert.Len(t, positions, 2)

	none, err := h.Positions(ctx, "EURUSD")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestHost_ClosePartial(t *testing.T) {
	ctx := context.Background()
	h := newHost(t)
	h.SetQuote(q("BTCUSD", "50000", "50000"))

	p, err := h.PlaceMarketOrder(ctx, exit.OrderRequest{Symbol: "BTCUSD", Direction: exit.DirectionLong, Volume: dec("2")})
	require.NoError(t, err)

	h.SetQuote(q("BTCUSD", "50300", "50301"))
	require.NoError(t, h.ClosePartial(ctx, p.PositionID, dec("1")))

	bal, _ := h.Balance(ctx)
	assert.True(t, bal.Equal(dec("10300")), bal.String())

	positions, _ := h.Positions(ctx, "BTCUSD")
	require.Len(t, positions, 1)
	assert.True(t, positions[0].Volume.Equal(dec("1")))

	assert.ErrorIs(t, h.ClosePartial(ctx, p.PositionID, dec("5")), exit.ErrHostRejected)
	assert.ErrorIs(t, h.ClosePartial(ctx, "nope", dec("1")), exit.ErrPositionNotFound)

	require.NoError(t, h.ClosePartial(ctx, p.PositionID, dec("1")))
	positions, _ = h.Positions(ctx, "BTCUSD")
	assert.Empty(t, positions, "closing the rest removes the position")
}

func TestHost_ModifyStopGuard(t *testing.T) {
	ctx := context.Background()
	h := newHost(t)
	h.SetQuote(q("EURUSD", "1.1000", "1.1001"))

	p, err := h.PlaceMarketOrder(ctx, exit.OrderRequest{Symbol: "EURUSD", Direction: exit.DirectionLong, Volume: dec("10000")})
	require.NoError(t, err)

	assert.ErrorIs(t, h.ModifyStopAndTarget(ctx, p.PositionID, dec("1.1000"), decimal.Zero), exit.ErrHostRejected)
	require.NoError(t, h.ModifyStopAndTarget(ctx, p.PositionID, dec("1.0990"), dec("1.1100")))

	positions, _ := h.Positions(ctx, "EURUSD")
	assert.True(t, positions[0].StopPrice.Equal(dec("1.0990")))
	assert.True(t, positions[0].TargetPrice.Equal(dec("1.1100")))
}

func TestHost_QuoteFills(t *testing.T) {
	ctx := context.Background()
	h := newHost(t)
	h.Seed(exit.LivePosition{PositionID: "s1", Symbol: "XAUUSD", Direction: exit.DirectionLong, EntryPrice: dec("2000"), Volume: dec("10"), StopPrice: dec("1990")})
	h.Seed(exit.LivePosition{PositionID: "t1", Symbol: "XAUUSD", Direction: exit.DirectionShort, EntryPrice: dec("2000"), Volume: dec("10"), TargetPrice: dec("1985")})

	assert.Empty(t, h.SetQuote(q("XAUUSD", "1995", "1995.5")))
	assert.Equal(t, []string{"s1"}, h.SetQuote(q("XAUUSD", "1989", "1989.5")))
	assert.Equal(t, []string{"t1"}, h.SetQuote(q("XAUUSD", "1984", "1984.5")))

	fills := h.Fills()
	require.Len(t, fills, 2)
	assert.Equal(t, "stop", fills[0].Reason)
	assert.True(t, fills[0].PnL.Equal(dec("-100")), fills[0].PnL.String())
	assert.Equal(t, "target", fills[1].Reason)
	assert.True(t, fills[1].PnL.Equal(dec("150")), fills[1].PnL.String())

	bal, _ := h.Balance(ctx)
	assert.True(t, bal.Equal(dec("10050")))
}

// The engine drives the paper host through TP1, breakeven and a stop-out.
func TestHost_WithExitEngine(t *testing.T) {
	ctx := context.Background()
	cat, err := config.DefaultCatalog()
	require.NoError(t, err)
	h := NewHost(cat, dec("10000"), 1)

	sink := &captureSink{}
	e, err := exitsvc.NewEngine(exitsvc.Config{Symbol: "BTCUSD", Host: h, Instruments: cat, Sink: sink})
	require.NoError(t, err)

	h.Seed(exit.LivePosition{
		PositionID: "777", Symbol: "BTCUSD", Direction: exit.DirectionLong,
		EntryPrice: dec("50000"), Volume: dec("2"), StopPrice: dec("49000"),
	})
	n, err := e.Rehydrate(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	tick := func(bid string) {
		quote := q("BTCUSD", bid, bid)
		h.SetQuote(quote)
		require.NoError(t, e.OnTick(ctx, quote))
	}

	tick("50300")
	c, ok := e.Context("777")
	require.True(t, ok)
	assert.True(t, c.TP1Hit)

	positions, _ := h.Positions(ctx, "BTCUSD")
	require.Len(t, positions, 1)
	assert.True(t, positions[0].StopPrice.Equal(dec("50050")))
	assert.True(t, positions[0].Volume.Equal(dec("1")))

	tick("50040")
	assert.Equal(t, 0, e.Len())
	require.Len(t, sink.records, 1)
	assert.True(t, sink.records[0].Rehydrated)
	assert.True(t, sink.records[0].BreakevenActivated)
}

type captureSink struct {
	records []*exit.TradeRecord
}

func (s *captureSink) RecordTrade(_ context.Context, rec *exit.TradeRecord) error {
	s.records = append(s.records, rec)
	return nil
}
