package entry

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Estalvo/GeminiV26-sub001/internal/domain/exit"
	"github.com/Estalvo/GeminiV26-sub001/internal/domain/sizing"
	"github.com/Estalvo/GeminiV26-sub001/internal/infra/paper"
	"github.com/Estalvo/GeminiV26-sub001/internal/pkg/config"
	exitsvc "github.com/Estalvo/GeminiV26-sub001/internal/service/exit"
	"github.com/Estalvo/GeminiV26-sub001/internal/service/pending"
	"github.com/Estalvo/GeminiV26-sub001/internal/service/volatility"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fixture struct {
	svc   *Service
	host  *paper.Host
	store *pending.Store
	btc   *exitsvc.Engine
}

func setup(t *testing.T, balance string, keyBySymbol bool) fixture {
	t.Helper()
	cat, err := config.DefaultCatalog()
	require.NoError(t, err)

	host := paper.NewHost(cat, dec(balance), 1)
	host.SetQuote(exit.Quote{Symbol: "BTCUSD", Bid: dec("50000"), Ask: dec("50000"), TS: time.Now()})

	store := pending.NewStore()
	vol := volatility.Static{"BTCUSD": dec("400"), "NAS100": dec("40")}

	var engines []*exitsvc.Engine
	for _, sym := range []string{"BTCUSD", "NAS100"} {
		e, err := exitsvc.NewEngine(exitsvc.Config{Symbol: sym, Host: host, Instruments: cat, Volatility: vol, Meta: store})
		require.NoError(t, err)
		engines = append(engines, e)
	}

	svc, err := NewService(Config{
		Host:        host,
		Account:     host,
		Volatility:  vol,
		Store:       store,
		Engines:     engines,
		Resolver:    cat.Registry(),
		KeyBySymbol: keyBySymbol,
	})
	require.NoError(t, err)
	return fixture{svc: svc, host: host, store: store, btc: engines[0]}
}

func TestService_Open(t *testing.T) {
	ctx := context.Background()
	f := setup(t, "10000", false)

	c, err := f.svc.Open(ctx, Request{Symbol: "BTCUSD", Direction: exit.DirectionLong, Score: 80, EntryType: "breakout", Reason: "range break"})
	require.NoError(t, err)

	// 400 × 1.94 = 776 stop; 0.4367% of 10000 over 776 -> 0.05
	assert.True(t, c.RiskDistance.Equal(dec("776")), c.RiskDistance.String())
	assert.True(t, c.EntryVolume.Equal(dec("0.05")), c.EntryVolume.String())
	assert.True(t, c.LastKnownStopPrice.Equal(dec("49224")), c.LastKnownStopPrice.String())
	assert.False(t, c.Rehydrated)
	require.NotNil(t, c.Meta)
	assert.Equal(t, "breakout", c.Meta.EntryType)
	assert.Equal(t, 80, c.Meta.Confidence)

	registered, ok := f.btc.Context(c.PositionID)
	require.True(t, ok)
	assert.Equal(t, c.PositionID, registered.PositionID)

	bound, ok := f.store.Lookup(c.PositionID)
	require.True(t, ok)
	assert.Equal(t, "range break", bound.Reason)
	assert.Empty(t, f.store.Snapshot())
}

func TestService_Blocked(t *testing.T) {
	ctx := context.Background()

	t.Run("zero risk never reaches the host", func(t *testing.T) {
		f := setup(t, "10000", false)
		_, err := f.svc.Open(ctx, Request{Symbol: "BTCUSD", Direction: exit.DirectionLong, Score: 0})
		assert.ErrorIs(t, err, ErrEntryBlocked)

		positions, _ := f.host.Positions(ctx, "BTCUSD")
		assert.Empty(t, positions)
		assert.Equal(t, 0, f.btc.Len())
		assert.Empty(t, f.store.Snapshot())
	})

	t.Run("volume below minimum", func(t *testing.T) {
		f := setup(t, "1", false)
		_, err := f.svc.Open(ctx, Request{Symbol: "BTCUSD", Direction: exit.DirectionLong, Score: 80})
		assert.ErrorIs(t, err, sizing.ErrVolumeBelowMinimum)
		assert.Equal(t, 0, f.btc.Len())
	})

	t.Run("volatility unavailable", func(t *testing.T) {
		f := setup(t, "10000", false)
		f.svc.volatility = volatility.Static{}
		_, err := f.svc.Open(ctx, Request{Symbol: "BTCUSD", Direction: exit.DirectionLong, Score: 80})
		assert.ErrorIs(t, err, exit.ErrVolatilityUnavailable)
	})

	t.Run("unconfigured symbol", func(t *testing.T) {
		f := setup(t, "10000", false)
		_, err := f.svc.Open(ctx, Request{Symbol: "ETHUSD", Direction: exit.DirectionLong, Score: 80})
		assert.ErrorIs(t, err, sizing.ErrUnconfiguredInstrument)
	})

	t.Run("invalid direction", func(t *testing.T) {
		f := setup(t, "10000", false)
		_, err := f.svc.Open(ctx, Request{Symbol: "BTCUSD", Direction: "FLAT", Score: 80})
		assert.ErrorIs(t, err, exit.ErrInvalidDirection)
	})
}

func TestService_OrderFailureDiscardsMetadata(t *testing.T) {
	ctx := context.Background()

	for _, bySymbol := range []bool{false, true} {
		f := setup(t, "10000", bySymbol)
		// no NAS100 quote on the paper host, so the order is rejected
		_, err := f.svc.Open(ctx, Request{Symbol: "US100", Direction: exit.DirectionShort, Score: 90, Reason: "gap fade"})
		require.ErrorIs(t, err, exit.ErrHostRejected)

		assert.Empty(t, f.store.Snapshot(), "key by symbol: %v", bySymbol)
		_, pendingLeft := f.store.Pending("NAS100")
		assert.False(t, pendingLeft)
	}
}

func TestService_KeyBySymbol(t *testing.T) {
	ctx := context.Background()
	f := setup(t, "10000", true)

	c, err := f.svc.Open(ctx, Request{Symbol: "XBTUSD", Direction: exit.DirectionShort, Score: 70, Reason: "fade"})
	require.NoError(t, err)
	assert.Equal(t, "BTCUSD", c.Symbol)
	assert.Equal(t, exit.DirectionShort, c.Direction)

	meta, ok := f.store.Lookup(c.PositionID)
	require.True(t, ok)
	assert.Equal(t, "fade", meta.Reason)
	_, stillPending := f.store.Pending("BTCUSD")
	assert.False(t, stillPending)
}

// overlappingHost registers a second signal for the same symbol while the
// first order is in flight
type overlappingHost struct {
	*paper.Host
	store  *pending.Store
	reject bool
}

func (h *overlappingHost) PlaceMarketOrder(ctx context.Context, req exit.OrderRequest) (*exit.LivePosition, error) {
	h.store.RegisterPending("btcusd", exit.Metadata{EntryType: "pullback", Reason: "pullback", CreatedAt: time.Now().Add(time.Second)})
	if h.reject {
		return nil, exit.ErrHostRejected
	}
	return h.Host.PlaceMarketOrder(ctx, req)
}

func TestService_KeyBySymbolOverlap(t *testing.T) {
	ctx := context.Background()

	t.Run("context carries the bound metadata", func(t *testing.T) {
		f := setup(t, "10000", true)
		f.svc.host = &overlappingHost{Host: f.host, store: f.store}

		c, err := f.svc.Open(ctx, Request{Symbol: "BTCUSD", Direction: exit.DirectionLong, Score: 80, EntryType: "breakout", Reason: "breakout"})
		require.NoError(t, err)

		bound, ok := f.store.Lookup(c.PositionID)
		require.True(t, ok)
		assert.Equal(t, "pullback", bound.Reason)
		require.NotNil(t, c.Meta)
		assert.Equal(t, bound.Reason, c.Meta.Reason)

		registered, ok := f.btc.Context(c.PositionID)
		require.True(t, ok)
		require.NotNil(t, registered.Meta)
		assert.Equal(t, "pullback", registered.Meta.EntryType)
	})

	t.Run("failed order leaves the newer signal pending", func(t *testing.T) {
		f := setup(t, "10000", true)
		f.svc.host = &overlappingHost{Host: f.host, store: f.store, reject: true}

		_, err := f.svc.Open(ctx, Request{Symbol: "BTCUSD", Direction: exit.DirectionLong, Score: 80, Reason: "breakout"})
		require.ErrorIs(t, err, exit.ErrHostRejected)

		meta, ok := f.store.Pending("BTCUSD")
		require.True(t, ok)
		assert.Equal(t, "pullback", meta.Reason)
	})
}

func TestNewService_RequiresEngines(t *testing.T) {
	cat, err := config.DefaultCatalog()
	require.NoError(t, err)
	host := paper.NewHost(cat, dec("1000"), 1)

	_, err = NewService(Config{Host: host, Account: host, Store: pending.NewStore()})
	assert.ErrorIs(t, err, sizing.ErrUnconfiguredInstrument)
}
