package paper

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/Estalvo/GeminiV26-sub001/internal/domain/exit"
	"github.com/Estalvo/GeminiV26-sub001/internal/domain/sizing"
)

// InstrumentLookup resolves contract increments for P&L
type InstrumentLookup interface {
	Instrument(symbol string) (sizing.Instrument, error)
}

// Fill is one realized close on the paper account
type Fill struct {
	PositionID string          `json:"position_id"`
	Symbol     string          `json:"symbol"`
	Volume     decimal.Decimal `json:"volume"`
	Price      decimal.Decimal `json:"price"`
	PnL        decimal.Decimal `json:"pnl"`
	Reason     string          `json:"reason"` // partial, stop, target
	TS         time.Time       `json:"ts"`
}

// Host is an in-memory execution host. Quotes drive fills:
// a position whose stop or target is crossed is closed at that level.
type Host struct {
	instruments InstrumentLookup

	mu        sync.Mutex
	balance   decimal.Decimal
	nextID    int64
	positions map[string]*exit.LivePosition
	quotes    map[string]exit.Quote
	fills     []Fill
}

// NewHost creates a paper host with a starting balance; ids count up from startID
func NewHost(instruments InstrumentLookup, balance decimal.Decimal, startID int64) *Host {
	return &Host{
		instruments: instruments,
		balance:     balance,
		nextID:      startID,
		positions:   make(map[string]*exit.LivePosition),
		quotes:      make(map[string]exit.Quote),
	}
}

// Balance implements exit.AccountReader
func (h *Host) Balance(context.Context) (decimal.Decimal, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.balance, nil
}

// Fills returns realized closes in order
func (h *Host) Fills() []Fill {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Fill, len(h.fills))
	copy(out, h.fills)
	return out
}

// Seed inserts an already open position (restart scenarios)
func (h *Host) Seed(p exit.LivePosition) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if p.OpenedAt.IsZero() {
		p.OpenedAt = time.Now()
	}
	h.positions[p.PositionID] = &p
}

// SetQuote records q and closes positions whose stop or target it crosses.
// It returns the ids closed.
func (h *Host) SetQuote(q exit.Quote) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.quotes[q.Symbol] = q

	var closed []string
	for _, id := range h.sortedIDs() {
		p := h.positions[id]
		if p.Symbol != q.Symbol {
			continue
		}
		price := q.ExitPrice(p.Direction)
		if !price.IsPositive() {
			continue
		}
		sign := p.Direction.Sign()

		switch {
		case p.StopPrice.IsPositive() && !p.StopPrice.Sub(price).Mul(sign).IsNegative():
			h.realize(p, p.Volume, p.StopPrice, "stop", q.TS)
		case p.TargetPrice.IsPositive() && !price.Sub(p.TargetPrice).Mul(sign).IsNegative():
			h.realize(p, p.Volume, p.TargetPrice, "target", q.TS)
		default:
			continue
		}
		delete(h.positions, id)
		closed = append(closed, id)
	}
	return closed
}

// Positions implements exit.ExecutionHost
func (h *Host) Positions(_ context.Context, symbol string) ([]exit.LivePosition, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out []exit.LivePosition
	for _, id := range h.sortedIDs() {
		if p := h.positions[id]; p.Symbol == symbol {
			out = append(out, *p)
		}
	}
	return out, nil
}

// ClosePartial implements exit.ExecutionHost
func (h *Host) ClosePartial(_ context.Context, positionID string, volume decimal.Decimal) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	p, ok := h.positions[positionID]
	if !ok {
		return fmt.Errorf("%w: %s", exit.ErrPositionNotFound, positionID)
	}
	if !volume.IsPositive() || volume.GreaterThan(p.Volume) {
		return fmt.Errorf("%w: close %s of %s", exit.ErrHostRejected, volume, p.Volume)
	}
	q, ok := h.quotes[p.Symbol]
	if !ok {
		return fmt.Errorf("%w: no quote for %s", exit.ErrHostRejected, p.Symbol)
	}

	h.realize(p, volume, q.ExitPrice(p.Direction), "partial", q.TS)
	if p.Volume.IsZero() {
		delete(h.positions, positionID)
	}
	return nil
}

// ModifyStopAndTarget implements exit.ExecutionHost.
// A stop on the wrong side of the market is rejected.
func (h *Host) ModifyStopAndTarget(_ context.Context, positionID string, stop, target decimal.Decimal) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	p, ok := h.positions[positionID]
	if !ok {
		return fmt.Errorf("%w: %s", exit.ErrPositionNotFound, positionID)
	}
	if q, ok := h.quotes[p.Symbol]; ok && stop.IsPositive() {
		market := q.ExitPrice(p.Direction)
		if !stop.Sub(market).Mul(p.Direction.Sign()).IsNegative() {
			return fmt.Errorf("%w: stop %s crosses market %s", exit.ErrHostRejected, stop, market)
		}
	}
	p.StopPrice = stop
	p.TargetPrice = target
	return nil
}

// PlaceMarketOrder implements exit.ExecutionHost.
// Longs fill at the ask, shorts at the bid.
func (h *Host) PlaceMarketOrder(_ context.Context, req exit.OrderRequest) (*exit.LivePosition, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	q, ok := h.quotes[req.Symbol]
	if !ok {
		return nil, fmt.Errorf("%w: no quote for %s", exit.ErrHostRejected, req.Symbol)
	}
	if !req.Volume.IsPositive() {
		return nil, fmt.Errorf("%w: volume %s", exit.ErrHostRejected, req.Volume)
	}

	fill := q.Ask
	if req.Direction == exit.DirectionShort {
		fill = q.Bid
	}
	sign := req.Direction.Sign()

	p := &exit.LivePosition{
		PositionID: strconv.FormatInt(h.nextID, 10),
		Symbol:     req.Symbol,
		Direction:  req.Direction,
		EntryPrice: fill,
		Volume:     req.Volume,
		OpenedAt:   q.TS,
	}
	if p.OpenedAt.IsZero() {
		p.OpenedAt = time.Now()
	}
	if req.StopDistance.IsPositive() {
		p.StopPrice = fill.Sub(req.StopDistance.Mul(sign))
	}
	if req.TargetDistance.IsPositive() {
		p.TargetPrice = fill.Add(req.TargetDistance.Mul(sign))
	}
	h.nextID++
	h.positions[p.PositionID] = p

	log.Debug().
		Str("position_id", p.PositionID).
		Str("symbol", p.Symbol).
		Str("fill", fill.String()).
		Str("volume", p.Volume.String()).
		Msg("Paper order filled")

	out := *p
	return &out, nil
}

// realize books volume closed at price; caller holds the lock
func (h *Host) realize(p *exit.LivePosition, volume, price decimal.Decimal, reason string, ts time.Time) {
	pnl := decimal.Zero
	if h.instruments != nil {
		if in, err := h.instruments.Instrument(p.Symbol); err == nil {
			pnl = in.MoneyValue(price.Sub(p.EntryPrice).Mul(p.Direction.Sign()), volume)
		}
	}
	h.balance = h.balance.Add(pnl)
	p.Volume = p.Volume.Sub(volume)
	if ts.IsZero() {
		ts = time.Now()
	}
	h.fills = append(h.fills, Fill{
		PositionID: p.PositionID,
		Symbol:     p.Symbol,
		Volume:     volume,
		Price:      price,
		PnL:        pnl,
		Reason:     reason,
		TS:         ts,
	})
}

func (h *Host) sortedIDs() []string {
	ids := make([]string, 0, len(h.positions))
	for id := range h.positions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
