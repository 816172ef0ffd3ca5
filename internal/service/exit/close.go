package exit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/Estalvo/GeminiV26-sub001/internal/domain/exit"
	"github.com/Estalvo/GeminiV26-sub001/internal/domain/sizing"
)

// closeContext emits the trade record for a position the host no longer
// reports and drops its context and bound metadata.
func (e *Engine) closeContext(ctx context.Context, c *exit.Context, q exit.Quote) {
	if c.Meta == nil && e.meta != nil {
		if meta, ok := e.meta.Lookup(c.PositionID); ok {
			c.Meta = &meta
		}
	}

	closedAt := q.TS
	if closedAt.IsZero() {
		closedAt = time.Now()
	}
	rec := BuildTradeRecord(c, e.instrument, e.lastQuote.ExitPrice(c.Direction), closedAt)

	if err := e.sink.RecordTrade(ctx, rec); err != nil {
		e.logger.Error().Err(err).Str("position_id", c.PositionID).Msg("Failed to record closed trade")
		mtxHostFailures.WithLabelValues(e.symbol, opRecordTrade).Inc()
	}

	if e.meta != nil {
		e.meta.Remove(c.PositionID)
	}
	e.remove(c.PositionID)
	mtxClosed.WithLabelValues(e.symbol).Inc()

	e.logger.Info().
		Str("position_id", c.PositionID).
		Bool("tp1_hit", c.TP1Hit).
		Bool("trailing", c.TrailingActivated).
		Str("exit", rec.ExitPrice.String()).
		Str("pnl", rec.RealizedPnL.StringFixed(2)).
		Msg("Position closed, context removed")
}

// BuildTradeRecord assembles the trade-closed record from final context state.
// exitPrice zero means no quote was seen; the last stop is used instead.
func BuildTradeRecord(c *exit.Context, in sizing.Instrument, exitPrice decimal.Decimal, closedAt time.Time) *exit.TradeRecord {
	if !exitPrice.IsPositive() {
		exitPrice = c.LastKnownStopPrice
	}
	sign := c.Direction.Sign()

	pnl := decimal.Zero
	if c.TP1Hit && c.ClosedVolumeAtTP1.IsPositive() {
		pnl = pnl.Add(in.MoneyValue(c.TP1FillPrice.Sub(c.EntryPrice).Mul(sign), c.ClosedVolumeAtTP1))
	}
	if exitPrice.IsPositive() {
		pnl = pnl.Add(in.MoneyValue(exitPrice.Sub(c.EntryPrice).Mul(sign), c.RemainingVolume))
	}

	rec := &exit.TradeRecord{
		ID:                 uuid.New().String(),
		PositionID:         c.PositionID,
		Symbol:             c.Symbol,
		Direction:          c.Direction,
		EntryPrice:         c.EntryPrice,
		ExitPrice:          exitPrice,
		EntryVolume:        c.EntryVolume,
		ClosedVolumeAtTP1:  c.ClosedVolumeAtTP1,
		TP1Price:           c.TP1Price(),
		TP1FillPrice:       c.TP1FillPrice,
		TP1Hit:             c.TP1Hit,
		TP2Hit:             exitPrice.IsPositive() && !exitPrice.Sub(c.TP2Price()).Mul(sign).IsNegative(),
		BreakevenActivated: c.TP1Hit && !c.BreakevenPrice.IsZero() && c.AtLeastAsProtective(c.LastKnownStopPrice, c.BreakevenPrice),
		TrailingActivated:  c.TrailingActivated,
		FinalStop:          c.LastKnownStopPrice,
		RealizedPnL:        pnl,
		Rehydrated:         c.Rehydrated,
		OpenedAt:           c.EntryTime,
		ClosedAt:           closedAt,
	}
	if c.Meta != nil {
		rec.EntryType = c.Meta.EntryType
		rec.Reason = c.Meta.Reason
		rec.Confidence = c.Meta.Confidence
	}
	return rec
}

// LogSink writes trade records to Logger, or the global logger when nil
type LogSink struct {
	Logger *zerolog.Logger
}

// RecordTrade implements exit.TradeRecordSink
func (s LogSink) RecordTrade(_ context.Context, rec *exit.TradeRecord) error {
	l := s.Logger
	if l == nil {
		l = &log.Logger
	}
	l.Info().
		Str("trade_id", rec.ID).
		Str("position_id", rec.PositionID).
		Str("symbol", rec.Symbol).
		Str("direction", rec.Direction.String()).
		Str("entry", rec.EntryPrice.String()).
		Str("exit", rec.ExitPrice.String()).
		Str("volume", rec.EntryVolume.String()).
		Str("tp1_closed", rec.ClosedVolumeAtTP1.String()).
		Bool("tp1_hit", rec.TP1Hit).
		Bool("tp2_hit", rec.TP2Hit).
		Bool("breakeven", rec.BreakevenActivated).
		Bool("trailing", rec.TrailingActivated).
		Str("final_stop", rec.FinalStop.String()).
		Str("pnl", rec.RealizedPnL.StringFixed(2)).
		Bool("rehydrated", rec.Rehydrated).
		Str("entry_type", rec.EntryType).
		Str("reason", rec.Reason).
		Int("confidence", rec.Confidence).
		Msg("Trade closed")
	return nil
}

// MultiSink fans a record out to several sinks, returning the first error
type MultiSink []exit.TradeRecordSink

// RecordTrade implements exit.TradeRecordSink
func (m MultiSink) RecordTrade(ctx context.Context, rec *exit.TradeRecord) error {
	var first error
	for _, s := range m {
		if err := s.RecordTrade(ctx, rec); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// RecentSink keeps the last Capacity trade records in memory, newest last
type RecentSink struct {
	Capacity int

	mu      sync.Mutex
	records []*exit.TradeRecord
}

// RecordTrade implements exit.TradeRecordSink
func (s *RecentSink) RecordTrade(_ context.Context, rec *exit.TradeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	limit := s.Capacity
	if limit <= 0 {
		limit = 500
	}
	s.records = append(s.records, rec)
	if over := len(s.records) - limit; over > 0 {
		s.records = append(s.records[:0:0], s.records[over:]...)
	}
	return nil
}

// ListRecent returns up to limit records for symbol, newest first.
// An empty symbol matches every record.
func (s *RecentSink) ListRecent(_ context.Context, symbol string, limit int) ([]*exit.TradeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := sizing.NormalizeKey(symbol)
	var out []*exit.TradeRecord
	for i := len(s.records) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		rec := s.records[i]
		if key != "" && sizing.NormalizeKey(rec.Symbol) != key {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}
