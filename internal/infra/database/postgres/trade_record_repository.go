package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Estalvo/GeminiV26-sub001/internal/domain/exit"
)

// tradeRecordSchema is applied by EnsureSchema
const tradeRecordSchema = `
	CREATE SCHEMA IF NOT EXISTS exit;

	CREATE TABLE IF NOT EXISTS exit.trade_records (
		trade_id             TEXT PRIMARY KEY,
		position_id          TEXT NOT NULL,
		symbol               TEXT NOT NULL,
		direction            TEXT NOT NULL,
		entry_price          NUMERIC NOT NULL,
		exit_price           NUMERIC NOT NULL,
		entry_volume         NUMERIC NOT NULL,
		closed_volume_at_tp1 NUMERIC NOT NULL,
		tp1_price            NUMERIC NOT NULL,
		tp1_fill_price       NUMERIC NOT NULL,
		tp1_hit              BOOLEAN NOT NULL,
		tp2_hit              BOOLEAN NOT NULL,
		breakeven_activated  BOOLEAN NOT NULL,
		trailing_activated   BOOLEAN NOT NULL,
		final_stop           NUMERIC NOT NULL,
		realized_pnl         NUMERIC NOT NULL,
		rehydrated           BOOLEAN NOT NULL,
		entry_type           TEXT NOT NULL DEFAULT '',
		reason               TEXT NOT NULL DEFAULT '',
		confidence           INTEGER NOT NULL DEFAULT 0,
		opened_at            TIMESTAMPTZ NOT NULL,
		closed_at            TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_trade_records_symbol_closed
		ON exit.trade_records (symbol, closed_at DESC);
`

const tradeRecordColumns = `
	trade_id,
	position_id,
	symbol,
	direction,
	entry_price,
	exit_price,
	entry_volume,
	closed_volume_at_tp1,
	tp1_price,
	tp1_fill_price,
	tp1_hit,
	tp2_hit,
	breakeven_activated,
	trailing_activated,
	final_stop,
	realized_pnl,
	rehydrated,
	entry_type,
	reason,
	confidence,
	opened_at,
	closed_at
`

// TradeRecordRepository implements exit.TradeRecordSink on PostgreSQL
type TradeRecordRepository struct {
	pool *pgxpool.Pool
}

// NewTradeRecordRepository creates a new TradeRecordRepository
func NewTradeRecordRepository(pool *pgxpool.Pool) *TradeRecordRepository {
	return &TradeRecordRepository{pool: pool}
}

// EnsureSchema creates the trade record table if missing
func (r *TradeRecordRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, tradeRecordSchema); err != nil {
		return fmt.Errorf("ensure trade record schema: %w", err)
	}
	return nil
}

// RecordTrade inserts rec; a repeated trade id is ignored
func (r *TradeRecordRepository) RecordTrade(ctx context.Context, rec *exit.TradeRecord) error {
	query := `
		INSERT INTO exit.trade_records (` + tradeRecordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
		        $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
		ON CONFLICT (trade_id) DO NOTHING
	`

	_, err := r.pool.Exec(ctx, query,
		rec.ID,
		rec.PositionID,
		rec.Symbol,
		rec.Direction,
		rec.EntryPrice,
		rec.ExitPrice,
		rec.EntryVolume,
		rec.ClosedVolumeAtTP1,
		rec.TP1Price,
		rec.TP1FillPrice,
		rec.TP1Hit,
		rec.TP2Hit,
		rec.BreakevenActivated,
		rec.TrailingActivated,
		rec.FinalStop,
		rec.RealizedPnL,
		rec.Rehydrated,
		rec.EntryType,
		rec.Reason,
		rec.Confidence,
		rec.OpenedAt,
		rec.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("insert trade record %s: %w", rec.PositionID, err)
	}

	return nil
}

// ListRecent returns the latest closed trades for symbol, newest first.
// An empty symbol lists every symbol.
func (r *TradeRecordRepository) ListRecent(ctx context.Context, symbol string, limit int) ([]*exit.TradeRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT ` + tradeRecordColumns + `
		FROM exit.trade_records
		WHERE ($1::text = '' OR symbol = $1)
		ORDER BY closed_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("query trade records: %w", err)
	}
	defer rows.Close()

	var out []*exit.TradeRecord
	for rows.Next() {
		rec, err := scanTradeRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade records: %w", err)
	}

	return out, nil
}

func scanTradeRecord(row pgx.Row) (*exit.TradeRecord, error) {
	var rec exit.TradeRecord
	err := row.Scan(
		&rec.ID,
		&rec.PositionID,
		&rec.Symbol,
		&rec.Direction,
		&rec.EntryPrice,
		&rec.ExitPrice,
		&rec.EntryVolume,
		&rec.ClosedVolumeAtTP1,
		&rec.TP1Price,
		&rec.TP1FillPrice,
		&rec.TP1Hit,
		&rec.TP2Hit,
		&rec.BreakevenActivated,
		&rec.TrailingActivated,
		&rec.FinalStop,
		&rec.RealizedPnL,
		&rec.Rehydrated,
		&rec.EntryType,
		&rec.Reason,
		&rec.Confidence,
		&rec.OpenedAt,
		&rec.ClosedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan trade record: %w", err)
	}
	return &rec, nil
}
