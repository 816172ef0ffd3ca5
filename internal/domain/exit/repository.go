package exit

import (
	"context"

	"github.com/shopspring/decimal"
)

// ExecutionHost is the market-execution boundary the engine drives.
// Every call is synchronous and succeeds or fails atomically.
type ExecutionHost interface {
	// Positions returns the live open positions for a symbol
	Positions(ctx context.Context, symbol string) ([]LivePosition, error)

	// ClosePartial closes volume of an open position
	ClosePartial(ctx context.Context, positionID string, volume decimal.Decimal) error

	// ModifyStopAndTarget replaces the protective stop and target of a position
	ModifyStopAndTarget(ctx context.Context, positionID string, stop, target decimal.Decimal) error

	// PlaceMarketOrder opens a position with stop/target set at the given distances from the fill
	PlaceMarketOrder(ctx context.Context, req OrderRequest) (*LivePosition, error)
}

// OrderRequest is a market order with distance-based protection
type OrderRequest struct {
	Symbol         string
	Direction      Direction
	Volume         decimal.Decimal
	StopDistance   decimal.Decimal
	TargetDistance decimal.Decimal
	Comment        string
}

// AccountReader exposes the account balance used for risk sizing
type AccountReader interface {
	Balance(ctx context.Context) (decimal.Decimal, error)
}

// VolatilitySource supplies an ATR-like distance for a symbol.
// ok is false when not enough history exists.
type VolatilitySource interface {
	Volatility(symbol string) (value decimal.Decimal, ok bool)
}

// BarObserver is implemented by volatility sources fed from closed bars
type BarObserver interface {
	Observe(bar Bar)
}

// TradeRecordSink receives trade-closed records
type TradeRecordSink interface {
	RecordTrade(ctx context.Context, rec *TradeRecord) error
}
