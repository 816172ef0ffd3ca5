package exit

import (
	"time"

	"github.com/shopspring/decimal"
)

// ====================
// Direction
// ====================

// Direction is the side of a position
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// Valid checks if direction is valid
func (d Direction) Valid() bool {
	return d == DirectionLong || d == DirectionShort
}

// Sign returns +1 for long and -1 for short
func (d Direction) Sign() decimal.Decimal {
	if d == DirectionShort {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}

// String returns string representation
func (d Direction) String() string {
	return string(d)
}

// ====================
// Trailing mode
// ====================

// TrailingMode selects the trailing distance tier
type TrailingMode string

const (
	TrailingNone   TrailingMode = "NONE"
	TrailingTight  TrailingMode = "TIGHT"
	TrailingNormal TrailingMode = "NORMAL"
	TrailingLoose  TrailingMode = "LOOSE"
)

// Valid checks if trailing mode is valid
func (m TrailingMode) Valid() bool {
	switch m {
	case TrailingNone, TrailingTight, TrailingNormal, TrailingLoose:
		return true
	}
	return false
}

// ====================
// FSM Phases
// ====================

// Phase is the exit lifecycle state of a context
type Phase string

const (
	PhaseAwaitingTP1 Phase = "AWAITING_TP1"
	PhaseTP1Filled   Phase = "TP1_FILLED"
	PhaseClosed      Phase = "CLOSED"
)

// ====================
// Market data (host feed)
// ====================

// Quote is a best bid/ask for one symbol
type Quote struct {
	Symbol string          `json:"symbol"`
	Bid    decimal.Decimal `json:"bid"`
	Ask    decimal.Decimal `json:"ask"`
	TS     time.Time       `json:"ts"`
}

// ExitPrice returns the price a position of the given direction would close at
func (q Quote) ExitPrice(d Direction) decimal.Decimal {
	if d == DirectionShort {
		return q.Ask
	}
	return q.Bid
}

// Bar is a closed OHLC bar
type Bar struct {
	Symbol    string          `json:"symbol"`
	Timeframe string          `json:"timeframe"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	CloseTS   time.Time       `json:"close_ts"`
}

// ====================
// LivePosition (host snapshot)
// ====================

// LivePosition is one open position as reported by the execution host.
// StopPrice and TargetPrice are zero when the host has none set.
type LivePosition struct {
	PositionID  string          `json:"position_id"`
	Symbol      string          `json:"symbol"`
	Direction   Direction       `json:"direction"`
	EntryPrice  decimal.Decimal `json:"entry_price"`
	Volume      decimal.Decimal `json:"volume"`
	StopPrice   decimal.Decimal `json:"stop_price"`
	TargetPrice decimal.Decimal `json:"target_price"`
	OpenedAt    time.Time       `json:"opened_at"`
}

// HasStop reports whether the host has a protective stop on the position
func (p LivePosition) HasStop() bool {
	return p.StopPrice.IsPositive()
}

// ====================
// Targets / Metadata
// ====================

// Targets is the profit-target structure fixed at context creation.
// Distances are R-multiples of the risk distance.
type Targets struct {
	TP1R             float64 `json:"tp1_r"`
	TP1CloseFraction float64 `json:"tp1_close_fraction"`
	TP2R             float64 `json:"tp2_r"`
	TP2CloseFraction float64 `json:"tp2_close_fraction"`
	BreakevenOffsetR float64 `json:"breakeven_offset_r"`
}

// Metadata is entry information bound after the host confirms the fill
type Metadata struct {
	EntryType  string    `json:"entry_type"`
	Reason     string    `json:"reason"`
	Confidence int       `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

// ====================
// TradeRecord (outbound)
// ====================

// TradeRecord summarizes a closed position for logging/analytics collaborators
type TradeRecord struct {
	ID                 string          `json:"id"`
	PositionID         string          `json:"position_id"`
	Symbol             string          `json:"symbol"`
	Direction          Direction       `json:"direction"`
	EntryPrice         decimal.Decimal `json:"entry_price"`
	ExitPrice          decimal.Decimal `json:"exit_price"`
	EntryVolume        decimal.Decimal `json:"entry_volume"`
	ClosedVolumeAtTP1  decimal.Decimal `json:"closed_volume_at_tp1"`
	TP1Price           decimal.Decimal `json:"tp1_price"`
	TP1FillPrice       decimal.Decimal `json:"tp1_fill_price"`
	TP1Hit             bool            `json:"tp1_hit"`
	TP2Hit             bool            `json:"tp2_hit"`
	BreakevenActivated bool            `json:"breakeven_activated"`
	TrailingActivated  bool            `json:"trailing_activated"`
	FinalStop          decimal.Decimal `json:"final_stop"`
	RealizedPnL        decimal.Decimal `json:"realized_pnl"`
	Rehydrated         bool            `json:"rehydrated"`
	EntryType          string          `json:"entry_type"`
	Reason             string          `json:"reason"`
	Confidence         int             `json:"confidence"`
	OpenedAt           time.Time       `json:"opened_at"`
	ClosedAt           time.Time       `json:"closed_at"`
}
