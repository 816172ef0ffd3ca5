package exit

import "errors"

// Domain errors
var (
	// Context errors
	ErrInvalidPositionID   = errors.New("position id is empty")
	ErrInvalidDirection    = errors.New("invalid direction")
	ErrInvalidPrice        = errors.New("invalid price: must be positive")
	ErrInvalidRiskDistance = errors.New("invalid risk distance: must be positive")
	ErrInvalidVolume       = errors.New("invalid volume")
	ErrInvalidTargets      = errors.New("invalid target structure")
	ErrInvalidProfile      = errors.New("invalid exit profile")

	// Transition errors
	ErrTP1AlreadyHit      = errors.New("tp1 already hit")
	ErrStopLoosened       = errors.New("stop would be loosened")
	ErrStopBelowBreakeven = errors.New("stop would be less protective than breakeven")

	// Registry errors
	ErrContextNotFound = errors.New("context not found")

	// Market data errors
	ErrVolatilityUnavailable = errors.New("volatility measure unavailable")
	ErrNoRiskReference       = errors.New("no stop or volatility to derive risk distance")

	// Host errors
	ErrHostRejected     = errors.New("host rejected request")
	ErrPositionNotFound = errors.New("position not found")
)
