package sizing

import "errors"

// Domain errors
var (
	// Configuration errors (fatal at startup)
	ErrUnconfiguredInstrument = errors.New("no sizing policy configured for instrument")
	ErrInvalidPolicy          = errors.New("invalid sizing policy")
	ErrInvalidInstrument      = errors.New("invalid instrument contract")
	ErrDuplicatePolicy        = errors.New("sizing policy already registered")

	// Sizing results meaning "do not enter"
	ErrNonPositiveRisk     = errors.New("risk percent is not positive")
	ErrInvalidStopDistance = errors.New("stop distance is not positive")
	ErrVolumeBelowMinimum  = errors.New("computed volume below instrument minimum")
)
