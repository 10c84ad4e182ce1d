package synthesis

import "errors"

// Synthesis errors are fatal to the current instrument's replay: once the
// book state is suspect, continuing would silently corrupt the synthetic
// log. The replay driver catches these per instrument.
var (
	// ErrInvalidArgument means a required input was nil or malformed.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrOutOfRange means a non-positive price or negative volume was
	// presented to a synthesis routine.
	ErrOutOfRange = errors.New("value out of range")
	// ErrInvariantViolation means the input stream is inconsistent with the
	// book state, e.g. a cancel for more volume than is resting.
	ErrInvariantViolation = errors.New("book invariant violated")
)
