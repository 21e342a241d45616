package fitness

import (
	"errors"
	"fmt"
)

// Sentinel kinds for fitness errors.
var (
	ErrUnknownProblem = errors.New("unknown problem")
	ErrUnknownKind    = errors.New("unknown benchmark kind")
	ErrOutOfBounds    = errors.New("solution out of bounds")
	ErrEmptySolution  = errors.New("empty solution vector")
)

// OutOfBoundsError names the first component that left the closed domain.
type OutOfBoundsError struct {
	Index int
	Value float64
	Lower float64
	Upper float64
}

func (e *OutOfBoundsError) Error() string {
	return fmt.Sprintf("solution values must be within [%g, %g]: x[%d]=%g", e.Lower, e.Upper, e.Index, e.Value)
}

// Unwrap lets errors.Is match ErrOutOfBounds.
func (e *OutOfBoundsError) Unwrap() error { return ErrOutOfBounds }
