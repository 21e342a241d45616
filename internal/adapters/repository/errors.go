package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound      = errors.New("record not found")
	ErrInvalidLimit  = errors.New("invalid limit")
	ErrAlreadyExists = errors.New("record already exists")

	// ErrFitnessImmutable rejects a kind or bounds change on an active problem.
	ErrFitnessImmutable = errors.New("fitness definition of an active problem cannot change")
)
