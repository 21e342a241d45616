package api

import "errors"

// Sentinel kinds for API errors.
var (
	ErrBadRequest      = errors.New("bad request")
	ErrInvalidSolution = errors.New("invalid solution")
	ErrRateLimited     = errors.New("too many submissions")

	ErrDuplicateSubmission = errors.New("idempotency key already used")
)
