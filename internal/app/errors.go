package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrInvalidSubmission    = errors.New("invalid submission")
	ErrDimensionMismatch    = errors.New("solution length does not match dimension")
	ErrUnsupportedDimension = errors.New("dimension not supported by problem")
	ErrProblemNotFound      = errors.New("problem not found")
	ErrProblemInactive      = errors.New("problem is not active")
	ErrContestNotFound      = errors.New("contest not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrInvalidEventCode     = errors.New("invalid event code")
	ErrAlreadyParticipating = errors.New("already participating in contest")
	ErrNotStarted           = errors.New("service not started")
)
