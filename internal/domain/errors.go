package domain

import "errors"

// Domain errors
var (
	ErrProfileNotFound     = errors.New("profile not found")
	ErrAchievementNotFound = errors.New("achievement not found")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrInvalidWeekStart    = errors.New("invalid week_start")
	ErrNegativeDelta       = errors.New("counter delta must not be negative")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("forbidden")
	ErrRateLimited         = errors.New("rate limit exceeded")
	ErrInternalError       = errors.New("internal server error")
)

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrProfileNotFound) || errors.Is(err, ErrAchievementNotFound)
}

// IsValidationError reports whether err should surface to the caller as a 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) || errors.Is(err, ErrInvalidWeekStart)
}
