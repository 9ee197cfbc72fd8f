package sources

import "errors"

// Source errors. All of them are per-source and recoverable: the caller
// skips the source for the cycle and keeps going.
var (
	// ErrUnavailable indicates the source could not be reached or answered
	// with a server error (includes cancelled or timed-out fetches).
	ErrUnavailable = errors.New("source unavailable")
	// ErrRateLimited indicates the source throttled us.
	ErrRateLimited = errors.New("source rate limited")
	// ErrMalformed indicates the response could not be turned into a quote.
	ErrMalformed = errors.New("malformed source response")

	ErrUnknownType       = errors.New("unknown source type")
	ErrNoPairsConfigured = errors.New("no pairs configured")
	ErrInvalidSymbol     = errors.New("invalid symbol format")
	ErrNoAPIKey          = errors.New("api key required")
)
