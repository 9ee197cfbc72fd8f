package voter

import "errors"

var (
	// ErrNoVotePeriod is returned when the vote period length is not set.
	ErrNoVotePeriod = errors.New("vote period not configured")

	// ErrPrevoteFailed is returned when a prevote could not be submitted.
	ErrPrevoteFailed = errors.New("prevote submission failed")

	// ErrVoteFailed is returned when a reveal could not be submitted.
	ErrVoteFailed = errors.New("vote submission failed")
)
