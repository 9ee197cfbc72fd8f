package oracle

import "errors"

var (
	// ErrNoRates is returned when a commitment is requested without rates.
	ErrNoRates = errors.New("no exchange rates provided")

	// ErrEmptyRates is returned when parsing an empty exchange rate string.
	ErrEmptyRates = errors.New("empty exchange rates string")
)
