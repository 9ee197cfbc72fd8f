package aggregator

import "errors"

var (
	// ErrNoQuotes is returned when no quotes at all were supplied for a symbol.
	ErrNoQuotes = errors.New("no quotes for symbol")

	// ErrNoReliableData is returned when quotes exist but filtering removed
	// all of them, either for staleness or for disagreement with the median.
	ErrNoReliableData = errors.New("no reliable data after filtering")

	// ErrInvalidStatistic is returned for an unsupported statistic name.
	ErrInvalidStatistic = errors.New("invalid aggregation statistic")
)
