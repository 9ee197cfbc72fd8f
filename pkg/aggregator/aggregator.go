package aggregator

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"tc.com/oracle-feeder/pkg/sources"
)

// Supported statistics.
const (
	StatisticMean   = "mean"
	StatisticMedian = "median"
)

// ExchangeRate is one aggregated rate for a unified symbol.
type ExchangeRate struct {
	Symbol     string
	Rate       decimal.Decimal
	Sources    int
	ComputedAt time.Time
}

// Aggregator collapses per-source quotes into a single rate per symbol.
// It filters stale quotes, rejects outliers against the median of the
// fresh set, and applies the configured statistic to the survivors. The
// result depends only on the set of quotes, not their order.
type Aggregator struct {
	statistic   string
	maxQuoteAge time.Duration
	tolerance   decimal.Decimal
}

// New creates an Aggregator. tolerance is the maximum relative deviation
// from the median a quote may have before it is discarded, e.g. 0.10
// for ten percent.
func New(statistic string, maxQuoteAge time.Duration, tolerance float64) (*Aggregator, error) {
	if statistic != StatisticMean && statistic != StatisticMedian {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatistic, statistic)
	}

	return &Aggregator{
		statistic:   statistic,
		maxQuoteAge: maxQuoteAge,
		tolerance:   decimal.NewFromFloat(tolerance),
	}, nil
}

// Aggregate computes the rate for one symbol at time now.
// It returns ErrNoQuotes when quotes is empty and ErrNoReliableData when
// every quote was filtered out.
func (a *Aggregator) Aggregate(symbol string, quotes []sources.Quote, now time.Time) (ExchangeRate, error) {
	if len(quotes) == 0 {
		return ExchangeRate{}, fmt.Errorf("%w: %s", ErrNoQuotes, symbol)
	}

	fresh := make([]decimal.Decimal, 0, len(quotes))
	for _, q := range quotes {
		if now.Sub(q.ObservedAt) > a.maxQuoteAge {
			continue
		}
		fresh = append(fresh, q.Rate)
	}
	if len(fresh) == 0 {
		return ExchangeRate{}, fmt.Errorf("%w: %s: all %d quotes stale", ErrNoReliableData, symbol, len(quotes))
	}

	sortRates(fresh)
	mid := median(fresh)

	survivors := make([]decimal.Decimal, 0, len(fresh))
	for _, rate := range fresh {
		if relativeDeviation(rate, mid).GreaterThan(a.tolerance) {
			continue
		}
		survivors = append(survivors, rate)
	}
	if len(survivors) == 0 {
		return ExchangeRate{}, fmt.Errorf("%w: %s: all %d fresh quotes rejected as outliers", ErrNoReliableData, symbol, len(fresh))
	}

	var rate decimal.Decimal
	switch a.statistic {
	case StatisticMedian:
		rate = median(survivors)
	default:
		rate = mean(survivors)
	}

	return ExchangeRate{
		Symbol:     symbol,
		Rate:       rate,
		Sources:    len(survivors),
		ComputedAt: now,
	}, nil
}

// Statistic reports the configured statistic name.
func (a *Aggregator) Statistic() string {
	return a.statistic
}

func sortRates(rates []decimal.Decimal) {
	sort.Slice(rates, func(i, j int) bool {
		return rates[i].LessThan(rates[j])
	})
}

// median expects rates to be sorted ascending; for even counts it
// averages the two middle values.
func median(rates []decimal.Decimal) decimal.Decimal {
	n := len(rates)
	if n%2 == 1 {
		return rates[n/2]
	}
	return rates[n/2-1].Add(rates[n/2]).Div(decimal.NewFromInt(2))
}

func mean(rates []decimal.Decimal) decimal.Decimal {
	sum := decimal.Zero
	for _, r := range rates {
		sum = sum.Add(r)
	}
	return sum.Div(decimal.NewFromInt(int64(len(rates))))
}

func relativeDeviation(rate, reference decimal.Decimal) decimal.Decimal {
	if reference.IsZero() {
		return decimal.Zero
	}
	return rate.Sub(reference).Abs().Div(reference.Abs())
}
