package sources

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// RawQuote is one source's observation of one symbol before normalization.
// Price is kept as the raw string from the upstream payload so that the
// normalizer owns all parsing and validation.
type RawQuote struct {
	Symbol     string    // unified symbol, e.g. "KRW/USD"
	Price      string    // raw price string from the source
	ObservedAt time.Time // zero means "now" at normalization time
}

// Quote is a canonical, validated observation of one symbol.
// Immutable once created; it lives for one aggregation cycle.
type Quote struct {
	Symbol     string
	Rate       decimal.Decimal
	Source     string
	ObservedAt time.Time
}

// Source is a price source connector. Fetch must be independently
// timeoutable via ctx and must not share mutable state across concurrent
// calls; a failed fetch means "no quotes from this source this cycle".
type Source interface {
	// Name returns the unique instance name of this source
	Name() string

	// Symbols returns the unified symbols this source provides
	Symbols() []string

	// Fetch retrieves the current quotes for all configured symbols
	Fetch(ctx context.Context) ([]RawQuote, error)
}
