// Package sources provides price source connectors and quote normalization.
package sources

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Stablecoin aliases - all considered equivalent to USD
var stablecoinAliases = map[string]string{
	"USDT": "USD",
	"USDC": "USD",
	"BUSD": "USD",
	"DAI":  "USD",
	"TUSD": "USD",
}

// Base currency aliases
var baseCurrencyAliases = map[string]string{
	"WBTC":  "BTC",
	"WETH":  "ETH",
	"STETH": "ETH",
}

// NormalizeSymbol converts a trading pair symbol to its canonical form
// Examples:
//   - LUNC/USDT -> LUNC/USD
//   - WBTC/USDC -> BTC/USD
//   - KRW/USD   -> KRW/USD (no change)
func NormalizeSymbol(symbol string) string {
	parts := strings.Split(symbol, "/")
	if len(parts) != 2 {
		return symbol
	}

	base := strings.ToUpper(strings.TrimSpace(parts[0]))
	quote := strings.ToUpper(strings.TrimSpace(parts[1]))

	if normalized, ok := baseCurrencyAliases[base]; ok {
		base = normalized
	}
	if normalized, ok := stablecoinAliases[quote]; ok {
		quote = normalized
	}

	return base + "/" + quote
}

// ValidateSymbolFormat checks if a symbol is in BASE/QUOTE format.
func ValidateSymbolFormat(symbol string) error {
	parts := strings.Split(symbol, "/")
	if len(parts) != 2 {
		return fmt.Errorf("%w: %q", ErrInvalidSymbol, symbol)
	}
	if strings.TrimSpace(parts[0]) == "" || strings.TrimSpace(parts[1]) == "" {
		return fmt.Errorf("%w: %q", ErrInvalidSymbol, symbol)
	}
	return nil
}

// Normalize converts a raw source observation into a canonical Quote.
// It is a pure transform: parse the rate, require it to be positive,
// canonicalize the symbol and stamp the observation time. Any failure is
// reported as ErrMalformed; the caller treats it as "no quote from this
// source this cycle".
func Normalize(raw RawQuote, source string, now time.Time) (Quote, error) {
	if err := ValidateSymbolFormat(raw.Symbol); err != nil {
		return Quote{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	rate, err := decimal.NewFromString(strings.TrimSpace(raw.Price))
	if err != nil {
		return Quote{}, fmt.Errorf("%w: price %q: %v", ErrMalformed, raw.Price, err)
	}
	if !rate.IsPositive() {
		return Quote{}, fmt.Errorf("%w: non-positive rate %s for %s", ErrMalformed, rate, raw.Symbol)
	}

	observedAt := raw.ObservedAt
	if observedAt.IsZero() {
		observedAt = now
	}

	return Quote{
		Symbol:     NormalizeSymbol(raw.Symbol),
		Rate:       rate,
		Source:     source,
		ObservedAt: observedAt,
	}, nil
}

// NormalizeAll converts a batch of raw quotes, dropping malformed entries.
// It returns the quotes that survived and the number dropped.
func NormalizeAll(raws []RawQuote, source string, now time.Time) ([]Quote, int) {
	quotes := make([]Quote, 0, len(raws))
	dropped := 0
	for _, raw := range raws {
		q, err := Normalize(raw, source, now)
		if err != nil {
			dropped++
			continue
		}
		quotes = append(quotes, q)
	}
	return quotes, dropped
}
