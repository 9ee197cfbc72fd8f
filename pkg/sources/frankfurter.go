package sources

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"tc.com/oracle-feeder/pkg/config"
	"tc.com/oracle-feeder/pkg/logging"
)

const frankfurterBaseURL = "https://api.frankfurter.app"

// FrankfurterSource fetches fiat reference rates from the Frankfurter API
// (ECB data). Pair values name the foreign currency code, e.g.
// "KRW/USD" -> "KRW".
type FrankfurterSource struct {
	*baseSource
	apiURL string
}

// frankfurterResponse is the /latest response.
type frankfurterResponse struct {
	Base  string             `json:"base"`
	Date  string             `json:"date"`
	Rates map[string]float64 `json:"rates"`
}

// NewFrankfurterSource creates a Frankfurter connector.
func NewFrankfurterSource(cfg config.SourceConfig, logger *logging.Logger) (Source, error) {
	base, err := newBaseSource(cfg.Name, cfg.Pairs, &http.Client{Timeout: cfg.Timeout.ToDuration()}, logger)
	if err != nil {
		return nil, err
	}

	return &FrankfurterSource{
		baseSource: base,
		apiURL:     frankfurterBaseURL,
	}, nil
}

// Fetch retrieves the latest reference rates for all configured currencies.
func (s *FrankfurterSource) Fetch(ctx context.Context) ([]RawQuote, error) {
	currencies := make([]string, 0, len(s.pairs))
	for _, code := range s.pairs {
		currencies = append(currencies, strings.ToUpper(code))
	}
	sort.Strings(currencies)

	url := fmt.Sprintf("%s/latest?from=USD&to=%s", s.apiURL, strings.Join(currencies, ","))

	var resp frankfurterResponse
	if err := s.getJSON(ctx, url, &resp); err != nil {
		return nil, err
	}

	quotes := make([]RawQuote, 0, len(resp.Rates))
	for code, rate := range resp.Rates {
		unified := s.unifiedSymbol(strings.ToUpper(code))
		if unified == "" || rate <= 0 {
			continue
		}
		// The API returns units of foreign currency per USD; the unified
		// symbol prices the foreign currency in USD, so invert.
		price := decimal.NewFromInt(1).Div(decimal.NewFromFloat(rate))
		quotes = append(quotes, RawQuote{
			Symbol: unified,
			Price:  price.String(),
		})
	}

	return quotes, nil
}

func init() {
	Register("frankfurter", NewFrankfurterSource)
}
