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

const currencylayerBaseURL = "https://api.currencylayer.com"

// CurrencylayerSource fetches fiat rates from the currencylayer API.
// Requires an API key. Pair values name the foreign currency code, e.g.
// "KRW/USD" -> "KRW".
type CurrencylayerSource struct {
	*baseSource
	apiURL string
	apiKey string
}

// currencylayerResponse is the /live response. Quotes are keyed as
// "USDXXX" and denominate units of XXX per USD.
type currencylayerResponse struct {
	Success bool               `json:"success"`
	Quotes  map[string]float64 `json:"quotes"`
	Error   struct {
		Code int    `json:"code"`
		Info string `json:"info"`
	} `json:"error"`
}

// NewCurrencylayerSource creates a currencylayer connector.
func NewCurrencylayerSource(cfg config.SourceConfig, logger *logging.Logger) (Source, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoAPIKey, cfg.Name)
	}

	base, err := newBaseSource(cfg.Name, cfg.Pairs, &http.Client{Timeout: cfg.Timeout.ToDuration()}, logger)
	if err != nil {
		return nil, err
	}

	return &CurrencylayerSource{
		baseSource: base,
		apiURL:     currencylayerBaseURL,
		apiKey:     cfg.APIKey,
	}, nil
}

// Fetch retrieves the latest rates for all configured currencies.
func (s *CurrencylayerSource) Fetch(ctx context.Context) ([]RawQuote, error) {
	currencies := make([]string, 0, len(s.pairs))
	for _, code := range s.pairs {
		currencies = append(currencies, strings.ToUpper(code))
	}
	sort.Strings(currencies)

	url := fmt.Sprintf("%s/live?access_key=%s&source=USD&currencies=%s",
		s.apiURL, s.apiKey, strings.Join(currencies, ","))

	var resp currencylayerResponse
	if err := s.getJSON(ctx, url, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("%w: currencylayer error %d: %s", ErrUnavailable, resp.Error.Code, resp.Error.Info)
	}

	quotes := make([]RawQuote, 0, len(resp.Quotes))
	for key, rate := range resp.Quotes {
		code := strings.TrimPrefix(strings.ToUpper(key), "USD")
		unified := s.unifiedSymbol(code)
		if unified == "" || rate <= 0 {
			continue
		}
		// Quotes are foreign currency per USD; invert to price the foreign
		// currency in USD.
		price := decimal.NewFromInt(1).Div(decimal.NewFromFloat(rate))
		quotes = append(quotes, RawQuote{
			Symbol: unified,
			Price:  price.String(),
		})
	}

	return quotes, nil
}

func init() {
	Register("currencylayer", NewCurrencylayerSource)
}
