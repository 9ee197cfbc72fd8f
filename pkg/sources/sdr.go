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

// SDR basket currency amounts from the IMF, effective August 1, 2022.
// https://www.imf.org/external/np/fin/data/rms_sdrv.aspx
// The amounts are fixed by the IMF Executive Board and reviewed every
// five years (next review: 2027).
var sdrBasketAmounts = map[string]float64{
	"USD": 0.57813,
	"EUR": 0.37379,
	"CNY": 1.0993,
	"JPY": 13.452,
	"GBP": 0.080870,
}

// SDRSource derives the SDR/USD rate from the IMF currency basket:
// SDR/USD = sum(amount_i * rate_i), where rate_i prices one unit of
// basket currency i in USD. Basket rates come from the same ECB
// reference feed the frankfurter connector uses.
type SDRSource struct {
	*baseSource
	apiURL string
}

// NewSDRSource creates an SDR basket connector.
func NewSDRSource(cfg config.SourceConfig, logger *logging.Logger) (Source, error) {
	base, err := newBaseSource(cfg.Name, cfg.Pairs, &http.Client{Timeout: cfg.Timeout.ToDuration()}, logger)
	if err != nil {
		return nil, err
	}

	return &SDRSource{
		baseSource: base,
		apiURL:     frankfurterBaseURL,
	}, nil
}

// Fetch retrieves live basket currency rates and computes the SDR value.
// All five basket currencies must be present or the quote is withheld.
func (s *SDRSource) Fetch(ctx context.Context) ([]RawQuote, error) {
	currencies := make([]string, 0, len(sdrBasketAmounts)-1)
	for code := range sdrBasketAmounts {
		if code != "USD" {
			currencies = append(currencies, code)
		}
	}
	sort.Strings(currencies)

	url := fmt.Sprintf("%s/latest?from=USD&to=%s", s.apiURL, strings.Join(currencies, ","))

	var resp frankfurterResponse
	if err := s.getJSON(ctx, url, &resp); err != nil {
		return nil, err
	}

	value := decimal.Zero
	for code, amount := range sdrBasketAmounts {
		price := decimal.NewFromInt(1) // USD/USD
		if code != "USD" {
			rate, ok := resp.Rates[code]
			if !ok || rate <= 0 {
				return nil, fmt.Errorf("%w: missing basket currency %s", ErrMalformed, code)
			}
			// The API returns units of foreign currency per USD; invert to
			// get the USD price of one unit.
			price = decimal.NewFromInt(1).Div(decimal.NewFromFloat(rate))
		}
		value = value.Add(decimal.NewFromFloat(amount).Mul(price))
	}

	quotes := make([]RawQuote, 0, len(s.pairs))
	for unified := range s.pairs {
		quotes = append(quotes, RawQuote{
			Symbol: unified,
			Price:  value.String(),
		})
	}
	return quotes, nil
}

func init() {
	Register("sdr", NewSDRSource)
}
