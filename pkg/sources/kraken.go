package sources

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"tc.com/oracle-feeder/pkg/config"
	"tc.com/oracle-feeder/pkg/logging"
)

const krakenBaseURL = "https://api.kraken.com"

// KrakenSource fetches spot prices from the Kraken public ticker API.
type KrakenSource struct {
	*baseSource
	apiURL string
}

// krakenTickerResponse is the /0/public/Ticker response envelope.
// The "c" array holds [last trade price, lot volume].
type krakenTickerResponse struct {
	Error  []string `json:"error"`
	Result map[string]struct {
		Close []string `json:"c"`
	} `json:"result"`
}

// NewKrakenSource creates a Kraken connector.
func NewKrakenSource(cfg config.SourceConfig, logger *logging.Logger) (Source, error) {
	base, err := newBaseSource(cfg.Name, cfg.Pairs, &http.Client{Timeout: cfg.Timeout.ToDuration()}, logger)
	if err != nil {
		return nil, err
	}

	return &KrakenSource{
		baseSource: base,
		apiURL:     krakenBaseURL,
	}, nil
}

// Fetch retrieves current ticker prices for all configured pairs.
func (s *KrakenSource) Fetch(ctx context.Context) ([]RawQuote, error) {
	pairs := make([]string, 0, len(s.pairs))
	for _, sourceSymbol := range s.pairs {
		pairs = append(pairs, sourceSymbol)
	}

	url := fmt.Sprintf("%s/0/public/Ticker?pair=%s", s.apiURL, strings.Join(pairs, ","))

	var resp krakenTickerResponse
	if err := s.getJSON(ctx, url, &resp); err != nil {
		return nil, err
	}

	if len(resp.Error) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, strings.Join(resp.Error, "; "))
	}

	quotes := make([]RawQuote, 0, len(resp.Result))
	for pairName, ticker := range resp.Result {
		// Kraken may answer with its own canonical pair name; try both.
		unified := s.unifiedSymbol(pairName)
		if unified == "" {
			unified = s.unifiedSymbol(strings.ToUpper(pairName))
		}
		if unified == "" || len(ticker.Close) == 0 {
			continue
		}
		quotes = append(quotes, RawQuote{
			Symbol: unified,
			Price:  ticker.Close[0],
		})
	}

	return quotes, nil
}

func init() {
	Register("kraken", NewKrakenSource)
}
