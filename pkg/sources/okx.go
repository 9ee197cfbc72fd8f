package sources

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"tc.com/oracle-feeder/pkg/config"
	"tc.com/oracle-feeder/pkg/logging"
)

const okxBaseURL = "https://www.okx.com"

// OKXSource fetches spot prices from the OKX market tickers API.
type OKXSource struct {
	*baseSource
	apiURL string
}

// okxTickersResponse is the /api/v5/market/tickers response envelope.
type okxTickersResponse struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data []struct {
		InstID string `json:"instId"` // e.g. "BTC-USDT"
		Last   string `json:"last"`
	} `json:"data"`
}

// NewOKXSource creates an OKX connector.
func NewOKXSource(cfg config.SourceConfig, logger *logging.Logger) (Source, error) {
	base, err := newBaseSource(cfg.Name, cfg.Pairs, &http.Client{Timeout: cfg.Timeout.ToDuration()}, logger)
	if err != nil {
		return nil, err
	}

	return &OKXSource{
		baseSource: base,
		apiURL:     okxBaseURL,
	}, nil
}

// Fetch retrieves current ticker prices for all configured pairs.
func (s *OKXSource) Fetch(ctx context.Context) ([]RawQuote, error) {
	url := s.apiURL + "/api/v5/market/tickers?instType=SPOT"

	var resp okxTickersResponse
	if err := s.getJSON(ctx, url, &resp); err != nil {
		return nil, err
	}

	if resp.Code != "0" {
		return nil, fmt.Errorf("%w: code %s: %s", ErrUnavailable, resp.Code, resp.Msg)
	}

	quotes := make([]RawQuote, 0, len(s.pairs))
	for _, ticker := range resp.Data {
		unified := s.unifiedSymbol(strings.ToUpper(ticker.InstID))
		if unified == "" {
			continue
		}
		quotes = append(quotes, RawQuote{
			Symbol: unified,
			Price:  ticker.Last,
		})
	}

	return quotes, nil
}

func init() {
	Register("okx", NewOKXSource)
}
