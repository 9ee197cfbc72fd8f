package sources

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"tc.com/oracle-feeder/pkg/config"
	"tc.com/oracle-feeder/pkg/logging"
)

const binanceBaseURL = "https://api.binance.com"

// BinanceSource fetches spot prices from the Binance REST API.
type BinanceSource struct {
	*baseSource
	apiURL string
}

// binancePriceTicker is one entry of the /api/v3/ticker/price response.
type binancePriceTicker struct {
	Symbol string `json:"symbol"` // e.g. "LUNCUSDT"
	Price  string `json:"price"`
}

// NewBinanceSource creates a Binance connector.
func NewBinanceSource(cfg config.SourceConfig, logger *logging.Logger) (Source, error) {
	base, err := newBaseSource(cfg.Name, cfg.Pairs, &http.Client{Timeout: cfg.Timeout.ToDuration()}, logger)
	if err != nil {
		return nil, err
	}

	return &BinanceSource{
		baseSource: base,
		apiURL:     binanceBaseURL,
	}, nil
}

// Fetch retrieves current ticker prices for all configured pairs.
func (s *BinanceSource) Fetch(ctx context.Context) ([]RawQuote, error) {
	symbols := make([]string, 0, len(s.pairs))
	for _, sourceSymbol := range s.pairs {
		symbols = append(symbols, `"`+strings.ToUpper(sourceSymbol)+`"`)
	}

	url := fmt.Sprintf("%s/api/v3/ticker/price?symbols=[%s]", s.apiURL, strings.Join(symbols, ","))

	var tickers []binancePriceTicker
	if err := s.getJSON(ctx, url, &tickers); err != nil {
		return nil, err
	}

	quotes := make([]RawQuote, 0, len(tickers))
	for _, ticker := range tickers {
		unified := s.unifiedSymbol(strings.ToUpper(ticker.Symbol))
		if unified == "" {
			continue
		}
		quotes = append(quotes, RawQuote{
			Symbol: unified,
			Price:  ticker.Price,
		})
	}

	return quotes, nil
}

func init() {
	Register("binance", NewBinanceSource)
}
