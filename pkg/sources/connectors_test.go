package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tc.com/oracle-feeder/pkg/config"
	"tc.com/oracle-feeder/pkg/logging"
)

func sourceConfig(name string, pairs map[string]string) config.SourceConfig {
	return config.SourceConfig{
		Type:    name,
		Name:    name,
		Enabled: true,
		Timeout: config.Duration(5 * time.Second),
		Pairs:   pairs,
	}
}

func TestBinanceFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/api/v3/ticker/price")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"symbol":"LUNCUSDT","price":"0.000065"},{"symbol":"BTCUSDT","price":"50000.12"}]`))
	}))
	defer server.Close()

	src, err := NewBinanceSource(sourceConfig("binance", map[string]string{
		"LUNC/USD": "LUNCUSDT",
	}), logging.NewNoopLogger())
	require.NoError(t, err)
	src.(*BinanceSource).apiURL = server.URL

	quotes, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, "LUNC/USD", quotes[0].Symbol)
	assert.Equal(t, "0.000065", quotes[0].Price)
}

func TestBinanceFetchRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	src, err := NewBinanceSource(sourceConfig("binance", map[string]string{
		"LUNC/USD": "LUNCUSDT",
	}), logging.NewNoopLogger())
	require.NoError(t, err)
	src.(*BinanceSource).apiURL = server.URL

	_, err = src.Fetch(context.Background())
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestBinanceFetchServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	src, err := NewBinanceSource(sourceConfig("binance", map[string]string{
		"LUNC/USD": "LUNCUSDT",
	}), logging.NewNoopLogger())
	require.NoError(t, err)
	src.(*BinanceSource).apiURL = server.URL

	_, err = src.Fetch(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestBinanceFetchMalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"not":"an array"`))
	}))
	defer server.Close()

	src, err := NewBinanceSource(sourceConfig("binance", map[string]string{
		"LUNC/USD": "LUNCUSDT",
	}), logging.NewNoopLogger())
	require.NoError(t, err)
	src.(*BinanceSource).apiURL = server.URL

	_, err = src.Fetch(context.Background())
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestKrakenFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/0/public/Ticker")
		_, _ = w.Write([]byte(`{"error":[],"result":{"XXBTZUSD":{"c":["50123.4","0.01"]}}}`))
	}))
	defer server.Close()

	src, err := NewKrakenSource(sourceConfig("kraken", map[string]string{
		"BTC/USD": "XXBTZUSD",
	}), logging.NewNoopLogger())
	require.NoError(t, err)
	src.(*KrakenSource).apiURL = server.URL

	quotes, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, "BTC/USD", quotes[0].Symbol)
	assert.Equal(t, "50123.4", quotes[0].Price)
}

func TestKrakenFetchAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"error":["EGeneral:Invalid arguments"],"result":{}}`))
	}))
	defer server.Close()

	src, err := NewKrakenSource(sourceConfig("kraken", map[string]string{
		"BTC/USD": "XXBTZUSD",
	}), logging.NewNoopLogger())
	require.NoError(t, err)
	src.(*KrakenSource).apiURL = server.URL

	_, err = src.Fetch(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestOKXFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/api/v5/market/tickers")
		_, _ = w.Write([]byte(`{"code":"0","msg":"","data":[{"instId":"BTC-USDT","last":"50001.1"},{"instId":"ETH-USDT","last":"3000"}]}`))
	}))
	defer server.Close()

	src, err := NewOKXSource(sourceConfig("okx", map[string]string{
		"BTC/USD": "BTC-USDT",
	}), logging.NewNoopLogger())
	require.NoError(t, err)
	src.(*OKXSource).apiURL = server.URL

	quotes, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, "BTC/USD", quotes[0].Symbol)
	assert.Equal(t, "50001.1", quotes[0].Price)
}

func TestFrankfurterFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.RawQuery, "from=USD")
		_, _ = w.Write([]byte(`{"base":"USD","date":"2024-06-01","rates":{"KRW":1350.0,"EUR":0.92}}`))
	}))
	defer server.Close()

	src, err := NewFrankfurterSource(sourceConfig("frankfurter", map[string]string{
		"KRW/USD": "KRW",
		"EUR/USD": "EUR",
	}), logging.NewNoopLogger())
	require.NoError(t, err)
	src.(*FrankfurterSource).apiURL = server.URL

	quotes, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, quotes, 2)

	bySymbol := make(map[string]string)
	for _, q := range quotes {
		bySymbol[q.Symbol] = q.Price
	}
	// Rates come back as KRW-per-USD and are inverted to price KRW in USD.
	assert.Contains(t, bySymbol, "KRW/USD")
	assert.Contains(t, bySymbol, "EUR/USD")
}

func TestSDRFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.RawQuery, "to=CNY,EUR,GBP,JPY")
		_, _ = w.Write([]byte(`{"base":"USD","date":"2024-06-01","rates":{"EUR":0.8,"CNY":8.0,"JPY":160.0,"GBP":0.5}}`))
	}))
	defer server.Close()

	src, err := NewSDRSource(sourceConfig("sdr", map[string]string{
		"SDR/USD": "SDR",
	}), logging.NewNoopLogger())
	require.NoError(t, err)
	src.(*SDRSource).apiURL = server.URL

	quotes, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, "SDR/USD", quotes[0].Symbol)

	// 0.57813 + 0.37379*1.25 + 1.0993*0.125 + 13.452*0.00625 + 0.080870*2
	got, err := decimal.NewFromString(quotes[0].Price)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("1.428595").Equal(got), "got %s", got)
}

func TestSDRFetchMissingBasketCurrency(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"base":"USD","date":"2024-06-01","rates":{"EUR":0.8,"CNY":8.0,"JPY":160.0}}`))
	}))
	defer server.Close()

	src, err := NewSDRSource(sourceConfig("sdr", map[string]string{
		"SDR/USD": "SDR",
	}), logging.NewNoopLogger())
	require.NoError(t, err)
	src.(*SDRSource).apiURL = server.URL

	_, err = src.Fetch(context.Background())
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestCurrencylayerFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.RawQuery, "access_key=testkey")
		assert.Contains(t, r.URL.RawQuery, "source=USD")
		_, _ = w.Write([]byte(`{"success":true,"quotes":{"USDKRW":1250.0,"USDMNT":3450.0}}`))
	}))
	defer server.Close()

	cfg := sourceConfig("currencylayer", map[string]string{
		"KRW/USD": "KRW",
	})
	cfg.APIKey = "testkey"

	src, err := NewCurrencylayerSource(cfg, logging.NewNoopLogger())
	require.NoError(t, err)
	src.(*CurrencylayerSource).apiURL = server.URL

	quotes, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, "KRW/USD", quotes[0].Symbol)
	// 1/1250, inverted from the USDKRW quote.
	assert.Equal(t, "0.0008", quotes[0].Price)
}

func TestCurrencylayerAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"error":{"code":104,"info":"monthly usage limit reached"}}`))
	}))
	defer server.Close()

	cfg := sourceConfig("currencylayer", map[string]string{
		"KRW/USD": "KRW",
	})
	cfg.APIKey = "testkey"

	src, err := NewCurrencylayerSource(cfg, logging.NewNoopLogger())
	require.NoError(t, err)
	src.(*CurrencylayerSource).apiURL = server.URL

	_, err = src.Fetch(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestCurrencylayerRequiresAPIKey(t *testing.T) {
	_, err := NewCurrencylayerSource(sourceConfig("currencylayer", map[string]string{
		"KRW/USD": "KRW",
	}), logging.NewNoopLogger())
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestCreateUnknownType(t *testing.T) {
	_, err := Create(config.SourceConfig{Type: "bogus"}, logging.NewNoopLogger())
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestCreateRegistered(t *testing.T) {
	src, err := Create(sourceConfig("binance", map[string]string{
		"LUNC/USD": "LUNCUSDT",
	}), logging.NewNoopLogger())
	require.NoError(t, err)
	assert.Equal(t, "binance", src.Name())
	assert.Equal(t, []string{"LUNC/USD"}, src.Symbols())
}

func TestNoPairsConfigured(t *testing.T) {
	_, err := NewBinanceSource(sourceConfig("binance", nil), logging.NewNoopLogger())
	assert.ErrorIs(t, err, ErrNoPairsConfigured)
}
