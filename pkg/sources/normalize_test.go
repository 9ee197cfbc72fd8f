package sources

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeSymbol(t *testing.T) {
	tests := []struct {
		name     string
		symbol   string
		expected string
	}{
		{"USDT quote", "LUNC/USDT", "LUNC/USD"},
		{"USDC quote", "BTC/USDC", "BTC/USD"},
		{"wrapped base", "WBTC/USDT", "BTC/USD"},
		{"fiat pair unchanged", "KRW/USD", "KRW/USD"},
		{"lowercase input", "krw/usd", "KRW/USD"},
		{"no separator unchanged", "KRWUSD", "KRWUSD"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeSymbol(tt.symbol))
		})
	}
}

func TestNormalize(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("valid quote", func(t *testing.T) {
		q, err := Normalize(RawQuote{Symbol: "KRW/USDT", Price: "0.00072"}, "binance", now)
		require.NoError(t, err)
		assert.Equal(t, "KRW/USD", q.Symbol)
		assert.True(t, q.Rate.Equal(decimal.RequireFromString("0.00072")))
		assert.Equal(t, "binance", q.Source)
		assert.Equal(t, now, q.ObservedAt)
	})

	t.Run("explicit observation time kept", func(t *testing.T) {
		at := now.Add(-30 * time.Second)
		q, err := Normalize(RawQuote{Symbol: "BTC/USD", Price: "50000", ObservedAt: at}, "kraken", now)
		require.NoError(t, err)
		assert.Equal(t, at, q.ObservedAt)
	})

	t.Run("unparseable price", func(t *testing.T) {
		_, err := Normalize(RawQuote{Symbol: "BTC/USD", Price: "not-a-number"}, "binance", now)
		assert.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("zero rate", func(t *testing.T) {
		_, err := Normalize(RawQuote{Symbol: "BTC/USD", Price: "0"}, "binance", now)
		assert.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("negative rate", func(t *testing.T) {
		_, err := Normalize(RawQuote{Symbol: "BTC/USD", Price: "-1.5"}, "binance", now)
		assert.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("bad symbol", func(t *testing.T) {
		_, err := Normalize(RawQuote{Symbol: "BTCUSD", Price: "50000"}, "binance", now)
		assert.ErrorIs(t, err, ErrMalformed)
	})
}

func TestNormalizeAll(t *testing.T) {
	now := time.Now()
	raws := []RawQuote{
		{Symbol: "BTC/USDT", Price: "50000"},
		{Symbol: "ETH/USDT", Price: "garbage"},
		{Symbol: "KRW/USD", Price: "0.00072"},
	}

	quotes, dropped := NormalizeAll(raws, "binance", now)
	assert.Len(t, quotes, 2)
	assert.Equal(t, 1, dropped)
}
