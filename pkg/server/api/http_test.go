package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tc.com/oracle-feeder/pkg/aggregator"
	"tc.com/oracle-feeder/pkg/feeder/voter"
	"tc.com/oracle-feeder/pkg/logging"
)

type fakeRates struct {
	rates map[string]aggregator.ExchangeRate
}

func (f *fakeRates) Rates() map[string]aggregator.ExchangeRate {
	return f.rates
}

type fakeNetwork struct {
	status voter.Status
}

func (f *fakeNetwork) Name() string           { return f.status.Network }
func (f *fakeNetwork) Snapshot() voter.Status { return f.status }

func testServer(rates map[string]aggregator.ExchangeRate) *Server {
	return NewServer(":0",
		&fakeRates{rates: rates},
		[]StatusProvider{&fakeNetwork{status: voter.Status{
			Network:    "columbus-5",
			State:      voter.StateCommitted,
			LastPeriod: 42,
			RateCount:  2,
		}}},
		nil,
		logging.NewNoopLogger(),
	)
}

func sampleRates() map[string]aggregator.ExchangeRate {
	return map[string]aggregator.ExchangeRate{
		"KRW/USD": {
			Symbol:     "KRW/USD",
			Rate:       decimal.RequireFromString("0.00072"),
			Sources:    3,
			ComputedAt: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		},
	}
}

func TestHandleHealth(t *testing.T) {
	s := testServer(sampleRates())
	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestHandlePrices(t *testing.T) {
	s := testServer(sampleRates())
	rec := httptest.NewRecorder()
	s.handlePrices(rec, httptest.NewRequest(http.MethodGet, "/v1/prices", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var entries []priceEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "KRW/USD", entries[0].Symbol)
	assert.Equal(t, "0.00072", entries[0].Rate)
	assert.Equal(t, 3, entries[0].Sources)
}

func TestHandlePricesEmpty(t *testing.T) {
	s := testServer(nil)
	rec := httptest.NewRecorder()
	s.handlePrices(rec, httptest.NewRequest(http.MethodGet, "/v1/prices", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleStatus(t *testing.T) {
	s := testServer(sampleRates())
	rec := httptest.NewRecorder()
	s.handleStatus(rec, httptest.NewRequest(http.MethodGet, "/v1/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Networks, 1)
	assert.Equal(t, "columbus-5", resp.Networks[0].Network)
	assert.Equal(t, voter.StateCommitted, resp.Networks[0].State)
	assert.Equal(t, int64(42), resp.Networks[0].LastPeriod)
}

func TestRateStreamBroadcast(t *testing.T) {
	stream := NewRateStream(logging.NewNoopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = stream.Run(ctx) }()

	ts := httptest.NewServer(http.HandlerFunc(stream.HandleWS))
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Give the server a moment to register the client.
	time.Sleep(50 * time.Millisecond)

	now := time.Now()
	stream.ApplyRates([]aggregator.ExchangeRate{
		{Symbol: "KRW/USD", Rate: decimal.RequireFromString("0.00072"), Sources: 2, ComputedAt: now},
	}, now)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg rateUpdateMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "rate_update", msg.Type)
	require.Len(t, msg.Rates, 1)
	assert.Equal(t, "KRW/USD", msg.Rates[0].Symbol)
}

func TestRateStreamSubscribeFilter(t *testing.T) {
	client := &streamClient{
		subscribedAll:   true,
		subscribedPairs: make(map[string]bool),
	}

	rates := []aggregator.ExchangeRate{{Symbol: "KRW/USD"}}
	assert.True(t, client.shouldReceive(rates))

	client.subscribe([]string{"BTC/USD"})
	assert.False(t, client.shouldReceive(rates))

	client.subscribe([]string{"KRW/USD"})
	assert.True(t, client.shouldReceive(rates))

	client.unsubscribe([]string{"*"})
	assert.False(t, client.shouldReceive(rates))
}
