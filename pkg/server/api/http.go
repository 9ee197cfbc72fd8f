// Package api exposes the feeder's status listener: health, current
// rates, per-network voting status, and a WebSocket rate stream.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"tc.com/oracle-feeder/pkg/aggregator"
	"tc.com/oracle-feeder/pkg/feeder/voter"
	"tc.com/oracle-feeder/pkg/logging"
	"tc.com/oracle-feeder/pkg/metrics"
	"tc.com/oracle-feeder/pkg/version"
)

// RateProvider supplies the latest aggregated rate per symbol.
type RateProvider interface {
	Rates() map[string]aggregator.ExchangeRate
}

// StatusProvider supplies one network's voting status.
type StatusProvider interface {
	Name() string
	Snapshot() voter.Status
}

// Server is the status listener.
type Server struct {
	addr     string
	rates    RateProvider
	networks []StatusProvider
	stream   *RateStream
	logger   *logging.Logger
	server   *http.Server
}

// NewServer creates a status listener. stream may be nil to disable the
// WebSocket endpoint.
func NewServer(addr string, rates RateProvider, networks []StatusProvider, stream *RateStream, logger *logging.Logger) *Server {
	return &Server{
		addr:     addr,
		rates:    rates,
		networks: networks,
		stream:   stream,
		logger:   logger,
	}
}

// Start serves until the listener fails or Stop is called.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/v1/prices", s.handlePrices)
	mux.HandleFunc("/v1/status", s.handleStatus)
	if s.stream != nil {
		mux.HandleFunc("/ws", s.stream.HandleWS)
	}

	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info("Starting status listener", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("status listener error: %w", err)
	}
	return nil
}

// Stop gracefully stops the listener.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		s.logger.Info("Stopping status listener")
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	metrics.RecordHTTPRequest("/healthz", "200")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// priceEntry is one element of the /v1/prices response.
type priceEntry struct {
	Symbol     string `json:"symbol"`
	Rate       string `json:"rate"`
	Sources    int    `json:"sources"`
	ComputedAt string `json:"computed_at"`
}

func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	rates := s.rates.Rates()
	if len(rates) == 0 {
		metrics.RecordHTTPRequest(r.URL.Path, "503")
		http.Error(w, "No rates available", http.StatusServiceUnavailable)
		return
	}

	entries := make([]priceEntry, 0, len(rates))
	for _, rate := range rates {
		entries = append(entries, priceEntry{
			Symbol:     rate.Symbol,
			Rate:       rate.Rate.String(),
			Sources:    rate.Sources,
			ComputedAt: rate.ComputedAt.Format(time.RFC3339),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Symbol < entries[j].Symbol })

	metrics.RecordHTTPRequest(r.URL.Path, "200")
	s.sendJSON(w, entries)
}

// statusResponse is the /v1/status response.
type statusResponse struct {
	Version  string         `json:"version"`
	Networks []voter.Status `json:"networks"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Version:  version.Version,
		Networks: make([]voter.Status, 0, len(s.networks)),
	}
	for _, n := range s.networks {
		resp.Networks = append(resp.Networks, n.Snapshot())
	}

	metrics.RecordHTTPRequest(r.URL.Path, "200")
	s.sendJSON(w, resp)
}

func (s *Server) sendJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode JSON response", "error", err)
	}
}
