// Package network runs the feeder's long-lived loops: a shared sampler
// that turns source quotes into aggregated rates, and one coordinator
// per network that feeds those rates into the commit-reveal cycle.
package network

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"tc.com/oracle-feeder/pkg/aggregator"
	"tc.com/oracle-feeder/pkg/logging"
	"tc.com/oracle-feeder/pkg/metrics"
	"tc.com/oracle-feeder/pkg/sources"
)

// RateSink receives each batch of freshly aggregated rates.
type RateSink interface {
	ApplyRates(rates []aggregator.ExchangeRate, observedAt time.Time)
}

// Sampler periodically fans out to all sources, normalizes and
// aggregates the quotes, and pushes the results to its sinks. One
// sampler serves every network.
type Sampler struct {
	sources    []sources.Source
	aggregator *aggregator.Aggregator
	interval   time.Duration
	logger     *logging.Logger
	sinks      []RateSink

	mu     sync.RWMutex
	latest map[string]aggregator.ExchangeRate

	now func() time.Time
}

// NewSampler creates a Sampler.
func NewSampler(srcs []sources.Source, agg *aggregator.Aggregator, interval time.Duration, logger *logging.Logger) *Sampler {
	return &Sampler{
		sources:    srcs,
		aggregator: agg,
		interval:   interval,
		logger:     logger,
		latest:     make(map[string]aggregator.ExchangeRate),
		now:        time.Now,
	}
}

// AddSink registers a sink. Not safe to call after Run has started.
func (s *Sampler) AddSink(sink RateSink) {
	s.sinks = append(s.sinks, sink)
}

// Run samples until the context is canceled. The first pass runs
// immediately.
func (s *Sampler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sample(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sample(ctx)
		}
	}
}

// sample runs one fetch-normalize-aggregate pass.
func (s *Sampler) sample(ctx context.Context) {
	now := s.now()
	quotes := s.fetchAll(ctx, now)

	bySymbol := make(map[string][]sources.Quote)
	for _, q := range quotes {
		bySymbol[q.Symbol] = append(bySymbol[q.Symbol], q)
	}

	start := s.now()
	rates := make([]aggregator.ExchangeRate, 0, len(bySymbol))
	for symbol, symbolQuotes := range bySymbol {
		rate, err := s.aggregator.Aggregate(symbol, symbolQuotes, now)
		if err != nil {
			metrics.RecordQuoteDiscard(symbol, "aggregation_failed")
			s.logger.Warn("Aggregation failed", "symbol", symbol, "error", err)
			continue
		}
		rates = append(rates, rate)

		f, _ := rate.Rate.Float64()
		metrics.AggregatedRate.WithLabelValues(symbol).Set(f)
	}
	metrics.RecordAggregation(s.aggregator.Statistic(), s.now().Sub(start))

	if len(rates) == 0 {
		s.logger.Warn("Sampling pass produced no rates", "quotes", len(quotes))
		return
	}

	s.mu.Lock()
	for _, r := range rates {
		s.latest[r.Symbol] = r
	}
	s.mu.Unlock()

	for _, sink := range s.sinks {
		sink.ApplyRates(rates, now)
	}

	s.logger.Debug("Sampling pass complete",
		"quotes", len(quotes),
		"symbols", len(rates))
}

// fetchAll queries every source concurrently and returns the combined
// normalized quotes. A failing source is logged and skipped.
func (s *Sampler) fetchAll(ctx context.Context, now time.Time) []sources.Quote {
	var mu sync.Mutex
	var all []sources.Quote

	g, gctx := errgroup.WithContext(ctx)
	for _, src := range s.sources {
		src := src
		g.Go(func() error {
			raws, err := src.Fetch(gctx)
			if err != nil {
				metrics.RecordQuoteFetch(src.Name(), "error")
				s.logger.Warn("Source fetch failed", "source", src.Name(), "error", err)
				return nil
			}
			metrics.RecordQuoteFetch(src.Name(), "ok")

			quotes, dropped := sources.NormalizeAll(raws, src.Name(), now)
			if dropped > 0 {
				s.logger.Debug("Dropped malformed quotes", "source", src.Name(), "count", dropped)
			}

			mu.Lock()
			all = append(all, quotes...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return all
}

// Rates returns the latest aggregated rate per symbol.
func (s *Sampler) Rates() map[string]aggregator.ExchangeRate {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]aggregator.ExchangeRate, len(s.latest))
	for k, v := range s.latest {
		out[k] = v
	}
	return out
}
