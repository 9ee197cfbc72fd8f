// Package metrics provides Prometheus metrics for the oracle feeder.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// QuoteFetchesTotal counts source fetch attempts by outcome.
	QuoteFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quote_fetches_total",
			Help: "Total number of quote fetch attempts per source",
		},
		[]string{"source", "outcome"},
	)

	// QuotesDiscardedTotal counts quotes dropped before combination.
	QuotesDiscardedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quotes_discarded_total",
			Help: "Total number of quotes discarded during aggregation",
		},
		[]string{"symbol", "reason"},
	)

	// AggregationDuration is a histogram of aggregation duration.
	AggregationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aggregation_duration_seconds",
			Help:    "Duration of one aggregation pass",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"statistic"},
	)

	// AggregatedRate is the latest aggregated rate per symbol.
	AggregatedRate = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aggregated_rate",
			Help: "Latest aggregated exchange rate per symbol",
		},
		[]string{"symbol"},
	)

	// ChainHeight is the last observed block height per network.
	ChainHeight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chain_height",
			Help: "Last observed block height per network",
		},
		[]string{"network"},
	)

	// PrevotesTotal counts prevote submissions by outcome.
	PrevotesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prevotes_total",
			Help: "Total number of prevote submissions per network",
		},
		[]string{"network", "outcome"},
	)

	// VotesTotal counts vote (reveal) submissions by outcome.
	VotesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "votes_total",
			Help: "Total number of vote submissions per network",
		},
		[]string{"network", "outcome"},
	)

	// PeriodsSkippedTotal counts skipped voting periods by reason.
	// Reasons: "no_fresh_data" (no live prices when a prevote was due)
	// and "missed_window" (a commitment outlived its reveal window).
	PeriodsSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "periods_skipped_total",
			Help: "Total number of skipped voting periods per network and reason",
		},
		[]string{"network", "reason"},
	)

	// SubmissionRetriesTotal counts submission retries by cause.
	SubmissionRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "submission_retries_total",
			Help: "Total number of transaction submission retries per network",
		},
		[]string{"network", "cause"},
	)

	// HTTPRequestsTotal counts status listener requests.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"endpoint", "status"},
	)
)

var initialized bool

// Init registers all metrics with the default registry.
func Init() {
	if initialized {
		return
	}
	initialized = true

	prometheus.MustRegister(
		QuoteFetchesTotal,
		QuotesDiscardedTotal,
		AggregationDuration,
		AggregatedRate,
		ChainHeight,
		PrevotesTotal,
		VotesTotal,
		PeriodsSkippedTotal,
		SubmissionRetriesTotal,
		HTTPRequestsTotal,
	)
}

// RecordQuoteFetch records the outcome of one source fetch.
func RecordQuoteFetch(source, outcome string) {
	QuoteFetchesTotal.WithLabelValues(source, outcome).Inc()
}

// RecordQuoteDiscard records a quote dropped during aggregation.
func RecordQuoteDiscard(symbol, reason string) {
	QuotesDiscardedTotal.WithLabelValues(symbol, reason).Inc()
}

// RecordAggregation records the duration of one aggregation pass.
func RecordAggregation(statistic string, d time.Duration) {
	AggregationDuration.WithLabelValues(statistic).Observe(d.Seconds())
}

// RecordPrevote records the outcome of one prevote submission.
func RecordPrevote(network, outcome string) {
	PrevotesTotal.WithLabelValues(network, outcome).Inc()
}

// RecordVote records the outcome of one vote submission.
func RecordVote(network, outcome string) {
	VotesTotal.WithLabelValues(network, outcome).Inc()
}

// RecordSubmissionRetry records one transaction submission retry.
func RecordSubmissionRetry(network, cause string) {
	SubmissionRetriesTotal.WithLabelValues(network, cause).Inc()
}

// RecordSkippedPeriod records a skipped voting period with its reason.
func RecordSkippedPeriod(network, reason string) {
	PeriodsSkippedTotal.WithLabelValues(network, reason).Inc()
}

// RecordHTTPRequest records a status listener request.
func RecordHTTPRequest(endpoint, status string) {
	HTTPRequestsTotal.WithLabelValues(endpoint, status).Inc()
}

// ServeHTTP starts the metrics HTTP server on the given address.
func ServeHTTP(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return server.ListenAndServe()
}
