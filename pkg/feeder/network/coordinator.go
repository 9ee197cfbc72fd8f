package network

import (
	"context"
	"time"

	oracletypes "github.com/classic-terra/core/v3/x/oracle/types"
	"golang.org/x/sync/errgroup"

	"tc.com/oracle-feeder/pkg/aggregator"
	"tc.com/oracle-feeder/pkg/feeder/oracle"
	"tc.com/oracle-feeder/pkg/feeder/voter"
	"tc.com/oracle-feeder/pkg/logging"
	"tc.com/oracle-feeder/pkg/metrics"
)

// ChainReader is the subset of the gRPC client the coordinator needs.
type ChainReader interface {
	GetLatestHeight(ctx context.Context) (int64, error)
	GetOracleParams(ctx context.Context) (*oracletypes.Params, error)
}

// Coordinator runs the per-network loops: it polls the chain height to
// drive the voter and refreshes oracle parameters, and maps aggregated
// symbol rates onto the network's denominations.
type Coordinator struct {
	name   string
	client ChainReader
	voter  *voter.Voter
	logger *logging.Logger

	// denoms maps unified symbols to chain denominations,
	// e.g. "KRW/USD" -> "ukrw".
	denoms map[string]string

	pollInterval   time.Duration
	paramsInterval time.Duration
}

// Config holds configuration for creating a Coordinator.
type Config struct {
	Name           string
	Client         ChainReader
	Voter          *voter.Voter
	Logger         *logging.Logger
	Denoms         map[string]string
	PollInterval   time.Duration
	ParamsInterval time.Duration
}

// New creates a Coordinator.
func New(cfg Config) *Coordinator {
	return &Coordinator{
		name:           cfg.Name,
		client:         cfg.Client,
		voter:          cfg.Voter,
		logger:         cfg.Logger,
		denoms:         cfg.Denoms,
		pollInterval:   cfg.PollInterval,
		paramsInterval: cfg.ParamsInterval,
	}
}

// ApplyRates maps aggregated symbol rates to this network's denoms and
// hands them to the voter. Symbols without a denom mapping are ignored.
func (c *Coordinator) ApplyRates(rates []aggregator.ExchangeRate, observedAt time.Time) {
	mapped := make([]oracle.Rate, 0, len(rates))
	for _, r := range rates {
		denom, ok := c.denoms[r.Symbol]
		if !ok {
			continue
		}
		mapped = append(mapped, oracle.Rate{Denom: denom, Rate: r.Rate})
	}
	if len(mapped) == 0 {
		return
	}
	c.voter.SetRates(mapped, observedAt)
}

// Run drives the height and params loops until the context is canceled.
func (c *Coordinator) Run(ctx context.Context) error {
	c.logger.Info("Starting network coordinator",
		"network", c.name,
		"poll_interval", c.pollInterval,
		"params_interval", c.paramsInterval)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.heightLoop(gctx) })
	g.Go(func() error { return c.paramsLoop(gctx) })
	return g.Wait()
}

// heightLoop polls the chain height and feeds it to the voter. Query
// and submission errors are logged and do not stop the loop.
func (c *Coordinator) heightLoop(ctx context.Context) error {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	var lastHeight int64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		height, err := c.client.GetLatestHeight(ctx)
		if err != nil {
			c.logger.Warn("Height query failed", "network", c.name, "error", err)
			continue
		}
		if height == lastHeight {
			continue
		}
		lastHeight = height
		metrics.ChainHeight.WithLabelValues(c.name).Set(float64(height))

		if err := c.voter.ObserveHeight(ctx, height); err != nil {
			c.logger.Error("Vote cycle failed",
				"network", c.name,
				"height", height,
				"error", err)
		}
	}
}

// paramsLoop refreshes oracle module parameters, once at startup and
// then on the configured interval.
func (c *Coordinator) paramsLoop(ctx context.Context) error {
	c.refreshParams(ctx)

	ticker := time.NewTicker(c.paramsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.refreshParams(ctx)
		}
	}
}

func (c *Coordinator) refreshParams(ctx context.Context) {
	params, err := c.client.GetOracleParams(ctx)
	if err != nil {
		c.logger.Warn("Oracle params query failed", "network", c.name, "error", err)
		return
	}

	whitelist := make([]string, 0, len(params.Whitelist))
	for _, denom := range params.Whitelist {
		whitelist = append(whitelist, denom.Name)
	}

	c.voter.SetParams(params.VotePeriod, whitelist)
	c.logger.Debug("Applied oracle params",
		"network", c.name,
		"vote_period", params.VotePeriod,
		"whitelist", len(whitelist))
}

// Name returns the network name.
func (c *Coordinator) Name() string {
	return c.name
}

// Snapshot returns the voter's current status.
func (c *Coordinator) Snapshot() voter.Status {
	return c.voter.Snapshot()
}
