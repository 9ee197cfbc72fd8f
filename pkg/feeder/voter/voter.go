// Package voter drives the commit-reveal cycle for one network: it turns
// observed chain heights into prevote and vote submissions.
package voter

import (
	"context"
	"fmt"
	"sync"
	"time"

	oracletypes "github.com/classic-terra/core/v3/x/oracle/types"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/shopspring/decimal"

	"tc.com/oracle-feeder/pkg/feeder/oracle"
	"tc.com/oracle-feeder/pkg/logging"
	"tc.com/oracle-feeder/pkg/metrics"
)

// State is the voter's position in the commit-reveal cycle.
type State string

const (
	// StateIdle means no commitment is awaiting reveal.
	StateIdle State = "idle"
	// StateCommitted means a prevote landed and its reveal is due next period.
	StateCommitted State = "committed"
)

// Skip reasons.
const (
	skipNoFreshData  = "no_fresh_data"
	skipMissedWindow = "missed_window"
)

// Submitter broadcasts signed messages to the chain.
type Submitter interface {
	Submit(ctx context.Context, msgs []sdk.Msg) (*sdk.TxResponse, error)
}

// PrevoteQuerier reads the validator's aggregate prevote recorded on
// chain. Optional; when absent the voter reveals without verification.
type PrevoteQuerier interface {
	GetAggregatePrevote(ctx context.Context, validator sdk.ValAddress) (*oracletypes.AggregateExchangeRatePrevote, error)
}

// rateEntry is the latest known rate for one denom.
type rateEntry struct {
	rate       decimal.Decimal
	observedAt time.Time
}

// Voter tracks one validator's commit-reveal state. Heights arrive via
// ObserveHeight; rates arrive via SetRates. A commitment made in period
// N is revealed in period N+1 or discarded, never replayed later.
type Voter struct {
	network    string
	validator  sdk.ValAddress
	feeder     sdk.AccAddress
	submitter  Submitter
	chain      PrevoteQuerier
	logger     *logging.Logger
	maxRateAge time.Duration

	// cycleMu serializes ObserveHeight cycles. Submissions run under it
	// but outside mu, so SetRates and Snapshot never wait on a broadcast.
	cycleMu sync.Mutex

	mu         sync.Mutex
	votePeriod int64
	whitelist  []string
	rates      map[string]rateEntry
	pending    *oracle.Commitment
	lastPeriod int64
	state      State

	now func() time.Time
}

// Config holds configuration for creating a Voter.
type Config struct {
	Network    string
	Validator  sdk.ValAddress
	Feeder     sdk.AccAddress
	Submitter  Submitter
	Chain      PrevoteQuerier
	Logger     *logging.Logger
	VotePeriod int64
	MaxRateAge time.Duration
}

// New creates a Voter.
func New(cfg Config) *Voter {
	return &Voter{
		network:    cfg.Network,
		validator:  cfg.Validator,
		feeder:     cfg.Feeder,
		submitter:  cfg.Submitter,
		chain:      cfg.Chain,
		logger:     cfg.Logger,
		maxRateAge: cfg.MaxRateAge,
		votePeriod: cfg.VotePeriod,
		rates:      make(map[string]rateEntry),
		lastPeriod: -1,
		state:      StateIdle,
		now:        time.Now,
	}
}

// SetRates merges freshly aggregated rates into the voter's working set.
// Denoms absent from this batch keep their previous entry; the staleness
// filter excludes them once they age out.
func (v *Voter) SetRates(rates []oracle.Rate, observedAt time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, r := range rates {
		v.rates[oracle.NormalizeDenom(r.Denom)] = rateEntry{
			rate:       r.Rate,
			observedAt: observedAt,
		}
	}
}

// SetParams applies on-chain oracle parameters.
func (v *Voter) SetParams(votePeriod uint64, whitelist []string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if votePeriod > 0 {
		v.votePeriod = int64(votePeriod)
	}
	v.whitelist = whitelist
}

// ObserveHeight processes one observed chain height. When the height
// crosses into a new vote period the voter reveals its pending
// commitment, if the reveal window is still open, and commits a fresh
// prevote from the current rate set. A pending commitment whose window
// has passed is discarded.
func (v *Voter) ObserveHeight(ctx context.Context, height int64) error {
	v.cycleMu.Lock()
	defer v.cycleMu.Unlock()

	v.mu.Lock()
	if v.votePeriod <= 0 {
		v.mu.Unlock()
		return ErrNoVotePeriod
	}

	period := height / v.votePeriod
	if period == v.lastPeriod {
		v.mu.Unlock()
		return nil
	}
	if period < v.lastPeriod {
		v.logger.Warn("Observed height behind last acted period",
			"network", v.network,
			"height", height,
			"period", period,
			"last_period", v.lastPeriod)
		v.mu.Unlock()
		return nil
	}

	var toReveal *oracle.Commitment
	if v.pending != nil {
		if v.pending.Period == period-1 {
			toReveal = v.pending
		} else {
			v.logger.Warn("Discarding commitment past its reveal window",
				"network", v.network,
				"committed_period", v.pending.Period,
				"current_period", period)
			metrics.RecordSkippedPeriod(v.network, skipMissedWindow)
		}
		v.pending = nil
		v.state = StateIdle
	}

	v.lastPeriod = period
	rates := v.freshRates()
	v.mu.Unlock()

	var revealErr error
	if toReveal != nil {
		revealErr = v.reveal(ctx, toReveal)
	}

	commitErr := v.commit(ctx, period, rates)

	if revealErr != nil {
		return revealErr
	}
	return commitErr
}

// reveal submits the vote for a commitment made in the previous period.
// When a chain querier is configured, the on-chain prevote hash is
// checked first: a mismatch means the prevote the chain recorded is not
// this commitment, the reveal would be rejected, and the window counts
// as missed.
func (v *Voter) reveal(ctx context.Context, c *oracle.Commitment) error {
	if v.chain != nil {
		prevote, err := v.chain.GetAggregatePrevote(ctx, v.validator)
		switch {
		case err != nil:
			v.logger.Warn("Could not verify on-chain prevote, revealing anyway",
				"network", v.network,
				"period", c.Period,
				"error", err)
		case !c.VerifyHash(prevote.Hash):
			metrics.RecordVote(v.network, "hash_mismatch")
			metrics.RecordSkippedPeriod(v.network, skipMissedWindow)
			v.logger.Error("On-chain prevote hash does not match commitment",
				"network", v.network,
				"period", c.Period,
				"chain_hash", prevote.Hash)
			return fmt.Errorf("%w: on-chain prevote hash mismatch", ErrVoteFailed)
		}
	}

	resp, err := v.submitter.Submit(ctx, []sdk.Msg{c.VoteMsg()})
	if err != nil {
		metrics.RecordVote(v.network, "error")
		metrics.RecordSkippedPeriod(v.network, skipMissedWindow)
		v.logger.Error("Vote submission failed",
			"network", v.network,
			"period", c.Period,
			"error", err)
		return fmt.Errorf("%w: %v", ErrVoteFailed, err)
	}

	metrics.RecordVote(v.network, "accepted")
	v.logger.Info("Revealed vote",
		"network", v.network,
		"period", c.Period,
		"tx_hash", resp.TxHash,
		"rates", c.VoteStr)
	return nil
}

// commit builds and submits a prevote for the given period over the
// given fresh rate set.
func (v *Voter) commit(ctx context.Context, period int64, rates []oracle.Rate) error {
	if len(rates) == 0 {
		metrics.RecordSkippedPeriod(v.network, skipNoFreshData)
		v.logger.Warn("No fresh rates, skipping period",
			"network", v.network,
			"period", period)
		return nil
	}

	commitment, err := oracle.NewCommitment(rates, v.validator, v.feeder, period)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPrevoteFailed, err)
	}

	resp, err := v.submitter.Submit(ctx, []sdk.Msg{commitment.PrevoteMsg()})
	if err != nil {
		metrics.RecordPrevote(v.network, "error")
		v.logger.Error("Prevote submission failed",
			"network", v.network,
			"period", period,
			"error", err)
		return fmt.Errorf("%w: %v", ErrPrevoteFailed, err)
	}

	v.mu.Lock()
	v.pending = commitment
	v.state = StateCommitted
	v.mu.Unlock()

	metrics.RecordPrevote(v.network, "accepted")
	v.logger.Info("Committed prevote",
		"network", v.network,
		"period", period,
		"tx_hash", resp.TxHash,
		"num_rates", len(rates))
	return nil
}

// freshRates returns the whitelisted, non-stale rate set. Callers must
// hold mu.
func (v *Voter) freshRates() []oracle.Rate {
	cutoff := v.now().Add(-v.maxRateAge)

	rates := make([]oracle.Rate, 0, len(v.rates))
	for denom, entry := range v.rates {
		if entry.observedAt.Before(cutoff) {
			continue
		}
		rates = append(rates, oracle.Rate{Denom: denom, Rate: entry.rate})
	}

	if len(v.whitelist) > 0 {
		rates = oracle.FilterByWhitelist(rates, v.whitelist)
	}
	return rates
}

// Status is a point-in-time snapshot for the status listener.
type Status struct {
	Network       string `json:"network"`
	State         State  `json:"state"`
	LastPeriod    int64  `json:"last_period"`
	PendingPeriod int64  `json:"pending_period,omitempty"`
	RateCount     int    `json:"rate_count"`
}

// Snapshot returns the voter's current status.
func (v *Voter) Snapshot() Status {
	v.mu.Lock()
	defer v.mu.Unlock()

	s := Status{
		Network:    v.network,
		State:      v.state,
		LastPeriod: v.lastPeriod,
		RateCount:  len(v.rates),
	}
	if v.pending != nil {
		s.PendingPeriod = v.pending.Period
	}
	return s
}
