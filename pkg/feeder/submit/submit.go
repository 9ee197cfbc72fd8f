// Package submit broadcasts signed oracle transactions with sequence
// tracking and bounded retries.
package submit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	abcitypes "github.com/cometbft/cometbft/abci/types"
	sdk "github.com/cosmos/cosmos-sdk/types"
	sdkerrors "github.com/cosmos/cosmos-sdk/types/errors"

	"tc.com/oracle-feeder/pkg/logging"
	"tc.com/oracle-feeder/pkg/metrics"
)

const maxBackoff = 8 * time.Second

// ChainClient is the subset of the gRPC client the submitter needs.
type ChainClient interface {
	GetAccount(ctx context.Context, address sdk.AccAddress) (accountNumber, sequence uint64, err error)
	BroadcastTx(ctx context.Context, txBytes []byte) (*sdk.TxResponse, error)
	GetTx(ctx context.Context, txHash string) (*sdk.TxResponse, error)
}

// Submitter signs and broadcasts transactions for one feeder account.
// It keeps a local sequence counter so consecutive submissions within a
// block do not race the chain's account state, refreshing it from the
// chain only on a sequence mismatch.
type Submitter struct {
	client  ChainClient
	signer  Signer
	feeder  sdk.AccAddress
	network string
	logger  *logging.Logger

	maxAttempts int
	baseBackoff time.Duration
	dryRun      bool
	confirm     bool

	mu          sync.Mutex
	accNum      uint64
	sequence    uint64
	initialized bool
}

// Config holds configuration for creating a Submitter.
type Config struct {
	Client      ChainClient
	Signer      Signer
	Feeder      sdk.AccAddress
	Network     string
	Logger      *logging.Logger
	MaxAttempts int
	BaseBackoff time.Duration
	DryRun      bool
	// ConfirmTx queries the broadcast tx by hash after a sync accept and
	// reports an in-block failure as a rejection.
	ConfirmTx bool
}

// New creates a Submitter.
func New(cfg Config) *Submitter {
	return &Submitter{
		client:      cfg.Client,
		signer:      cfg.Signer,
		feeder:      cfg.Feeder,
		network:     cfg.Network,
		logger:      cfg.Logger,
		maxAttempts: cfg.MaxAttempts,
		baseBackoff: cfg.BaseBackoff,
		dryRun:      cfg.DryRun,
		confirm:     cfg.ConfirmTx,
	}
}

// Submit signs and broadcasts msgs, retrying transient failures with
// exponential backoff. A sequence mismatch refreshes the local counter
// from the chain and retries; a permanent rejection returns ErrRejected
// without further attempts.
func (s *Submitter) Submit(ctx context.Context, msgs []sdk.Msg) (*sdk.TxResponse, error) {
	if len(msgs) == 0 {
		return nil, ErrNoMessages
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dryRun {
		s.logger.Info("Dry run: skipping broadcast", "network", s.network, "num_msgs", len(msgs))
		return &sdk.TxResponse{Code: abcitypes.CodeTypeOK, RawLog: "dry run"}, nil
	}

	if !s.initialized {
		if err := s.refreshSequence(ctx); err != nil {
			return nil, err
		}
	}

	var lastErr error
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, s.backoffDelay(attempt)); err != nil {
				return nil, err
			}
		}

		txBytes, err := s.signer.Sign(msgs, s.accNum, s.sequence)
		if err != nil {
			return nil, fmt.Errorf("failed to sign: %w", err)
		}

		resp, err := s.client.BroadcastTx(ctx, txBytes)
		if err != nil {
			lastErr = err
			s.logger.Warn("Broadcast failed", "network", s.network, "attempt", attempt+1, "error", err)
			metrics.RecordSubmissionRetry(s.network, "broadcast_error")
			continue
		}

		switch {
		case resp.Code == abcitypes.CodeTypeOK:
			s.sequence++
			s.logger.Info("Transaction accepted",
				"network", s.network,
				"tx_hash", resp.TxHash,
				"sequence", s.sequence-1)
			if s.confirm {
				return s.confirmTx(ctx, resp)
			}
			return resp, nil

		case isSequenceMismatch(resp):
			lastErr = fmt.Errorf("sequence mismatch: %s", resp.RawLog)
			s.logger.Warn("Sequence mismatch, refreshing from chain",
				"network", s.network,
				"local_sequence", s.sequence)
			metrics.RecordSubmissionRetry(s.network, "sequence_mismatch")
			if err := s.refreshSequence(ctx); err != nil {
				return nil, err
			}

		case isTransient(resp):
			lastErr = fmt.Errorf("transient failure: code=%d, log=%s", resp.Code, resp.RawLog)
			s.logger.Warn("Transient broadcast failure",
				"network", s.network,
				"code", resp.Code,
				"attempt", attempt+1)
			metrics.RecordSubmissionRetry(s.network, "transient")

		default:
			return resp, fmt.Errorf("%w: code=%d, log=%s", ErrRejected, resp.Code, resp.RawLog)
		}
	}

	return nil, fmt.Errorf("%w after %d attempts: %v", ErrMaxAttempts, s.maxAttempts, lastErr)
}

// confirmTx looks up an accepted broadcast by hash. A sync accept only
// means the tx passed CheckTx; execution can still fail in the block,
// which counts as a rejection. The consumed sequence stays incremented
// either way. An inconclusive lookup keeps the sync response.
func (s *Submitter) confirmTx(ctx context.Context, resp *sdk.TxResponse) (*sdk.TxResponse, error) {
	confirmed, err := s.client.GetTx(ctx, resp.TxHash)
	if err != nil {
		s.logger.Warn("Could not confirm transaction inclusion",
			"network", s.network,
			"tx_hash", resp.TxHash,
			"error", err)
		return resp, nil
	}

	if confirmed.Code != abcitypes.CodeTypeOK {
		return confirmed, fmt.Errorf("%w: failed in block: code=%d, log=%s",
			ErrRejected, confirmed.Code, confirmed.RawLog)
	}

	s.logger.Debug("Transaction confirmed",
		"network", s.network,
		"tx_hash", confirmed.TxHash,
		"height", confirmed.Height)
	return confirmed, nil
}

// Sequence returns the current local sequence counter.
func (s *Submitter) Sequence() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sequence
}

// refreshSequence reloads the account number and sequence from the chain.
// Callers must hold mu.
func (s *Submitter) refreshSequence(ctx context.Context) error {
	accNum, sequence, err := s.client.GetAccount(ctx, s.feeder)
	if err != nil {
		return fmt.Errorf("failed to refresh account sequence: %w", err)
	}

	s.accNum = accNum
	s.sequence = sequence
	s.initialized = true

	s.logger.Debug("Refreshed account state",
		"network", s.network,
		"account_number", accNum,
		"sequence", sequence)
	return nil
}

func (s *Submitter) backoffDelay(attempt int) time.Duration {
	delay := s.baseBackoff * time.Duration(1<<(attempt-1))
	if delay > maxBackoff {
		delay = maxBackoff
	}
	return delay
}

func isSequenceMismatch(resp *sdk.TxResponse) bool {
	return resp.Code == sdkerrors.ErrWrongSequence.ABCICode() ||
		strings.Contains(resp.RawLog, "account sequence mismatch")
}

func isTransient(resp *sdk.TxResponse) bool {
	return resp.Code == sdkerrors.ErrMempoolIsFull.ABCICode() ||
		resp.Code == sdkerrors.ErrTxTimeoutHeight.ABCICode() ||
		strings.Contains(resp.RawLog, "mempool is full") ||
		strings.Contains(resp.RawLog, "timed out")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
