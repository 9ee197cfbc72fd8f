package client

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"sync"
	"time"

	oracletypes "github.com/classic-terra/core/v3/x/oracle/types"
	cmtservice "github.com/cosmos/cosmos-sdk/client/grpc/tmservice"
	codectypes "github.com/cosmos/cosmos-sdk/codec/types"
	sdk "github.com/cosmos/cosmos-sdk/types"
	txservice "github.com/cosmos/cosmos-sdk/types/tx"
	authtypes "github.com/cosmos/cosmos-sdk/x/auth/types"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"tc.com/oracle-feeder/pkg/logging"
)

// Oracle defines the interface for oracle-specific queries.
type Oracle interface {
	AggregatePrevote(context.Context, *oracletypes.QueryAggregatePrevoteRequest, ...grpc.CallOption) (*oracletypes.QueryAggregatePrevoteResponse, error)
	Params(context.Context, *oracletypes.QueryParamsRequest, ...grpc.CallOption) (*oracletypes.QueryParamsResponse, error)
}

// Auth defines the interface for account queries.
type Auth interface {
	Account(context.Context, *authtypes.QueryAccountRequest, ...grpc.CallOption) (*authtypes.QueryAccountResponse, error)
}

// Tendermint defines the interface for consensus-layer queries.
type Tendermint interface {
	GetLatestBlock(context.Context, *cmtservice.GetLatestBlockRequest, ...grpc.CallOption) (*cmtservice.GetLatestBlockResponse, error)
}

// TxService defines the interface for transaction broadcasting and lookup.
type TxService interface {
	BroadcastTx(context.Context, *txservice.BroadcastTxRequest, ...grpc.CallOption) (*txservice.BroadcastTxResponse, error)
	GetTx(context.Context, *txservice.GetTxRequest, ...grpc.CallOption) (*txservice.GetTxResponse, error)
}

// Client wraps gRPC connections and provides oracle, auth, tendermint,
// and tx service clients with endpoint failover.
type Client struct {
	logger    *logging.Logger
	endpoints []string
	current   int
	mu        sync.RWMutex

	conns []*grpc.ClientConn

	// Service clients (created from current connection)
	oracleClient Oracle
	authClient   Auth
	tmClient     Tendermint
	txClient     TxService

	// Codec for unpacking Any types
	ir codectypes.InterfaceRegistry
}

// Config holds configuration for creating a new Client.
type Config struct {
	Endpoints         []EndpointConfig
	ChainID           string
	InterfaceRegistry codectypes.InterfaceRegistry
	Logger            *logging.Logger
}

// EndpointConfig represents a single gRPC endpoint with its TLS setting.
type EndpointConfig struct {
	Address string
	TLS     bool
}

// New creates a gRPC client with failover support across multiple endpoints.
// It establishes connections to all endpoints and creates service clients
// from the first one.
func New(cfg Config) (*Client, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, ErrNoEndpoints
	}

	conns := make([]*grpc.ClientConn, len(cfg.Endpoints))
	endpoints := make([]string, len(cfg.Endpoints))

	for i, epCfg := range cfg.Endpoints {
		endpoints[i] = epCfg.Address

		var transportCreds grpc.DialOption
		if epCfg.TLS {
			transportCreds = grpc.WithTransportCredentials(
				credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12}),
			)
		} else {
			transportCreds = grpc.WithTransportCredentials(insecure.NewCredentials())
		}

		conn, err := grpc.Dial(epCfg.Address, transportCreds)
		if err != nil {
			for j := 0; j < i; j++ {
				_ = conns[j].Close()
			}
			return nil, fmt.Errorf("failed to connect to %s: %w", epCfg.Address, err)
		}
		conns[i] = conn
		cfg.Logger.Info("Connected to gRPC endpoint", "endpoint", epCfg.Address, "tls", epCfg.TLS)
	}

	c := &Client{
		logger:    cfg.Logger,
		endpoints: endpoints,
		conns:     conns,
		ir:        cfg.InterfaceRegistry,
	}
	c.resetClients()

	return c, nil
}

// resetClients recreates service clients from the current connection.
// Callers must hold mu for writing, except during construction.
func (c *Client) resetClients() {
	conn := c.conns[c.current]
	c.oracleClient = oracletypes.NewQueryClient(conn)
	c.authClient = authtypes.NewQueryClient(conn)
	c.tmClient = cmtservice.NewServiceClient(conn)
	c.txClient = txservice.NewServiceClient(conn)
}

// OracleClient returns the oracle query client.
func (c *Client) OracleClient() Oracle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.oracleClient
}

// AuthClient returns the auth query client.
func (c *Client) AuthClient() Auth {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authClient
}

// TendermintClient returns the consensus-layer service client.
func (c *Client) TendermintClient() Tendermint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tmClient
}

// TxClient returns the transaction service client.
func (c *Client) TxClient() TxService {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.txClient
}

// InterfaceRegistry returns the codec interface registry for unpacking Any types.
func (c *Client) InterfaceRegistry() codectypes.InterfaceRegistry {
	return c.ir
}

// Failover rotates to the next endpoint and recreates service clients.
func (c *Client) Failover() {
	c.mu.Lock()
	defer c.mu.Unlock()

	oldIndex := c.current
	c.current = (c.current + 1) % len(c.endpoints)

	c.logger.Warn("Failing over to next gRPC endpoint",
		"from", c.endpoints[oldIndex],
		"to", c.endpoints[c.current])

	c.resetClients()
}

// CurrentEndpoint returns the currently active endpoint.
func (c *Client) CurrentEndpoint() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.endpoints[c.current]
}

// Close closes all gRPC connections.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var lastErr error
	for i, conn := range c.conns {
		if err := conn.Close(); err != nil {
			c.logger.Error("Failed to close gRPC connection", "endpoint", c.endpoints[i], "error", err)
			lastErr = err
		}
	}
	return lastErr
}

// WithFailover wraps an RPC call with automatic failover on error.
// It attempts the call on all endpoints before giving up.
func WithFailover[T any](c *Client, call func() (T, error)) (T, error) {
	return WithFailoverRetry(c, call, 0)
}

// WithFailoverRetry wraps an RPC call with automatic failover and
// configurable retries. maxAttempts of 0 means one try per endpoint.
// Transient errors (not found, connection refused, timeout) are retried
// on the same endpoint with exponential backoff; persistent errors rotate
// to the next endpoint after two attempts.
func WithFailoverRetry[T any](c *Client, call func() (T, error), maxAttempts int) (T, error) {
	var zero T

	if maxAttempts == 0 {
		maxAttempts = len(c.endpoints)
	}

	currentEndpointAttempts := 0
	baseDelay := 500 * time.Millisecond

	for attempt := 0; attempt < maxAttempts; attempt++ {
		resp, err := call()
		if err == nil {
			return resp, nil
		}

		isTransient := strings.Contains(err.Error(), "tx not found") ||
			strings.Contains(err.Error(), "NotFound") ||
			strings.Contains(err.Error(), "not found") ||
			strings.Contains(err.Error(), "connection refused") ||
			strings.Contains(err.Error(), "timeout")

		isLastAttempt := attempt == maxAttempts-1

		log := c.logger.Debug
		if isLastAttempt && !isTransient {
			log = c.logger.Error
		}
		log("RPC call failed",
			"error", err,
			"endpoint", c.CurrentEndpoint(),
			"attempt", attempt+1,
			"max_attempts", maxAttempts,
			"transient", isTransient)

		if isLastAttempt {
			break
		}

		currentEndpointAttempts++

		shouldRotate := !isTransient && currentEndpointAttempts >= 2
		if shouldRotate && len(c.endpoints) > 1 {
			c.Failover()
			currentEndpointAttempts = 0
			time.Sleep(baseDelay)
		} else {
			delay := baseDelay * time.Duration(1<<minInt(currentEndpointAttempts, 4))
			time.Sleep(delay)
		}
	}

	return zero, fmt.Errorf("%w: %d attempts", ErrAllEndpointsFailed, maxAttempts)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// GetAccount retrieves the account number and sequence for the given address.
func (c *Client) GetAccount(ctx context.Context, address sdk.AccAddress) (uint64, uint64, error) {
	resp, err := WithFailover(c, func() (*authtypes.QueryAccountResponse, error) {
		return c.AuthClient().Account(ctx, &authtypes.QueryAccountRequest{
			Address: address.String(),
		})
	})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to query account: %w", err)
	}

	var acc authtypes.AccountI
	if err := c.ir.UnpackAny(resp.Account, &acc); err != nil {
		return 0, 0, fmt.Errorf("failed to unpack account: %w", err)
	}

	return acc.GetAccountNumber(), acc.GetSequence(), nil
}

// GetLatestHeight retrieves the current chain height.
func (c *Client) GetLatestHeight(ctx context.Context) (int64, error) {
	resp, err := WithFailover(c, func() (*cmtservice.GetLatestBlockResponse, error) {
		return c.TendermintClient().GetLatestBlock(ctx, &cmtservice.GetLatestBlockRequest{})
	})
	if err != nil {
		return 0, fmt.Errorf("failed to query latest block: %w", err)
	}

	if resp.SdkBlock != nil {
		return resp.SdkBlock.Header.Height, nil
	}
	return resp.Block.Header.Height, nil //nolint:staticcheck // fallback for older nodes
}

// GetAggregatePrevote retrieves the standing aggregate prevote for the
// given validator, if any.
func (c *Client) GetAggregatePrevote(ctx context.Context, validator sdk.ValAddress) (*oracletypes.AggregateExchangeRatePrevote, error) {
	resp, err := WithFailover(c, func() (*oracletypes.QueryAggregatePrevoteResponse, error) {
		return c.OracleClient().AggregatePrevote(ctx, &oracletypes.QueryAggregatePrevoteRequest{
			ValidatorAddr: validator.String(),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query aggregate prevote: %w", err)
	}

	return &resp.AggregatePrevote, nil
}

// GetOracleParams retrieves the oracle module parameters.
func (c *Client) GetOracleParams(ctx context.Context) (*oracletypes.Params, error) {
	resp, err := WithFailover(c, func() (*oracletypes.QueryParamsResponse, error) {
		return c.OracleClient().Params(ctx, &oracletypes.QueryParamsRequest{})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query oracle params: %w", err)
	}

	return &resp.Params, nil
}

// BroadcastTx broadcasts a transaction using BROADCAST_MODE_SYNC.
func (c *Client) BroadcastTx(ctx context.Context, txBytes []byte) (*sdk.TxResponse, error) {
	resp, err := WithFailover(c, func() (*txservice.BroadcastTxResponse, error) {
		return c.TxClient().BroadcastTx(ctx, &txservice.BroadcastTxRequest{
			TxBytes: txBytes,
			Mode:    txservice.BroadcastMode_BROADCAST_MODE_SYNC,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to broadcast tx: %w", err)
	}

	return resp.TxResponse, nil
}

// GetTx retrieves a transaction by hash, retrying while the tx may not be
// in a block yet.
func (c *Client) GetTx(ctx context.Context, txHash string) (*sdk.TxResponse, error) {
	resp, err := WithFailoverRetry(c, func() (*txservice.GetTxResponse, error) {
		return c.TxClient().GetTx(ctx, &txservice.GetTxRequest{
			Hash: txHash,
		})
	}, 10)
	if err != nil {
		return nil, fmt.Errorf("failed to get tx: %w", err)
	}

	return resp.TxResponse, nil
}
