package submit

import (
	"context"
	"testing"
	"time"

	oracletypes "github.com/classic-terra/core/v3/x/oracle/types"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tc.com/oracle-feeder/pkg/logging"
)

type mockChainClient struct {
	mock.Mock
}

func (m *mockChainClient) GetAccount(ctx context.Context, address sdk.AccAddress) (uint64, uint64, error) {
	args := m.Called(ctx, address)
	return args.Get(0).(uint64), args.Get(1).(uint64), args.Error(2)
}

func (m *mockChainClient) BroadcastTx(ctx context.Context, txBytes []byte) (*sdk.TxResponse, error) {
	args := m.Called(ctx, txBytes)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sdk.TxResponse), args.Error(1)
}

func (m *mockChainClient) GetTx(ctx context.Context, txHash string) (*sdk.TxResponse, error) {
	args := m.Called(ctx, txHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sdk.TxResponse), args.Error(1)
}

type mockSigner struct {
	mock.Mock
}

func (m *mockSigner) Sign(msgs []sdk.Msg, accountNumber, sequence uint64) ([]byte, error) {
	args := m.Called(msgs, accountNumber, sequence)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

var testFeeder = sdk.AccAddress([]byte("feeder-test-address1"))

func testMsgs() []sdk.Msg {
	return []sdk.Msg{&oracletypes.MsgAggregateExchangeRatePrevote{}}
}

func newTestSubmitter(client ChainClient, signer Signer) *Submitter {
	return New(Config{
		Client:      client,
		Signer:      signer,
		Feeder:      testFeeder,
		Network:     "testnet",
		Logger:      logging.NewNoopLogger(),
		MaxAttempts: 3,
		BaseBackoff: time.Millisecond,
	})
}

func TestSubmitSuccess(t *testing.T) {
	client := new(mockChainClient)
	signer := new(mockSigner)

	client.On("GetAccount", mock.Anything, testFeeder).Return(uint64(7), uint64(41), nil).Once()
	signer.On("Sign", mock.Anything, uint64(7), uint64(41)).Return([]byte("tx"), nil).Once()
	client.On("BroadcastTx", mock.Anything, []byte("tx")).Return(&sdk.TxResponse{Code: 0, TxHash: "AB"}, nil).Once()

	s := newTestSubmitter(client, signer)
	resp, err := s.Submit(context.Background(), testMsgs())
	require.NoError(t, err)
	assert.Equal(t, "AB", resp.TxHash)
	assert.Equal(t, uint64(42), s.Sequence())

	client.AssertExpectations(t)
	signer.AssertExpectations(t)
}

func TestSubmitSequenceIncrementsAcrossCalls(t *testing.T) {
	client := new(mockChainClient)
	signer := new(mockSigner)

	client.On("GetAccount", mock.Anything, testFeeder).Return(uint64(7), uint64(10), nil).Once()
	signer.On("Sign", mock.Anything, uint64(7), uint64(10)).Return([]byte("tx1"), nil).Once()
	signer.On("Sign", mock.Anything, uint64(7), uint64(11)).Return([]byte("tx2"), nil).Once()
	client.On("BroadcastTx", mock.Anything, mock.Anything).Return(&sdk.TxResponse{Code: 0}, nil).Twice()

	s := newTestSubmitter(client, signer)
	_, err := s.Submit(context.Background(), testMsgs())
	require.NoError(t, err)
	_, err = s.Submit(context.Background(), testMsgs())
	require.NoError(t, err)

	// Only one account query: the counter advances locally.
	client.AssertNumberOfCalls(t, "GetAccount", 1)
	signer.AssertExpectations(t)
}

func TestSubmitSequenceMismatchRefreshes(t *testing.T) {
	client := new(mockChainClient)
	signer := new(mockSigner)

	client.On("GetAccount", mock.Anything, testFeeder).Return(uint64(7), uint64(10), nil).Once()
	signer.On("Sign", mock.Anything, uint64(7), uint64(10)).Return([]byte("stale"), nil).Once()
	client.On("BroadcastTx", mock.Anything, []byte("stale")).
		Return(&sdk.TxResponse{Code: 32, RawLog: "account sequence mismatch, expected 15, got 10"}, nil).Once()

	// Refresh returns the chain's real sequence; retry signs with it.
	client.On("GetAccount", mock.Anything, testFeeder).Return(uint64(7), uint64(15), nil).Once()
	signer.On("Sign", mock.Anything, uint64(7), uint64(15)).Return([]byte("fresh"), nil).Once()
	client.On("BroadcastTx", mock.Anything, []byte("fresh")).Return(&sdk.TxResponse{Code: 0}, nil).Once()

	s := newTestSubmitter(client, signer)
	_, err := s.Submit(context.Background(), testMsgs())
	require.NoError(t, err)
	assert.Equal(t, uint64(16), s.Sequence())

	client.AssertExpectations(t)
	signer.AssertExpectations(t)
}

func TestSubmitRejectedNoRetry(t *testing.T) {
	client := new(mockChainClient)
	signer := new(mockSigner)

	client.On("GetAccount", mock.Anything, testFeeder).Return(uint64(7), uint64(10), nil).Once()
	signer.On("Sign", mock.Anything, uint64(7), uint64(10)).Return([]byte("tx"), nil).Once()
	client.On("BroadcastTx", mock.Anything, []byte("tx")).
		Return(&sdk.TxResponse{Code: 4, RawLog: "unauthorized"}, nil).Once()

	s := newTestSubmitter(client, signer)
	_, err := s.Submit(context.Background(), testMsgs())
	assert.ErrorIs(t, err, ErrRejected)

	client.AssertNumberOfCalls(t, "BroadcastTx", 1)
}

func TestSubmitTransientExhaustsAttempts(t *testing.T) {
	client := new(mockChainClient)
	signer := new(mockSigner)

	client.On("GetAccount", mock.Anything, testFeeder).Return(uint64(7), uint64(10), nil).Once()
	signer.On("Sign", mock.Anything, uint64(7), uint64(10)).Return([]byte("tx"), nil).Times(3)
	client.On("BroadcastTx", mock.Anything, []byte("tx")).
		Return(&sdk.TxResponse{Code: 20, RawLog: "mempool is full"}, nil).Times(3)

	s := newTestSubmitter(client, signer)
	_, err := s.Submit(context.Background(), testMsgs())
	assert.ErrorIs(t, err, ErrMaxAttempts)

	client.AssertNumberOfCalls(t, "BroadcastTx", 3)
}

func TestSubmitBroadcastErrorRetried(t *testing.T) {
	client := new(mockChainClient)
	signer := new(mockSigner)

	client.On("GetAccount", mock.Anything, testFeeder).Return(uint64(7), uint64(10), nil).Once()
	signer.On("Sign", mock.Anything, uint64(7), uint64(10)).Return([]byte("tx"), nil).Twice()
	client.On("BroadcastTx", mock.Anything, []byte("tx")).Return(nil, assert.AnError).Once()
	client.On("BroadcastTx", mock.Anything, []byte("tx")).Return(&sdk.TxResponse{Code: 0}, nil).Once()

	s := newTestSubmitter(client, signer)
	_, err := s.Submit(context.Background(), testMsgs())
	require.NoError(t, err)
}

func TestSubmitEmpty(t *testing.T) {
	s := newTestSubmitter(new(mockChainClient), new(mockSigner))
	_, err := s.Submit(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoMessages)
}

func TestSubmitDryRun(t *testing.T) {
	client := new(mockChainClient)
	signer := new(mockSigner)

	s := New(Config{
		Client:      client,
		Signer:      signer,
		Feeder:      testFeeder,
		Network:     "testnet",
		Logger:      logging.NewNoopLogger(),
		MaxAttempts: 3,
		BaseBackoff: time.Millisecond,
		DryRun:      true,
	})

	resp, err := s.Submit(context.Background(), testMsgs())
	require.NoError(t, err)
	assert.Equal(t, uint32(0), resp.Code)

	client.AssertNotCalled(t, "BroadcastTx")
	client.AssertNotCalled(t, "GetAccount")
}

func newConfirmingSubmitter(client ChainClient, signer Signer) *Submitter {
	return New(Config{
		Client:      client,
		Signer:      signer,
		Feeder:      testFeeder,
		Network:     "testnet",
		Logger:      logging.NewNoopLogger(),
		MaxAttempts: 3,
		BaseBackoff: time.Millisecond,
		ConfirmTx:   true,
	})
}

func TestSubmitConfirmsInclusion(t *testing.T) {
	client := new(mockChainClient)
	signer := new(mockSigner)

	client.On("GetAccount", mock.Anything, testFeeder).Return(uint64(7), uint64(41), nil).Once()
	signer.On("Sign", mock.Anything, uint64(7), uint64(41)).Return([]byte("tx"), nil).Once()
	client.On("BroadcastTx", mock.Anything, []byte("tx")).Return(&sdk.TxResponse{Code: 0, TxHash: "AB"}, nil).Once()
	client.On("GetTx", mock.Anything, "AB").Return(&sdk.TxResponse{Code: 0, TxHash: "AB", Height: 123}, nil).Once()

	s := newConfirmingSubmitter(client, signer)
	resp, err := s.Submit(context.Background(), testMsgs())
	require.NoError(t, err)
	assert.Equal(t, int64(123), resp.Height)
	assert.Equal(t, uint64(42), s.Sequence())

	client.AssertExpectations(t)
}

func TestSubmitConfirmedTxFailedInBlock(t *testing.T) {
	client := new(mockChainClient)
	signer := new(mockSigner)

	client.On("GetAccount", mock.Anything, testFeeder).Return(uint64(7), uint64(10), nil).Once()
	signer.On("Sign", mock.Anything, uint64(7), uint64(10)).Return([]byte("tx"), nil).Once()
	client.On("BroadcastTx", mock.Anything, []byte("tx")).Return(&sdk.TxResponse{Code: 0, TxHash: "AB"}, nil).Once()
	client.On("GetTx", mock.Anything, "AB").Return(&sdk.TxResponse{Code: 11, RawLog: "out of gas"}, nil).Once()

	s := newConfirmingSubmitter(client, signer)
	_, err := s.Submit(context.Background(), testMsgs())
	assert.ErrorIs(t, err, ErrRejected)

	// The tx was included, so its sequence is consumed.
	assert.Equal(t, uint64(11), s.Sequence())
}

func TestSubmitConfirmLookupFailureKeepsSyncResponse(t *testing.T) {
	client := new(mockChainClient)
	signer := new(mockSigner)

	client.On("GetAccount", mock.Anything, testFeeder).Return(uint64(7), uint64(10), nil).Once()
	signer.On("Sign", mock.Anything, uint64(7), uint64(10)).Return([]byte("tx"), nil).Once()
	client.On("BroadcastTx", mock.Anything, []byte("tx")).Return(&sdk.TxResponse{Code: 0, TxHash: "AB"}, nil).Once()
	client.On("GetTx", mock.Anything, "AB").Return(nil, assert.AnError).Once()

	s := newConfirmingSubmitter(client, signer)
	resp, err := s.Submit(context.Background(), testMsgs())
	require.NoError(t, err)
	assert.Equal(t, "AB", resp.TxHash)
}

func TestCalculateFee(t *testing.T) {
	fee, err := CalculateFee(200000, "28.325", "uluna")
	require.NoError(t, err)
	require.Len(t, fee, 1)
	assert.Equal(t, "uluna", fee[0].Denom)
	assert.Equal(t, "5665000", fee[0].Amount.String())
}

func TestCalculateFeeInvalidPrice(t *testing.T) {
	_, err := CalculateFee(200000, "abc", "uluna")
	assert.Error(t, err)
}
