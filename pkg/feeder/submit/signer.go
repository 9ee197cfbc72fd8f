package submit

import (
	"fmt"

	sdkclient "github.com/cosmos/cosmos-sdk/client"
	"github.com/cosmos/cosmos-sdk/client/tx"
	"github.com/cosmos/cosmos-sdk/crypto/keyring"
	sdk "github.com/cosmos/cosmos-sdk/types"
)

// Signer builds and signs transactions for a fixed account.
type Signer interface {
	Sign(msgs []sdk.Msg, accountNumber, sequence uint64) ([]byte, error)
}

// TxSigner signs transactions with a keyring-held key.
type TxSigner struct {
	keyring   keyring.Keyring
	txConfig  sdkclient.TxConfig
	chainID   string
	feeder    sdk.AccAddress
	feeAmount sdk.Coins
	gasLimit  uint64
	memo      string
}

// TxSignerConfig holds configuration for creating a TxSigner.
type TxSignerConfig struct {
	Keyring  keyring.Keyring
	TxConfig sdkclient.TxConfig
	ChainID  string
	Feeder   sdk.AccAddress
	GasPrice string
	FeeDenom string
	GasLimit uint64
	Memo     string
}

// NewTxSigner creates a signer. The fee is fixed up front from the gas
// price and gas limit.
func NewTxSigner(cfg TxSignerConfig) (*TxSigner, error) {
	fee, err := CalculateFee(cfg.GasLimit, cfg.GasPrice, cfg.FeeDenom)
	if err != nil {
		return nil, err
	}

	return &TxSigner{
		keyring:   cfg.Keyring,
		txConfig:  cfg.TxConfig,
		chainID:   cfg.ChainID,
		feeder:    cfg.Feeder,
		feeAmount: fee,
		gasLimit:  cfg.GasLimit,
		memo:      cfg.Memo,
	}, nil
}

// Sign builds, signs, and encodes a transaction for the given account
// number and sequence.
func (s *TxSigner) Sign(msgs []sdk.Msg, accountNumber, sequence uint64) ([]byte, error) {
	keyInfo, err := s.keyring.KeyByAddress(s.feeder)
	if err != nil {
		return nil, fmt.Errorf("failed to get key from keyring: %w", err)
	}

	txBuilder := s.txConfig.NewTxBuilder()
	if err := txBuilder.SetMsgs(msgs...); err != nil {
		return nil, fmt.Errorf("failed to set messages: %w", err)
	}
	txBuilder.SetFeeAmount(s.feeAmount)
	txBuilder.SetGasLimit(s.gasLimit)
	if s.memo != "" {
		txBuilder.SetMemo(s.memo)
	}

	txFactory := tx.Factory{}.
		WithChainID(s.chainID).
		WithKeybase(s.keyring).
		WithTxConfig(s.txConfig).
		WithAccountNumber(accountNumber).
		WithSequence(sequence)

	if err := tx.Sign(txFactory, keyInfo.Name, txBuilder, true); err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	txBytes, err := s.txConfig.TxEncoder()(txBuilder.GetTx())
	if err != nil {
		return nil, fmt.Errorf("failed to encode transaction: %w", err)
	}

	return txBytes, nil
}

// CalculateFee computes gasLimit * gasPrice rounded up in the fee denom.
func CalculateFee(gasLimit uint64, gasPriceStr, feeDenom string) (sdk.Coins, error) {
	gasPrice, err := sdk.NewDecFromStr(gasPriceStr)
	if err != nil {
		return nil, fmt.Errorf("invalid gas price: %w", err)
	}

	feeAmount := gasPrice.MulInt64(int64(gasLimit)).Ceil().TruncateInt()
	return sdk.NewCoins(sdk.NewCoin(feeDenom, feeAmount)), nil
}
