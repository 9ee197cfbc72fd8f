package keystore

import (
	"encoding/hex"
	"fmt"

	"github.com/cosmos/cosmos-sdk/crypto/hd"
	"github.com/cosmos/cosmos-sdk/crypto/keyring"
	"github.com/cosmos/cosmos-sdk/crypto/keys/secp256k1"
	cryptotypes "github.com/cosmos/cosmos-sdk/crypto/types"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/cosmos/go-bip39"
)

// DefaultHDPath is the Terra Classic derivation path.
const DefaultHDPath = "m/44'/330'/0'/0/0"

// Keystore holds the signing key derived from a feeder mnemonic together
// with the addresses it controls.
type Keystore struct {
	keyring keyring.Keyring
	feeder  sdk.AccAddress
}

// FromMnemonic derives a signing keystore from a BIP39 mnemonic using the
// given HD derivation path (m/44'/cointype'/account'/change/index). An
// empty path selects the Terra Classic default.
func FromMnemonic(mnemonic, hdPath string) (*Keystore, error) {
	if hdPath == "" {
		hdPath = DefaultHDPath
	}
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}

	seed := bip39.NewSeed(mnemonic, "")
	master, ch := hd.ComputeMastersFromSeed(seed)

	priv, err := hd.DerivePrivateKeyForPath(master, ch, hdPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidHDPath, hdPath, err)
	}

	kr, err := newPrivKeyKeyring(hex.EncodeToString(priv))
	if err != nil {
		return nil, err
	}

	return &Keystore{
		keyring: kr,
		feeder:  kr.addr,
	}, nil
}

// Keyring returns the keyring for transaction signing.
func (k *Keystore) Keyring() keyring.Keyring {
	return k.keyring
}

// FeederAddress returns the account address of the signing key.
func (k *Keystore) FeederAddress() sdk.AccAddress {
	return k.feeder
}

var _ keyring.Keyring = (*privKeyKeyring)(nil)

// privKeyKeyring partially implements keyring.Keyring. It provides only
// what transaction signing needs; everything else panics.
type privKeyKeyring struct {
	addr    sdk.AccAddress
	pubKey  cryptotypes.PubKey
	privKey cryptotypes.PrivKey

	importerNull
	migratorNull
}

func newPrivKeyKeyring(hexKey string) (*privKeyKeyring, error) {
	b, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key encoding: %w", err)
	}
	key := &secp256k1.PrivKey{Key: b}

	return &privKeyKeyring{
		addr:    sdk.AccAddress(key.PubKey().Address()),
		pubKey:  key.PubKey(),
		privKey: key,
	}, nil
}

// Key returns the record for the given key name.
func (p privKeyKeyring) Key(uid string) (*keyring.Record, error) {
	return p.KeyByAddress(p.addr)
}

// KeyByAddress returns the record for the given address.
func (p privKeyKeyring) KeyByAddress(address sdk.Address) (*keyring.Record, error) {
	if !address.Equals(p.addr) {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, address)
	}

	return keyring.NewLocalRecord(p.addr.String(), p.privKey, p.pubKey)
}

// Sign signs a message with the keyring's private key.
func (p privKeyKeyring) Sign(uid string, msg []byte) ([]byte, cryptotypes.PubKey, error) {
	return p.SignByAddress(p.addr, msg)
}

// SignByAddress signs a message with the private key for the given address.
func (p privKeyKeyring) SignByAddress(address sdk.Address, msg []byte) ([]byte, cryptotypes.PubKey, error) {
	if !p.addr.Equals(address) {
		return nil, nil, ErrKeyNotFound
	}

	signed, err := p.privKey.Sign(msg)
	if err != nil {
		return nil, nil, err
	}

	return signed, p.pubKey, nil
}

// ===== Unimplemented methods (must never be called) =====

func (p privKeyKeyring) Backend() string {
	panic("must never be called")
}

func (p privKeyKeyring) Rename(from string, to string) error {
	panic("must never be called")
}

func (p privKeyKeyring) List() ([]*keyring.Record, error) {
	panic("must never be called")
}

func (p privKeyKeyring) SupportedAlgorithms() (keyring.SigningAlgoList, keyring.SigningAlgoList) {
	panic("must never be called")
}

func (p privKeyKeyring) Delete(uid string) error {
	panic("must never be called")
}

func (p privKeyKeyring) DeleteByAddress(address sdk.Address) error {
	panic("must never be called")
}

func (p privKeyKeyring) NewMnemonic(
	uid string, language keyring.Language, hdPath, bip39Passphrase string, algo keyring.SignatureAlgo,
) (*keyring.Record, string, error) {
	panic("must never be called")
}

func (p privKeyKeyring) NewAccount(
	uid, mnemonic, bip39Passphrase, hdPath string, algo keyring.SignatureAlgo,
) (*keyring.Record, error) {
	panic("must never be called")
}

func (p privKeyKeyring) SaveLedgerKey(
	uid string, algo keyring.SignatureAlgo, hrp string, coinType, account, index uint32,
) (*keyring.Record, error) {
	panic("must never be called")
}

func (p privKeyKeyring) SaveOfflineKey(uid string, pubkey cryptotypes.PubKey) (*keyring.Record, error) {
	panic("must never be called")
}

func (p privKeyKeyring) SavePubKey(
	uid string, pubkey cryptotypes.PubKey, algo hd.PubKeyType,
) (*keyring.Record, error) {
	panic("must never be called")
}

func (p privKeyKeyring) SaveMultisig(uid string, pubkey cryptotypes.PubKey) (*keyring.Record, error) {
	panic("must never be called")
}

func (p privKeyKeyring) ExportPubKeyArmor(uid string) (string, error) {
	panic("must never be called")
}

func (p privKeyKeyring) ExportPubKeyArmorByAddress(address sdk.Address) (string, error) {
	panic("must never be called")
}

func (p privKeyKeyring) ExportPrivKeyArmor(uid, encryptPassphrase string) (armor string, err error) {
	panic("must never be called")
}

func (p privKeyKeyring) ExportPrivKeyArmorByAddress(address sdk.Address, encryptPassphrase string) (armor string, err error) {
	panic("must never be called")
}

var _ keyring.Importer = (*importerNull)(nil)

type importerNull struct{}

func (i importerNull) ImportPrivKey(uid, armor, passphrase string) error {
	panic("must never be called")
}

func (i importerNull) ImportPrivKeyHex(uid, privKey, algoStr string) error {
	panic("must never be called")
}

func (i importerNull) ImportPubKey(uid string, armor string) error {
	panic("must never be called")
}

var _ keyring.Migrator = (*migratorNull)(nil)

type migratorNull struct{}

func (m migratorNull) MigrateAll() ([]*keyring.Record, error) {
	panic("must never be called")
}
