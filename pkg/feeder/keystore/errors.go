package keystore

import "errors"

var (
	// ErrInvalidMnemonic is returned for a mnemonic that fails BIP39 validation.
	ErrInvalidMnemonic = errors.New("invalid mnemonic")

	// ErrInvalidHDPath is returned when key derivation fails for the path.
	ErrInvalidHDPath = errors.New("invalid HD derivation path")

	// ErrKeyNotFound is returned for lookups of an address the keystore
	// does not hold.
	ErrKeyNotFound = errors.New("key not found")
)
