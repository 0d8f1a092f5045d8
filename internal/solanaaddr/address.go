// Package solanaaddr validates Solana account addresses at the ingestion
// boundary. Feed payloads are untrusted; everything that reaches storage
// goes through Validate first.
package solanaaddr

import (
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// AddressLength is the raw byte length of a Solana public key.
const AddressLength = 32

var (
	ErrInvalidEncoding = errors.New("address is not valid base58")
	ErrInvalidLength   = errors.New("address does not decode to 32 bytes")
)

// WSOLMint is the wrapped SOL mint, used as the quote leg on both platforms.
const WSOLMint = "So11111111111111111111111111111111111111112"

// Validate checks that addr is a well-formed Solana address: base58 text
// decoding to exactly 32 bytes. It deliberately does not require the point
// to be on the ed25519 curve, PDAs (pool vaults, bonding curve accounts)
// are off-curve by construction.
func Validate(addr string) error {
	if addr == "" {
		return ErrInvalidLength
	}

	decoded, err := base58.Decode(addr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}
	if len(decoded) != AddressLength {
		return fmt.Errorf("%w: got %d", ErrInvalidLength, len(decoded))
	}
	return nil
}

// IsValid reports whether addr passes Validate.
func IsValid(addr string) bool {
	return Validate(addr) == nil
}

// IsOnCurve reports whether the address decodes to a point on the ed25519
// curve. Wallet keys are on-curve; program derived addresses are not.
func IsOnCurve(addr string) bool {
	decoded, err := base58.Decode(addr)
	if err != nil || len(decoded) != AddressLength {
		return false
	}
	_, err = new(edwards25519.Point).SetBytes(decoded)
	return err == nil
}
