package custody

import (
	"context"
	"crypto/sha256"

	"github.com/mr-tron/base58"
)

// SimulatedSigner produces deterministic signatures without touching the
// network. Used by the stub venue and in tests.
type SimulatedSigner struct{}

// Compile-time interface check.
var _ Signer = (*SimulatedSigner)(nil)

// SignAndSubmit hashes the transaction and walletRef into a stable
// base58 pseudo-signature.
func (SimulatedSigner) SignAndSubmit(_ context.Context, walletRef string, tx []byte) (string, error) {
	h := sha256.New()
	h.Write([]byte(walletRef))
	h.Write(tx)
	sum := h.Sum(nil)
	return base58.Encode(append(sum, sum...)), nil
}
