// Package custody isolates key material from the trading path. The rest of
// the system refers to wallets only by an opaque walletRef; resolving a ref
// to a private key happens here and nowhere else.
package custody

import (
	"context"
	"errors"
)

// ErrUnknownWallet means the walletRef resolves to no key in the ring.
var ErrUnknownWallet = errors.New("custody: unknown wallet ref")

// Signer signs a serialized transaction for the wallet behind walletRef and
// submits it to the network, returning the transaction signature.
type Signer interface {
	SignAndSubmit(ctx context.Context, walletRef string, tx []byte) (string, error)
}
