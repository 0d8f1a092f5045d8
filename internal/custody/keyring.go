package custody

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/mr-tron/base58"
)

// KeyringSigner holds ed25519 keys in memory, keyed by walletRef, signs
// locally and submits via Solana JSON-RPC sendTransaction.
type KeyringSigner struct {
	keys      map[string]ed25519.PrivateKey
	endpoint  string
	client    *http.Client
	requestID atomic.Uint64
}

// Compile-time interface check.
var _ Signer = (*KeyringSigner)(nil)

// NewKeyringSigner builds a signer from base58-encoded 64-byte secret keys,
// the standard Solana wallet export format.
func NewKeyringSigner(rpcEndpoint string, secrets map[string]string) (*KeyringSigner, error) {
	keys := make(map[string]ed25519.PrivateKey, len(secrets))
	for ref, secret := range secrets {
		raw, err := base58.Decode(secret)
		if err != nil {
			return nil, fmt.Errorf("decode secret for %q: %w", ref, err)
		}
		if len(raw) != ed25519.PrivateKeySize {
			return nil, fmt.Errorf("secret for %q: got %d bytes, want %d", ref, len(raw), ed25519.PrivateKeySize)
		}
		keys[ref] = ed25519.PrivateKey(raw)
	}

	return &KeyringSigner{
		keys:     keys,
		endpoint: rpcEndpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// SignAndSubmit signs the serialized transaction and submits it.
//
// The transaction arrives with an empty signature slot; Solana wire format
// is signature count (1 byte for a single signer) followed by 64 bytes per
// signature, then the message. The signature covers the message only.
func (s *KeyringSigner) SignAndSubmit(ctx context.Context, walletRef string, tx []byte) (string, error) {
	key, ok := s.keys[walletRef]
	if !ok {
		return "", ErrUnknownWallet
	}

	const sigLen = ed25519.SignatureSize
	if len(tx) < 1+sigLen {
		return "", fmt.Errorf("transaction too short: %d bytes", len(tx))
	}
	if tx[0] != 1 {
		return "", fmt.Errorf("expected single-signer transaction, got %d slots", tx[0])
	}

	message := tx[1+sigLen:]
	sig := ed25519.Sign(key, message)

	signed := make([]byte, 0, len(tx))
	signed = append(signed, 1)
	signed = append(signed, sig...)
	signed = append(signed, message...)

	signature, err := s.sendTransaction(ctx, signed)
	if err != nil {
		return "", err
	}
	return signature, nil
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// sendTransaction submits the signed transaction via JSON-RPC.
func (s *KeyringSigner) sendTransaction(ctx context.Context, signed []byte) (string, error) {
	reqBody := rpcRequest{
		JSONRPC: "2.0",
		ID:      s.requestID.Add(1),
		Method:  "sendTransaction",
		Params: []interface{}{
			base64.StdEncoding.EncodeToString(signed),
			map[string]string{"encoding": "base64"},
		},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send transaction: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(data, &rpcResp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return "", rpcResp.Error
	}

	var signature string
	if err := json.Unmarshal(rpcResp.Result, &signature); err != nil {
		return "", fmt.Errorf("decode signature: %w", err)
	}
	return signature, nil
}
