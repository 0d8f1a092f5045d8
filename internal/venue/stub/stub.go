// Package stub provides an in-memory venue adapter for development mode
// and tests. Outcomes are scripted per token; unscripted trades succeed
// with a synthetic fill.
package stub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"solana-migration-sniper/internal/domain"
	"solana-migration-sniper/internal/venue"
)

// Adapter is a scriptable in-memory venue.
type Adapter struct {
	platform domain.Platform

	mu         sync.Mutex
	newTokens  []venue.NewToken
	migration  map[string]float64
	buyResult  map[string]venue.TradeResult
	sellResult map[string]venue.TradeResult
	buyCalls   []venue.BuyRequest
	sellCalls  []venue.SellRequest
	price      decimal.Decimal
}

// Compile-time interface check.
var _ venue.Adapter = (*Adapter)(nil)

// New creates a stub venue for the given platform.
func New(platform domain.Platform) *Adapter {
	return &Adapter{
		platform:   platform,
		migration:  make(map[string]float64),
		buyResult:  make(map[string]venue.TradeResult),
		sellResult: make(map[string]venue.TradeResult),
		price:      decimal.RequireFromString("0.0001"),
	}
}

func (a *Adapter) Platform() domain.Platform { return a.platform }

// AddNewToken appends a token to the catalog reply.
func (a *Adapter) AddNewToken(t venue.NewToken) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.newTokens = append(a.newTokens, t)
}

// SetMigration scripts the migration percentage for a token.
func (a *Adapter) SetMigration(address string, pct float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.migration[address] = pct
}

// SetBuyResult scripts the next buy outcome for a token.
func (a *Adapter) SetBuyResult(address string, r venue.TradeResult) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.buyResult[address] = r
}

// SetSellResult scripts the next sell outcome for a token.
func (a *Adapter) SetSellResult(address string, r venue.TradeResult) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sellResult[address] = r
}

// BuyCalls returns a copy of the executed buy requests.
func (a *Adapter) BuyCalls() []venue.BuyRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]venue.BuyRequest, len(a.buyCalls))
	copy(out, a.buyCalls)
	return out
}

// SellCalls returns a copy of the executed sell requests.
func (a *Adapter) SellCalls() []venue.SellRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]venue.SellRequest, len(a.sellCalls))
	copy(out, a.sellCalls)
	return out
}

func (a *Adapter) ListNewTokens(_ context.Context) ([]venue.NewToken, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]venue.NewToken, len(a.newTokens))
	copy(out, a.newTokens)
	return out, nil
}

func (a *Adapter) MigrationStatus(_ context.Context, tokenAddress string) (float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	pct, ok := a.migration[tokenAddress]
	if !ok {
		return 0, fmt.Errorf("unknown token %s", tokenAddress)
	}
	return pct, nil
}

func (a *Adapter) ExecuteBuy(_ context.Context, req venue.BuyRequest) (venue.TradeResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.buyCalls = append(a.buyCalls, req)

	if r, ok := a.buyResult[req.TokenAddress]; ok {
		return r, nil
	}
	return venue.Success(domain.Fill{
		Price:       a.price,
		TokenAmount: req.AmountSOL.Div(a.price),
		SOLAmount:   req.AmountSOL,
		Signature:   fmt.Sprintf("stub-buy-%s-%d", req.TokenAddress, len(a.buyCalls)),
		ExecutedAt:  time.Now().UTC(),
	}), nil
}

func (a *Adapter) ExecuteSell(_ context.Context, req venue.SellRequest) (venue.TradeResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sellCalls = append(a.sellCalls, req)

	if r, ok := a.sellResult[req.TokenAddress]; ok {
		return r, nil
	}

	// Default fill exits 10% above entry.
	price := req.PurchasePrice.Mul(decimal.RequireFromString("1.1"))
	if price.IsZero() {
		price = a.price
	}
	return venue.Success(domain.Fill{
		Price:       price,
		TokenAmount: req.TokenAmount,
		SOLAmount:   req.TokenAmount.Mul(price),
		Signature:   fmt.Sprintf("stub-sell-%s-%d", req.TokenAddress, len(a.sellCalls)),
		ExecutedAt:  time.Now().UTC(),
	}), nil
}
