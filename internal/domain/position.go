package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PositionState is the state of one acquisition/disposal cycle.
type PositionState string

const (
	PositionPending       PositionState = "PENDING"
	PositionBought        PositionState = "BOUGHT"
	PositionSellScheduled PositionState = "SELL_SCHEDULED"
	PositionSold          PositionState = "SOLD"
	PositionFailed        PositionState = "FAILED"
)

// positionEdges is the authoritative transition table. Every valid
// (from, to) pair appears exactly once; SOLD and FAILED are terminal.
var positionEdges = map[PositionState][]PositionState{
	PositionPending:       {PositionBought, PositionFailed},
	PositionBought:        {PositionSellScheduled, PositionFailed},
	PositionSellScheduled: {PositionSold, PositionFailed},
}

// CanTransitionTo reports whether from → to is a legal position edge.
func (s PositionState) CanTransitionTo(to PositionState) bool {
	for _, next := range positionEdges[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the state admits no further transitions.
func (s PositionState) Terminal() bool {
	return s == PositionSold || s == PositionFailed
}

// PositionKey is the composite identity of a PositionRecord.
type PositionKey struct {
	UserID       string
	TokenAddress string
	CycleID      int64
}

// String renders the key for logs and action targets.
func (k PositionKey) String() string {
	return fmt.Sprintf("%s/%s/%d", k.UserID, k.TokenAddress, k.CycleID)
}

// PositionRecord is one (user, token) acquisition/disposal cycle, the unit
// of idempotency: at most one record per (UserID, TokenAddress) may be in a
// non-terminal state at any time.
type PositionRecord struct {
	UserID       string
	TokenAddress string
	CycleID      int64 // incremented per re-entry into the same token

	State             PositionState
	PurchasePrice     decimal.Decimal
	PurchaseAmountSOL decimal.Decimal
	TokenAmount       decimal.Decimal
	SellPrice         decimal.Decimal
	ProfitPercentage  decimal.Decimal

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Key returns the composite identity of the record.
func (p *PositionRecord) Key() PositionKey {
	return PositionKey{UserID: p.UserID, TokenAddress: p.TokenAddress, CycleID: p.CycleID}
}

// ProfitPercent computes (sell − purchase) / purchase × 100.
// A zero purchase price yields zero rather than a division error; such a
// fill is malformed and the caller is expected to have rejected it.
func ProfitPercent(purchase, sell decimal.Decimal) decimal.Decimal {
	if purchase.IsZero() {
		return decimal.Zero
	}
	return sell.Sub(purchase).Div(purchase).Mul(decimal.NewFromInt(100))
}
