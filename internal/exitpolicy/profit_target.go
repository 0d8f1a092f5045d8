package exitpolicy

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ProfitTargetPolicy holds the position until the venue can fill at or
// above the target profit, checking every RetryInterval. When MaxHold
// elapses (or MaxAttempts is exhausted) it gives up the floor and sells at
// market.
type ProfitTargetPolicy struct {
	TargetPct     decimal.Decimal
	RetryInterval time.Duration
	MaxHold       time.Duration
	MaxAttempts   int
}

// NewProfitTargetPolicy creates a ProfitTargetPolicy.
func NewProfitTargetPolicy(targetPct decimal.Decimal, retryInterval, maxHold time.Duration, maxAttempts int) *ProfitTargetPolicy {
	return &ProfitTargetPolicy{
		TargetPct:     targetPct,
		RetryInterval: retryInterval,
		MaxHold:       maxHold,
		MaxAttempts:   maxAttempts,
	}
}

// ID returns the policy identifier including parameters.
func (p *ProfitTargetPolicy) ID() string {
	return fmt.Sprintf("PROFIT_TARGET_%s_%s", p.TargetPct, p.MaxHold)
}

// Plan schedules the first attempt one interval after the buy, carrying
// the profit floor.
func (p *ProfitTargetPolicy) Plan(boughtAt time.Time) Plan {
	target := p.TargetPct
	return Plan{
		NotBefore:    boughtAt.Add(p.RetryInterval),
		MinProfitPct: &target,
	}
}

// Replan keeps the floor while the hold window and attempt budget last,
// then falls back to a final market sell.
func (p *ProfitTargetPolicy) Replan(boughtAt time.Time, attempts int, now time.Time) (Plan, bool) {
	expired := now.Sub(boughtAt) >= p.MaxHold
	exhausted := attempts >= p.MaxAttempts
	if expired || exhausted {
		return Plan{NotBefore: now}, false
	}

	target := p.TargetPct
	return Plan{
		NotBefore:    now.Add(p.RetryInterval),
		MinProfitPct: &target,
	}, true
}

// Ensure ProfitTargetPolicy implements Policy
var _ Policy = (*ProfitTargetPolicy)(nil)
