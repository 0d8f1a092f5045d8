package exitpolicy

import (
	"fmt"
	"time"
)

// TimeExitPolicy sells at market after a fixed hold duration.
type TimeExitPolicy struct {
	Hold          time.Duration
	RetryInterval time.Duration
	MaxAttempts   int
}

// NewTimeExitPolicy creates a TimeExitPolicy.
func NewTimeExitPolicy(hold, retryInterval time.Duration, maxAttempts int) *TimeExitPolicy {
	return &TimeExitPolicy{
		Hold:          hold,
		RetryInterval: retryInterval,
		MaxAttempts:   maxAttempts,
	}
}

// ID returns the policy identifier including parameters.
func (p *TimeExitPolicy) ID() string {
	return fmt.Sprintf("TIME_EXIT_%s", p.Hold)
}

// Plan schedules a market sell at boughtAt + Hold.
func (p *TimeExitPolicy) Plan(boughtAt time.Time) Plan {
	return Plan{NotBefore: boughtAt.Add(p.Hold)}
}

// Replan retries a rejected market sell after RetryInterval, up to
// MaxAttempts; the last retry is final either way since there is no floor
// to drop.
func (p *TimeExitPolicy) Replan(_ time.Time, attempts int, now time.Time) (Plan, bool) {
	plan := Plan{NotBefore: now.Add(p.RetryInterval)}
	return plan, attempts < p.MaxAttempts
}

// Ensure TimeExitPolicy implements Policy
var _ Policy = (*TimeExitPolicy)(nil)
