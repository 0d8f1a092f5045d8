// Package exitpolicy decides when a bought position is disposed of.
// Policies are pure schedule calculators: the scheduler persists the plans
// they produce as durable actions and owns all execution.
package exitpolicy

import (
	"time"

	"github.com/shopspring/decimal"
)

// Plan is one sell schedule entry: the earliest firing time, plus an
// optional profit floor the venue may refuse to fill below.
type Plan struct {
	NotBefore    time.Time
	MinProfitPct *decimal.Decimal
}

// Policy plans the disposal of a position.
type Policy interface {
	// ID returns the policy identifier including parameters.
	ID() string

	// Plan produces the initial sell schedule for a position bought at
	// boughtAt.
	Plan(boughtAt time.Time) Plan

	// Replan produces the follow-up schedule after a rejected sell
	// attempt. The second return is false when the policy gives up on its
	// conditions; the returned plan is then the final market sell (no
	// profit floor) and must not be replanned again.
	Replan(boughtAt time.Time, attempts int, now time.Time) (Plan, bool)
}
