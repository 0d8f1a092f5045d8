package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ActionKind discriminates deferred action types.
type ActionKind string

const (
	// ActionSell disposes of the linked position at or after NotBefore.
	ActionSell ActionKind = "SELL"
)

// ActionStatus is the lifecycle of a ScheduledAction.
type ActionStatus string

const (
	ActionArmed ActionStatus = "ARMED"
	ActionFired ActionStatus = "FIRED"

	// ActionResolved means the firing's outcome is settled: the position
	// closed, a replacement action was armed, or replanning stopped. Only
	// FIRED-but-unresolved actions are candidates for redrive.
	ActionResolved ActionStatus = "RESOLVED"

	ActionCancelled ActionStatus = "CANCELLED"
)

// ScheduledAction is a durable, restart-safe deferred action. It is
// persisted before Arm returns; firing is a CAS ARMED → FIRED so duplicate
// delivery cannot execute twice. Cancellation is only legal while ARMED.
// A fired action whose outcome is settled is marked RESOLVED; one that
// stays FIRED past the grace period has an unknown outcome and is picked
// up by the reconcile scan.
type ScheduledAction struct {
	ActionID string
	Kind     ActionKind
	Target   PositionKey

	// NotBefore is the earliest firing time.
	NotBefore time.Time

	// MinProfitPct, when set, is passed to the venue as a limit condition:
	// the sell may be rejected if the venue cannot fill at or above it.
	MinProfitPct *decimal.Decimal

	Attempts int
	Status   ActionStatus

	CreatedAt time.Time
	FiredAt   *time.Time
}
