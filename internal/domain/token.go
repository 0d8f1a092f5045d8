package domain

import "time"

// Platform identifies the launch platform a token was discovered on.
type Platform string

const (
	PlatformPumpFun Platform = "PUMP_FUN"
	PlatformRaydium Platform = "RAYDIUM"
)

// LifecycleState is the discovery-side state of a tracked token.
type LifecycleState string

const (
	LifecycleTracking         LifecycleState = "TRACKING"
	LifecycleThresholdCrossed LifecycleState = "THRESHOLD_CROSSED"
	LifecycleClosed           LifecycleState = "CLOSED"
)

// lifecycleEdges is the authoritative transition table. The lifecycle is
// strictly monotonic: TRACKING → THRESHOLD_CROSSED → CLOSED, no regressions.
var lifecycleEdges = map[LifecycleState]LifecycleState{
	LifecycleTracking:         LifecycleThresholdCrossed,
	LifecycleThresholdCrossed: LifecycleClosed,
}

// CanTransitionTo reports whether from → to is a legal lifecycle edge.
func (s LifecycleState) CanTransitionTo(to LifecycleState) bool {
	return lifecycleEdges[s] == to
}

// TokenRecord is one discovered token and its last known migration state.
// Records are never hard-deleted; CLOSED tokens are retained for audit.
type TokenRecord struct {
	Address             string // mint address, unique key
	Name                string
	Symbol              string
	Platform            Platform
	MigrationPercentage float64 // 0–100, venue-reported
	LifecycleState      LifecycleState
	DiscoveredAt        time.Time
	LastCheckedAt       time.Time
}

// ThresholdEvent is emitted exactly once per token when its migration
// percentage first meets the configured buy trigger.
type ThresholdEvent struct {
	TokenAddress        string
	Platform            Platform
	MigrationPercentage float64
	CrossedAt           time.Time
}
