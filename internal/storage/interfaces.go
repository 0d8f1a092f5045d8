package storage

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"solana-migration-sniper/internal/domain"
)

// TokenStore provides access to the token registry. All state transitions
// are conditional updates: the write applies only if the stored lifecycle
// state still equals the expected one, otherwise ErrConflict is returned.
type TokenStore interface {
	// Upsert inserts the token in TRACKING state if the address is unseen.
	// An existing record is left untouched (discovery across platforms must
	// not regress state or percentage). Returns true when a row was created.
	Upsert(ctx context.Context, t *domain.TokenRecord) (bool, error)

	// GetByAddress retrieves a token. Returns ErrNotFound if not exists.
	GetByAddress(ctx context.Context, address string) (*domain.TokenRecord, error)

	// ListByState retrieves all tokens in the given lifecycle state,
	// ordered by discovery time ASC.
	ListByState(ctx context.Context, state domain.LifecycleState) ([]*domain.TokenRecord, error)

	// UpdateMigration records a fresh migration percentage and check time
	// for a token still in TRACKING state. A token already past TRACKING is
	// left unchanged (no error: the poll result is simply stale).
	UpdateMigration(ctx context.Context, address string, pct float64, checkedAt time.Time) error

	// TransitionState performs the CAS lifecycle transition from → to.
	// Returns ErrConflict if the stored state is not `from`, ErrNotFound if
	// the token does not exist, ErrInvalidInput for an illegal edge.
	TransitionState(ctx context.Context, address string, from, to domain.LifecycleState) error
}

// SellFill carries the disposal leg written by MarkSold.
type SellFill struct {
	SellPrice decimal.Decimal
	ProfitPct decimal.Decimal
}

// PositionStore provides access to the position ledger. Reserve is the
// idempotency gate; the Mark* methods are conditional updates gated on the
// current state and return ErrConflict when another worker got there first
// (or the position is already terminal).
type PositionStore interface {
	// Reserve inserts a PENDING record for (userID, tokenAddress),
	// allocating the next cycle ID, and fails with ErrDuplicateKey while
	// any non-terminal cycle exists for the pair. On success the passed
	// record's CycleID and timestamps are populated.
	Reserve(ctx context.Context, p *domain.PositionRecord) error

	// Get retrieves one cycle. Returns ErrNotFound if not exists.
	Get(ctx context.Context, key domain.PositionKey) (*domain.PositionRecord, error)

	// GetActive retrieves the single non-terminal cycle for a pair, if any.
	GetActive(ctx context.Context, userID, tokenAddress string) (*domain.PositionRecord, error)

	// MarkBought transitions PENDING → BOUGHT and records the entry fill.
	MarkBought(ctx context.Context, key domain.PositionKey, fill domain.Fill) error

	// MarkSellScheduled transitions BOUGHT → SELL_SCHEDULED.
	MarkSellScheduled(ctx context.Context, key domain.PositionKey) error

	// MarkSold transitions SELL_SCHEDULED → SOLD and records the exit leg.
	MarkSold(ctx context.Context, key domain.PositionKey, fill SellFill) error

	// MarkFailed transitions the position from the expected non-terminal
	// state to FAILED.
	MarkFailed(ctx context.Context, key domain.PositionKey, from domain.PositionState) error

	// ListByUser retrieves all cycles for a user, newest first.
	ListByUser(ctx context.Context, userID string) ([]*domain.PositionRecord, error)

	// ListStale retrieves non-terminal positions in the given state whose
	// last update is older than cutoff. Used by the reconciler (redrive of
	// SELL_SCHEDULED, manual review of PENDING).
	ListStale(ctx context.Context, state domain.PositionState, cutoff time.Time) ([]*domain.PositionRecord, error)
}

// ActionStore provides access to durable scheduled actions.
type ActionStore interface {
	// Insert persists a new action. Returns ErrDuplicateKey if the action
	// ID exists.
	Insert(ctx context.Context, a *domain.ScheduledAction) error

	// Get retrieves an action by ID. Returns ErrNotFound if not exists.
	Get(ctx context.Context, actionID string) (*domain.ScheduledAction, error)

	// ListDue retrieves ARMED actions with not_before <= now, ordered by
	// not_before ASC. The recovery scan after a restart is the same query:
	// past-due actions are simply due.
	ListDue(ctx context.Context, now time.Time) ([]*domain.ScheduledAction, error)

	// MarkFired performs the CAS ARMED → FIRED, incrementing the attempt
	// counter. Returns ErrConflict if the action is no longer ARMED.
	MarkFired(ctx context.Context, actionID string, firedAt time.Time) error

	// MarkResolved performs the CAS FIRED → RESOLVED, recording that the
	// firing's outcome is settled. Returns ErrConflict if the action is
	// not FIRED.
	MarkResolved(ctx context.Context, actionID string) error

	// Cancel performs the CAS ARMED → CANCELLED. Returns ErrConflict once
	// the action has fired; cancellation of a fired action is refused.
	Cancel(ctx context.Context, actionID string) error

	// ListArmedByTarget retrieves the ARMED actions aimed at one position.
	// The redrive scan uses it to avoid arming a second live action for a
	// position that already has one.
	ListArmedByTarget(ctx context.Context, target domain.PositionKey) ([]*domain.ScheduledAction, error)

	// ListFiredBefore retrieves FIRED actions whose firing is older than
	// cutoff. The reconciler checks their linked positions for
	// fired-but-unresolved redrive.
	ListFiredBefore(ctx context.Context, cutoff time.Time) ([]*domain.ScheduledAction, error)
}

// UserStore provides access to user accounts. The core reads; only the
// admin boundary writes.
type UserStore interface {
	// Insert adds a new account. Returns ErrDuplicateKey if the user ID or
	// username exists.
	Insert(ctx context.Context, u *domain.UserAccount) error

	// GetByID retrieves an account. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, userID string) (*domain.UserAccount, error)

	// ListActive retrieves all active accounts.
	ListActive(ctx context.Context) ([]*domain.UserAccount, error)

	// ListAll retrieves every account.
	ListAll(ctx context.Context) ([]*domain.UserAccount, error)

	// SetActive toggles the active flag. Returns ErrNotFound if not exists.
	SetActive(ctx context.Context, userID string, active bool) error
}

// TradeEventStore is the append-only audit trail of executed trade legs.
type TradeEventStore interface {
	// Insert appends one event. Duplicates are not possible by
	// construction (events carry no unique key) and writes never block the
	// triggering state transition; callers log failures and move on.
	Insert(ctx context.Context, e *domain.TradeEvent) error
}
