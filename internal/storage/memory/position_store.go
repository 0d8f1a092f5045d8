package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"solana-migration-sniper/internal/domain"
	"solana-migration-sniper/internal/storage"
)

// PositionStore is an in-memory implementation of storage.PositionStore.
type PositionStore struct {
	mu   sync.Mutex
	data map[domain.PositionKey]*domain.PositionRecord
	now  func() time.Time
}

// NewPositionStore creates a new in-memory position store.
func NewPositionStore() *PositionStore {
	return &PositionStore{
		data: make(map[domain.PositionKey]*domain.PositionRecord),
		now:  time.Now,
	}
}

// Compile-time interface check.
var _ storage.PositionStore = (*PositionStore)(nil)

// Reserve inserts a PENDING record, allocating the next cycle ID. Fails
// with ErrDuplicateKey while any non-terminal cycle exists for the pair.
func (s *PositionStore) Reserve(_ context.Context, p *domain.PositionRecord) error {
	if p == nil || p.UserID == "" || p.TokenAddress == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var maxCycle int64
	for key, existing := range s.data {
		if key.UserID != p.UserID || key.TokenAddress != p.TokenAddress {
			continue
		}
		if !existing.State.Terminal() {
			return storage.ErrDuplicateKey
		}
		if key.CycleID > maxCycle {
			maxCycle = key.CycleID
		}
	}

	now := s.now()
	p.CycleID = maxCycle + 1
	p.State = domain.PositionPending
	p.CreatedAt = now
	p.UpdatedAt = now

	copy := *p
	s.data[p.Key()] = &copy
	return nil
}

// Get retrieves one cycle. Returns ErrNotFound if not exists.
func (s *PositionStore) Get(_ context.Context, key domain.PositionKey) (*domain.PositionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.data[key]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *p
	return &copy, nil
}

// GetActive retrieves the single non-terminal cycle for a pair, if any.
func (s *PositionStore) GetActive(_ context.Context, userID, tokenAddress string) (*domain.PositionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, p := range s.data {
		if key.UserID == userID && key.TokenAddress == tokenAddress && !p.State.Terminal() {
			copy := *p
			return &copy, nil
		}
	}
	return nil, storage.ErrNotFound
}

// MarkBought transitions PENDING → BOUGHT and records the entry fill.
func (s *PositionStore) MarkBought(_ context.Context, key domain.PositionKey, fill domain.Fill) error {
	return s.transition(key, domain.PositionPending, domain.PositionBought, func(p *domain.PositionRecord) {
		p.PurchasePrice = fill.Price
		p.TokenAmount = fill.TokenAmount
		p.PurchaseAmountSOL = fill.SOLAmount
	})
}

// MarkSellScheduled transitions BOUGHT → SELL_SCHEDULED.
func (s *PositionStore) MarkSellScheduled(_ context.Context, key domain.PositionKey) error {
	return s.transition(key, domain.PositionBought, domain.PositionSellScheduled, nil)
}

// MarkSold transitions SELL_SCHEDULED → SOLD and records the exit leg.
func (s *PositionStore) MarkSold(_ context.Context, key domain.PositionKey, fill storage.SellFill) error {
	return s.transition(key, domain.PositionSellScheduled, domain.PositionSold, func(p *domain.PositionRecord) {
		p.SellPrice = fill.SellPrice
		p.ProfitPercentage = fill.ProfitPct
	})
}

// MarkFailed transitions the expected non-terminal state to FAILED.
func (s *PositionStore) MarkFailed(_ context.Context, key domain.PositionKey, from domain.PositionState) error {
	return s.transition(key, from, domain.PositionFailed, nil)
}

// transition is the shared CAS helper: the update applies only while the
// stored state still equals `from`.
func (s *PositionStore) transition(key domain.PositionKey, from, to domain.PositionState, mutate func(*domain.PositionRecord)) error {
	if !from.CanTransitionTo(to) {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.data[key]
	if !exists {
		return storage.ErrNotFound
	}
	if p.State != from {
		return storage.ErrConflict
	}

	p.State = to
	p.UpdatedAt = s.now()
	if mutate != nil {
		mutate(p)
	}
	return nil
}

// ListByUser retrieves all cycles for a user, newest first.
func (s *PositionStore) ListByUser(_ context.Context, userID string) ([]*domain.PositionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*domain.PositionRecord
	for key, p := range s.data {
		if key.UserID == userID {
			copy := *p
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// ListStale retrieves positions in `state` last updated before cutoff.
func (s *PositionStore) ListStale(_ context.Context, state domain.PositionState, cutoff time.Time) ([]*domain.PositionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*domain.PositionRecord
	for _, p := range s.data {
		if p.State == state && p.UpdatedAt.Before(cutoff) {
			copy := *p
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.Before(result[j].UpdatedAt)
	})
	return result, nil
}
