package postgres_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-migration-sniper/internal/domain"
	"solana-migration-sniper/internal/storage"
	"solana-migration-sniper/internal/storage/postgres"
)

func TestPositionStore_ReserveAllocatesCycle(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewPositionStore(pool)
	ctx := context.Background()

	p := &domain.PositionRecord{UserID: "user-1", TokenAddress: "TokenAddr1"}
	err := store.Reserve(ctx, p)
	require.NoError(t, err)

	assert.Equal(t, int64(1), p.CycleID)
	assert.Equal(t, domain.PositionPending, p.State)
	assert.NotZero(t, p.CreatedAt)

	retrieved, err := store.Get(ctx, p.Key())
	require.NoError(t, err)
	assert.Equal(t, domain.PositionPending, retrieved.State)
}

func TestPositionStore_ReserveWhileActiveRefused(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewPositionStore(pool)
	ctx := context.Background()

	first := &domain.PositionRecord{UserID: "user-1", TokenAddress: "TokenAddr1"}
	require.NoError(t, store.Reserve(ctx, first))

	// The partial unique index refuses a second cycle while one is open.
	second := &domain.PositionRecord{UserID: "user-1", TokenAddress: "TokenAddr1"}
	err := store.Reserve(ctx, second)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	// A different pair is unaffected.
	other := &domain.PositionRecord{UserID: "user-2", TokenAddress: "TokenAddr1"}
	assert.NoError(t, store.Reserve(ctx, other))
}

func TestPositionStore_ReserveAfterTerminalIncrementsCycle(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewPositionStore(pool)
	ctx := context.Background()

	first := &domain.PositionRecord{UserID: "user-1", TokenAddress: "TokenAddr1"}
	require.NoError(t, store.Reserve(ctx, first))
	require.NoError(t, store.MarkFailed(ctx, first.Key(), domain.PositionPending))

	second := &domain.PositionRecord{UserID: "user-1", TokenAddress: "TokenAddr1"}
	require.NoError(t, store.Reserve(ctx, second))
	assert.Equal(t, int64(2), second.CycleID)
}

func TestPositionStore_ConcurrentReserveSingleWinner(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewPositionStore(pool)
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	results := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p := &domain.PositionRecord{UserID: "user-1", TokenAddress: "TokenAddr1"}
			results <- store.Reserve(ctx, p)
		}()
	}
	wg.Wait()
	close(results)

	var wins, dups int
	for err := range results {
		switch {
		case err == nil:
			wins++
		default:
			assert.ErrorIs(t, err, storage.ErrDuplicateKey)
			dups++
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, workers-1, dups)
}

func TestPositionStore_FullLifecycle(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewPositionStore(pool)
	ctx := context.Background()

	p := &domain.PositionRecord{UserID: "user-1", TokenAddress: "TokenAddr1"}
	require.NoError(t, store.Reserve(ctx, p))
	key := p.Key()

	buy := domain.Fill{
		Price:       decimal.RequireFromString("0.000012"),
		TokenAmount: decimal.RequireFromString("4100000"),
		SOLAmount:   decimal.RequireFromString("0.05"),
	}
	require.NoError(t, store.MarkBought(ctx, key, buy))

	require.NoError(t, store.MarkSellScheduled(ctx, key))

	sellPrice := decimal.RequireFromString("0.0000138")
	require.NoError(t, store.MarkSold(ctx, key, storage.SellFill{
		SellPrice: sellPrice,
		ProfitPct: domain.ProfitPercent(buy.Price, sellPrice),
	}))

	retrieved, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, domain.PositionSold, retrieved.State)
	assert.True(t, retrieved.PurchasePrice.Equal(buy.Price))
	assert.True(t, retrieved.TokenAmount.Equal(buy.TokenAmount))
	assert.True(t, retrieved.SellPrice.Equal(sellPrice))
	assert.True(t, retrieved.ProfitPercentage.GreaterThan(decimal.NewFromInt(14)))

	// Terminal rows refuse further writes.
	err = store.MarkFailed(ctx, key, domain.PositionSellScheduled)
	assert.ErrorIs(t, err, storage.ErrConflict)
}

func TestPositionStore_MarkBoughtCAS(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewPositionStore(pool)
	ctx := context.Background()

	p := &domain.PositionRecord{UserID: "user-1", TokenAddress: "TokenAddr1"}
	require.NoError(t, store.Reserve(ctx, p))

	fill := domain.Fill{Price: decimal.New(1, -6)}
	require.NoError(t, store.MarkBought(ctx, p.Key(), fill))

	// Duplicate delivery of the same event loses the CAS.
	err := store.MarkBought(ctx, p.Key(), fill)
	assert.ErrorIs(t, err, storage.ErrConflict)

	// Unknown key.
	err = store.MarkBought(ctx, domain.PositionKey{UserID: "ghost", TokenAddress: "x", CycleID: 1}, fill)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPositionStore_MarkFailedIllegalEdge(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewPositionStore(pool)
	ctx := context.Background()

	p := &domain.PositionRecord{UserID: "user-1", TokenAddress: "TokenAddr1"}
	require.NoError(t, store.Reserve(ctx, p))

	err := store.MarkFailed(ctx, p.Key(), domain.PositionSold)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestPositionStore_GetActive(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewPositionStore(pool)
	ctx := context.Background()

	_, err := store.GetActive(ctx, "user-1", "TokenAddr1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	p := &domain.PositionRecord{UserID: "user-1", TokenAddress: "TokenAddr1"}
	require.NoError(t, store.Reserve(ctx, p))

	active, err := store.GetActive(ctx, "user-1", "TokenAddr1")
	require.NoError(t, err)
	assert.Equal(t, p.CycleID, active.CycleID)

	require.NoError(t, store.MarkFailed(ctx, p.Key(), domain.PositionPending))
	_, err = store.GetActive(ctx, "user-1", "TokenAddr1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPositionStore_ListByUser(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewPositionStore(pool)
	ctx := context.Background()

	for _, addr := range []string{"TokenAddr1", "TokenAddr2"} {
		p := &domain.PositionRecord{UserID: "user-1", TokenAddress: addr}
		require.NoError(t, store.Reserve(ctx, p))
	}
	other := &domain.PositionRecord{UserID: "user-2", TokenAddress: "TokenAddr1"}
	require.NoError(t, store.Reserve(ctx, other))

	positions, err := store.ListByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, positions, 2)
	for _, p := range positions {
		assert.Equal(t, "user-1", p.UserID)
	}
}

func TestPositionStore_ListStale(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewPositionStore(pool)
	ctx := context.Background()

	p := &domain.PositionRecord{UserID: "user-1", TokenAddress: "TokenAddr1"}
	require.NoError(t, store.Reserve(ctx, p))

	// Everything is stale against a future cutoff, nothing against the past.
	stale, err := store.ListStale(ctx, domain.PositionPending, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, p.Key(), stale[0].Key())

	stale, err = store.ListStale(ctx, domain.PositionPending, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, stale)

	stale, err = store.ListStale(ctx, domain.PositionSellScheduled, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, stale)
}
