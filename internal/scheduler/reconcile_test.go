package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"solana-migration-sniper/internal/domain"
	"solana-migration-sniper/internal/storage"
)

func TestReconcile_RedrivesCrossedToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addUser(t, "u1")

	// The token crossed but the process died before the fan-out ran. No
	// in-process event exists; only the stored state does.
	f.addCrossedToken(t, "Mint1")

	cfg := (&ReconcileOptions{}).withDefaults()
	f.sched.reconcile(ctx, cfg, f.actions)

	pos := f.position(t, domain.PositionKey{UserID: "u1", TokenAddress: "Mint1", CycleID: 1})
	if pos.State != domain.PositionSellScheduled {
		t.Errorf("expected SELL_SCHEDULED after redrive, got %s", pos.State)
	}

	token, _ := f.tokens.GetByAddress(ctx, "Mint1")
	if token.LifecycleState != domain.LifecycleClosed {
		t.Errorf("expected CLOSED token, got %s", token.LifecycleState)
	}
}

func TestReconcile_RedrivesFiredUnresolvedAction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addUser(t, "u1")
	ev := f.addCrossedToken(t, "Mint1")
	f.sched.HandleThreshold(ctx, ev)

	// Fire the armed sell with an old timestamp, as if the process died
	// right after the CAS and the venue call never happened.
	due, err := f.actions.ListDue(ctx, time.Now().UTC().Add(time.Hour))
	if err != nil || len(due) != 1 {
		t.Fatalf("expected one armed action, got %d (%v)", len(due), err)
	}
	fired := due[0]
	if err := f.actions.MarkFired(ctx, fired.ActionID, time.Now().UTC().Add(-10*time.Minute)); err != nil {
		t.Fatalf("fire action: %v", err)
	}

	cfg := (&ReconcileOptions{}).withDefaults()
	f.sched.reconcile(ctx, cfg, f.actions)

	due, err = f.actions.ListDue(ctx, time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 1 {
		t.Fatalf("expected one re-armed action, got %d", len(due))
	}
	if due[0].ActionID == fired.ActionID {
		t.Error("redrive must arm a fresh action")
	}
	if due[0].Attempts != fired.Attempts+1 {
		t.Errorf("expected attempts %d carried, got %d", fired.Attempts+1, due[0].Attempts)
	}
}

func TestReconcile_RepeatedScansKeepOneLiveAction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addUser(t, "u1")
	ev := f.addCrossedToken(t, "Mint1")
	f.sched.HandleThreshold(ctx, ev)

	due, err := f.actions.ListDue(ctx, time.Now().UTC().Add(time.Hour))
	if err != nil || len(due) != 1 {
		t.Fatalf("expected one armed action, got %d (%v)", len(due), err)
	}
	fired := due[0]
	if err := f.actions.MarkFired(ctx, fired.ActionID, time.Now().UTC().Add(-10*time.Minute)); err != nil {
		t.Fatalf("fire action: %v", err)
	}

	// The position stays SELL_SCHEDULED across every pass; the scan must
	// not grow a second concurrent sell for it.
	cfg := (&ReconcileOptions{}).withDefaults()
	for pass := 1; pass <= 3; pass++ {
		f.sched.reconcile(ctx, cfg, f.actions)

		armed, err := f.actions.ListArmedByTarget(ctx, fired.Target)
		if err != nil {
			t.Fatal(err)
		}
		if len(armed) != 1 {
			t.Fatalf("pass %d: expected exactly one armed action, got %d", pass, len(armed))
		}
	}

	old, err := f.actions.Get(ctx, fired.ActionID)
	if err != nil {
		t.Fatal(err)
	}
	if old.Status != domain.ActionResolved {
		t.Errorf("expected redriven action RESOLVED, got %s", old.Status)
	}
}

func TestReconcile_ResolvesFiredActionWithArmedSuccessor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addUser(t, "u1")
	ev := f.addCrossedToken(t, "Mint1")
	f.sched.HandleThreshold(ctx, ev)

	due, _ := f.actions.ListDue(ctx, time.Now().UTC().Add(time.Hour))
	if len(due) != 1 {
		t.Fatalf("expected one armed action, got %d", len(due))
	}
	fired := due[0]
	if err := f.actions.MarkFired(ctx, fired.ActionID, time.Now().UTC().Add(-10*time.Minute)); err != nil {
		t.Fatal(err)
	}

	// A replan armed the follow-up but crashed before settling the old
	// firing.
	successor := &domain.ScheduledAction{
		ActionID:  "successor",
		Kind:      domain.ActionSell,
		Target:    fired.Target,
		NotBefore: time.Now().UTC().Add(time.Minute),
		Attempts:  fired.Attempts,
		Status:    domain.ActionArmed,
		CreatedAt: time.Now().UTC(),
	}
	if err := f.actions.Insert(ctx, successor); err != nil {
		t.Fatal(err)
	}

	cfg := (&ReconcileOptions{}).withDefaults()
	f.sched.reconcile(ctx, cfg, f.actions)

	armed, err := f.actions.ListArmedByTarget(ctx, fired.Target)
	if err != nil {
		t.Fatal(err)
	}
	if len(armed) != 1 || armed[0].ActionID != "successor" {
		t.Fatalf("expected the successor to stay the only armed action, got %d", len(armed))
	}

	old, _ := f.actions.Get(ctx, fired.ActionID)
	if old.Status != domain.ActionResolved {
		t.Errorf("expected stale firing RESOLVED, got %s", old.Status)
	}
}

func TestReconcile_SkipsFiredActionWhoseSellResolved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addUser(t, "u1")
	ev := f.addCrossedToken(t, "Mint1")
	f.sched.HandleThreshold(ctx, ev)

	key := domain.PositionKey{UserID: "u1", TokenAddress: "Mint1", CycleID: 1}
	due, _ := f.actions.ListDue(ctx, time.Now().UTC().Add(time.Hour))
	if len(due) != 1 {
		t.Fatalf("expected one armed action, got %d", len(due))
	}
	if err := f.actions.MarkFired(ctx, due[0].ActionID, time.Now().UTC().Add(-10*time.Minute)); err != nil {
		t.Fatal(err)
	}

	// The sell did resolve, just slowly.
	if err := f.positions.MarkSold(ctx, key, storage.SellFill{
		SellPrice: decimal.RequireFromString("0.00011"),
		ProfitPct: decimal.NewFromInt(10),
	}); err != nil {
		t.Fatal(err)
	}

	cfg := (&ReconcileOptions{}).withDefaults()
	f.sched.reconcile(ctx, cfg, f.actions)

	due, _ = f.actions.ListDue(ctx, time.Now().UTC().Add(time.Hour))
	if len(due) != 0 {
		t.Errorf("resolved position must not be re-armed, got %d actions", len(due))
	}
}

func TestReconcile_ArmsSellForStuckBoughtPosition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addUser(t, "u1")
	f.addCrossedToken(t, "Mint1")

	// A buy that settled but crashed before its sell was armed.
	pos := &domain.PositionRecord{UserID: "u1", TokenAddress: "Mint1"}
	if err := f.positions.Reserve(ctx, pos); err != nil {
		t.Fatal(err)
	}
	key := pos.Key()
	if err := f.positions.MarkBought(ctx, key, domain.Fill{
		Price:       decimal.RequireFromString("0.0001"),
		TokenAmount: decimal.RequireFromString("500"),
		SOLAmount:   decimal.RequireFromString("0.05"),
		Signature:   "sig",
		ExecutedAt:  time.Now().UTC(),
	}); err != nil {
		t.Fatal(err)
	}

	time.Sleep(10 * time.Millisecond)
	cfg := (&ReconcileOptions{FiredGrace: time.Millisecond}).withDefaults()
	f.sched.reconcile(ctx, cfg, f.actions)

	got := f.position(t, key)
	if got.State != domain.PositionSellScheduled {
		t.Fatalf("expected SELL_SCHEDULED, got %s", got.State)
	}

	due, err := f.actions.ListDue(ctx, time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 1 {
		t.Errorf("expected one recovered sell action, got %d", len(due))
	}
}
