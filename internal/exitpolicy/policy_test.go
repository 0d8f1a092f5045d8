package exitpolicy

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestTimeExitPolicy_Plan(t *testing.T) {
	p := NewTimeExitPolicy(time.Hour, 30*time.Second, 5)

	boughtAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	plan := p.Plan(boughtAt)

	if !plan.NotBefore.Equal(boughtAt.Add(time.Hour)) {
		t.Errorf("expected sell at %v, got %v", boughtAt.Add(time.Hour), plan.NotBefore)
	}
	if plan.MinProfitPct != nil {
		t.Error("time exit must not carry a profit floor")
	}
}

func TestTimeExitPolicy_Replan(t *testing.T) {
	p := NewTimeExitPolicy(time.Hour, 30*time.Second, 3)

	boughtAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := boughtAt.Add(time.Hour)

	plan, again := p.Replan(boughtAt, 1, now)
	if !again {
		t.Fatal("expected retry while attempts remain")
	}
	if !plan.NotBefore.Equal(now.Add(30 * time.Second)) {
		t.Errorf("unexpected retry time %v", plan.NotBefore)
	}

	_, again = p.Replan(boughtAt, 3, now)
	if again {
		t.Fatal("expected final plan after attempt budget")
	}
}

func TestProfitTargetPolicy_Plan(t *testing.T) {
	p := NewProfitTargetPolicy(decimal.NewFromInt(10), 30*time.Second, time.Hour, 10)

	boughtAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	plan := p.Plan(boughtAt)

	if !plan.NotBefore.Equal(boughtAt.Add(30 * time.Second)) {
		t.Errorf("unexpected first attempt time %v", plan.NotBefore)
	}
	if plan.MinProfitPct == nil || !plan.MinProfitPct.Equal(decimal.NewFromInt(10)) {
		t.Errorf("expected 10%% floor, got %v", plan.MinProfitPct)
	}
}

func TestProfitTargetPolicy_Replan(t *testing.T) {
	p := NewProfitTargetPolicy(decimal.NewFromInt(10), 30*time.Second, time.Hour, 10)
	boughtAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("within window keeps floor", func(t *testing.T) {
		now := boughtAt.Add(10 * time.Minute)
		plan, again := p.Replan(boughtAt, 2, now)
		if !again {
			t.Fatal("expected retry within hold window")
		}
		if plan.MinProfitPct == nil {
			t.Fatal("expected profit floor to be kept")
		}
		if !plan.NotBefore.Equal(now.Add(30 * time.Second)) {
			t.Errorf("unexpected retry time %v", plan.NotBefore)
		}
	})

	t.Run("hold window expiry drops floor", func(t *testing.T) {
		now := boughtAt.Add(time.Hour)
		plan, again := p.Replan(boughtAt, 2, now)
		if again {
			t.Fatal("expected final plan after max hold")
		}
		if plan.MinProfitPct != nil {
			t.Error("final plan must sell at market")
		}
		if !plan.NotBefore.Equal(now) {
			t.Errorf("final sell must be immediate, got %v", plan.NotBefore)
		}
	})

	t.Run("attempt budget exhaustion drops floor", func(t *testing.T) {
		now := boughtAt.Add(5 * time.Minute)
		plan, again := p.Replan(boughtAt, 10, now)
		if again {
			t.Fatal("expected final plan after attempt budget")
		}
		if plan.MinProfitPct != nil {
			t.Error("final plan must sell at market")
		}
	})
}

func TestFromConfig(t *testing.T) {
	hold := int64(3600)
	target := 10.0

	tests := []struct {
		name    string
		cfg     Config
		wantErr error
		wantID  string
	}{
		{
			name:   "time exit",
			cfg:    Config{Type: TypeTimeExit, HoldSeconds: &hold},
			wantID: "TIME_EXIT_1h0m0s",
		},
		{
			name:   "profit target",
			cfg:    Config{Type: TypeProfitTarget, TargetProfitPct: &target},
			wantID: "PROFIT_TARGET_10_1h0m0s",
		},
		{
			name:    "unknown type",
			cfg:     Config{Type: "MOON_OR_BUST"},
			wantErr: ErrUnknownPolicyType,
		},
		{
			name:    "time exit missing hold",
			cfg:     Config{Type: TypeTimeExit},
			wantErr: ErrMissingHoldSeconds,
		},
		{
			name:    "profit target missing target",
			cfg:     Config{Type: TypeProfitTarget},
			wantErr: ErrMissingTargetProfit,
		},
		{
			name:    "negative retry interval",
			cfg:     Config{Type: TypeProfitTarget, TargetProfitPct: &target, RetryIntervalSeconds: -1},
			wantErr: ErrInvalidRetryInterval,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy, err := FromConfig(tt.cfg)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("got error %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("FromConfig: %v", err)
			}
			if policy.ID() != tt.wantID {
				t.Errorf("got ID %q, want %q", policy.ID(), tt.wantID)
			}
		})
	}
}
