package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"solana-migration-sniper/internal/domain"
	"solana-migration-sniper/internal/storage"
	"solana-migration-sniper/internal/storage/memory"
)

type testServer struct {
	users     *memory.UserStore
	tokens    *memory.TokenStore
	positions *memory.PositionStore
	router    http.Handler
}

func newTestServer() *testServer {
	ts := &testServer{
		users:     memory.NewUserStore(),
		tokens:    memory.NewTokenStore(),
		positions: memory.NewPositionStore(),
	}
	srv := NewServer(Options{
		Users:     ts.users,
		Tokens:    ts.tokens,
		Positions: ts.positions,
		Logger:    zerolog.Nop(),
	})
	ts.router = srv.Router()
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decodeData[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var resp struct {
		Data T `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v (%s)", err, w.Body.String())
	}
	return resp.Data
}

func TestCreateUser(t *testing.T) {
	ts := newTestServer()

	w := ts.do(t, http.MethodPost, "/api/users", map[string]any{
		"username":   "alice",
		"wallet_ref": "wallet-1",
		"language":   "uz",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	u := decodeData[userView](t, w)
	if u.UserID == "" {
		t.Error("expected generated user id")
	}
	if u.Active {
		t.Error("new accounts must start inactive")
	}

	// Missing wallet_ref is a 400.
	w = ts.do(t, http.MethodPost, "/api/users", map[string]any{"username": "bob"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}

	// Duplicate username is a 409.
	w = ts.do(t, http.MethodPost, "/api/users", map[string]any{
		"username": "alice", "wallet_ref": "wallet-2",
	})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", w.Code)
	}
}

func TestActivateUser(t *testing.T) {
	ts := newTestServer()
	ctx := context.Background()

	w := ts.do(t, http.MethodPost, "/api/users", map[string]any{
		"username": "alice", "wallet_ref": "wallet-1",
	})
	u := decodeData[userView](t, w)

	w = ts.do(t, http.MethodPost, "/api/users/"+u.UserID+"/activate", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	active, err := ts.users.ListActive(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 {
		t.Fatalf("expected 1 active user, got %d", len(active))
	}

	w = ts.do(t, http.MethodPost, "/api/users/"+u.UserID+"/deactivate", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	active, _ = ts.users.ListActive(ctx)
	if len(active) != 0 {
		t.Errorf("expected 0 active users, got %d", len(active))
	}

	w = ts.do(t, http.MethodPost, "/api/users/nope/activate", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestListTokens(t *testing.T) {
	ts := newTestServer()
	ctx := context.Background()

	for _, addr := range []string{"Mint1", "Mint2"} {
		if _, err := ts.tokens.Upsert(ctx, &domain.TokenRecord{
			Address:      addr,
			Platform:     domain.PlatformPumpFun,
			DiscoveredAt: time.Now().UTC(),
		}); err != nil {
			t.Fatal(err)
		}
	}
	if err := ts.tokens.TransitionState(ctx, "Mint2",
		domain.LifecycleTracking, domain.LifecycleThresholdCrossed); err != nil {
		t.Fatal(err)
	}

	w := ts.do(t, http.MethodGet, "/api/tokens", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	tracking := decodeData[[]tokenView](t, w)
	if len(tracking) != 1 || tracking[0].Address != "Mint1" {
		t.Errorf("expected only Mint1 tracking, got %+v", tracking)
	}

	w = ts.do(t, http.MethodGet, "/api/tokens?state=THRESHOLD_CROSSED", nil)
	crossed := decodeData[[]tokenView](t, w)
	if len(crossed) != 1 || crossed[0].Address != "Mint2" {
		t.Errorf("expected only Mint2 crossed, got %+v", crossed)
	}

	w = ts.do(t, http.MethodGet, "/api/tokens?state=BOGUS", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad state, got %d", w.Code)
	}
}

func seedPosition(t *testing.T, ts *testServer, userID, token string, terminal bool) {
	t.Helper()
	ctx := context.Background()

	pos := &domain.PositionRecord{UserID: userID, TokenAddress: token}
	if err := ts.positions.Reserve(ctx, pos); err != nil {
		t.Fatal(err)
	}
	if !terminal {
		return
	}
	key := pos.Key()
	if err := ts.positions.MarkBought(ctx, key, domain.Fill{
		Price:       decimal.RequireFromString("0.0001"),
		TokenAmount: decimal.RequireFromString("500"),
		SOLAmount:   decimal.RequireFromString("0.05"),
		Signature:   "sig",
		ExecutedAt:  time.Now().UTC(),
	}); err != nil {
		t.Fatal(err)
	}
	if err := ts.positions.MarkSellScheduled(ctx, key); err != nil {
		t.Fatal(err)
	}
	if err := ts.positions.MarkSold(ctx, key, storage.SellFill{
		SellPrice: decimal.RequireFromString("0.00012"),
		ProfitPct: decimal.NewFromInt(20),
	}); err != nil {
		t.Fatal(err)
	}
}

func TestUserStats(t *testing.T) {
	ts := newTestServer()

	seedPosition(t, ts, "u1", "Mint1", true)
	seedPosition(t, ts, "u1", "Mint2", false)

	w := ts.do(t, http.MethodGet, "/api/users/u1/stats", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	stats := decodeData[userStatsView](t, w)
	if stats.Total != 2 || stats.Sold != 1 || stats.Open != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if stats.Profitable != 1 || stats.TotalProfitPct != "20" {
		t.Errorf("unexpected profit stats %+v", stats)
	}
}

func TestListStalePositions(t *testing.T) {
	ts := newTestServer()

	seedPosition(t, ts, "u1", "Mint1", false)

	// Fresh PENDING is not stale yet.
	w := ts.do(t, http.MethodGet, "/api/positions/stale", nil)
	if got := decodeData[[]positionView](t, w); len(got) != 0 {
		t.Errorf("expected no stale positions, got %d", len(got))
	}

	// With a zero-minute cutoff everything non-terminal qualifies.
	time.Sleep(5 * time.Millisecond)
	w = ts.do(t, http.MethodGet, "/api/positions/stale?minutes=0", nil)
	got := decodeData[[]positionView](t, w)
	if len(got) != 1 || got[0].State != string(domain.PositionPending) {
		t.Errorf("expected one stale PENDING, got %+v", got)
	}
}
