package venue

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"solana-migration-sniper/internal/domain"
)

func TestTokenFeed_ReceivesAnnouncements(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		// Expect the subscription message first.
		var sub map[string]string
		if err := conn.ReadJSON(&sub); err != nil {
			t.Errorf("read subscribe: %v", err)
			return
		}
		if sub["method"] != "subscribeNewToken" {
			t.Errorf("unexpected subscribe message %v", sub)
		}

		conn.WriteJSON(map[string]string{"mint": "MintA", "name": "Alpha", "symbol": "ALP"})
		conn.WriteJSON(map[string]string{"note": "not a token"})
		conn.WriteJSON(map[string]string{"mint": "MintB"})

		// Hold the connection open until the client disconnects.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	endpoint := "ws" + strings.TrimPrefix(srv.URL, "http")
	feed := NewTokenFeed(endpoint, domain.PlatformPumpFun, DefaultFeedConfig(), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	feed.Start(ctx)
	defer feed.Stop()

	var got []FeedEvent
	timeout := time.After(5 * time.Second)
	for len(got) < 2 {
		select {
		case ev := <-feed.Events():
			got = append(got, ev)
		case <-timeout:
			t.Fatalf("timed out with %d events", len(got))
		}
	}

	if got[0].Token.Address != "MintA" || got[0].Token.Symbol != "ALP" {
		t.Errorf("unexpected first event %+v", got[0])
	}
	if got[1].Token.Address != "MintB" {
		t.Errorf("unexpected second event %+v", got[1])
	}
	if got[0].Platform != domain.PlatformPumpFun {
		t.Errorf("unexpected platform %s", got[0].Platform)
	}
}

func TestTokenFeed_StopClosesChannel(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	endpoint := "ws" + strings.TrimPrefix(srv.URL, "http")
	feed := NewTokenFeed(endpoint, domain.PlatformRaydium, DefaultFeedConfig(), zerolog.Nop())
	feed.Start(context.Background())

	// Give the feed a moment to connect, then stop it.
	time.Sleep(100 * time.Millisecond)
	feed.Stop()

	select {
	case _, ok := <-feed.Events():
		if ok {
			t.Fatal("expected channel to be closed without events")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after Stop")
	}
}
