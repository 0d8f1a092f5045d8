package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"solana-migration-sniper/internal/domain"
)

// FeedConfig configures the new-token stream.
type FeedConfig struct {
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
}

// DefaultFeedConfig returns default stream configuration.
func DefaultFeedConfig() FeedConfig {
	return FeedConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// FeedEvent is one token announcement from the stream, tagged with the
// platform the feed belongs to.
type FeedEvent struct {
	Platform domain.Platform
	Token    NewToken
}

// TokenFeed streams new-token announcements over a websocket, reconnecting
// with exponential backoff. Discovery treats it as a push complement to the
// polling catalog: missing an announcement is harmless, the next catalog
// sweep picks the token up.
type TokenFeed struct {
	endpoint string
	platform domain.Platform
	config   FeedConfig
	log      zerolog.Logger

	out  chan FeedEvent
	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// NewTokenFeed creates a stream for one platform endpoint.
func NewTokenFeed(endpoint string, platform domain.Platform, config FeedConfig, logger zerolog.Logger) *TokenFeed {
	return &TokenFeed{
		endpoint: endpoint,
		platform: platform,
		config:   config,
		log:      logger.With().Str("venue", string(platform)).Str("component", "token_feed").Logger(),
		out:      make(chan FeedEvent, 64),
		done:     make(chan struct{}),
	}
}

// Events returns the announcement channel. Closed after Stop.
func (f *TokenFeed) Events() <-chan FeedEvent { return f.out }

// Start connects and begins streaming until Stop or context cancellation.
func (f *TokenFeed) Start(ctx context.Context) {
	f.wg.Add(1)
	go f.run(ctx)
}

// Stop terminates the stream and closes the event channel.
func (f *TokenFeed) Stop() {
	f.once.Do(func() { close(f.done) })
	f.wg.Wait()
}

func (f *TokenFeed) run(ctx context.Context) {
	defer f.wg.Done()
	defer close(f.out)

	delay := f.config.ReconnectDelay
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.done:
			return
		default:
		}

		err := f.stream(ctx)
		if err == nil {
			return
		}

		f.log.Warn().Err(err).Dur("retry_in", delay).Msg("stream interrupted")

		select {
		case <-ctx.Done():
			return
		case <-f.done:
			return
		case <-time.After(delay):
		}

		delay *= 2
		if delay > f.config.MaxReconnectDelay {
			delay = f.config.MaxReconnectDelay
		}
	}
}

type feedMessage struct {
	Mint   string `json:"mint"`
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
}

// stream runs one connection lifetime. A nil return means shutdown.
func (f *TokenFeed) stream(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	defer conn.Close()

	// Close the connection when shutdown is requested so the blocked read
	// below returns.
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-f.done:
		case <-stop:
		}
		conn.Close()
	}()
	defer close(stop)

	conn.SetWriteDeadline(time.Now().Add(f.config.WriteTimeout))
	sub := map[string]string{"method": "subscribeNewToken"}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	f.log.Info().Str("endpoint", f.endpoint).Msg("stream connected")

	for {
		conn.SetReadDeadline(time.Now().Add(f.config.ReadTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-f.done:
				return nil
			default:
				return fmt.Errorf("read message: %w", err)
			}
		}

		var msg feedMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			f.log.Debug().Err(err).Msg("skip malformed message")
			continue
		}
		if msg.Mint == "" {
			continue
		}

		event := FeedEvent{
			Platform: f.platform,
			Token:    NewToken{Address: msg.Mint, Name: msg.Name, Symbol: msg.Symbol},
		}

		select {
		case f.out <- event:
		default:
			// Drop on backpressure; the catalog sweep is the safety net.
			f.log.Debug().Str("mint", msg.Mint).Msg("feed buffer full, dropping")
		}
	}
}
