// Package poller drives the discovery and migration-tracking side: finding
// new tokens, polling their migration percentage and turning the first
// threshold crossing into exactly one event per token.
package poller

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"solana-migration-sniper/internal/domain"
	"solana-migration-sniper/internal/observability"
	"solana-migration-sniper/internal/solanaaddr"
	"solana-migration-sniper/internal/storage"
	"solana-migration-sniper/internal/venue"
)

// DefaultDiscoveryInterval is the catalog sweep period.
const DefaultDiscoveryInterval = 30 * time.Second

// Discovery enters new tokens into tracking. Two sources feed it: the
// periodic catalog sweep over each platform's listing endpoint and the
// push announcements from the websocket feeds. Both funnel through the
// same idempotent Upsert, so overlap between them is harmless.
type Discovery struct {
	tokens   storage.TokenStore
	adapters []venue.Adapter
	feeds    []*venue.TokenFeed
	interval time.Duration
	log      zerolog.Logger
	metrics  *observability.Metrics
}

// DiscoveryOptions for creating a Discovery.
type DiscoveryOptions struct {
	Tokens   storage.TokenStore
	Adapters []venue.Adapter
	Feeds    []*venue.TokenFeed
	Interval time.Duration
	Logger   zerolog.Logger
	Metrics  *observability.Metrics
}

// NewDiscovery creates a Discovery.
func NewDiscovery(opts DiscoveryOptions) *Discovery {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultDiscoveryInterval
	}

	return &Discovery{
		tokens:   opts.Tokens,
		adapters: opts.Adapters,
		feeds:    opts.Feeds,
		interval: interval,
		log:      opts.Logger.With().Str("component", "discovery").Logger(),
		metrics:  opts.Metrics,
	}
}

// Run starts the feeds, then sweeps catalogs and consumes feed
// announcements until the context is cancelled. Feeds are stopped on the
// way out.
func (d *Discovery) Run(ctx context.Context) error {
	for _, f := range d.feeds {
		f.Start(ctx)
	}
	defer func() {
		for _, f := range d.feeds {
			f.Stop()
		}
	}()

	events := d.mergeFeeds(ctx)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.log.Info().Dur("interval", d.interval).Int("feeds", len(d.feeds)).
		Int("platforms", len(d.adapters)).Msg("discovery started")
	d.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			d.log.Info().Msg("discovery stopping")
			return ctx.Err()

		case ev, ok := <-events:
			if !ok {
				events = nil // all feeds closed, keep sweeping
				continue
			}
			if d.metrics != nil {
				d.metrics.FeedEvents.WithLabelValues(string(ev.Platform)).Inc()
			}
			d.admit(ctx, ev.Platform, ev.Token)

		case <-ticker.C:
			d.sweep(ctx)
		}
	}
}

// mergeFeeds fans all feed channels into one.
func (d *Discovery) mergeFeeds(ctx context.Context) <-chan venue.FeedEvent {
	if len(d.feeds) == 0 {
		return nil
	}

	out := make(chan venue.FeedEvent)
	done := make(chan struct{}, len(d.feeds))
	for _, feed := range d.feeds {
		go func(f *venue.TokenFeed) {
			defer func() { done <- struct{}{} }()
			for ev := range f.Events() {
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}(feed)
	}

	go func() {
		for range d.feeds {
			<-done
		}
		close(out)
	}()

	return out
}

// sweep pulls each platform's catalog once.
func (d *Discovery) sweep(ctx context.Context) {
	for _, adapter := range d.adapters {
		if ctx.Err() != nil {
			return
		}

		tokens, err := adapter.ListNewTokens(ctx)
		if err != nil {
			d.log.Warn().Err(err).Str("platform", string(adapter.Platform())).
				Msg("catalog sweep failed")
			continue
		}

		for _, t := range tokens {
			d.admit(ctx, adapter.Platform(), t)
		}
	}
}

// admit validates and upserts one announcement. Existing tokens are left
// untouched regardless of which platform re-announced them.
func (d *Discovery) admit(ctx context.Context, platform domain.Platform, t venue.NewToken) {
	if err := solanaaddr.Validate(t.Address); err != nil {
		if d.metrics != nil {
			d.metrics.InvalidAddresses.Inc()
		}
		d.log.Debug().Err(err).Str("address", t.Address).Msg("drop invalid address")
		return
	}

	created, err := d.tokens.Upsert(ctx, &domain.TokenRecord{
		Address:        t.Address,
		Name:           t.Name,
		Symbol:         t.Symbol,
		Platform:       platform,
		LifecycleState: domain.LifecycleTracking,
		DiscoveredAt:   time.Now().UTC(),
	})
	if err != nil {
		d.log.Error().Err(err).Str("address", t.Address).Msg("upsert token")
		return
	}
	if !created {
		return
	}

	if d.metrics != nil {
		d.metrics.TokensDiscovered.WithLabelValues(string(platform)).Inc()
	}
	d.log.Info().Str("address", t.Address).Str("symbol", t.Symbol).
		Str("platform", string(platform)).Msg("token discovered")
}
