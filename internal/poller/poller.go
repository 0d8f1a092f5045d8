package poller

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"solana-migration-sniper/internal/domain"
	"solana-migration-sniper/internal/observability"
	"solana-migration-sniper/internal/storage"
	"solana-migration-sniper/internal/venue"
)

// Default polling configuration.
const (
	DefaultPollInterval = 5 * time.Second
	DefaultCheckTimeout = 4 * time.Second
	DefaultBuyThreshold = 98.0
)

// ThresholdSink receives threshold events. The crossing is already durable
// (the token is in THRESHOLD_CROSSED state) when the sink is invoked, so a
// sink that drops the event only delays dispatch until the reconcile scan.
type ThresholdSink func(ctx context.Context, ev domain.ThresholdEvent)

// Poller checks every TRACKING token against its platform and performs the
// TRACKING → THRESHOLD_CROSSED transition the first time the migration
// percentage meets the threshold. The CAS on the lifecycle state is what
// makes the event exactly-once: concurrent pollers can race freely and all
// losers land on ErrConflict.
type Poller struct {
	tokens       storage.TokenStore
	adapters     map[domain.Platform]venue.Adapter
	threshold    float64
	interval     time.Duration
	checkTimeout time.Duration
	sink         ThresholdSink
	log          zerolog.Logger
	metrics      *observability.Metrics
	now          func() time.Time
}

// PollerOptions for creating a Poller.
type PollerOptions struct {
	Tokens       storage.TokenStore
	Adapters     []venue.Adapter
	Threshold    float64
	Interval     time.Duration
	CheckTimeout time.Duration
	Sink         ThresholdSink
	Logger       zerolog.Logger
	Metrics      *observability.Metrics
}

// NewPoller creates a Poller.
func NewPoller(opts PollerOptions) *Poller {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	checkTimeout := opts.CheckTimeout
	if checkTimeout <= 0 {
		checkTimeout = DefaultCheckTimeout
	}
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = DefaultBuyThreshold
	}

	adapters := make(map[domain.Platform]venue.Adapter, len(opts.Adapters))
	for _, a := range opts.Adapters {
		adapters[a.Platform()] = a
	}

	return &Poller{
		tokens:       opts.Tokens,
		adapters:     adapters,
		threshold:    threshold,
		interval:     interval,
		checkTimeout: checkTimeout,
		sink:         opts.Sink,
		log:          opts.Logger.With().Str("component", "poller").Logger(),
		metrics:      opts.Metrics,
		now:          time.Now,
	}
}

// Run polls until the context is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.log.Info().Dur("interval", p.interval).Float64("threshold", p.threshold).
		Msg("poller started")
	p.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			p.log.Info().Msg("poller stopping")
			return ctx.Err()
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

// poll sweeps all TRACKING tokens once. Errors are isolated per token: one
// platform having a bad day never stalls the rest of the sweep.
func (p *Poller) poll(ctx context.Context) {
	tracking, err := p.tokens.ListByState(ctx, domain.LifecycleTracking)
	if err != nil {
		p.log.Error().Err(err).Msg("list tracking tokens")
		return
	}

	if p.metrics != nil {
		p.metrics.TrackedTokens.Set(float64(len(tracking)))
	}

	for _, t := range tracking {
		if ctx.Err() != nil {
			return
		}
		p.check(ctx, t)
	}
}

// check polls one token and handles a crossing.
func (p *Poller) check(ctx context.Context, t *domain.TokenRecord) {
	adapter, ok := p.adapters[t.Platform]
	if !ok {
		p.log.Warn().Str("address", t.Address).Str("platform", string(t.Platform)).
			Msg("no adapter for platform")
		return
	}

	checkCtx, cancel := context.WithTimeout(ctx, p.checkTimeout)
	pct, err := adapter.MigrationStatus(checkCtx, t.Address)
	cancel()

	if p.metrics != nil {
		p.metrics.MigrationChecks.WithLabelValues(string(t.Platform)).Inc()
	}
	if err != nil {
		if p.metrics != nil {
			p.metrics.MigrationCheckError.WithLabelValues(string(t.Platform)).Inc()
		}
		p.log.Warn().Err(err).Str("address", t.Address).Msg("migration check failed")
		return
	}

	checkedAt := p.now().UTC()
	if err := p.tokens.UpdateMigration(ctx, t.Address, pct, checkedAt); err != nil {
		p.log.Error().Err(err).Str("address", t.Address).Msg("update migration")
		return
	}

	if pct < p.threshold {
		return
	}

	// First crossing wins the CAS; every later (or concurrent) observer
	// lands here with ErrConflict and stays silent.
	err = p.tokens.TransitionState(ctx, t.Address, domain.LifecycleTracking, domain.LifecycleThresholdCrossed)
	if errors.Is(err, storage.ErrConflict) {
		return
	}
	if err != nil {
		p.log.Error().Err(err).Str("address", t.Address).Msg("transition to threshold crossed")
		return
	}

	if p.metrics != nil {
		p.metrics.ThresholdCrossings.Inc()
	}
	p.log.Info().Str("address", t.Address).Float64("pct", pct).
		Str("platform", string(t.Platform)).Msg("threshold crossed")

	if p.sink != nil {
		p.sink(ctx, domain.ThresholdEvent{
			TokenAddress:        t.Address,
			Platform:            t.Platform,
			MigrationPercentage: pct,
			CrossedAt:           checkedAt,
		})
	}
}
