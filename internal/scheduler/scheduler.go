// Package scheduler executes the trading side: fanning a threshold event
// out into one buy per active user, arming the durable sell for every
// fill, and disposing of positions when their actions fire.
//
// All mutual exclusion is conditional storage updates. The scheduler never
// holds locks across a venue call; a concurrent worker that loses a CAS
// simply observes that the intent already happened and moves on.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"solana-migration-sniper/internal/audit"
	"solana-migration-sniper/internal/domain"
	"solana-migration-sniper/internal/exitpolicy"
	"solana-migration-sniper/internal/notify"
	"solana-migration-sniper/internal/observability"
	"solana-migration-sniper/internal/storage"
	"solana-migration-sniper/internal/timer"
	"solana-migration-sniper/internal/venue"
)

// DefaultBuyWorkers bounds the buy fan-out concurrency.
const DefaultBuyWorkers = 8

// Scheduler coordinates buys and sells around the position ledger.
type Scheduler struct {
	tokens    storage.TokenStore
	positions storage.PositionStore
	users     storage.UserStore
	venues    map[domain.Platform]venue.Adapter
	timer     *timer.Timer
	policy    exitpolicy.Policy
	notifier  notify.Notifier
	recorder  *audit.Recorder
	metrics   *observability.Metrics

	buyAmount decimal.Decimal
	workers   int
	log       zerolog.Logger
	now       func() time.Time
}

// Options for creating a Scheduler.
type Options struct {
	Tokens    storage.TokenStore
	Positions storage.PositionStore
	Users     storage.UserStore
	Venues    []venue.Adapter
	Timer     *timer.Timer
	Policy    exitpolicy.Policy
	Notifier  notify.Notifier
	Recorder  *audit.Recorder
	Metrics   *observability.Metrics

	// BuyAmountSOL is spent per user per buy.
	BuyAmountSOL decimal.Decimal

	// BuyWorkers bounds fan-out concurrency. Defaults to DefaultBuyWorkers.
	BuyWorkers int

	Logger zerolog.Logger
}

// New creates a Scheduler.
func New(opts Options) *Scheduler {
	workers := opts.BuyWorkers
	if workers <= 0 {
		workers = DefaultBuyWorkers
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.Noop{}
	}

	venues := make(map[domain.Platform]venue.Adapter, len(opts.Venues))
	for _, v := range opts.Venues {
		venues[v.Platform()] = v
	}

	return &Scheduler{
		tokens:    opts.Tokens,
		positions: opts.Positions,
		users:     opts.Users,
		venues:    venues,
		timer:     opts.Timer,
		policy:    opts.Policy,
		notifier:  notifier,
		recorder:  opts.Recorder,
		metrics:   opts.Metrics,
		buyAmount: opts.BuyAmountSOL,
		workers:   workers,
		log:       opts.Logger.With().Str("component", "scheduler").Logger(),
		now:       time.Now,
	}
}

// HandleThreshold fans one crossing out to every active user and then
// closes the token. Safe to invoke more than once for the same token: the
// position reservation dedupes per user, and the closing CAS dedupes the
// token transition.
func (s *Scheduler) HandleThreshold(ctx context.Context, ev domain.ThresholdEvent) {
	adapter, ok := s.venues[ev.Platform]
	if !ok {
		s.log.Error().Str("token", ev.TokenAddress).Str("platform", string(ev.Platform)).
			Msg("no venue for platform")
		return
	}

	users, err := s.users.ListActive(ctx)
	if err != nil {
		s.log.Error().Err(err).Str("token", ev.TokenAddress).Msg("list active users")
		return
	}

	s.log.Info().Str("token", ev.TokenAddress).Int("users", len(users)).
		Float64("pct", ev.MigrationPercentage).Msg("dispatching buys")

	sem := make(chan struct{}, s.workers)
	var wg sync.WaitGroup
	for _, u := range users {
		wg.Add(1)
		sem <- struct{}{}
		go func(u *domain.UserAccount) {
			defer wg.Done()
			defer func() { <-sem }()
			s.buyForUser(ctx, adapter, u, ev.TokenAddress)
		}(u)
	}
	wg.Wait()

	// The token's job is done once the fan-out ran. Losing this CAS just
	// means a concurrent dispatch got there first.
	err = s.tokens.TransitionState(ctx, ev.TokenAddress,
		domain.LifecycleThresholdCrossed, domain.LifecycleClosed)
	if err != nil && !errors.Is(err, storage.ErrConflict) {
		s.log.Error().Err(err).Str("token", ev.TokenAddress).Msg("close token")
	}
}

// buyForUser runs one user's buy attempt end to end.
func (s *Scheduler) buyForUser(ctx context.Context, adapter venue.Adapter, u *domain.UserAccount, token string) {
	pos := &domain.PositionRecord{UserID: u.UserID, TokenAddress: token}
	err := s.positions.Reserve(ctx, pos)
	if errors.Is(err, storage.ErrDuplicateKey) {
		// The user already holds an open cycle for this token; this
		// dispatch (or a previous one) got here first.
		s.log.Debug().Str("user_id", u.UserID).Str("token", token).
			Msg("active cycle exists, skip buy")
		return
	}
	if err != nil {
		s.log.Error().Err(err).Str("user_id", u.UserID).Str("token", token).
			Msg("reserve position")
		return
	}
	if s.metrics != nil {
		s.metrics.ReservedCycles.Inc()
	}
	key := pos.Key()

	started := s.now()
	result, err := adapter.ExecuteBuy(ctx, venue.BuyRequest{
		WalletRef:    u.WalletRef,
		TokenAddress: token,
		AmountSOL:    s.buyAmount,
	})
	s.observeVenue(adapter.Platform(), "buy", started)

	if err != nil {
		if ctx.Err() != nil {
			// Shutdown mid-flight: the buy may have been sent. Leave the
			// reservation PENDING for the stale-position review.
			return
		}
		s.log.Error().Err(err).Str("position", key.String()).Msg("buy request failed")
		s.failPosition(ctx, key, domain.PositionPending)
		return
	}

	if s.metrics != nil {
		s.metrics.BuyOutcomes.WithLabelValues(string(result.Outcome)).Inc()
	}

	switch result.Outcome {
	case venue.OutcomeSuccess:
		s.settleBuy(ctx, u, key, *result.Fill)

	case venue.OutcomeRejected:
		s.log.Info().Str("position", key.String()).Str("reason", result.Reason).
			Msg("buy rejected")
		s.failPosition(ctx, key, domain.PositionPending)
		s.recorder.RecordBuy(ctx, key, string(venue.OutcomeRejected), nil)
		s.notifier.NotifyFailed(ctx, u, token, result.Reason)

	case venue.OutcomeUnavailable:
		// Indeterminate: the buy may have landed, so the cycle must not
		// be failed (a FAILED cycle would allow a second buy). It stays
		// PENDING until an operator resolves it.
		s.log.Warn().Str("position", key.String()).Str("reason", result.Reason).
			Msg("buy indeterminate, position held pending")
	}
}

// settleBuy records the fill and arms the sell.
func (s *Scheduler) settleBuy(ctx context.Context, u *domain.UserAccount, key domain.PositionKey, fill domain.Fill) {
	err := s.positions.MarkBought(ctx, key, fill)
	if errors.Is(err, storage.ErrConflict) {
		// Another worker recorded this buy already.
		return
	}
	if err != nil {
		s.log.Error().Err(err).Str("position", key.String()).Msg("mark bought")
		return
	}

	s.recorder.RecordBuy(ctx, key, string(venue.OutcomeSuccess), &fill)
	s.notifier.NotifyBought(ctx, u, key.TokenAddress, fill)

	plan := s.policy.Plan(fill.ExecutedAt)
	if err := s.armSell(ctx, key, plan, 0); err != nil {
		// The position stays BOUGHT; the reconcile scan arms the sell on
		// its next pass.
		s.log.Error().Err(err).Str("position", key.String()).Msg("arm sell")
		return
	}

	if err := s.positions.MarkSellScheduled(ctx, key); err != nil && !errors.Is(err, storage.ErrConflict) {
		s.log.Error().Err(err).Str("position", key.String()).Msg("mark sell scheduled")
	}
}

// armSell persists the durable sell action for a position.
func (s *Scheduler) armSell(ctx context.Context, key domain.PositionKey, plan exitpolicy.Plan, attempts int) error {
	return s.timer.Arm(ctx, &domain.ScheduledAction{
		Kind:         domain.ActionSell,
		Target:       key,
		NotBefore:    plan.NotBefore,
		MinProfitPct: plan.MinProfitPct,
		Attempts:     attempts,
	})
}

// HandleAction is the timer handler: it executes the sell a fired action
// stands for.
func (s *Scheduler) HandleAction(ctx context.Context, a *domain.ScheduledAction) {
	if a.Kind != domain.ActionSell {
		s.log.Error().Str("action_id", a.ActionID).Str("kind", string(a.Kind)).
			Msg("unknown action kind")
		return
	}
	s.executeSell(ctx, a)
}

func (s *Scheduler) executeSell(ctx context.Context, a *domain.ScheduledAction) {
	key := a.Target

	pos, err := s.positions.Get(ctx, key)
	if err != nil {
		s.log.Error().Err(err).Str("position", key.String()).Msg("load position for sell")
		return
	}
	if pos.State.Terminal() {
		// Nothing left to do; a parallel path resolved the cycle.
		s.resolveAction(ctx, a.ActionID)
		return
	}
	if pos.State != domain.PositionSellScheduled {
		s.log.Warn().Str("position", key.String()).Str("state", string(pos.State)).
			Msg("sell fired for position not scheduled")
		s.resolveAction(ctx, a.ActionID)
		return
	}

	u, err := s.users.GetByID(ctx, key.UserID)
	if err != nil {
		s.log.Error().Err(err).Str("position", key.String()).Msg("load user for sell")
		return
	}

	token, err := s.tokens.GetByAddress(ctx, key.TokenAddress)
	if err != nil {
		s.log.Error().Err(err).Str("position", key.String()).Msg("load token for sell")
		return
	}
	adapter, ok := s.venues[token.Platform]
	if !ok {
		s.log.Error().Str("position", key.String()).Str("platform", string(token.Platform)).
			Msg("no venue for platform")
		return
	}

	started := s.now()
	result, err := adapter.ExecuteSell(ctx, venue.SellRequest{
		WalletRef:     u.WalletRef,
		TokenAddress:  key.TokenAddress,
		TokenAmount:   pos.TokenAmount,
		PurchasePrice: pos.PurchasePrice,
		MinProfitPct:  a.MinProfitPct,
	})
	s.observeVenue(adapter.Platform(), "sell", started)
	if err != nil {
		s.log.Error().Err(err).Str("position", key.String()).Msg("sell request failed")
		return
	}

	if s.metrics != nil {
		s.metrics.SellOutcomes.WithLabelValues(string(result.Outcome)).Inc()
	}

	switch result.Outcome {
	case venue.OutcomeSuccess:
		s.settleSell(ctx, u, pos, *result.Fill)
		s.resolveAction(ctx, a.ActionID)

	case venue.OutcomeRejected:
		s.replanSell(ctx, pos, a, result.Reason)

	case venue.OutcomeUnavailable:
		// The action stays FIRED; the reconcile scan re-arms it once the
		// grace period passes.
		s.log.Warn().Str("position", key.String()).Str("reason", result.Reason).
			Msg("sell indeterminate")
	}
}

// resolveAction settles a fired action, tolerating CAS losses.
func (s *Scheduler) resolveAction(ctx context.Context, actionID string) {
	err := s.timer.Resolve(ctx, actionID)
	if err != nil && !errors.Is(err, storage.ErrConflict) && !errors.Is(err, storage.ErrNotFound) {
		s.log.Error().Err(err).Str("action_id", actionID).Msg("resolve action")
	}
}

// settleSell records the exit fill and closes the cycle.
func (s *Scheduler) settleSell(ctx context.Context, u *domain.UserAccount, pos *domain.PositionRecord, fill domain.Fill) {
	key := pos.Key()
	profit := domain.ProfitPercent(pos.PurchasePrice, fill.Price)

	err := s.positions.MarkSold(ctx, key, storage.SellFill{
		SellPrice: fill.Price,
		ProfitPct: profit,
	})
	if errors.Is(err, storage.ErrConflict) {
		return
	}
	if err != nil {
		s.log.Error().Err(err).Str("position", key.String()).Msg("mark sold")
		return
	}

	s.log.Info().Str("position", key.String()).Str("profit_pct", profit.Round(2).String()).
		Str("signature", fill.Signature).Msg("position sold")
	s.recorder.RecordSell(ctx, key, string(venue.OutcomeSuccess), &fill, &profit)
	s.notifier.NotifySold(ctx, u, key.TokenAddress, fill, profit)
}

// replanSell asks the exit policy for the follow-up after a refusal.
func (s *Scheduler) replanSell(ctx context.Context, pos *domain.PositionRecord, a *domain.ScheduledAction, reason string) {
	key := pos.Key()
	s.recorder.RecordSell(ctx, key, string(venue.OutcomeRejected), nil, nil)

	// The cycle's creation time stands in for the buy time; the two are
	// at most one venue round-trip apart.
	plan, again := s.policy.Replan(pos.CreatedAt, a.Attempts, s.now().UTC())
	if !again && a.MinProfitPct == nil {
		// The venue refused an unconditioned market sell and the policy
		// is out of budget. Stop re-arming; the position stays
		// SELL_SCHEDULED and surfaces through the stale-position review.
		s.log.Error().Str("position", key.String()).Str("reason", reason).
			Int("attempts", a.Attempts).Msg("sell exhausted, manual review required")
		s.resolveAction(ctx, a.ActionID)
		return
	}
	if err := s.armSell(ctx, key, plan, a.Attempts); err != nil {
		// The action stays FIRED; the redrive scan arms the follow-up.
		s.log.Error().Err(err).Str("position", key.String()).Msg("re-arm sell")
		return
	}
	s.resolveAction(ctx, a.ActionID)

	if s.metrics != nil {
		s.metrics.SellReplans.Inc()
	}
	s.log.Info().Str("position", key.String()).Str("reason", reason).
		Time("not_before", plan.NotBefore).Bool("floor_kept", plan.MinProfitPct != nil).
		Msg("sell replanned")
}

// failPosition marks the cycle FAILED, tolerating CAS losses.
func (s *Scheduler) failPosition(ctx context.Context, key domain.PositionKey, from domain.PositionState) {
	err := s.positions.MarkFailed(ctx, key, from)
	if err != nil && !errors.Is(err, storage.ErrConflict) {
		s.log.Error().Err(err).Str("position", key.String()).Msg("mark failed")
	}
}

func (s *Scheduler) observeVenue(platform domain.Platform, side string, started time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.VenueLatency.WithLabelValues(string(platform), side).
		Observe(s.now().Sub(started).Seconds())
}
