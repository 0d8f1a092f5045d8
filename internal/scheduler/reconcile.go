package scheduler

import (
	"context"
	"time"

	"solana-migration-sniper/internal/domain"
)

// Default reconcile configuration.
const (
	DefaultReconcileInterval = 1 * time.Minute

	// DefaultFiredGrace is how long a FIRED action may sit unresolved
	// before the scan re-arms its sell. Long enough for a slow venue call
	// to settle on its own.
	DefaultFiredGrace = 5 * time.Minute

	// DefaultStaleAfter is when a non-terminal position counts as stuck.
	DefaultStaleAfter = 10 * time.Minute
)

// ReconcileOptions configures the repair scan.
type ReconcileOptions struct {
	Interval   time.Duration
	FiredGrace time.Duration
	StaleAfter time.Duration
}

func (o *ReconcileOptions) withDefaults() ReconcileOptions {
	out := ReconcileOptions{
		Interval:   DefaultReconcileInterval,
		FiredGrace: DefaultFiredGrace,
		StaleAfter: DefaultStaleAfter,
	}
	if o == nil {
		return out
	}
	if o.Interval > 0 {
		out.Interval = o.Interval
	}
	if o.FiredGrace > 0 {
		out.FiredGrace = o.FiredGrace
	}
	if o.StaleAfter > 0 {
		out.StaleAfter = o.StaleAfter
	}
	return out
}

// RunReconcile repairs interrupted work until the context is cancelled.
// Three scans, all idempotent:
//
//  1. Tokens stuck in THRESHOLD_CROSSED are re-dispatched. The in-process
//     threshold event is just a fast path; this scan is the durable one.
//  2. FIRED actions whose position is still SELL_SCHEDULED past the grace
//     period get a fresh sell armed.
//  3. Stuck non-terminal positions are counted for the operator surface.
func (s *Scheduler) RunReconcile(ctx context.Context, opts *ReconcileOptions, actions ActionScanner) error {
	cfg := opts.withDefaults()

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	s.log.Info().Dur("interval", cfg.Interval).Msg("reconcile started")
	s.reconcile(ctx, cfg, actions)

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("reconcile stopping")
			return ctx.Err()
		case <-ticker.C:
			s.reconcile(ctx, cfg, actions)
		}
	}
}

// ActionScanner is the slice of the action store the reconciler reads.
type ActionScanner interface {
	ListFiredBefore(ctx context.Context, cutoff time.Time) ([]*domain.ScheduledAction, error)
	ListArmedByTarget(ctx context.Context, target domain.PositionKey) ([]*domain.ScheduledAction, error)
}

func (s *Scheduler) reconcile(ctx context.Context, cfg ReconcileOptions, actions ActionScanner) {
	started := s.now()
	s.redriveCrossedTokens(ctx)
	s.redriveFiredActions(ctx, cfg.FiredGrace, actions)
	s.armUnscheduledSells(ctx, cfg.FiredGrace)
	s.surveyStalePositions(ctx, cfg.StaleAfter)

	if s.metrics != nil {
		s.metrics.ReconcileDuration.Observe(s.now().Sub(started).Seconds())
	}
}

// redriveCrossedTokens re-dispatches crossings whose fan-out never closed
// the token, the restart path for threshold events.
func (s *Scheduler) redriveCrossedTokens(ctx context.Context) {
	crossed, err := s.tokens.ListByState(ctx, domain.LifecycleThresholdCrossed)
	if err != nil {
		s.log.Error().Err(err).Msg("list crossed tokens")
		return
	}

	for _, t := range crossed {
		if ctx.Err() != nil {
			return
		}
		if s.metrics != nil {
			s.metrics.RedrivenTokens.Inc()
		}
		s.log.Info().Str("token", t.Address).Msg("redrive crossed token")
		s.HandleThreshold(ctx, domain.ThresholdEvent{
			TokenAddress:        t.Address,
			Platform:            t.Platform,
			MigrationPercentage: t.MigrationPercentage,
			CrossedAt:           t.LastCheckedAt,
		})
	}
}

// redriveFiredActions re-arms sells whose firing never resolved the
// position (crash or Unavailable between FIRED and the terminal write).
// Each stuck firing is replaced at most once: the old action is marked
// RESOLVED as soon as a live successor exists, so repeated passes never
// stack up concurrent sells for one position.
func (s *Scheduler) redriveFiredActions(ctx context.Context, grace time.Duration, actions ActionScanner) {
	fired, err := actions.ListFiredBefore(ctx, s.now().UTC().Add(-grace))
	if err != nil {
		s.log.Error().Err(err).Msg("list fired actions")
		return
	}

	for _, a := range fired {
		if ctx.Err() != nil {
			return
		}

		pos, err := s.positions.Get(ctx, a.Target)
		if err != nil {
			s.log.Error().Err(err).Str("position", a.Target.String()).
				Msg("load position for redrive")
			continue
		}
		if pos.State != domain.PositionSellScheduled {
			// The sell resolved after all, or the position never reached
			// scheduling; settle the action so it is not scanned again.
			s.resolveAction(ctx, a.ActionID)
			continue
		}

		armed, err := actions.ListArmedByTarget(ctx, a.Target)
		if err != nil {
			s.log.Error().Err(err).Str("position", a.Target.String()).
				Msg("list armed actions for redrive")
			continue
		}
		if len(armed) > 0 {
			// A successor is already armed for this position. The stale
			// firing is settled; the successor settles itself when it
			// fires.
			s.resolveAction(ctx, a.ActionID)
			continue
		}

		plan, _ := s.policy.Replan(pos.CreatedAt, a.Attempts, s.now().UTC())
		if err := s.armSell(ctx, a.Target, plan, a.Attempts); err != nil {
			s.log.Error().Err(err).Str("position", a.Target.String()).Msg("redrive sell")
			continue
		}
		s.resolveAction(ctx, a.ActionID)
		if s.metrics != nil {
			s.metrics.RedrivenActions.Inc()
		}
		s.log.Info().Str("position", a.Target.String()).Int("attempts", a.Attempts).
			Msg("fired action redriven")
	}
}

// armUnscheduledSells finishes buys whose sell never got armed (crash
// between MarkBought and the action insert). UpdatedAt of a BOUGHT row is
// the buy settlement time, so the policy plans from it.
func (s *Scheduler) armUnscheduledSells(ctx context.Context, grace time.Duration) {
	bought, err := s.positions.ListStale(ctx, domain.PositionBought, s.now().UTC().Add(-grace))
	if err != nil {
		s.log.Error().Err(err).Msg("list stuck bought positions")
		return
	}

	for _, pos := range bought {
		if ctx.Err() != nil {
			return
		}

		key := pos.Key()
		plan := s.policy.Plan(pos.UpdatedAt)
		if err := s.armSell(ctx, key, plan, 0); err != nil {
			s.log.Error().Err(err).Str("position", key.String()).Msg("arm recovered sell")
			continue
		}
		if err := s.positions.MarkSellScheduled(ctx, key); err != nil {
			s.log.Error().Err(err).Str("position", key.String()).Msg("mark recovered sell scheduled")
			continue
		}
		s.log.Info().Str("position", key.String()).Msg("recovered unscheduled sell")
	}
}

// surveyStalePositions publishes stuck-position counts. PENDING entries in
// particular need an operator: the buy outcome is unknown, so no automatic
// path may touch them.
func (s *Scheduler) surveyStalePositions(ctx context.Context, staleAfter time.Duration) {
	if s.metrics == nil {
		return
	}

	cutoff := s.now().UTC().Add(-staleAfter)
	for _, state := range []domain.PositionState{
		domain.PositionPending,
		domain.PositionBought,
		domain.PositionSellScheduled,
	} {
		stale, err := s.positions.ListStale(ctx, state, cutoff)
		if err != nil {
			s.log.Error().Err(err).Str("state", string(state)).Msg("list stale positions")
			continue
		}
		s.metrics.StalePositions.WithLabelValues(string(state)).Set(float64(len(stale)))
	}
}
