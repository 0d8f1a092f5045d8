// Package timer fires durable scheduled actions. The schedule lives in the
// action store, not in process memory: arming persists the action before
// returning, and firing is a periodic scan for due rows. A restart needs no
// recovery pass because the next scan picks up everything that came due
// while the process was down.
package timer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"solana-migration-sniper/internal/domain"
	"solana-migration-sniper/internal/observability"
	"solana-migration-sniper/internal/storage"
)

// DefaultScanInterval is the due-action scan period.
const DefaultScanInterval = 1 * time.Second

// Handler executes one fired action. Invoked only after the CAS to FIRED
// succeeded, so each action reaches a handler at most once.
type Handler func(ctx context.Context, action *domain.ScheduledAction)

// Timer owns the arm/fire/cancel lifecycle of scheduled actions.
type Timer struct {
	actions      storage.ActionStore
	handler      Handler
	scanInterval time.Duration
	log          zerolog.Logger
	metrics      *observability.Metrics
	now          func() time.Time
}

// Options for creating a Timer.
type Options struct {
	Actions      storage.ActionStore
	Handler      Handler
	ScanInterval time.Duration
	Logger       zerolog.Logger
	Metrics      *observability.Metrics
}

// New creates a Timer.
func New(opts Options) *Timer {
	interval := opts.ScanInterval
	if interval <= 0 {
		interval = DefaultScanInterval
	}

	return &Timer{
		actions:      opts.Actions,
		handler:      opts.Handler,
		scanInterval: interval,
		log:          opts.Logger.With().Str("component", "timer").Logger(),
		metrics:      opts.Metrics,
		now:          time.Now,
	}
}

// Arm persists the action. The action is durable once Arm returns: a crash
// right after still fires it on a later scan. Missing IDs and timestamps
// are filled in.
func (t *Timer) Arm(ctx context.Context, a *domain.ScheduledAction) error {
	if a.ActionID == "" {
		a.ActionID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = domain.ActionArmed
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = t.now().UTC()
	}

	if err := t.actions.Insert(ctx, a); err != nil {
		return fmt.Errorf("arm action %s: %w", a.ActionID, err)
	}

	if t.metrics != nil {
		t.metrics.ActionsArmed.Inc()
	}
	t.log.Debug().Str("action_id", a.ActionID).Str("kind", string(a.Kind)).
		Str("target", a.Target.String()).Time("not_before", a.NotBefore).
		Msg("action armed")
	return nil
}

// Resolve settles a fired action so the reconcile scan stops considering
// it. Returns ErrConflict unless the action is FIRED.
func (t *Timer) Resolve(ctx context.Context, actionID string) error {
	if err := t.actions.MarkResolved(ctx, actionID); err != nil {
		return err
	}
	if t.metrics != nil {
		t.metrics.ActionsResolved.Inc()
	}
	return nil
}

// Cancel withdraws an armed action. Returns ErrConflict once it has fired.
func (t *Timer) Cancel(ctx context.Context, actionID string) error {
	if err := t.actions.Cancel(ctx, actionID); err != nil {
		return err
	}
	if t.metrics != nil {
		t.metrics.ActionsCancelled.Inc()
	}
	return nil
}

// Run scans for due actions until the context is cancelled. The first scan
// happens immediately, which is what drains the backlog after a restart.
func (t *Timer) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.scanInterval)
	defer ticker.Stop()

	t.log.Info().Dur("scan_interval", t.scanInterval).Msg("timer started")
	t.scan(ctx)

	for {
		select {
		case <-ctx.Done():
			t.log.Info().Msg("timer stopping")
			return ctx.Err()
		case <-ticker.C:
			t.scan(ctx)
		}
	}
}

// scan fires every due action at most once via the ARMED → FIRED CAS.
func (t *Timer) scan(ctx context.Context) {
	due, err := t.actions.ListDue(ctx, t.now().UTC())
	if err != nil {
		t.log.Error().Err(err).Msg("list due actions")
		return
	}

	for _, a := range due {
		if ctx.Err() != nil {
			return
		}

		err := t.actions.MarkFired(ctx, a.ActionID, t.now().UTC())
		switch {
		case errors.Is(err, storage.ErrConflict):
			// Another worker fired it, or it was cancelled between the
			// scan and the CAS. Either way it is no longer ours.
			continue
		case errors.Is(err, storage.ErrNotFound):
			continue
		case err != nil:
			t.log.Error().Err(err).Str("action_id", a.ActionID).Msg("mark action fired")
			continue
		}

		if t.metrics != nil {
			t.metrics.ActionsFired.Inc()
		}
		a.Attempts++
		a.Status = domain.ActionFired

		t.log.Info().Str("action_id", a.ActionID).Str("kind", string(a.Kind)).
			Str("target", a.Target.String()).Int("attempts", a.Attempts).
			Msg("action fired")
		t.handler(ctx, a)
	}
}
