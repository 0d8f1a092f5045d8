// Package main runs the migration sniper: token discovery and migration
// polling, the buy fan-out on threshold crossings, the durable sell timer,
// the repair scan, and the admin/metrics HTTP surfaces.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"solana-migration-sniper/internal/audit"
	"solana-migration-sniper/internal/config"
	"solana-migration-sniper/internal/custody"
	"solana-migration-sniper/internal/domain"
	"solana-migration-sniper/internal/exitpolicy"
	"solana-migration-sniper/internal/notify"
	"solana-migration-sniper/internal/observability"
	"solana-migration-sniper/internal/poller"
	"solana-migration-sniper/internal/scheduler"
	"solana-migration-sniper/internal/storage"
	chstore "solana-migration-sniper/internal/storage/clickhouse"
	"solana-migration-sniper/internal/storage/memory"
	"solana-migration-sniper/internal/storage/migrations"
	pgstore "solana-migration-sniper/internal/storage/postgres"
	"solana-migration-sniper/internal/timer"
	"solana-migration-sniper/internal/venue"
	"solana-migration-sniper/internal/venue/stub"
	"solana-migration-sniper/internal/web"
)

type stores struct {
	tokens    storage.TokenStore
	positions storage.PositionStore
	users     storage.UserStore
	actions   storage.ActionStore

	// actionScanner is the reconciler's read slice of the action store.
	actionScanner scheduler.ActionScanner
}

func main() {
	configPath := flag.String("config", "config.yaml", "Path to YAML configuration")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log := setupLogger(cfg.General)
	log.Info().Str("environment", cfg.General.Environment).
		Str("backend", cfg.Storage.Backend).Msg("migration sniper starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx, cancel, cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("sniper terminated")
	}
	log.Info().Msg("shutdown complete")
}

func setupLogger(cfg config.GeneralConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var log zerolog.Logger
	if cfg.LogFormat == "console" {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		log = zerolog.New(os.Stderr)
	}
	return log.Level(level).With().Timestamp().Logger()
}

func run(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, log zerolog.Logger) error {
	st, cleanup, err := createStores(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("create stores: %w", err)
	}
	defer cleanup()

	metrics := observability.NewMetrics("")

	recorder, closeAudit, err := createRecorder(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("create audit recorder: %w", err)
	}
	defer closeAudit()

	notifier, err := createNotifier(cfg, log)
	if err != nil {
		return fmt.Errorf("create notifier: %w", err)
	}

	signer, err := createSigner(cfg)
	if err != nil {
		return fmt.Errorf("create signer: %w", err)
	}

	adapters, feeds := createVenues(cfg, signer, log)

	policy, err := exitpolicy.FromConfig(cfg.Exit)
	if err != nil {
		return fmt.Errorf("exit policy: %w", err)
	}
	log.Info().Str("policy", policy.ID()).Msg("exit policy configured")

	// The timer and scheduler reference each other: the scheduler arms
	// actions through the timer, the timer hands fired actions back. The
	// handler closure breaks the construction cycle; Run starts later.
	var sched *scheduler.Scheduler
	tm := timer.New(timer.Options{
		Actions: st.actions,
		Handler: func(ctx context.Context, a *domain.ScheduledAction) {
			sched.HandleAction(ctx, a)
		},
		Logger:  log,
		Metrics: metrics,
	})

	sched = scheduler.New(scheduler.Options{
		Tokens:       st.tokens,
		Positions:    st.positions,
		Users:        st.users,
		Venues:       adapters,
		Timer:        tm,
		Policy:       policy,
		Notifier:     notifier,
		Recorder:     recorder,
		Metrics:      metrics,
		BuyAmountSOL: cfg.BuyAmount(),
		BuyWorkers:   cfg.Scheduler.BuyWorkers,
		Logger:       log,
	})

	disc := poller.NewDiscovery(poller.DiscoveryOptions{
		Tokens:   st.tokens,
		Adapters: adapters,
		Feeds:    feeds,
		Interval: time.Duration(cfg.Discovery.SweepIntervalSeconds) * time.Second,
		Logger:   log,
		Metrics:  metrics,
	})

	pol := poller.NewPoller(poller.PollerOptions{
		Tokens:       st.tokens,
		Adapters:     adapters,
		Threshold:    cfg.Poller.ThresholdPct,
		Interval:     time.Duration(cfg.Poller.IntervalSeconds) * time.Second,
		CheckTimeout: time.Duration(cfg.Poller.CheckTimeoutSeconds) * time.Second,
		Sink:         sched.HandleThreshold,
		Logger:       log,
		Metrics:      metrics,
	})

	reconcileOpts := &scheduler.ReconcileOptions{
		Interval:   time.Duration(cfg.Reconcile.IntervalSeconds) * time.Second,
		FiredGrace: time.Duration(cfg.Reconcile.FiredGraceSeconds) * time.Second,
		StaleAfter: time.Duration(cfg.Reconcile.StaleAfterSeconds) * time.Second,
	}

	// Shutdown on SIGINT/SIGTERM; a second signal forces exit.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()
		select {
		case <-sigCh:
			log.Warn().Msg("second signal, forcing exit")
			os.Exit(1)
		case <-time.After(30 * time.Second):
			log.Warn().Msg("graceful shutdown timed out, forcing exit")
			os.Exit(1)
		case <-ctx.Done():
		}
	}()

	errCh := make(chan error, 6)
	spawn := func(name string, fn func(context.Context) error) {
		go func() {
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("%s: %w", name, err)
			}
		}()
	}

	spawn("discovery", disc.Run)
	spawn("poller", pol.Run)
	spawn("timer", tm.Run)
	spawn("reconcile", func(ctx context.Context) error {
		return sched.RunReconcile(ctx, reconcileOpts, st.actionScanner)
	})

	if cfg.Metrics.Enabled {
		spawn("metrics", func(ctx context.Context) error {
			return serveMetrics(ctx, cfg.Metrics.Addr, log)
		})
	}
	if cfg.Admin.Enabled {
		admin := web.NewServer(web.Options{
			Users:     st.users,
			Tokens:    st.tokens,
			Positions: st.positions,
			Logger:    log,
		})
		spawn("admin", func(ctx context.Context) error {
			return admin.Run(ctx, cfg.Admin.Addr)
		})
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		cancel()
		return err
	}
}

func createStores(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*stores, func(), error) {
	if cfg.Storage.Backend == "memory" {
		log.Warn().Msg("memory backend: all state is lost on restart")
		actions := memory.NewActionStore()
		return &stores{
			tokens:        memory.NewTokenStore(),
			positions:     memory.NewPositionStore(),
			users:         memory.NewUserStore(),
			actions:       actions,
			actionScanner: actions,
		}, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, cfg.Storage.Postgres.DSN, cfg.Storage.Postgres.MaxConns)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}

	actions := pgstore.NewActionStore(pool)
	return &stores{
		tokens:        pgstore.NewTokenStore(pool),
		positions:     pgstore.NewPositionStore(pool),
		users:         pgstore.NewUserStore(pool),
		actions:       actions,
		actionScanner: actions,
	}, pool.Close, nil
}

// createRecorder wires the ClickHouse audit trail when enabled. The
// recorder tolerates a nil store, so a disabled trail costs nothing.
func createRecorder(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*audit.Recorder, func(), error) {
	if !cfg.ClickHouse.Enabled {
		return audit.NewRecorder(nil, log), func() {}, nil
	}

	conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouse.DSN)
	if err != nil {
		return nil, nil, err
	}
	recorder := audit.NewRecorder(chstore.NewTradeEventStore(conn), log)
	return recorder, func() { conn.Close() }, nil
}

func createNotifier(cfg *config.Config, log zerolog.Logger) (notify.Notifier, error) {
	if !cfg.Telegram.Enabled {
		return notify.Noop{}, nil
	}
	return notify.NewTelegramNotifier(cfg.Telegram.BotToken, log)
}

func createSigner(cfg *config.Config) (custody.Signer, error) {
	switch cfg.Custody.Mode {
	case "keyring":
		return custody.NewKeyringSigner(cfg.Custody.RPCURL, cfg.Custody.Wallets)
	default:
		return custody.SimulatedSigner{}, nil
	}
}

// createVenues builds an adapter per enabled platform, plus its websocket
// feed when one is configured. A venue without a base URL in development
// mode falls back to the stub.
func createVenues(cfg *config.Config, signer custody.Signer, log zerolog.Logger) ([]venue.Adapter, []*venue.TokenFeed) {
	type platformVenue struct {
		cfg      config.VenueConfig
		platform domain.Platform
		build    func(string, custody.Signer, zerolog.Logger, ...venue.APIOption) *venue.RESTAdapter
	}
	platforms := []platformVenue{
		{cfg.Venues.PumpFun, domain.PlatformPumpFun, venue.NewPumpFun},
		{cfg.Venues.Raydium, domain.PlatformRaydium, venue.NewRaydium},
	}

	var adapters []venue.Adapter
	var feeds []*venue.TokenFeed
	for _, pv := range platforms {
		if !pv.cfg.Enabled {
			continue
		}
		if pv.cfg.BaseURL == "stub" {
			adapters = append(adapters, stub.New(pv.platform))
			continue
		}

		var opts []venue.APIOption
		if pv.cfg.TimeoutSeconds > 0 {
			opts = append(opts, venue.WithTimeout(time.Duration(pv.cfg.TimeoutSeconds)*time.Second))
		}
		adapters = append(adapters, pv.build(pv.cfg.BaseURL, signer, log, opts...))

		if pv.cfg.WSURL != "" {
			feeds = append(feeds, venue.NewTokenFeed(pv.cfg.WSURL, pv.platform, venue.DefaultFeedConfig(), log))
		}
	}
	return adapters, feeds
}

func serveMetrics(ctx context.Context, addr string, log zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", observability.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("metrics server started")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
