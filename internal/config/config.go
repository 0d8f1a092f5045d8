// Package config loads the sniper's YAML configuration. Values of the form
// ${VAR} are expanded from the environment before parsing, which keeps
// secrets out of the file itself.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"solana-migration-sniper/internal/exitpolicy"
)

// Config is the root configuration structure.
type Config struct {
	General    GeneralConfig     `yaml:"general"`
	Storage    StorageConfig     `yaml:"storage"`
	ClickHouse ClickHouseConfig  `yaml:"clickhouse"`
	Venues     VenuesConfig      `yaml:"venues"`
	Discovery  DiscoveryConfig   `yaml:"discovery"`
	Poller     PollerConfig      `yaml:"poller"`
	Scheduler  SchedulerConfig   `yaml:"scheduler"`
	Exit       exitpolicy.Config `yaml:"exit"`
	Reconcile  ReconcileConfig   `yaml:"reconcile"`
	Custody    CustodyConfig     `yaml:"custody"`
	Telegram   TelegramConfig    `yaml:"telegram"`
	Metrics    MetricsConfig     `yaml:"metrics"`
	Admin      AdminConfig       `yaml:"admin"`
}

type GeneralConfig struct {
	Environment string `yaml:"environment"` // production|development
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"` // json|console
}

type StorageConfig struct {
	// Backend selects the store implementation: postgres|memory. The
	// memory backend loses all state on restart and exists for
	// development mode only.
	Backend string `yaml:"backend"`

	Postgres PostgresConfig `yaml:"postgres"`
}

type PostgresConfig struct {
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"max_conns"`
}

type ClickHouseConfig struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
}

type VenuesConfig struct {
	PumpFun VenueConfig `yaml:"pumpfun"`
	Raydium VenueConfig `yaml:"raydium"`
}

type VenueConfig struct {
	Enabled        bool   `yaml:"enabled"`
	BaseURL        string `yaml:"base_url"`
	WSURL          string `yaml:"ws_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type DiscoveryConfig struct {
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds"`
}

type PollerConfig struct {
	ThresholdPct        float64 `yaml:"threshold_pct"`
	IntervalSeconds     int     `yaml:"interval_seconds"`
	CheckTimeoutSeconds int     `yaml:"check_timeout_seconds"`
}

type SchedulerConfig struct {
	BuyAmountSOL string `yaml:"buy_amount_sol"`
	BuyWorkers   int    `yaml:"buy_workers"`
}

type ReconcileConfig struct {
	IntervalSeconds   int `yaml:"interval_seconds"`
	FiredGraceSeconds int `yaml:"fired_grace_seconds"`
	StaleAfterSeconds int `yaml:"stale_after_seconds"`
}

type CustodyConfig struct {
	// Mode selects the signer: keyring|simulated. The simulated signer
	// produces deterministic fake signatures for development mode.
	Mode   string `yaml:"mode"`
	RPCURL string `yaml:"rpc_url"`

	// Wallets maps wallet references to base58 secret keys. Populate via
	// ${VAR} expansion, never literals.
	Wallets map[string]string `yaml:"wallets"`
}

type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type AdminConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Validation errors
var (
	ErrUnknownBackend     = errors.New("storage backend must be postgres or memory")
	ErrMissingPostgresDSN = errors.New("postgres backend requires a dsn")
	ErrInvalidThreshold   = errors.New("threshold_pct must be in (0, 100]")
	ErrInvalidBuyAmount   = errors.New("buy_amount_sol must be a positive decimal")
	ErrUnknownCustodyMode = errors.New("custody mode must be keyring or simulated")
	ErrMissingRPCURL      = errors.New("keyring custody requires an rpc_url")
	ErrMissingBotToken    = errors.New("telegram requires a bot_token when enabled")
	ErrNoVenueEnabled     = errors.New("at least one venue must be enabled")
	ErrMissingVenueURL    = errors.New("enabled venue requires a base_url")
)

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML bytes, expanding ${VAR} references from the
// environment, applying defaults and validating.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.General.Environment == "" {
		cfg.General.Environment = "development"
	}
	if cfg.General.LogLevel == "" {
		cfg.General.LogLevel = "info"
	}
	if cfg.General.LogFormat == "" {
		cfg.General.LogFormat = "json"
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "memory"
	}
	if cfg.Storage.Postgres.MaxConns == 0 {
		cfg.Storage.Postgres.MaxConns = 10
	}
	if cfg.ClickHouse.DSN == "" {
		cfg.ClickHouse.DSN = "clickhouse://localhost:9000/sniper"
	}
	if cfg.Discovery.SweepIntervalSeconds == 0 {
		cfg.Discovery.SweepIntervalSeconds = 30
	}
	if cfg.Poller.ThresholdPct == 0 {
		cfg.Poller.ThresholdPct = 98.0
	}
	if cfg.Poller.IntervalSeconds == 0 {
		cfg.Poller.IntervalSeconds = 5
	}
	if cfg.Poller.CheckTimeoutSeconds == 0 {
		cfg.Poller.CheckTimeoutSeconds = 4
	}
	if cfg.Scheduler.BuyAmountSOL == "" {
		cfg.Scheduler.BuyAmountSOL = "0.05"
	}
	if cfg.Scheduler.BuyWorkers == 0 {
		cfg.Scheduler.BuyWorkers = 8
	}
	if cfg.Exit.Type == "" {
		cfg.Exit.Type = exitpolicy.TypeProfitTarget
		target := 10.0
		cfg.Exit.TargetProfitPct = &target
	}
	if cfg.Reconcile.IntervalSeconds == 0 {
		cfg.Reconcile.IntervalSeconds = 60
	}
	if cfg.Reconcile.FiredGraceSeconds == 0 {
		cfg.Reconcile.FiredGraceSeconds = 300
	}
	if cfg.Reconcile.StaleAfterSeconds == 0 {
		cfg.Reconcile.StaleAfterSeconds = 600
	}
	if cfg.Custody.Mode == "" {
		cfg.Custody.Mode = "simulated"
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9090"
	}
	if cfg.Admin.Addr == "" {
		cfg.Admin.Addr = ":8080"
	}
}

// Validate checks cross-field constraints after defaults are applied.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "memory":
	case "postgres":
		if c.Storage.Postgres.DSN == "" {
			return ErrMissingPostgresDSN
		}
	default:
		return ErrUnknownBackend
	}

	if c.Poller.ThresholdPct <= 0 || c.Poller.ThresholdPct > 100 {
		return ErrInvalidThreshold
	}

	if !validDecimal(c.Scheduler.BuyAmountSOL) {
		return ErrInvalidBuyAmount
	}

	switch c.Custody.Mode {
	case "simulated":
	case "keyring":
		if c.Custody.RPCURL == "" {
			return ErrMissingRPCURL
		}
	default:
		return ErrUnknownCustodyMode
	}

	if c.Telegram.Enabled && c.Telegram.BotToken == "" {
		return ErrMissingBotToken
	}

	if !c.Venues.PumpFun.Enabled && !c.Venues.Raydium.Enabled {
		return ErrNoVenueEnabled
	}
	for _, v := range []VenueConfig{c.Venues.PumpFun, c.Venues.Raydium} {
		if v.Enabled && v.BaseURL == "" {
			return ErrMissingVenueURL
		}
	}

	if _, err := exitpolicy.FromConfig(c.Exit); err != nil {
		return fmt.Errorf("exit policy: %w", err)
	}
	return nil
}

// BuyAmount returns the per-user buy size as a decimal.
func (c *Config) BuyAmount() decimal.Decimal {
	d, _ := decimal.NewFromString(c.Scheduler.BuyAmountSOL)
	return d
}

func validDecimal(s string) bool {
	d, err := decimal.NewFromString(s)
	return err == nil && d.IsPositive()
}
