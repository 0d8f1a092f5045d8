package exitpolicy

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Policy type names accepted in configuration.
const (
	TypeTimeExit     = "TIME_EXIT"
	TypeProfitTarget = "PROFIT_TARGET"
)

// Factory errors
var (
	ErrUnknownPolicyType    = errors.New("unknown exit policy type")
	ErrMissingHoldSeconds   = errors.New("TIME_EXIT requires hold_seconds")
	ErrMissingTargetProfit  = errors.New("PROFIT_TARGET requires target_profit_pct")
	ErrInvalidRetryInterval = errors.New("retry_interval_seconds must be positive")
)

// Config selects and parameterizes an exit policy.
type Config struct {
	Type                 string   `yaml:"type"`
	HoldSeconds          *int64   `yaml:"hold_seconds,omitempty"`
	TargetProfitPct      *float64 `yaml:"target_profit_pct,omitempty"`
	RetryIntervalSeconds int64    `yaml:"retry_interval_seconds"`
	MaxHoldSeconds       int64    `yaml:"max_hold_seconds"`
	MaxAttempts          int      `yaml:"max_attempts"`
}

// Defaults applied by FromConfig for zero-valued optional fields.
const (
	DefaultRetryIntervalSeconds = 30
	DefaultMaxHoldSeconds       = 3600
	DefaultMaxAttempts          = 10
)

// FromConfig creates a Policy from configuration, validating required
// parameters per policy type.
func FromConfig(cfg Config) (Policy, error) {
	if cfg.RetryIntervalSeconds == 0 {
		cfg.RetryIntervalSeconds = DefaultRetryIntervalSeconds
	}
	if cfg.RetryIntervalSeconds < 0 {
		return nil, ErrInvalidRetryInterval
	}
	if cfg.MaxHoldSeconds == 0 {
		cfg.MaxHoldSeconds = DefaultMaxHoldSeconds
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}

	switch cfg.Type {
	case TypeTimeExit:
		return fromTimeExitConfig(cfg)
	case TypeProfitTarget:
		return fromProfitTargetConfig(cfg)
	default:
		return nil, ErrUnknownPolicyType
	}
}

func fromTimeExitConfig(cfg Config) (*TimeExitPolicy, error) {
	if cfg.HoldSeconds == nil {
		return nil, ErrMissingHoldSeconds
	}

	return NewTimeExitPolicy(
		time.Duration(*cfg.HoldSeconds)*time.Second,
		time.Duration(cfg.RetryIntervalSeconds)*time.Second,
		cfg.MaxAttempts,
	), nil
}

func fromProfitTargetConfig(cfg Config) (*ProfitTargetPolicy, error) {
	if cfg.TargetProfitPct == nil {
		return nil, ErrMissingTargetProfit
	}

	return NewProfitTargetPolicy(
		decimal.NewFromFloat(*cfg.TargetProfitPct),
		time.Duration(cfg.RetryIntervalSeconds)*time.Second,
		time.Duration(cfg.MaxHoldSeconds)*time.Second,
		cfg.MaxAttempts,
	), nil
}
