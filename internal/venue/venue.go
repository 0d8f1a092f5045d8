// Package venue abstracts the launch platforms the sniper trades on.
// Adapters translate platform APIs into three-outcome trade results:
// Success (fill confirmed), Rejected (venue refused, safe to retry with a
// new attempt), Unavailable (unknown whether the trade landed).
package venue

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/shopspring/decimal"

	"solana-migration-sniper/internal/domain"
)

// Outcome is the venue-level result of an execution attempt.
type Outcome string

const (
	// OutcomeSuccess means the trade landed and the fill is authoritative.
	OutcomeSuccess Outcome = "SUCCESS"

	// OutcomeRejected means the venue definitively refused the trade.
	// Nothing was executed; the caller may retry or give up.
	OutcomeRejected Outcome = "REJECTED"

	// OutcomeUnavailable means the attempt did not produce a definitive
	// answer (timeout, transport failure, 5xx). The trade MAY have landed;
	// callers must not blindly retry money-moving requests.
	OutcomeUnavailable Outcome = "UNAVAILABLE"
)

// TradeResult carries one execution attempt's outcome. Fill is set only on
// Success; Reason carries the venue's detail for the other two.
type TradeResult struct {
	Outcome Outcome
	Fill    *domain.Fill
	Reason  string
}

// Succeeded reports whether the attempt produced a confirmed fill.
func (r TradeResult) Succeeded() bool { return r.Outcome == OutcomeSuccess }

// Success builds a successful result around a fill.
func Success(fill domain.Fill) TradeResult {
	return TradeResult{Outcome: OutcomeSuccess, Fill: &fill}
}

// Rejected builds a definitive refusal.
func Rejected(reason string) TradeResult {
	return TradeResult{Outcome: OutcomeRejected, Reason: reason}
}

// Unavailable builds an indeterminate result.
func Unavailable(reason string) TradeResult {
	return TradeResult{Outcome: OutcomeUnavailable, Reason: reason}
}

// NewToken is one entry from a platform's new-token feed, unvalidated.
type NewToken struct {
	Address string
	Name    string
	Symbol  string
}

// BuyRequest is a market buy of TokenAddress for AmountSOL.
type BuyRequest struct {
	WalletRef    string
	TokenAddress string
	AmountSOL    decimal.Decimal
}

// SellRequest disposes of a held amount. MinProfitPct, when set, lets the
// venue refuse fills below the profit floor relative to PurchasePrice.
type SellRequest struct {
	WalletRef     string
	TokenAddress  string
	TokenAmount   decimal.Decimal
	PurchasePrice decimal.Decimal
	MinProfitPct  *decimal.Decimal
}

// Adapter is one launch platform. Implementations must be safe for
// concurrent use.
type Adapter interface {
	// Platform identifies the venue.
	Platform() domain.Platform

	// ListNewTokens fetches the platform's recent token listings.
	ListNewTokens(ctx context.Context) ([]NewToken, error)

	// MigrationStatus returns the current migration percentage (0-100).
	MigrationStatus(ctx context.Context, tokenAddress string) (float64, error)

	// ExecuteBuy attempts a market buy. Transport failures surface as
	// OutcomeUnavailable, not as errors; the error return is reserved for
	// malformed requests and context cancellation.
	ExecuteBuy(ctx context.Context, req BuyRequest) (TradeResult, error)

	// ExecuteSell attempts a disposal, same contract as ExecuteBuy.
	ExecuteSell(ctx context.Context, req SellRequest) (TradeResult, error)
}

// classifyTransport maps a transport-level failure to a result. Timeouts
// and connection errors are indeterminate: the request may have reached
// the venue.
func classifyTransport(err error) TradeResult {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return Unavailable("request deadline exceeded")
	case errors.As(err, &netErr):
		return Unavailable(netErr.Error())
	default:
		return Unavailable(err.Error())
	}
}

// now is stubbed in tests.
var now = time.Now
