package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Fill is the realized result of an executed buy or sell.
type Fill struct {
	Price       decimal.Decimal // SOL per token
	TokenAmount decimal.Decimal
	SOLAmount   decimal.Decimal
	Signature   string // venue transaction signature
	ExecutedAt  time.Time
}

// TradeSide discriminates audit events.
type TradeSide string

const (
	TradeBuy  TradeSide = "BUY"
	TradeSell TradeSide = "SELL"
)

// TradeEvent is an append-only audit record of one executed (or failed)
// trade leg. Written fire-and-forget to the analytics store.
type TradeEvent struct {
	EventTime    time.Time
	UserID       string
	TokenAddress string
	CycleID      int64
	Side         TradeSide
	Outcome      string // "SUCCESS" | "REJECTED"
	Price        decimal.Decimal
	TokenAmount  decimal.Decimal
	SOLAmount    decimal.Decimal
	ProfitPct    *decimal.Decimal // sells only
	Signature    string
}
