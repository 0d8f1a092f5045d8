// Package notify delivers per-user trade notifications. Delivery is
// fire-and-forget: a failed send is logged and never blocks or fails the
// state transition that triggered it.
package notify

import (
	"context"

	"github.com/shopspring/decimal"

	"solana-migration-sniper/internal/domain"
)

// Notifier delivers trade notifications to one user.
type Notifier interface {
	// NotifyBought reports a confirmed entry fill.
	NotifyBought(ctx context.Context, user *domain.UserAccount, token string, fill domain.Fill)

	// NotifySold reports a confirmed exit with realized profit.
	NotifySold(ctx context.Context, user *domain.UserAccount, token string, fill domain.Fill, profitPct decimal.Decimal)

	// NotifyFailed reports a definitive buy failure.
	NotifyFailed(ctx context.Context, user *domain.UserAccount, token string, reason string)
}

// Noop discards all notifications.
type Noop struct{}

var _ Notifier = Noop{}

func (Noop) NotifyBought(context.Context, *domain.UserAccount, string, domain.Fill) {}
func (Noop) NotifySold(context.Context, *domain.UserAccount, string, domain.Fill, decimal.Decimal) {
}
func (Noop) NotifyFailed(context.Context, *domain.UserAccount, string, string) {}
