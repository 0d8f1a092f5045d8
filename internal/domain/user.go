package domain

import "time"

// UserAccount is consumed read-only by the poller/scheduler core; mutation
// (creation, activation toggling) flows through the admin API boundary.
// WalletRef is an opaque credential handle for the custody signer: raw
// key material never leaves the custody package.
type UserAccount struct {
	UserID         string
	Username       string
	WalletRef      string
	Active         bool
	TelegramChatID int64  // 0 when the user has no notification channel
	Language       string // "ru" or "uz", empty falls back to "ru"
	CreatedAt      time.Time
}
