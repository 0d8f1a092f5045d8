package notify

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"solana-migration-sniper/internal/domain"
)

// TelegramNotifier sends per-user messages through one bot. Users without
// a chat ID are skipped silently.
type TelegramNotifier struct {
	bot *tgbotapi.BotAPI
	log zerolog.Logger
}

// Compile-time interface check.
var _ Notifier = (*TelegramNotifier)(nil)

// NewTelegramNotifier connects the bot.
func NewTelegramNotifier(token string, logger zerolog.Logger) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	logger.Info().Str("username", bot.Self.UserName).Msg("telegram bot connected")

	return &TelegramNotifier{
		bot: bot,
		log: logger.With().Str("component", "telegram").Logger(),
	}, nil
}

func (n *TelegramNotifier) NotifyBought(_ context.Context, user *domain.UserAccount, token string, fill domain.Fill) {
	n.send(user, formatBought(user.Language, token, fill))
}

func (n *TelegramNotifier) NotifySold(_ context.Context, user *domain.UserAccount, token string, fill domain.Fill, profitPct decimal.Decimal) {
	n.send(user, formatSold(user.Language, token, fill, profitPct))
}

func (n *TelegramNotifier) NotifyFailed(_ context.Context, user *domain.UserAccount, token string, reason string) {
	n.send(user, formatFailed(user.Language, token, reason))
}

func (n *TelegramNotifier) send(user *domain.UserAccount, text string) {
	if user == nil || user.TelegramChatID == 0 {
		return
	}

	msg := tgbotapi.NewMessage(user.TelegramChatID, text)
	if _, err := n.bot.Send(msg); err != nil {
		n.log.Error().Err(err).Str("user_id", user.UserID).Msg("send telegram message")
	}
}
