package notify

import (
	"fmt"

	"github.com/shopspring/decimal"

	"solana-migration-sniper/internal/domain"
)

const defaultLanguage = "ru"

type messageKey string

const (
	msgBought messageKey = "bought"
	msgSold   messageKey = "sold"
	msgFailed messageKey = "failed"
)

// catalog holds message templates per language. Unknown languages fall
// back to Russian.
var catalog = map[string]map[messageKey]string{
	"ru": {
		msgBought: "🟢 Токен куплен: %s\nКоличество: %s\nЦена: %s SOL",
		msgSold:   "💰 Токен продан: %s\nЦена: %s SOL\nПрибыль: %s%%",
		msgFailed: "⚠️ Покупка не выполнена: %s\nПричина: %s",
	},
	"uz": {
		msgBought: "🟢 Token sotib olindi: %s\nMiqdor: %s\nNarxi: %s SOL",
		msgSold:   "💰 Token sotildi: %s\nNarxi: %s SOL\nFoyda: %s%%",
		msgFailed: "⚠️ Xarid amalga oshmadi: %s\nSabab: %s",
	},
}

func template(language string, key messageKey) string {
	msgs, ok := catalog[language]
	if !ok {
		msgs = catalog[defaultLanguage]
	}
	return msgs[key]
}

func formatBought(language, token string, fill domain.Fill) string {
	return fmt.Sprintf(template(language, msgBought), token, fill.TokenAmount, fill.Price)
}

func formatSold(language, token string, fill domain.Fill, profitPct decimal.Decimal) string {
	return fmt.Sprintf(template(language, msgSold), token, fill.Price, profitPct.Round(2))
}

func formatFailed(language, token, reason string) string {
	return fmt.Sprintf(template(language, msgFailed), token, reason)
}
