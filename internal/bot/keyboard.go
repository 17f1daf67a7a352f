package bot

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type span string

const (
	spanAll  span = "all"
	spanWeek span = "week"
)

const (
	cbShow    = "show:"
	cbRefresh = "refresh:"
)

// eventsKeyboard switches between the full window and the next days
func eventsKeyboard(current span) tgbotapi.InlineKeyboardMarkup {
	other := spanWeek
	label := "🗓 Nächste Tage"
	if current == spanWeek {
		other = spanAll
		label = "📅 Alle Termine"
	}

	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, cbShow+string(other)),
			tgbotapi.NewInlineKeyboardButtonData("🔄 Aktualisieren", cbRefresh+string(current)),
		),
	)
}
