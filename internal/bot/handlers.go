package bot

import (
	"context"
	"log"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func (b *Bot) handleUpdate(update tgbotapi.Update) {
	if update.Message != nil {
		b.handleMessage(update.Message)
	} else if update.CallbackQuery != nil {
		b.handleCallback(update.CallbackQuery)
	}
}

func (b *Bot) handleMessage(msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	if !b.cfg.IsAllowedChat(chatID) {
		b.SendMessage(chatID, "⛔ Zugriff verweigert")
		return
	}

	if strings.TrimSpace(msg.Text) == "" || !msg.IsCommand() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), updateTimeout)
	defer cancel()

	text, kb := b.commandReply(ctx, chatID, msg.Command())
	var err error
	if kb != nil {
		err = b.SendMessageWithKeyboard(chatID, text, *kb)
	} else {
		err = b.SendMessage(chatID, text)
	}
	if err != nil {
		log.Printf("Error replying to /%s in %d: %v", msg.Command(), chatID, err)
	}
}

func (b *Bot) handleCallback(callback *tgbotapi.CallbackQuery) {
	if callback.Message == nil {
		return
	}
	chatID := callback.Message.Chat.ID

	if !b.cfg.IsAllowedChat(chatID) {
		b.api.Request(tgbotapi.NewCallback(callback.ID, "⛔ Zugriff verweigert"))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), updateTimeout)
	defer cancel()

	text, kb, ok := b.callbackReply(ctx, chatID, callback.Data)
	if !ok {
		b.api.Request(tgbotapi.NewCallback(callback.ID, "Unbekannte Aktion"))
		return
	}

	if _, err := b.api.Request(tgbotapi.NewCallback(callback.ID, "")); err != nil {
		log.Printf("Error answering callback: %v", err)
	}
	if err := b.editMessage(chatID, callback.Message.MessageID, text, kb); err != nil {
		log.Printf("Error updating message in %d: %v", chatID, err)
	}
}

// callbackReply renders the message for a keyboard button
func (b *Bot) callbackReply(ctx context.Context, chatID int64, data string) (string, tgbotapi.InlineKeyboardMarkup, bool) {
	var s span
	switch {
	case strings.HasPrefix(data, cbShow):
		s = span(strings.TrimPrefix(data, cbShow))
	case strings.HasPrefix(data, cbRefresh):
		s = span(strings.TrimPrefix(data, cbRefresh))
		b.calendar.ForgetSession(chatSession(chatID))
	default:
		return "", tgbotapi.InlineKeyboardMarkup{}, false
	}

	if s != spanAll && s != spanWeek {
		return "", tgbotapi.InlineKeyboardMarkup{}, false
	}

	return b.eventsText(ctx, chatID, s), eventsKeyboard(s), true
}
