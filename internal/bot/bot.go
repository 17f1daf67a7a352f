package bot

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/vereinsportal/portal/config"
	"github.com/vereinsportal/portal/internal/domain"
	"github.com/vereinsportal/portal/internal/service"
)

const updateTimeout = 60 * time.Second

// EventSource is the part of the calendar service the bot uses
type EventSource interface {
	UpcomingEvents(ctx context.Context, sessionID string) (*service.UpcomingResult, error)
	UpcomingWithin(ctx context.Context, sessionID string, d time.Duration) ([]domain.CalendarEvent, error)
	ForgetSession(sessionID string)
}

type Bot struct {
	api      *tgbotapi.BotAPI
	cfg      *config.Config
	calendar EventSource
}

func New(cfg *config.Config, calendar EventSource) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	log.Printf("Authorized as @%s", api.Self.UserName)

	bot := &Bot{
		api:      api,
		cfg:      cfg,
		calendar: calendar,
	}

	// Set bot commands (menu button)
	bot.setCommands()

	return bot, nil
}

func (b *Bot) setCommands() {
	commands := []tgbotapi.BotCommand{
		{Command: "termine", Description: "📅 Anstehende Termine"},
		{Command: "woche", Description: "🗓 Termine der nächsten Tage"},
		{Command: "help", Description: "❓ Hilfe"},
	}

	cfg := tgbotapi.NewSetMyCommands(commands...)
	if _, err := b.api.Request(cfg); err != nil {
		log.Printf("Failed to set commands: %v", err)
	}
}

// SetupWebhook registers WebhookURL/bot with Telegram
func (b *Bot) SetupWebhook() error {
	webhookURL := b.cfg.WebhookURL + "/bot"

	wh, err := tgbotapi.NewWebhook(webhookURL)
	if err != nil {
		return fmt.Errorf("create webhook: %w", err)
	}

	_, err = b.api.Request(wh)
	if err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}

	info, err := b.api.GetWebhookInfo()
	if err != nil {
		return fmt.Errorf("get webhook info: %w", err)
	}

	if info.LastErrorDate != 0 {
		log.Printf("Webhook last error: %s", info.LastErrorMessage)
	}

	log.Printf("Webhook set to: %s", webhookURL)
	return nil
}

// WebhookHandler receives updates pushed by Telegram
func (b *Bot) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	update, err := b.api.HandleUpdate(r)
	if err != nil {
		log.Printf("Webhook: %v", err)
		http.Error(w, "bad update", http.StatusBadRequest)
		return
	}
	go b.handleUpdate(*update)
}

// Start polls for updates unless a webhook is configured, and blocks until
// ctx is done
func (b *Bot) Start(ctx context.Context) error {
	if b.cfg.WebhookURL != "" {
		<-ctx.Done()
		return nil
	}

	if _, err := b.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		log.Printf("Failed to delete webhook: %v", err)
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.api.GetUpdatesChan(u)
	log.Println("Polling for Telegram updates")

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update := <-updates:
			go b.handleUpdate(update)
		}
	}
}

func (b *Bot) SendMessage(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "HTML"
	msg.DisableWebPagePreview = true
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) SendMessageWithKeyboard(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "HTML"
	msg.ReplyMarkup = keyboard
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) editMessage(chatID int64, msgID int, text string, keyboard tgbotapi.InlineKeyboardMarkup) error {
	edit := tgbotapi.NewEditMessageTextAndMarkup(chatID, msgID, text, keyboard)
	edit.ParseMode = "HTML"
	_, err := b.api.Send(edit)
	return err
}
