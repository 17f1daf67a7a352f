package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/vereinsportal/portal/internal/domain"
	"github.com/vereinsportal/portal/internal/service"
)

// commandReply returns the answer to a chat command and an optional keyboard
func (b *Bot) commandReply(ctx context.Context, chatID int64, cmd string) (string, *tgbotapi.InlineKeyboardMarkup) {
	switch cmd {
	case "start", "help":
		return b.helpText(), nil
	case "termine":
		kb := eventsKeyboard(spanAll)
		return b.eventsText(ctx, chatID, spanAll), &kb
	case "woche":
		kb := eventsKeyboard(spanWeek)
		return b.eventsText(ctx, chatID, spanWeek), &kb
	default:
		return "Unbekannter Befehl. /help für die Liste der Befehle", nil
	}
}

func (b *Bot) helpText() string {
	return fmt.Sprintf(`<b>Befehle:</b>

/termine - alle anstehenden Termine
/woche - Termine der nächsten %d Tage
/help - diese Hilfe`, b.cfg.DigestDays)
}

// chatSession keys the event cache of a chat
func chatSession(chatID int64) string {
	return "tg:" + strconv.FormatInt(chatID, 10)
}

func (b *Bot) eventsText(ctx context.Context, chatID int64, s span) string {
	session := chatSession(chatID)

	var (
		events []domain.CalendarEvent
		status = domain.SyncOK
		title  = "📅 <b>Anstehende Termine</b>"
		err    error
	)

	if s == spanWeek {
		title = fmt.Sprintf("🗓 <b>Termine der nächsten %d Tage</b>", b.cfg.DigestDays)
		events, err = b.calendar.UpcomingWithin(ctx, session, time.Duration(b.cfg.DigestDays)*24*time.Hour)
	} else {
		var res *service.UpcomingResult
		res, err = b.calendar.UpcomingEvents(ctx, session)
		if res != nil {
			events, status = res.Items, res.Status
		}
	}

	if err != nil {
		if errors.Is(err, service.ErrNotConfigured) {
			return "⚙️ Der Kalender ist noch nicht eingerichtet."
		}
		log.Printf("Error loading events for chat %d: %v", chatID, err)
		return "❌ Termine konnten nicht geladen werden."
	}

	text := title + "\n\n" + html.EscapeString(service.FormatEventList(events))
	return text + statusNote(status)
}

func statusNote(status domain.SyncStatus) string {
	switch status {
	case domain.SyncDegraded:
		return "\n⚠️ Einige Termine konnten nicht geladen werden."
	case domain.SyncUnreachable:
		return "\n⚠️ Der Kalender ist gerade nicht erreichbar."
	default:
		return ""
	}
}
