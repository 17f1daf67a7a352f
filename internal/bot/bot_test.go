package bot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vereinsportal/portal/config"
	"github.com/vereinsportal/portal/internal/domain"
	"github.com/vereinsportal/portal/internal/service"
)

type fakeCalendar struct {
	items     []domain.CalendarEvent
	status    domain.SyncStatus
	err       error
	sessions  []string
	within    time.Duration
	forgotten []string
}

func (f *fakeCalendar) UpcomingEvents(ctx context.Context, sessionID string) (*service.UpcomingResult, error) {
	f.sessions = append(f.sessions, sessionID)
	if f.err != nil {
		return &service.UpcomingResult{Items: []domain.CalendarEvent{}}, f.err
	}
	return &service.UpcomingResult{Items: f.items, Status: f.status}, nil
}

func (f *fakeCalendar) UpcomingWithin(ctx context.Context, sessionID string, d time.Duration) ([]domain.CalendarEvent, error) {
	f.sessions = append(f.sessions, sessionID)
	f.within = d
	return f.items, f.err
}

func (f *fakeCalendar) ForgetSession(sessionID string) {
	f.forgotten = append(f.forgotten, sessionID)
}

func testBot(cal *fakeCalendar) *Bot {
	return &Bot{
		cfg:      &config.Config{TelegramChatID: 42, DigestDays: 7},
		calendar: cal,
	}
}

var sampleEvent = domain.CalendarEvent{
	Summary:  "Übung <Atemschutz>",
	Location: "Gerätehaus",
	Start:    domain.EventTime{Raw: "20250115T170000Z", Display: "15.01.2025 18:00"},
	End:      domain.EventTime{Raw: "20250115T190000Z", Display: "15.01.2025 20:00"},
}

func TestCommandReply_Termine(t *testing.T) {
	cal := &fakeCalendar{items: []domain.CalendarEvent{sampleEvent}, status: domain.SyncOK}
	b := testBot(cal)

	text, kb := b.commandReply(context.Background(), 42, "termine")
	require.NotNil(t, kb)

	assert.Contains(t, text, "Anstehende Termine")
	assert.Contains(t, text, "18:00 - Übung &lt;Atemschutz&gt;")
	assert.NotContains(t, text, "⚠️")
	assert.Equal(t, []string{"tg:42"}, cal.sessions)
	assert.Equal(t, cbShow+"week", *kb.InlineKeyboard[0][0].CallbackData)
}

func TestCommandReply_Woche(t *testing.T) {
	cal := &fakeCalendar{}
	b := testBot(cal)

	text, kb := b.commandReply(context.Background(), 42, "woche")
	require.NotNil(t, kb)

	assert.Contains(t, text, "nächsten 7 Tage")
	assert.Contains(t, text, "Keine Termine")
	assert.Equal(t, 7*24*time.Hour, cal.within)
}

func TestCommandReply_Status(t *testing.T) {
	cal := &fakeCalendar{items: []domain.CalendarEvent{}, status: domain.SyncUnreachable}
	text, _ := testBot(cal).commandReply(context.Background(), 42, "termine")
	assert.Contains(t, text, "nicht erreichbar")

	cal.status = domain.SyncDegraded
	text, _ = testBot(cal).commandReply(context.Background(), 42, "termine")
	assert.Contains(t, text, "Einige Termine")
}

func TestCommandReply_Errors(t *testing.T) {
	cal := &fakeCalendar{err: service.ErrNotConfigured}
	text, _ := testBot(cal).commandReply(context.Background(), 42, "termine")
	assert.Contains(t, text, "nicht eingerichtet")

	cal.err = errors.New("database is locked")
	text, _ = testBot(cal).commandReply(context.Background(), 42, "termine")
	assert.Contains(t, text, "konnten nicht geladen")
	assert.NotContains(t, text, "database")
}

func TestCommandReply_HelpAndUnknown(t *testing.T) {
	b := testBot(&fakeCalendar{})

	text, kb := b.commandReply(context.Background(), 42, "help")
	assert.Nil(t, kb)
	assert.Contains(t, text, "/termine")

	text, _ = b.commandReply(context.Background(), 42, "tasks")
	assert.Contains(t, text, "Unbekannter Befehl")
}

func TestCallbackReply(t *testing.T) {
	cal := &fakeCalendar{items: []domain.CalendarEvent{sampleEvent}}
	b := testBot(cal)

	text, kb, ok := b.callbackReply(context.Background(), 42, cbRefresh+"all")
	require.True(t, ok)
	assert.Contains(t, text, "Anstehende Termine")
	assert.Equal(t, []string{"tg:42"}, cal.forgotten)
	assert.Equal(t, cbRefresh+"all", *kb.InlineKeyboard[0][1].CallbackData)

	text, _, ok = b.callbackReply(context.Background(), 42, cbShow+"week")
	require.True(t, ok)
	assert.Contains(t, text, "nächsten 7 Tage")

	_, _, ok = b.callbackReply(context.Background(), 42, cbShow+"year")
	assert.False(t, ok)

	_, _, ok = b.callbackReply(context.Background(), 42, "done:1")
	assert.False(t, ok)
}
