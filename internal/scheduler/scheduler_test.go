package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/vereinsportal/portal/config"
	"github.com/vereinsportal/portal/internal/domain"
	"github.com/vereinsportal/portal/internal/service"
)

type mockCalendar struct {
	mock.Mock
}

func (m *mockCalendar) UpcomingWithin(ctx context.Context, sessionID string, d time.Duration) ([]domain.CalendarEvent, error) {
	args := m.Called(ctx, sessionID, d)
	events, _ := args.Get(0).([]domain.CalendarEvent)
	return events, args.Error(1)
}

func (m *mockCalendar) ForgetSession(sessionID string) {
	m.Called(sessionID)
}

func (m *mockCalendar) SweepCache() int {
	return m.Called().Int(0)
}

type mockSessions struct {
	mock.Mock
}

func (m *mockSessions) DeleteSessionsIdleSince(since time.Time) ([]string, error) {
	args := m.Called(since)
	ids, _ := args.Get(0).([]string)
	return ids, args.Error(1)
}

type recordingSender struct {
	chatIDs []int64
	texts   []string
	err     error
}

func (r *recordingSender) SendMessage(chatID int64, text string) error {
	r.chatIDs = append(r.chatIDs, chatID)
	r.texts = append(r.texts, text)
	return r.err
}

func testConfig() *config.Config {
	return &config.Config{
		Timezone:       time.UTC,
		DigestSchedule: "0 7 * * *",
		DigestDays:     7,
		TelegramChatID: -100200,
		SessionIdle:    24 * time.Hour,
	}
}

func TestSendDigest(t *testing.T) {
	cal := &mockCalendar{}
	cal.On("ForgetSession", digestSession).Once()
	cal.On("UpcomingWithin", mock.Anything, digestSession, 7*24*time.Hour).Return([]domain.CalendarEvent{{
		Summary: "Jahreshauptversammlung",
		Start:   domain.EventTime{Raw: "20250112", Display: "12.01.2025"},
		End:     domain.EventTime{Raw: "20250113", Display: "13.01.2025"},
	}}, nil).Once()

	sender := &recordingSender{}
	s := New(testConfig(), cal, &mockSessions{})
	s.SetSender(sender)

	s.SendDigest(context.Background())

	assert.Equal(t, []int64{-100200}, sender.chatIDs)
	assert.Contains(t, sender.texts[0], "nächsten 7 Tage")
	assert.Contains(t, sender.texts[0], "Jahreshauptversammlung (ganztägig)")
	cal.AssertExpectations(t)
}

func TestSendDigest_Empty(t *testing.T) {
	cal := &mockCalendar{}
	cal.On("ForgetSession", digestSession)
	cal.On("UpcomingWithin", mock.Anything, digestSession, mock.Anything).Return(nil, nil)

	sender := &recordingSender{}
	s := New(testConfig(), cal, &mockSessions{})
	s.SetSender(sender)

	s.SendDigest(context.Background())

	assert.Len(t, sender.texts, 1)
	assert.Contains(t, sender.texts[0], "Keine Termine")
}

func TestSendDigest_SkipsWhenNotConfigured(t *testing.T) {
	cal := &mockCalendar{}
	cal.On("ForgetSession", digestSession)
	cal.On("UpcomingWithin", mock.Anything, digestSession, mock.Anything).Return(nil, service.ErrNotConfigured)

	sender := &recordingSender{}
	s := New(testConfig(), cal, &mockSessions{})
	s.SetSender(sender)

	s.SendDigest(context.Background())
	assert.Empty(t, sender.texts)
}

func TestSendDigest_NoSenderOrChat(t *testing.T) {
	cal := &mockCalendar{}
	s := New(testConfig(), cal, &mockSessions{})
	s.SendDigest(context.Background())

	cfg := testConfig()
	cfg.TelegramChatID = 0
	s = New(cfg, cal, &mockSessions{})
	s.SetSender(&recordingSender{})
	s.SendDigest(context.Background())

	cal.AssertNotCalled(t, "UpcomingWithin", mock.Anything, mock.Anything, mock.Anything)
}

func TestSweep(t *testing.T) {
	now := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)

	cal := &mockCalendar{}
	cal.On("SweepCache").Return(3)
	cal.On("ForgetSession", "a").Once()
	cal.On("ForgetSession", "b").Once()

	sessions := &mockSessions{}
	sessions.On("DeleteSessionsIdleSince", now.Add(-24*time.Hour)).Return([]string{"a", "b"}, nil)

	s := New(testConfig(), cal, sessions)
	s.now = func() time.Time { return now }

	s.Sweep()

	cal.AssertExpectations(t)
	sessions.AssertExpectations(t)
}

func TestSweep_StoreError(t *testing.T) {
	cal := &mockCalendar{}
	cal.On("SweepCache").Return(0)

	sessions := &mockSessions{}
	sessions.On("DeleteSessionsIdleSince", mock.Anything).Return(nil, errors.New("locked"))

	s := New(testConfig(), cal, sessions)
	s.Sweep()

	cal.AssertNotCalled(t, "ForgetSession", mock.Anything)
}
