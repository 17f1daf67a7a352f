package scheduler

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/vereinsportal/portal/config"
	"github.com/vereinsportal/portal/internal/domain"
	"github.com/vereinsportal/portal/internal/service"
)

// digestSession keys the cache used by the digest job
const digestSession = "scheduler:digest"

type MessageSender interface {
	SendMessage(chatID int64, text string) error
}

// EventSource is the part of the calendar service the jobs use
type EventSource interface {
	UpcomingWithin(ctx context.Context, sessionID string, d time.Duration) ([]domain.CalendarEvent, error)
	ForgetSession(sessionID string)
	SweepCache() int
}

// SessionStore expires idle login sessions
type SessionStore interface {
	DeleteSessionsIdleSince(since time.Time) ([]string, error)
}

type Scheduler struct {
	cron     *cron.Cron
	cfg      *config.Config
	calendar EventSource
	sessions SessionStore
	sender   MessageSender
	now      func() time.Time
}

func New(cfg *config.Config, calendar EventSource, sessions SessionStore) *Scheduler {
	c := cron.New(cron.WithLocation(cfg.Timezone))

	return &Scheduler{
		cron:     c,
		cfg:      cfg,
		calendar: calendar,
		sessions: sessions,
		now:      time.Now,
	}
}

func (s *Scheduler) SetSender(sender MessageSender) {
	s.sender = sender
}

func (s *Scheduler) Start(ctx context.Context) error {
	// Upcoming events digest
	if _, err := s.cron.AddFunc(s.cfg.DigestSchedule, func() { s.SendDigest(ctx) }); err != nil {
		return fmt.Errorf("add digest: %w", err)
	}

	// Expired cache entries and idle sessions
	if _, err := s.cron.AddFunc("*/5 * * * *", s.Sweep); err != nil {
		return fmt.Errorf("add sweep: %w", err)
	}

	s.cron.Start()
	log.Printf("Scheduler started (TZ: %s, digest: %q, %d days)",
		s.cfg.Timezone, s.cfg.DigestSchedule, s.cfg.DigestDays)

	<-ctx.Done()
	return nil
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Println("Scheduler stopped")
}

// SendDigest posts the events of the next DigestDays days to the chat.
// Nothing is sent when the calendar is not configured.
func (s *Scheduler) SendDigest(ctx context.Context) {
	if s.sender == nil || s.cfg.TelegramChatID == 0 {
		return
	}

	// always read fresh data for the digest
	s.calendar.ForgetSession(digestSession)

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	events, err := s.calendar.UpcomingWithin(ctx, digestSession, time.Duration(s.cfg.DigestDays)*24*time.Hour)
	if err != nil {
		if !errors.Is(err, service.ErrNotConfigured) {
			log.Printf("Error getting events for digest: %v", err)
		}
		return
	}

	text := fmt.Sprintf("📅 <b>Termine der nächsten %d Tage</b>\n\n", s.cfg.DigestDays)
	if len(events) == 0 {
		text += "Keine Termine. Schöne Zeit!"
	} else {
		text += html.EscapeString(service.FormatEventList(events))
	}

	if err := s.sender.SendMessage(s.cfg.TelegramChatID, text); err != nil {
		log.Printf("Error sending digest to %d: %v", s.cfg.TelegramChatID, err)
	}
}

// Sweep drops expired cache entries and sessions idle for longer than
// SessionIdle together with their cached lists
func (s *Scheduler) Sweep() {
	removed := s.calendar.SweepCache()

	ids, err := s.sessions.DeleteSessionsIdleSince(s.now().Add(-s.cfg.SessionIdle))
	if err != nil {
		log.Printf("Error expiring sessions: %v", err)
	}
	for _, id := range ids {
		s.calendar.ForgetSession(id)
	}

	if removed > 0 || len(ids) > 0 {
		log.Printf("Sweep: %d cache entries, %d sessions expired", removed, len(ids))
	}
}
