package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/samber/mo"
	"golang.org/x/sync/errgroup"

	"github.com/vereinsportal/portal/internal/cache"
	"github.com/vereinsportal/portal/internal/clients/caldav"
	"github.com/vereinsportal/portal/internal/domain"
	"github.com/vereinsportal/portal/internal/ics"
)

var ErrNotConfigured = errors.New("calendar not configured")

const DefaultFetchWorkers = 4

// SettingsStore persists the CalDAV connection record
type SettingsStore interface {
	GetCalendarSettings() (mo.Option[domain.CalendarSettings], error)
	SaveCalendarSettings(cs *domain.CalendarSettings) error
	DeleteCalendarSettings() error
}

// SecretKeeper seals and reveals stored passwords
type SecretKeeper interface {
	Seal(plaintext string) (string, error)
	Reveal(stored string) (string, error)
}

// Transport is the WebDAV side of a sync pass
type Transport interface {
	ListResources(ctx context.Context, collectionURL string) ([]string, error)
	FetchObject(ctx context.Context, resourceURL string) (string, error)
	DiscoverCalendars(ctx context.Context, baseURL string) ([]caldav.Calendar, error)
}

// TransportFactory builds a Transport for the stored credentials
type TransportFactory func(username, password string) Transport

// CalendarOptions configure a CalendarService
type CalendarOptions struct {
	Timezone  *time.Location
	LookBack  time.Duration
	LookAhead time.Duration
	Workers   int
	Logger    *slog.Logger
	Now       func() time.Time
}

// UpcomingResult is what the calendar endpoint returns
type UpcomingResult struct {
	Items  []domain.CalendarEvent
	Cached bool
	Status domain.SyncStatus
}

// CalendarService syncs events from the association's CalDAV calendar
type CalendarService struct {
	settings     SettingsStore
	secrets      SecretKeeper
	newTransport TransportFactory
	cache        *cache.EventCache
	timezone     *time.Location
	lookBack     time.Duration
	lookAhead    time.Duration
	workers      int
	logger       *slog.Logger
	now          func() time.Time
}

// NewCalendarService creates a new calendar service
func NewCalendarService(settings SettingsStore, secrets SecretKeeper, newTransport TransportFactory, c *cache.EventCache, opts CalendarOptions) *CalendarService {
	if opts.Timezone == nil {
		opts.Timezone = time.UTC
	}
	if opts.LookBack <= 0 {
		opts.LookBack = DefaultLookBack
	}
	if opts.LookAhead <= 0 {
		opts.LookAhead = DefaultLookAhead
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultFetchWorkers
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if c == nil {
		c = cache.New(cache.DefaultTTL)
	}

	return &CalendarService{
		settings:     settings,
		secrets:      secrets,
		newTransport: newTransport,
		cache:        c,
		timezone:     opts.Timezone,
		lookBack:     opts.LookBack,
		lookAhead:    opts.LookAhead,
		workers:      opts.Workers,
		logger:       opts.Logger,
		now:          opts.Now,
	}
}

// Timezone returns the zone used for display strings
func (s *CalendarService) Timezone() *time.Location {
	return s.timezone
}

// loadSettings returns ErrNotConfigured when no usable record exists
func (s *CalendarService) loadSettings() (domain.CalendarSettings, error) {
	opt, err := s.settings.GetCalendarSettings()
	if err != nil {
		return domain.CalendarSettings{}, err
	}
	cs, ok := opt.Get()
	if !ok || cs.BaseURL == "" {
		return domain.CalendarSettings{}, ErrNotConfigured
	}
	return cs, nil
}

func (s *CalendarService) transportFor(cs domain.CalendarSettings) (Transport, error) {
	password, err := s.secrets.Reveal(cs.Password)
	if err != nil {
		return nil, fmt.Errorf("reveal calendar password: %w", err)
	}
	return s.newTransport(cs.Username, password), nil
}

// UpcomingEvents returns the events of the display window for a session.
// A valid cached list is returned without contacting the server.
// Remote failures never surface as errors; they yield fewer events and a
// degraded or unreachable status. The returned error is ErrNotConfigured,
// a settings store failure, or the context error if the request was aborted.
// A stored password that cannot be revealed counts as unreachable.
func (s *CalendarService) UpcomingEvents(ctx context.Context, sessionID string) (*UpcomingResult, error) {
	cs, err := s.loadSettings()
	if err != nil {
		return &UpcomingResult{Items: []domain.CalendarEvent{}}, err
	}

	collectionURL := cs.CollectionURL()
	key := cache.Key(collectionURL)

	if cached, ok := s.cache.Get(sessionID, key); ok {
		return &UpcomingResult{Items: cached.Items, Cached: true, Status: cached.Status}, nil
	}

	transport, err := s.transportFor(cs)
	if err != nil {
		// a key change or a corrupted record; nothing is sent to the server
		s.logger.Warn("calendar credentials unusable", "collection", collectionURL, "error", err)
		return &UpcomingResult{Items: []domain.CalendarEvent{}, Status: domain.SyncUnreachable}, nil
	}

	events, status := s.sync(ctx, transport, collectionURL)
	if err := ctx.Err(); err != nil {
		return &UpcomingResult{Items: []domain.CalendarEvent{}}, err
	}

	now := s.now()
	items := FilterWindow(events, now, s.lookBack, s.lookAhead)

	s.cache.Put(sessionID, key, &domain.CachedEventList{
		Timestamp: now,
		Items:     items,
		Status:    status,
	})

	s.logger.Info("calendar synced",
		"session", shortID(sessionID),
		"fetched", len(events),
		"shown", len(items),
		"status", status)

	return &UpcomingResult{Items: items, Cached: false, Status: status}, nil
}

// sync enumerates the collection and fetches every .ics member. The result
// keeps the order in which the server listed the resources.
func (s *CalendarService) sync(ctx context.Context, transport Transport, collectionURL string) ([]domain.CalendarEvent, domain.SyncStatus) {
	urls, err := transport.ListResources(ctx, collectionURL)
	if err != nil {
		s.logger.Warn("calendar enumeration failed", "collection", collectionURL, "error", err)
		return nil, domain.SyncUnreachable
	}

	slots := make([]mo.Option[domain.CalendarEvent], len(urls))
	var failed atomic.Int32

	g := new(errgroup.Group)
	g.SetLimit(s.workers)

	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}

			raw, err := transport.FetchObject(ctx, u)
			if err != nil {
				failed.Add(1)
				s.logger.Debug("calendar object skipped", "url", u, "error", err)
				return nil
			}

			event, ok := ics.ParseEvent(hrefPath(u), raw, s.timezone)
			if !ok {
				s.logger.Debug("calendar object incomplete", "url", u)
				return nil
			}
			slots[i] = mo.Some(event)
			return nil
		})
	}
	_ = g.Wait()

	events := make([]domain.CalendarEvent, 0, len(urls))
	for _, slot := range slots {
		if e, ok := slot.Get(); ok {
			events = append(events, e)
		}
	}

	status := domain.SyncOK
	if failed.Load() > 0 {
		status = domain.SyncDegraded
	}
	return events, status
}

// UpcomingWithin returns the events starting in the next d, reusing the
// session cache like UpcomingEvents
func (s *CalendarService) UpcomingWithin(ctx context.Context, sessionID string, d time.Duration) ([]domain.CalendarEvent, error) {
	res, err := s.UpcomingEvents(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	limit := now.Add(d)
	var result []domain.CalendarEvent
	for _, e := range res.Items {
		if e.Start.Instant.After(limit) {
			continue
		}
		if e.End.Instant.Before(now) && !ics.IsUnknown(e.End.Instant) {
			continue
		}
		result = append(result, e)
	}
	return result, nil
}

// ForgetSession drops the cached lists of a session, e.g. on logout
func (s *CalendarService) ForgetSession(sessionID string) {
	s.cache.DropSession(sessionID)
}

// SweepCache removes expired cache entries
func (s *CalendarService) SweepCache() int {
	return s.cache.Sweep()
}

// hrefPath returns the escaped path of an absolute resource URL
func hrefPath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Path == "" {
		return raw
	}
	return u.EscapedPath()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
