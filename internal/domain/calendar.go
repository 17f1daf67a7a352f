package domain

import (
	"strings"
	"time"
)

// CalendarSettings is the single CalDAV connection record managed by an administrator
type CalendarSettings struct {
	BaseURL      string // Absolute server URL without trailing slash
	CalendarPath string // Collection path without leading slash
	Username     string
	Password     string // Sealed secret, never log or echo
	DisplayName  string
	UpdatedAt    time.Time
}

// CollectionURL returns the full URL of the configured calendar collection
func (s *CalendarSettings) CollectionURL() string {
	base := strings.TrimRight(s.BaseURL, "/")
	path := strings.TrimLeft(s.CalendarPath, "/")
	if path == "" {
		return base + "/"
	}
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}
	return base + "/" + path
}

// Normalize trims the URL and path into their stored form
func (s *CalendarSettings) Normalize() {
	s.BaseURL = strings.TrimRight(strings.TrimSpace(s.BaseURL), "/")
	s.CalendarPath = strings.TrimLeft(strings.TrimSpace(s.CalendarPath), "/")
	s.Username = strings.TrimSpace(s.Username)
	s.DisplayName = strings.TrimSpace(s.DisplayName)
}

// EventTime keeps a DTSTART/DTEND value in raw and display form
type EventTime struct {
	Raw     string    // Value as found in the ICS payload
	Display string    // dd.mm.yyyy or dd.mm.yyyy HH:MM
	Instant time.Time // Used for filtering and sorting only
}

// CalendarEvent is an event fetched from the remote calendar
type CalendarEvent struct {
	Href        string
	UID         string // UID property of the source object, may be empty
	Summary     string
	Location    string
	Description string
	Start       EventTime
	End         EventTime
}

// IsComplete reports whether the required fields survived extraction
func (e *CalendarEvent) IsComplete() bool {
	return e.Summary != "" && e.Start.Raw != "" && e.End.Raw != ""
}

// IsAllDay returns true if the event starts on a DATE value
func (e *CalendarEvent) IsAllDay() bool {
	return !strings.Contains(e.Start.Display, ":")
}

// SyncStatus describes how complete the last sync pass was
type SyncStatus string

const (
	SyncOK          SyncStatus = "ok"
	SyncDegraded    SyncStatus = "degraded"    // some resources could not be fetched
	SyncUnreachable SyncStatus = "unreachable" // collection could not be enumerated
)

// CachedEventList is the result of one sync pass
type CachedEventList struct {
	Timestamp time.Time
	Items     []CalendarEvent
	Status    SyncStatus
}

// IsValid reports whether the list may be served without a remote fetch
func (l *CachedEventList) IsValid(now time.Time, ttl time.Duration) bool {
	return now.Sub(l.Timestamp) < ttl
}
