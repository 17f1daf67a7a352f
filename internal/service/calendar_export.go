package service

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-ical"

	"github.com/vereinsportal/portal/internal/domain"
	"github.com/vereinsportal/portal/internal/ics"
)

const productID = "-//Vereinsportal//Kalender//DE"

// emptyCalendar is served when the window has no events; the go-ical
// encoder rejects a VCALENDAR without components.
const emptyCalendar = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:" + productID + "\r\n" +
	"END:VCALENDAR\r\n"

// ExportICS serializes events into a single VCALENDAR
func (s *CalendarService) ExportICS(events []domain.CalendarEvent) (string, error) {
	if len(events) == 0 {
		return emptyCalendar, nil
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)

	stamp := s.now().UTC()
	for _, e := range events {
		cal.Children = append(cal.Children, s.eventToICS(e, stamp).Component)
	}

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return "", fmt.Errorf("encode calendar: %w", err)
	}
	return buf.String(), nil
}

func (s *CalendarService) eventToICS(e domain.CalendarEvent, stamp time.Time) *ical.Event {
	vevent := ical.NewEvent()
	vevent.Props.SetText(ical.PropUID, eventUID(e))
	vevent.Props.SetDateTime(ical.PropDateTimeStamp, stamp)
	vevent.Props.SetText(ical.PropSummary, e.Summary)
	if e.Location != "" {
		vevent.Props.SetText(ical.PropLocation, e.Location)
	}
	if e.Description != "" {
		vevent.Props.SetText(ical.PropDescription, e.Description)
	}

	setEventTime(vevent, ical.PropDateTimeStart, e.Start)
	setEventTime(vevent, ical.PropDateTimeEnd, e.End)

	return vevent
}

func setEventTime(vevent *ical.Event, name string, t domain.EventTime) {
	if ics.IsUnknown(t.Instant) {
		return
	}
	if ics.IsDate(t.Raw) {
		vevent.Props.SetDate(name, t.Instant)
		return
	}
	vevent.Props.SetDateTime(name, t.Instant.UTC())
}

// eventUID keeps the source UID; objects without one get a digest of
// their full href
func eventUID(e domain.CalendarEvent) string {
	if e.UID != "" {
		return e.UID
	}
	sum := sha256.Sum256([]byte(e.Href))
	return hex.EncodeToString(sum[:12]) + "@vereinsportal"
}

// FormatEventList renders events as a chat message grouped by day
func FormatEventList(events []domain.CalendarEvent) string {
	if len(events) == 0 {
		return "Keine Termine"
	}

	var sb strings.Builder
	var currentDate string

	for _, e := range events {
		day, clock := splitDisplay(e.Start.Display)

		if day != currentDate {
			if currentDate != "" {
				sb.WriteString("\n")
			}
			sb.WriteString(fmt.Sprintf("📅 %s, %s:\n", day, weekdayOf(day)))
			currentDate = day
		}

		var line string
		if clock == "" {
			line = fmt.Sprintf("  🗓 %s (ganztägig)", e.Summary)
		} else {
			line = fmt.Sprintf("  %s - %s", clock, e.Summary)
		}

		if e.Location != "" {
			line += fmt.Sprintf(" 📍%s", e.Location)
		}

		sb.WriteString(line + "\n")
	}

	return sb.String()
}

func splitDisplay(display string) (day, clock string) {
	day, clock, _ = strings.Cut(display, " ")
	return day, clock
}

// weekdayOf names the weekday of a dd.mm.yyyy display date
func weekdayOf(day string) string {
	t, err := time.Parse("02.01.2006", day)
	if err != nil {
		return "?"
	}
	days := []string{"Sonntag", "Montag", "Dienstag", "Mittwoch", "Donnerstag", "Freitag", "Samstag"}
	return days[t.Weekday()]
}
