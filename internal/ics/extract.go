// Package ics reads the handful of VEVENT fields the portal displays.
//
// It is a deliberately small line tokenizer, not an RFC 5545 parser:
// folded continuation lines are not unfolded, only the first VEVENT of a
// payload is read, property parameters are discarded, and every property
// keeps its first occurrence only.
package ics

import (
	"strings"
	"time"

	"github.com/vereinsportal/portal/internal/domain"
)

const (
	PropSummary     = "SUMMARY"
	PropDTStart     = "DTSTART"
	PropDTEnd       = "DTEND"
	PropLocation    = "LOCATION"
	PropDescription = "DESCRIPTION"
	PropUID         = "UID"
)

// Properties maps an upper-case property name to its raw value
type Properties map[string]string

// Get returns the raw value of name, or an empty string
func (p Properties) Get(name string) string {
	return p[strings.ToUpper(name)]
}

// splitLine splits "NAME;PARAM=x:value" into name and value.
// Colons inside quoted parameter values do not end the name part.
func splitLine(line string) (name, value string, ok bool) {
	inQuotes := false
	nameEnd := -1
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '"':
			inQuotes = !inQuotes
		case ';':
			if nameEnd < 0 && !inQuotes {
				nameEnd = i
			}
		case ':':
			if inQuotes {
				continue
			}
			if nameEnd < 0 {
				nameEnd = i
			}
			name = strings.ToUpper(strings.TrimSpace(line[:nameEnd]))
			if name == "" {
				return "", "", false
			}
			return name, line[i+1:], true
		}
	}
	return "", "", false
}

// Tokenize collects the first occurrence of every property of the first
// VEVENT in raw. Payloads without a VEVENT block are read as a flat list of
// lines. Continuation lines (leading space or tab) are ignored.
func Tokenize(raw string) Properties {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	lines := strings.Split(raw, "\n")

	hasEvent := false
	for _, line := range lines {
		if strings.EqualFold(strings.TrimSpace(line), "BEGIN:VEVENT") {
			hasEvent = true
			break
		}
	}

	props := Properties{}
	depth := 0 // nesting below VEVENT, e.g. VALARM
	inEvent := !hasEvent

	for _, line := range lines {
		line = strings.TrimRight(line, "\r")
		if line == "" || line[0] == ' ' || line[0] == '\t' {
			continue
		}

		name, value, ok := splitLine(line)
		if !ok {
			continue
		}

		if hasEvent {
			switch name {
			case "BEGIN":
				if inEvent {
					depth++
				} else if strings.EqualFold(value, "VEVENT") {
					inEvent = true
				}
				continue
			case "END":
				if inEvent && depth > 0 {
					depth--
				} else if inEvent && strings.EqualFold(value, "VEVENT") {
					return props
				}
				continue
			}
			if !inEvent || depth > 0 {
				continue
			}
		}

		if _, seen := props[name]; !seen {
			props[name] = value
		}
	}

	return props
}

// ParseEvent extracts a CalendarEvent from a raw .ics payload. TEXT fields are
// unescaped and DTSTART/DTEND are normalized for display in loc. The second
// return value is false when SUMMARY, DTSTART or DTEND is missing.
func ParseEvent(href, raw string, loc *time.Location) (domain.CalendarEvent, bool) {
	props := Tokenize(raw)

	event := domain.CalendarEvent{
		Href:        href,
		UID:         strings.TrimSpace(props.Get(PropUID)),
		Summary:     Unescape(props.Get(PropSummary)),
		Location:    Unescape(props.Get(PropLocation)),
		Description: Unescape(props.Get(PropDescription)),
		Start:       eventTime(props.Get(PropDTStart), loc),
		End:         eventTime(props.Get(PropDTEnd), loc),
	}

	return event, event.IsComplete()
}

func eventTime(raw string, loc *time.Location) domain.EventTime {
	raw = strings.TrimSpace(raw)
	return domain.EventTime{
		Raw:     raw,
		Display: FormatDisplay(raw, loc),
		Instant: ParseInstant(raw, loc),
	}
}
