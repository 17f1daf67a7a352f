package ics

import (
	"strings"
	"time"
)

const (
	dateLayout     = "20060102"
	dateTimeLayout = "20060102150405"

	displayDate     = "02.01.2006"
	displayDateTime = "02.01.2006 15:04"
)

// Unknown is the instant returned for values that cannot be parsed.
// It sorts before every real event and never falls inside a display window.
var Unknown = time.Unix(0, 0).UTC()

// IsUnknown reports whether t is the sentinel for an unparseable value
func IsUnknown(t time.Time) bool {
	return t.IsZero() || t.Equal(Unknown)
}

// splitValue strips the UTC marker and the T separator from an iCal
// DATE or DATE-TIME value. It returns the digits, whether the value was UTC,
// and the matching layout (empty if the shape is wrong).
func splitValue(value string) (digits string, utc bool, layout string) {
	v := strings.TrimSpace(value)
	if strings.HasSuffix(v, "Z") || strings.HasSuffix(v, "z") {
		utc = true
		v = v[:len(v)-1]
	}
	v = strings.Replace(v, "T", "", 1)

	switch len(v) {
	case len(dateLayout):
		layout = dateLayout
	case len(dateTimeLayout):
		layout = dateTimeLayout
	default:
		return "", utc, ""
	}

	for _, r := range v {
		if r < '0' || r > '9' {
			return "", utc, ""
		}
	}
	return v, utc, layout
}

func parse(value string, floating *time.Location) (t time.Time, layout string, ok bool) {
	digits, utc, layout := splitValue(value)
	if layout == "" {
		return Unknown, "", false
	}

	loc := floating
	if utc || loc == nil {
		loc = time.UTC
	}

	t, err := time.ParseInLocation(layout, digits, loc)
	if err != nil {
		return Unknown, "", false
	}
	return t, layout, true
}

// ParseInstant converts an iCal date value into an absolute instant.
// Values with a trailing Z are UTC. Floating values (no Z) take their fields
// literally in loc, the zone the consumer runs in. Malformed input yields
// Unknown; the function never fails.
func ParseInstant(value string, loc *time.Location) time.Time {
	t, _, _ := parse(value, loc)
	return t
}

// FormatDisplay renders an iCal date value as dd.mm.yyyy or dd.mm.yyyy HH:MM.
// UTC values are shifted into loc before rendering; floating values keep
// their literal fields. Malformed input yields an empty string.
func FormatDisplay(value string, loc *time.Location) string {
	t, layout, ok := parse(value, time.UTC)
	if !ok {
		return ""
	}

	if _, utc, _ := splitValue(value); utc && loc != nil {
		t = t.In(loc)
	}

	if layout == dateLayout {
		return t.Format(displayDate)
	}
	return t.Format(displayDateTime)
}

// IsDate returns true if the value carries no time of day
func IsDate(value string) bool {
	_, _, layout := splitValue(value)
	return layout == dateLayout
}
