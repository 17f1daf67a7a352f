package ics

import (
	"fmt"
	"testing"
	"time"

	"github.com/emersion/go-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	require.NoError(t, err)
	return loc
}

func TestFormatDisplay_Date(t *testing.T) {
	berlin := mustLoad(t, "Europe/Berlin")

	tests := []struct {
		value string
		want  string
	}{
		{"20250115", "15.01.2025"},
		{"20240229", "29.02.2024"},
		{"19991231", "31.12.1999"},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatDisplay(tt.value, berlin))
			assert.Equal(t, tt.want, FormatDisplay(tt.value, time.UTC))
		})
	}
}

func TestFormatDisplay_DateMatchesReferenceLibrary(t *testing.T) {
	start := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	for day := 0; day < 366; day += 7 {
		d := start.AddDate(0, 0, day)

		prop := ical.NewProp(ical.PropDateTimeStart)
		prop.SetDate(d)

		parsed, err := prop.DateTime(time.UTC)
		require.NoError(t, err)

		display := FormatDisplay(prop.Value, time.UTC)
		assert.Equal(t, parsed.Format("02.01.2006"), display, "value %s", prop.Value)

		again := ParseInstant(prop.Value, time.UTC)
		assert.Equal(t, parsed.YearDay(), again.YearDay())
		assert.Equal(t, parsed.Year(), again.Year())
	}
}

func TestParseInstant_UTCIndependentOfZone(t *testing.T) {
	zones := []string{"UTC", "Europe/Berlin", "America/New_York", "Asia/Tokyo"}
	want := time.Date(2025, time.January, 15, 17, 0, 0, 0, time.UTC)

	for _, z := range zones {
		loc := mustLoad(t, z)
		got := ParseInstant("20250115T170000Z", loc)
		assert.True(t, want.Equal(got), "zone %s: got %v", z, got)
	}
}

func TestFormatDisplay_UTCShiftsIntoZone(t *testing.T) {
	assert.Equal(t, "15.01.2025 17:00", FormatDisplay("20250115T170000Z", time.UTC))
	assert.Equal(t, "15.01.2025 18:00", FormatDisplay("20250115T170000Z", mustLoad(t, "Europe/Berlin")))
	assert.Equal(t, "15.01.2025 12:00", FormatDisplay("20250115T170000Z", mustLoad(t, "America/New_York")))
	assert.Equal(t, "16.01.2025 02:00", FormatDisplay("20250115T170000Z", mustLoad(t, "Asia/Tokyo")))
	// summer time
	assert.Equal(t, "15.07.2025 19:00", FormatDisplay("20250715T170000Z", mustLoad(t, "Europe/Berlin")))
}

func TestFormatDisplay_FloatingIgnoresZone(t *testing.T) {
	for _, z := range []string{"UTC", "Europe/Berlin", "Pacific/Auckland"} {
		loc := mustLoad(t, z)
		assert.Equal(t, "15.01.2025 18:00", FormatDisplay("20250115T180000", loc), z)
		assert.Equal(t, "15.01.2025 18:00", FormatDisplay("20250115180000", loc), z)
	}
}

func TestParseInstant_FloatingUsesLocalFields(t *testing.T) {
	berlin := mustLoad(t, "Europe/Berlin")
	got := ParseInstant("20250115T180000", berlin)
	assert.True(t, time.Date(2025, 1, 15, 18, 0, 0, 0, berlin).Equal(got))
	assert.Equal(t, 18, got.In(berlin).Hour())
}

func TestMalformedValues(t *testing.T) {
	values := []string{
		"",
		"Z",
		"2025011",
		"202501150",
		"20250115T1800",
		"2025-01-15",
		"2025AB15",
		"20251315",
		"20250230",
		"20250115T256000",
		"not a date",
	}

	for _, v := range values {
		t.Run(fmt.Sprintf("%q", v), func(t *testing.T) {
			assert.NotPanics(t, func() {
				assert.Equal(t, "", FormatDisplay(v, time.UTC))
				assert.True(t, IsUnknown(ParseInstant(v, time.UTC)))
			})
		})
	}
}

func TestIsDate(t *testing.T) {
	assert.True(t, IsDate("20250115"))
	assert.False(t, IsDate("20250115T180000"))
	assert.False(t, IsDate("20250115T180000Z"))
	assert.False(t, IsDate("garbage"))
}
