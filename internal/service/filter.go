package service

import (
	"sort"
	"time"

	"github.com/vereinsportal/portal/internal/domain"
	"github.com/vereinsportal/portal/internal/ics"
)

const (
	DefaultLookBack  = 24 * time.Hour
	DefaultLookAhead = 60 * 24 * time.Hour
)

// FilterWindow keeps events starting within [now-lookBack, now+lookAhead]
// and sorts them by start. Events with equal starts keep their input order.
// Events whose start could not be parsed are dropped.
func FilterWindow(events []domain.CalendarEvent, now time.Time, lookBack, lookAhead time.Duration) []domain.CalendarEvent {
	from := now.Add(-lookBack)
	to := now.Add(lookAhead)

	result := make([]domain.CalendarEvent, 0, len(events))
	for _, e := range events {
		start := e.Start.Instant
		if ics.IsUnknown(start) {
			continue
		}
		if start.Before(from) || start.After(to) {
			continue
		}
		result = append(result, e)
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Start.Instant.Before(result[j].Start.Instant)
	})

	return result
}
