package executor

import (
	"strings"
	"time"

	"github.com/ricesearch/quickquery/internal/docstore"
	"github.com/ricesearch/quickquery/internal/query"
)

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseDate accepts the date encodings found in stored documents: native
// times, epoch milliseconds, {seconds, nanoseconds} timestamps and strings.
func parseDate(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case *time.Time:
		if t == nil || t.IsZero() {
			return time.Time{}, false
		}
		return *t, true
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed, true
			}
		}
		return time.Time{}, false
	case map[string]any:
		return parseTimestamp(t)
	}

	if ms, ok := docstore.ToFloat(v); ok {
		return time.UnixMilli(int64(ms)).UTC(), true
	}
	return time.Time{}, false
}

func parseTimestamp(m map[string]any) (time.Time, bool) {
	secs, ok := docstore.ToFloat(first(m, "seconds", "_seconds"))
	if !ok {
		return time.Time{}, false
	}
	nanos, _ := docstore.ToFloat(first(m, "nanoseconds", "_nanoseconds"))
	return time.Unix(int64(secs), int64(nanos)).UTC(), true
}

func first(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v
		}
	}
	return nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func startOfWeek(t time.Time) time.Time {
	day := startOfDay(t)
	offset := (int(day.Weekday()) + 6) % 7 // Monday = 0
	return day.AddDate(0, 0, -offset)
}

func startOfMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
}

// periodWindow returns the half-open [start, end) range for a period. No
// period means the seven days starting today.
func periodWindow(p query.TimePeriod, now time.Time) (time.Time, time.Time) {
	today := startOfDay(now)
	switch p {
	case query.PeriodToday:
		return today, today.AddDate(0, 0, 1)
	case query.PeriodTomorrow:
		return today.AddDate(0, 0, 1), today.AddDate(0, 0, 2)
	case query.PeriodThisWeek:
		w := startOfWeek(now)
		return w, w.AddDate(0, 0, 7)
	case query.PeriodNextWeek:
		w := startOfWeek(now).AddDate(0, 0, 7)
		return w, w.AddDate(0, 0, 7)
	case query.PeriodThisMonth:
		m := startOfMonth(now)
		return m, m.AddDate(0, 1, 0)
	case query.PeriodLastMonth:
		m := startOfMonth(now)
		return m.AddDate(0, -1, 0), m
	}
	return today, today.AddDate(0, 0, 7)
}

func inWindow(t, start, end time.Time) bool {
	return !t.Before(start) && t.Before(end)
}
