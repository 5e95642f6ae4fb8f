package attendance

import "time"

const (
	dateLayout  = "2006-01-02"
	clockLayout = "15:04:05"
)

// WorkDate is the local calendar date of t, stored as UTC midnight so it
// compares equal regardless of the zone it was derived in.
func WorkDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses YYYY-MM-DD into a work date.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(dateLayout, s, time.UTC)
}

// ClockString formats t as local wall-clock time in loc.
func ClockString(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(clockLayout)
}
