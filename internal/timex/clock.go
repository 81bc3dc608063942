package timex

import "time"

// DefaultBusinessZone is the zone in which calendar-day comparisons are made
// when nothing else is configured.
const DefaultBusinessZone = "Asia/Shanghai"

// Clock returns the current time. Services take a Clock so tests can pin it.
type Clock func() time.Time

// LoadZone resolves name via the tz database. If the database is unavailable
// the default zone falls back to a fixed UTC+8 offset.
func LoadZone(name string) (*time.Location, error) {
	if name == "" {
		name = DefaultBusinessZone
	}
	loc, err := time.LoadLocation(name)
	if err == nil {
		return loc, nil
	}
	if name == DefaultBusinessZone {
		return time.FixedZone("CST", 8*60*60), nil
	}
	return nil, err
}

// Day truncates t to midnight of its calendar day in loc.
func Day(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// NotBeforeDay reports whether the calendar day of deadline (in loc) is on or
// after the calendar day of now (in loc).
func NotBeforeDay(deadline, now time.Time, loc *time.Location) bool {
	return !Day(deadline, loc).Before(Day(now, loc))
}

// DateIn reinterprets the calendar date of t (as stored, ignoring its zone)
// as midnight in loc. DATE columns come back as UTC midnight.
func DateIn(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
