package domain

import (
	"time"

	dErrors "kiosk/pkg/domain-errors"
)

// DayLayout is the wire format of a calendar day.
const DayLayout = "2006-01-02"

// Day is a calendar date without a time of day. The zero value is not a valid day.
//
// Days are stored as UTC midnight so that equality and ordering are plain
// time comparisons regardless of the location they were derived in.
type Day struct {
	t time.Time
}

// NewDay builds a Day from its components.
func NewDay(year int, month time.Month, day int) Day {
	return Day{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DayOf returns the calendar day of t as observed in loc.
func DayOf(t time.Time, loc *time.Location) Day {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return NewDay(y, m, d)
}

// ParseDay parses a YYYY-MM-DD string.
func ParseDay(s string) (Day, error) {
	t, err := time.Parse(DayLayout, s)
	if err != nil {
		return Day{}, dErrors.New(dErrors.CodeValidation, "date must use the YYYY-MM-DD format")
	}
	return Day{t: t}, nil
}

// DayFromTime converts a stored DATE column value (midnight in any location).
func DayFromTime(t time.Time) Day {
	y, m, d := t.Date()
	return NewDay(y, m, d)
}

func (d Day) IsZero() bool                { return d.t.IsZero() }
func (d Day) Time() time.Time             { return d.t }
func (d Day) String() string              { return d.t.Format(DayLayout) }
func (d Day) Equal(other Day) bool        { return d.t.Equal(other.t) }
func (d Day) Before(other Day) bool       { return d.t.Before(other.t) }
func (d Day) After(other Day) bool        { return d.t.After(other.t) }
func (d Day) AddDays(n int) Day           { return Day{t: d.t.AddDate(0, 0, n)} }
func (d Day) Format(layout string) string { return d.t.Format(layout) }

// DaysUntil returns the number of whole days from d to other (negative if other is earlier).
// Computed on unix seconds since time.Duration saturates near 292 years.
func (d Day) DaysUntil(other Day) int {
	return int((other.t.Unix() - d.t.Unix()) / secondsPerDay)
}

const secondsPerDay = 24 * 60 * 60

// MarshalText renders the day as YYYY-MM-DD.
func (d Day) MarshalText() ([]byte, error) {
	if d.IsZero() {
		return []byte{}, nil
	}
	return []byte(d.String()), nil
}

// UnmarshalText parses YYYY-MM-DD.
func (d *Day) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = Day{}
		return nil
	}
	parsed, err := ParseDay(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
