package core

import (
	"errors"
	"time"
)

// ReferenceZone is the single zone used to decide the calendar date of an
// instant. It is a fixed UTC+7 offset (WIB) so that date comparisons never
// depend on the host's tzdata or on daylight saving.
var ReferenceZone = time.FixedZone("WIB", 7*60*60)

const dateLayout = "2006-01-02"

// Date is a calendar day in ReferenceZone, stored as its midnight.
type Date struct {
	time.Time
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, ReferenceZone)}
}

// DateOf returns the calendar day t falls on in ReferenceZone.
func DateOf(t time.Time) Date {
	y, m, d := t.In(ReferenceZone).Date()
	return NewDate(y, int(m), d)
}

// ParseDate parses a YYYY-MM-DD day.
func ParseDate(s string) (Date, error) {
	t, err := time.ParseInLocation(dateLayout, s, ReferenceZone)
	if err != nil {
		return Date{}, errors.Join(ErrInvalidArgument, err)
	}
	return Date{Time: t}, nil
}

// AddDays moves by whole calendar days.
func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

// DaysSince returns the number of calendar days from other to d.
func (d Date) DaysSince(other Date) int {
	return int(d.dayNumber() - other.dayNumber())
}

// Start returns the first instant of the day.
func (d Date) Start() time.Time {
	return d.Time
}

func (d Date) String() string {
	return d.Format(dateLayout)
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	v, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// MarshalJSON and UnmarshalJSON shadow the methods promoted from time.Time.
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return errors.Join(ErrInvalidArgument, errors.New("date must be a string"))
	}
	return d.UnmarshalText([]byte(s[1 : len(s)-1]))
}

func (d Date) dayNumber() int64 {
	y, m, day := d.Date()
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC).Unix() / 86400
}
