package model

import (
	"fmt"
	"time"
)

// Date is a civil calendar date without a time zone. Schedule entries and
// overrides are keyed by Date so availability math does not shift across
// zones.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate builds a Date from its components.
func NewDate(year int, month time.Month, day int) Date {
	return Date{Year: year, Month: month, Day: day}
}

// DateOf truncates an instant to its calendar date.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses a date in YYYY-MM-DD form.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return DateOf(t), nil
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// UTC returns the date at midnight UTC.
func (d Date) UTC() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// Weekday returns the day of week the date falls on.
func (d Date) Weekday() time.Weekday { return d.UTC().Weekday() }

// ISOWeek returns the ISO 8601 year and week number.
func (d Date) ISOWeek() (int, int) { return d.UTC().ISOWeek() }

// AddDays returns the date shifted by n calendar days. Month and year
// boundaries are normalised.
func (d Date) AddDays(n int) Date {
	return DateOf(d.UTC().AddDate(0, 0, n))
}

func (d Date) Before(o Date) bool { return d.UTC().Before(o.UTC()) }

func (d Date) After(o Date) bool { return d.UTC().After(o.UTC()) }

func (d Date) Equal(o Date) bool { return d == o }

func (d Date) IsZero() bool { return d == Date{} }

// ClockTime is a time of day expressed as minutes since midnight. Shift
// windows carry ClockTime rather than full instants so a weekly template can
// be stamped onto any date.
type ClockTime int

// NewClockTime builds a ClockTime from hours and minutes.
func NewClockTime(hour, minute int) ClockTime {
	return ClockTime(hour*60 + minute)
}

// ParseClockTime parses a time of day in HH:MM form.
func ParseClockTime(s string) (ClockTime, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("parse clock time %q: %w", s, err)
	}
	return NewClockTime(t.Hour(), t.Minute()), nil
}

// Valid reports whether the value falls within a single day.
func (c ClockTime) Valid() bool { return c >= 0 && c < 24*60 }

func (c ClockTime) Hour() int { return int(c) / 60 }

func (c ClockTime) Minute() int { return int(c) % 60 }

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

// At anchors the time of day onto a concrete date, producing a UTC instant.
func (c ClockTime) At(d Date) time.Time {
	return time.Date(d.Year, d.Month, d.Day, c.Hour(), c.Minute(), 0, 0, time.UTC)
}
