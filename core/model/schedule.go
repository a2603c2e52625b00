package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidRange is returned when a shift window's start time is not before
// its end time.
var ErrInvalidRange = errors.New("start time must be before end time")

// ErrInvalidWindow is returned when a date window is inverted or spans more
// than the single ISO week it was created for.
var ErrInvalidWindow = errors.New("invalid date window")

// WeeklyScheduleEntry is a dated shift window for one weekday within one
// specific calendar week. Entries are materialised per week, not stored as
// perpetual rules; the monthly propagator stamps a template onto concrete
// dates.
type WeeklyScheduleEntry struct {
	ID        int64
	DriverID  int64
	Weekday   time.Weekday
	StartTime ClockTime
	EndTime   ClockTime
	StartDate Date
	EndDate   Date
}

// Validate enforces the entry invariants: a forward shift window, a forward
// date window, and a window confined to one ISO week.
func (e WeeklyScheduleEntry) Validate() error {
	if !e.StartTime.Valid() || !e.EndTime.Valid() {
		return fmt.Errorf("entry for %s: time of day out of range", e.Weekday)
	}
	if e.StartTime >= e.EndTime {
		return fmt.Errorf("entry for %s: %w", e.Weekday, ErrInvalidRange)
	}
	if e.EndDate.Before(e.StartDate) {
		return fmt.Errorf("entry for %s: end date precedes start date: %w", e.Weekday, ErrInvalidWindow)
	}
	sy, sw := e.StartDate.ISOWeek()
	ey, ew := e.EndDate.ISOWeek()
	if sy != ey || sw != ew {
		return fmt.Errorf("entry for %s: window spans multiple weeks: %w", e.Weekday, ErrInvalidWindow)
	}
	return nil
}

// OverrideType classifies a per-date schedule exception.
type OverrideType string

const (
	OverrideSickLeave   OverrideType = "SICK_LEAVE"
	OverrideAnnualLeave OverrideType = "ANNUAL_LEAVE"
	OverrideCustomShift OverrideType = "CUSTOM_SHIFT"
)

// Valid reports whether t is a known override type.
func (t OverrideType) Valid() bool {
	switch t {
	case OverrideSickLeave, OverrideAnnualLeave, OverrideCustomShift:
		return true
	}
	return false
}

// Status maps a leave override to the driver status it implies.
func (t OverrideType) Status() DriverStatus {
	switch t {
	case OverrideSickLeave:
		return StatusSickLeave
	case OverrideAnnualLeave:
		return StatusAnnualLeave
	}
	return StatusAvailable
}

// ScheduleOverride is a per-date exception that outranks the weekly template
// and survives bulk propagation untouched. At most one override exists per
// driver and date; writing a new one replaces the old.
type ScheduleOverride struct {
	ID        int64
	DriverID  int64
	Date      Date
	Type      OverrideType
	StartTime *ClockTime
	EndTime   *ClockTime
}

// Validate checks the override shape. A custom shift must carry a forward
// time window; leave overrides apply to the whole day.
func (o ScheduleOverride) Validate() error {
	if !o.Type.Valid() {
		return fmt.Errorf("override on %s: unknown type %q", o.Date, o.Type)
	}
	if o.Date.IsZero() {
		return fmt.Errorf("override without a date")
	}
	if o.Type == OverrideCustomShift {
		if o.StartTime == nil || o.EndTime == nil {
			return fmt.Errorf("custom shift on %s: missing time window", o.Date)
		}
		if !o.StartTime.Valid() || !o.EndTime.Valid() {
			return fmt.Errorf("custom shift on %s: time of day out of range", o.Date)
		}
		if *o.StartTime >= *o.EndTime {
			return fmt.Errorf("custom shift on %s: %w", o.Date, ErrInvalidRange)
		}
	}
	return nil
}

// Covers reports whether the override admits work at the given time of day.
// Leave overrides cover nothing; a custom shift covers its window.
func (o ScheduleOverride) Covers(at ClockTime) bool {
	if o.Type != OverrideCustomShift || o.StartTime == nil || o.EndTime == nil {
		return false
	}
	return at >= *o.StartTime && at < *o.EndTime
}

// TemplateEntry is one weekday's shift in a weekly template handed to the
// monthly propagator.
type TemplateEntry struct {
	Weekday   time.Weekday
	StartTime ClockTime
	EndTime   ClockTime
}

// Validate checks the template entry's shift window.
func (t TemplateEntry) Validate() error {
	if !t.StartTime.Valid() || !t.EndTime.Valid() {
		return fmt.Errorf("template for %s: time of day out of range", t.Weekday)
	}
	if t.StartTime >= t.EndTime {
		return fmt.Errorf("template for %s: %w", t.Weekday, ErrInvalidRange)
	}
	return nil
}
