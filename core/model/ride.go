package model

import (
	"fmt"
	"time"
)

// RideStatus is the lifecycle state of a ride, orthogonal to driver
// assignment.
type RideStatus string

const (
	RideIncomplete RideStatus = "INCOMPLETE"
	RideComplete   RideStatus = "COMPLETE"
	RideCancelled  RideStatus = "CANCELLED"
	RideRefunded   RideStatus = "REFUNDED"
)

// Valid reports whether s is a known ride status.
func (s RideStatus) Valid() bool {
	switch s {
	case RideIncomplete, RideComplete, RideCancelled, RideRefunded:
		return true
	}
	return false
}

// DefaultRideDuration bounds a ride whose end time was never recorded. Used
// both for availability windows and for the calendar event end.
const DefaultRideDuration = time.Hour

// Ride is a pet transport booking. DriverID is nil while unassigned;
// CalendarEventID is set once an external calendar event mirrors the booking
// and is only ever non-empty on an assigned ride.
type Ride struct {
	ID              int64
	CustomerID      int64
	DriverID        *int64
	PetName         string
	PickupLocation  string
	DropoffLocation string
	SpecialNotes    string
	Status          RideStatus
	ScheduledTime   time.Time
	RideEndTime     *time.Time
	CalendarEventID string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Assigned reports whether the ride currently has a driver.
func (r Ride) Assigned() bool { return r.DriverID != nil }

// Window returns the ride's occupancy window. When no end time was recorded
// the window extends defaultDur past the scheduled start; a non-positive
// defaultDur falls back to DefaultRideDuration.
func (r Ride) Window(defaultDur time.Duration) (time.Time, time.Time) {
	if r.RideEndTime != nil {
		return r.ScheduledTime, *r.RideEndTime
	}
	if defaultDur <= 0 {
		defaultDur = DefaultRideDuration
	}
	return r.ScheduledTime, r.ScheduledTime.Add(defaultDur)
}

// Covers reports whether the ride occupies the driver at instant t.
func (r Ride) Covers(t time.Time, defaultDur time.Duration) bool {
	start, end := r.Window(defaultDur)
	return !t.Before(start) && !t.After(end)
}

// Validate checks the ride record.
func (r Ride) Validate() error {
	if r.CustomerID == 0 {
		return fmt.Errorf("ride without a customer")
	}
	if r.ScheduledTime.IsZero() {
		return fmt.Errorf("ride without a scheduled time")
	}
	if r.Status != "" && !r.Status.Valid() {
		return fmt.Errorf("unknown ride status %q", r.Status)
	}
	if r.RideEndTime != nil && !r.RideEndTime.After(r.ScheduledTime) {
		return fmt.Errorf("ride end time must follow the scheduled time")
	}
	if r.CalendarEventID != "" && r.DriverID == nil {
		return fmt.Errorf("calendar event on an unassigned ride")
	}
	return nil
}
