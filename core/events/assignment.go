package events

import "time"

// AssignmentEvent is published when a ride is bound to a driver.
type AssignmentEvent struct {
	RideID        int64
	DriverID      int64
	ScheduledTime time.Time
	// Reassigned is true when the binding replaced a previous driver.
	Reassigned bool
}

// UnassignmentEvent is published when a ride is released from a driver.
// Remaining counts the driver's other assigned rides after the release.
type UnassignmentEvent struct {
	RideID    int64
	DriverID  int64
	Remaining int
}

// ConflictEvent is published when the availability resolver detects
// overlapping bookings for one driver.
type ConflictEvent struct {
	DriverID int64
	RideIDs  []int64
}
