package model

import (
	"fmt"
	"time"
)

// DriverStatus is the persisted base status of a driver. It acts as a manual
// fallback only: the availability resolver derives the effective status from
// rides and overrides and consults this field last.
type DriverStatus string

const (
	StatusAvailable   DriverStatus = "AVAILABLE"
	StatusOnRide      DriverStatus = "ON_RIDE"
	StatusSickLeave   DriverStatus = "SICK_LEAVE"
	StatusAnnualLeave DriverStatus = "ANNUAL_LEAVE"
	StatusOffline     DriverStatus = "OFFLINE"
)

// Valid reports whether s is one of the known statuses.
func (s DriverStatus) Valid() bool {
	switch s {
	case StatusAvailable, StatusOnRide, StatusSickLeave, StatusAnnualLeave, StatusOffline:
		return true
	}
	return false
}

// OnLeave reports whether the status blocks ride assignment.
func (s DriverStatus) OnLeave() bool {
	return s == StatusSickLeave || s == StatusAnnualLeave
}

// Driver is a member of the transport fleet.
type Driver struct {
	ID        int64
	Name      string
	Phone     string
	Email     string
	Status    DriverStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks that the driver record is sound.
func (d Driver) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("driver name must not be empty")
	}
	if d.Status != "" && !d.Status.Valid() {
		return fmt.Errorf("unknown driver status %q", d.Status)
	}
	return nil
}
