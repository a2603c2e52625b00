package storage

import "errors"

var (
	// ErrDriverNotFound is returned when an operation references an unknown
	// driver.
	ErrDriverNotFound = errors.New("driver not found")
	// ErrRideNotFound is returned when an operation references an unknown
	// ride.
	ErrRideNotFound = errors.New("ride not found")
	// ErrAlreadyAssigned is returned when a conditional assignment loses:
	// the ride already carries a driver.
	ErrAlreadyAssigned = errors.New("ride already assigned")
	// ErrNotAssigned is returned when an unassignment names a driver the
	// ride is not assigned to.
	ErrNotAssigned = errors.New("ride not assigned to driver")
	// ErrJobNotFound is returned when an outbox job id is unknown or the
	// job was already claimed.
	ErrJobNotFound = errors.New("outbox job not found")
)
