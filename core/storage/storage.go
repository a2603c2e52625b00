// Package storage defines the persistence contracts the scheduling engine is
// built against. Implementations live under infra; the engine never touches a
// database handle directly.
package storage

import (
	"context"
	"time"

	"github.com/eldlit/pet-dispatch-deploy/core/model"
)

// DriverStore persists fleet members.
type DriverStore interface {
	// Driver returns one driver or ErrDriverNotFound.
	Driver(ctx context.Context, id int64) (model.Driver, error)
	// Drivers lists the whole fleet ordered by id.
	Drivers(ctx context.Context) ([]model.Driver, error)
	// CreateDriver inserts a driver and returns it with its id populated.
	CreateDriver(ctx context.Context, d model.Driver) (model.Driver, error)
	// SetBaseStatus updates the driver's manual fallback status.
	SetBaseStatus(ctx context.Context, id int64, status model.DriverStatus) error
	// DeleteDriver removes the driver together with its schedule entries,
	// overrides and credential.
	DeleteDriver(ctx context.Context, id int64) error
}

// RideStore persists bookings.
type RideStore interface {
	// Ride returns one ride or ErrRideNotFound.
	Ride(ctx context.Context, id int64) (model.Ride, error)
	// CreateRide inserts a ride and returns it with its id populated.
	CreateRide(ctx context.Context, r model.Ride) (model.Ride, error)
	// RidesAt returns the driver's assigned rides whose occupancy window
	// contains the instant. Rides without a recorded end use defaultDur.
	RidesAt(ctx context.Context, driverID int64, at time.Time, defaultDur time.Duration) ([]model.Ride, error)
	// NextRide returns the driver's earliest assigned ride scheduled
	// strictly after the instant, or nil.
	NextRide(ctx context.Context, driverID int64, after time.Time) (*model.Ride, error)
}

// ScheduleStore persists weekly shift entries and date overrides.
type ScheduleStore interface {
	// UpsertWeeklyEntries writes the batch in one transaction. Each entry
	// is keyed by (driver, weekday, startDate, endDate): a matching row
	// gets its times updated, otherwise the entry is inserted.
	UpsertWeeklyEntries(ctx context.Context, driverID int64, entries []model.WeeklyScheduleEntry) error
	// ReplaceOverrides writes the batch in one transaction with
	// last-write-wins semantics per (driver, date).
	ReplaceOverrides(ctx context.Context, driverID int64, overrides []model.ScheduleOverride) error
	// ApplyPlan commits a propagation diff as a single transaction. A crash
	// never leaves a partially applied month.
	ApplyPlan(ctx context.Context, driverID int64, inserts, updates []model.WeeklyScheduleEntry) error
	// EntriesInRange returns entries whose start date falls in [from, to].
	EntriesInRange(ctx context.Context, driverID int64, from, to model.Date) ([]model.WeeklyScheduleEntry, error)
	// OverridesInRange returns overrides dated within [from, to].
	OverridesInRange(ctx context.Context, driverID int64, from, to model.Date) ([]model.ScheduleOverride, error)
	// OverrideOn returns the override for one date, or nil.
	OverrideOn(ctx context.Context, driverID int64, date model.Date) (*model.ScheduleOverride, error)
}

// DispatchStore applies assignment state transitions atomically. Both
// operations bundle the ride mutation, the driver status update and the
// optional calendar outbox enqueue into one transaction.
type DispatchStore interface {
	// Assign binds the ride to the driver with a conditional update: it
	// fails with ErrAlreadyAssigned when the ride already carries a driver,
	// so two concurrent calls cannot both succeed. The driver status is set
	// to ON_RIDE in the same transaction, and job, when non-nil, is
	// enqueued with it.
	Assign(ctx context.Context, rideID, driverID int64, job *OutboxJob) error
	// Unassign clears the ride's driver and calendar event reference,
	// enqueues job when non-nil, and resets the driver to AVAILABLE when no
	// assigned rides remain. It returns the number of remaining assigned
	// rides.
	Unassign(ctx context.Context, rideID, driverID int64, job *OutboxJob) (int, error)
}

// CredentialStore persists calendar authorizations.
type CredentialStore interface {
	// Credential returns the driver's credential, or nil when the driver
	// never started the authorization flow.
	Credential(ctx context.Context, driverID int64) (*model.CalendarCredential, error)
	// UpsertCredential inserts or replaces the driver's credential.
	UpsertCredential(ctx context.Context, cred model.CalendarCredential) error
}

// OutboxStore persists pending calendar synchronisation jobs.
type OutboxStore interface {
	// ClaimJob moves one pending job to in-flight and returns it, or
	// ErrJobNotFound.
	ClaimJob(ctx context.Context, id string) (OutboxJob, error)
	// ClaimBatch moves up to limit pending jobs to in-flight.
	ClaimBatch(ctx context.Context, limit int) ([]OutboxJob, error)
	// MarkCreated completes a create job and persists the event reference
	// on the ride in the same transaction.
	MarkCreated(ctx context.Context, id string, rideID int64, eventRef string) error
	// MarkDone completes a job without touching any ride.
	MarkDone(ctx context.Context, id string) error
	// MarkFailed returns a job to pending, recording the failure.
	MarkFailed(ctx context.Context, id string, reason string) error
	// PendingCount reports how many jobs await synchronisation.
	PendingCount(ctx context.Context) (int, error)
}
