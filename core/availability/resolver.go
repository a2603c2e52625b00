// Package availability derives a driver's effective status at an arbitrary
// instant. The persisted Driver.Status is a manual fallback that can drift
// from bookings; every scheduling decision goes through the resolver instead.
package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/eldlit/pet-dispatch-deploy/core/clock"
	"github.com/eldlit/pet-dispatch-deploy/core/logger"
	"github.com/eldlit/pet-dispatch-deploy/core/model"
	"github.com/eldlit/pet-dispatch-deploy/core/storage"
)

// ConflictError reports overlapping assigned rides for one driver. The
// resolver never picks a winner; the conflict is surfaced so an operator can
// repair the data.
type ConflictError struct {
	DriverID int64
	RideIDs  []int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("driver %d has %d overlapping rides: %v", e.DriverID, len(e.RideIDs), e.RideIDs)
}

// Snapshot is one row of the dispatch board.
type Snapshot struct {
	DriverID int64
	Name     string
	Status   model.DriverStatus
	NextRide *model.Ride
	// Conflict is set instead of Status when the driver's bookings overlap.
	Conflict *ConflictError
}

// Resolver computes effective driver status from rides, overrides and the
// base status, in that priority order.
type Resolver struct {
	drivers    storage.DriverStore
	rides      storage.RideStore
	schedule   storage.ScheduleStore
	clk        clock.Clock
	defaultDur time.Duration
	log        logger.Logger
}

// NewResolver creates a resolver. A non-positive defaultDur falls back to
// model.DefaultRideDuration for rides without a recorded end time.
func NewResolver(drivers storage.DriverStore, rides storage.RideStore, schedule storage.ScheduleStore, clk clock.Clock, defaultDur time.Duration, log logger.Logger) (*Resolver, error) {
	if drivers == nil || rides == nil || schedule == nil || clk == nil {
		return nil, fmt.Errorf("availability: nil parameter provided to NewResolver")
	}
	if defaultDur <= 0 {
		defaultDur = model.DefaultRideDuration
	}
	return &Resolver{drivers: drivers, rides: rides, schedule: schedule, clk: clk, defaultDur: defaultDur, log: log}, nil
}

// Resolve returns the driver's effective status at the given instant.
// Priority: an active ride wins, then a date override, then the persisted
// base status. Overlapping rides yield a ConflictError.
func (r *Resolver) Resolve(ctx context.Context, driverID int64, at time.Time) (model.DriverStatus, error) {
	driver, err := r.drivers.Driver(ctx, driverID)
	if err != nil {
		return "", err
	}

	at = at.UTC()
	active, err := r.rides.RidesAt(ctx, driverID, at, r.defaultDur)
	if err != nil {
		return "", fmt.Errorf("rides at %s: %w", at, err)
	}
	if len(active) > 1 {
		ids := make([]int64, 0, len(active))
		for _, ride := range active {
			ids = append(ids, ride.ID)
		}
		return "", &ConflictError{DriverID: driverID, RideIDs: ids}
	}
	if len(active) == 1 {
		return model.StatusOnRide, nil
	}

	override, err := r.schedule.OverrideOn(ctx, driverID, model.DateOf(at))
	if err != nil {
		return "", fmt.Errorf("override lookup: %w", err)
	}
	if override != nil {
		if override.Type == model.OverrideCustomShift {
			// The day is an exception: the weekly template does not
			// apply outside the custom window.
			if override.Covers(model.NewClockTime(at.Hour(), at.Minute())) {
				return model.StatusAvailable, nil
			}
			return model.StatusOffline, nil
		}
		return override.Type.Status(), nil
	}

	// ON_RIDE is derived from bookings in the first step; a cached value
	// written by an assignment never decides on its own.
	if driver.Status.Valid() && driver.Status != model.StatusOnRide {
		return driver.Status, nil
	}
	return model.StatusAvailable, nil
}

// NextRide returns the driver's earliest assigned ride scheduled strictly
// after the instant, or nil when none is upcoming.
func (r *Resolver) NextRide(ctx context.Context, driverID int64, after time.Time) (*model.Ride, error) {
	return r.rides.NextRide(ctx, driverID, after.UTC())
}

// Board resolves every driver at the given instant and pairs the status with
// the next upcoming ride. A per-driver booking conflict is recorded on the
// snapshot rather than failing the whole board.
func (r *Resolver) Board(ctx context.Context, at time.Time) ([]Snapshot, error) {
	drivers, err := r.drivers.Drivers(ctx)
	if err != nil {
		return nil, err
	}
	board := make([]Snapshot, 0, len(drivers))
	for _, d := range drivers {
		snap := Snapshot{DriverID: d.ID, Name: d.Name}
		status, err := r.Resolve(ctx, d.ID, at)
		if conflict, ok := err.(*ConflictError); ok {
			snap.Conflict = conflict
			if r.log != nil {
				r.log.Warnf("booking conflict for driver %d: %v", d.ID, conflict.RideIDs)
			}
		} else if err != nil {
			return nil, fmt.Errorf("resolve driver %d: %w", d.ID, err)
		} else {
			snap.Status = status
		}
		next, err := r.NextRide(ctx, d.ID, at)
		if err != nil {
			return nil, fmt.Errorf("next ride for driver %d: %w", d.ID, err)
		}
		snap.NextRide = next
		board = append(board, snap)
	}
	return board, nil
}

// Now exposes the resolver's clock, so callers compose board queries for the
// current instant without holding their own time source.
func (r *Resolver) Now() time.Time { return r.clk.Now() }
