// Package engine is the composition root for scheduling and dispatch. It
// validates incoming mutations, then delegates to the resolver, propagator
// and coordinator that own the respective semantics.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/eldlit/pet-dispatch-deploy/core/availability"
	"github.com/eldlit/pet-dispatch-deploy/core/dispatch"
	"github.com/eldlit/pet-dispatch-deploy/core/logger"
	"github.com/eldlit/pet-dispatch-deploy/core/model"
	"github.com/eldlit/pet-dispatch-deploy/core/schedule"
	"github.com/eldlit/pet-dispatch-deploy/core/storage"
)

// Engine exposes the scheduling and dispatch operations as one façade.
type Engine struct {
	resolver    *availability.Resolver
	propagator  *schedule.Propagator
	coordinator *dispatch.Coordinator
	schedules   storage.ScheduleStore
	creds       storage.CredentialStore
	log         logger.Logger
}

// New builds an Engine.
func New(resolver *availability.Resolver, propagator *schedule.Propagator, coordinator *dispatch.Coordinator, schedules storage.ScheduleStore, creds storage.CredentialStore, log logger.Logger) (*Engine, error) {
	if resolver == nil || propagator == nil || coordinator == nil || schedules == nil || creds == nil {
		return nil, fmt.Errorf("engine: nil component provided to New")
	}
	return &Engine{
		resolver:    resolver,
		propagator:  propagator,
		coordinator: coordinator,
		schedules:   schedules,
		creds:       creds,
		log:         log,
	}, nil
}

// Now returns the current instant from the injected clock.
func (e *Engine) Now() time.Time { return e.resolver.Now() }

// Board returns every driver's effective status and next ride at the current
// instant.
func (e *Engine) Board(ctx context.Context) ([]availability.Snapshot, error) {
	return e.resolver.Board(ctx, e.resolver.Now())
}

// DriverStatus resolves one driver's effective status at the given instant.
func (e *Engine) DriverStatus(ctx context.Context, driverID int64, at time.Time) (model.DriverStatus, error) {
	return e.resolver.Resolve(ctx, driverID, at)
}

// AssignRide binds a ride to a driver.
func (e *Engine) AssignRide(ctx context.Context, rideID, driverID int64) (dispatch.Result, error) {
	return e.coordinator.Assign(ctx, rideID, driverID)
}

// UnassignRide releases a ride from a driver.
func (e *Engine) UnassignRide(ctx context.Context, rideID, driverID int64) (dispatch.Result, error) {
	return e.coordinator.Unassign(ctx, rideID, driverID)
}

// UpsertWeeklySchedule writes a batch of dated shift entries for one driver.
// Every entry is validated before anything is written.
func (e *Engine) UpsertWeeklySchedule(ctx context.Context, driverID int64, entries []model.WeeklyScheduleEntry) error {
	for i := range entries {
		entries[i].DriverID = driverID
		if err := entries[i].Validate(); err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}
	}
	return e.schedules.UpsertWeeklyEntries(ctx, driverID, entries)
}

// ApplyMonthlyTemplate stamps a weekly template across the month as one
// transactional diff. Overrides are never touched.
func (e *Engine) ApplyMonthlyTemplate(ctx context.Context, driverID int64, template []model.TemplateEntry, monthStart, monthEnd model.Date) (schedule.Plan, error) {
	return e.propagator.Apply(ctx, driverID, template, monthStart, monthEnd)
}

// UpsertOverrides writes per-date exceptions for one driver with
// last-write-wins semantics per date.
func (e *Engine) UpsertOverrides(ctx context.Context, driverID int64, overrides []model.ScheduleOverride) error {
	for i := range overrides {
		overrides[i].DriverID = driverID
		if err := overrides[i].Validate(); err != nil {
			return fmt.Errorf("override %d: %w", i, err)
		}
	}
	return e.schedules.ReplaceOverrides(ctx, driverID, overrides)
}

// BeginCalendarAuthorization marks the driver's calendar connection as
// started. Any previous tokens are discarded.
func (e *Engine) BeginCalendarAuthorization(ctx context.Context, driverID int64) error {
	now := e.resolver.Now()
	return e.creds.UpsertCredential(ctx, model.CalendarCredential{
		DriverID:  driverID,
		Status:    model.ConnectionInitiated,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

// CompleteCalendarAuthorization stores the tokens obtained from the provider
// and marks the driver CONNECTED.
func (e *Engine) CompleteCalendarAuthorization(ctx context.Context, driverID int64, accessToken, refreshToken string, expiresAt time.Time) error {
	if accessToken == "" {
		return fmt.Errorf("driver %d: empty access token", driverID)
	}
	now := e.resolver.Now()
	return e.creds.UpsertCredential(ctx, model.CalendarCredential{
		DriverID:     driverID,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
		Status:       model.ConnectionConnected,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
}

// DisconnectCalendar resets the driver to NOT_CONNECTED, for example after
// the provider rejected the stored token. Calendar sync is skipped until the
// driver re-authorizes.
func (e *Engine) DisconnectCalendar(ctx context.Context, driverID int64) error {
	now := e.resolver.Now()
	return e.creds.UpsertCredential(ctx, model.CalendarCredential{
		DriverID:  driverID,
		Status:    model.ConnectionNotConnected,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

// Schedule returns the driver's dated entries and overrides in the window.
func (e *Engine) Schedule(ctx context.Context, driverID int64, from, to model.Date) ([]model.WeeklyScheduleEntry, []model.ScheduleOverride, error) {
	if to.Before(from) {
		return nil, nil, fmt.Errorf("window %s..%s: %w", from, to, model.ErrInvalidWindow)
	}
	entries, err := e.schedules.EntriesInRange(ctx, driverID, from, to)
	if err != nil {
		return nil, nil, err
	}
	overrides, err := e.schedules.OverridesInRange(ctx, driverID, from, to)
	if err != nil {
		return nil, nil, err
	}
	return entries, overrides, nil
}
