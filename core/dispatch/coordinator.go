// Package dispatch binds rides to drivers. The coordinator is the only writer
// of assignment state: it checks effective availability, commits the
// transition together with the calendar outbox job, then attempts an inline
// calendar flush whose failure degrades to a warning.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/eldlit/pet-dispatch-deploy/core/availability"
	"github.com/eldlit/pet-dispatch-deploy/core/clock"
	"github.com/eldlit/pet-dispatch-deploy/core/dispatch/logging"
	"github.com/eldlit/pet-dispatch-deploy/core/events"
	"github.com/eldlit/pet-dispatch-deploy/core/logger"
	"github.com/eldlit/pet-dispatch-deploy/core/metrics"
	"github.com/eldlit/pet-dispatch-deploy/core/model"
	"github.com/eldlit/pet-dispatch-deploy/core/storage"
	"github.com/eldlit/pet-dispatch-deploy/internal/eventbus"
)

// CalendarSyncer flushes one outbox job inline. Satisfied by calendar.Syncer.
type CalendarSyncer interface {
	Flush(ctx context.Context, jobID string) error
}

// Result reports a committed assignment transition. Warning is non-nil when
// the calendar mirror is still pending.
type Result struct {
	Ride    model.Ride
	Warning *SyncWarning
}

// Coordinator applies assignment transitions atomically.
type Coordinator struct {
	store    storage.DispatchStore
	rides    storage.RideStore
	drivers  storage.DriverStore
	creds    storage.CredentialStore
	resolver *availability.Resolver
	syncer   CalendarSyncer
	bus      eventbus.EventBus
	sink     metrics.MetricsSink
	audit    logging.LogStore
	log      logger.Logger
	clk      clock.Clock
	cfg      Config
}

// NewCoordinator builds a Coordinator. syncer, bus, sink and audit may be nil.
func NewCoordinator(
	store storage.DispatchStore,
	rides storage.RideStore,
	drivers storage.DriverStore,
	creds storage.CredentialStore,
	resolver *availability.Resolver,
	syncer CalendarSyncer,
	bus eventbus.EventBus,
	sink metrics.MetricsSink,
	audit logging.LogStore,
	log logger.Logger,
	clk clock.Clock,
	cfg Config,
) (*Coordinator, error) {
	if store == nil || rides == nil || drivers == nil || creds == nil {
		return nil, fmt.Errorf("dispatch: nil store provided to NewCoordinator")
	}
	if resolver == nil {
		return nil, fmt.Errorf("dispatch: nil resolver provided to NewCoordinator")
	}
	if log == nil {
		return nil, fmt.Errorf("dispatch: nil logger provided to NewCoordinator")
	}
	if clk == nil {
		clk = clock.System()
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Coordinator{
		store:    store,
		rides:    rides,
		drivers:  drivers,
		creds:    creds,
		resolver: resolver,
		syncer:   syncer,
		bus:      bus,
		sink:     sink,
		audit:    audit,
		log:      log,
		clk:      clk,
		cfg:      cfg,
	}, nil
}

func (c *Coordinator) defaultDur() time.Duration {
	return time.Duration(c.cfg.DefaultRideMinutes) * time.Minute
}

// Assign binds the ride to the driver. The driver's effective status at the
// ride's scheduled time must be AVAILABLE; a ride that already carries a
// driver is rejected unless reassignment is enabled, in which case the
// current driver is released once the new one passes the availability check.
func (c *Coordinator) Assign(ctx context.Context, rideID, driverID int64) (Result, error) {
	started := c.clk.Now()
	res, err := c.assign(ctx, rideID, driverID)
	assignmentLatency.Observe(time.Since(started).Seconds())
	return res, err
}

func (c *Coordinator) assign(ctx context.Context, rideID, driverID int64) (Result, error) {
	ride, err := c.rides.Ride(ctx, rideID)
	if err != nil {
		return Result{}, err
	}
	if _, err := c.drivers.Driver(ctx, driverID); err != nil {
		return Result{}, err
	}

	if ride.Assigned() && (*ride.DriverID == driverID || !c.cfg.AllowReassign) {
		assignmentRejected.WithLabelValues("already_assigned").Inc()
		c.auditRecord(ctx, rideID, driverID, "assign", "rejected", storage.ErrAlreadyAssigned.Error(), nil, 0, false)
		return Result{}, fmt.Errorf("ride %d: %w", rideID, storage.ErrAlreadyAssigned)
	}

	status, err := c.resolver.Resolve(ctx, driverID, ride.ScheduledTime)
	if err != nil {
		var conflict *availability.ConflictError
		if errors.As(err, &conflict) {
			assignmentConflicts.Inc()
			if c.bus != nil {
				c.bus.Publish(events.ConflictEvent{DriverID: conflict.DriverID, RideIDs: conflict.RideIDs})
			}
			c.auditRecord(ctx, rideID, driverID, "assign", "rejected", conflict.Error(), nil, 0, false)
		}
		return Result{}, err
	}
	if status != model.StatusAvailable {
		assignmentRejected.WithLabelValues("unavailable").Inc()
		c.auditRecord(ctx, rideID, driverID, "assign", "rejected", string(status), nil, 0, false)
		return Result{}, fmt.Errorf("driver %d is %s at %s: %w", driverID, status, ride.ScheduledTime, ErrDriverUnavailable)
	}

	// The new driver is cleared; only now displace the current one so a
	// rejected reassignment never leaves the ride unassigned.
	reassigned := false
	var displaced *Result
	if ride.Assigned() {
		prev, err := c.Unassign(ctx, rideID, *ride.DriverID)
		if err != nil {
			return Result{}, fmt.Errorf("displace driver %d: %w", *ride.DriverID, err)
		}
		displaced = &prev
		reassigned = true
	}

	job := c.newJob(ctx, rideID, driverID, storage.OutboxCreateEvent, "")
	if err := c.store.Assign(ctx, rideID, driverID, job); err != nil {
		if errors.Is(err, storage.ErrAlreadyAssigned) {
			assignmentRejected.WithLabelValues("already_assigned").Inc()
		}
		return Result{}, err
	}

	ridesAssigned.WithLabelValues(boolLabel(reassigned)).Inc()
	c.recordSink(rideID, driverID, "assign", ride.ScheduledTime, job != nil)
	if c.bus != nil {
		c.bus.Publish(events.AssignmentEvent{
			RideID:        rideID,
			DriverID:      driverID,
			ScheduledTime: ride.ScheduledTime,
			Reassigned:    reassigned,
		})
	}

	res := Result{Warning: c.flush(ctx, job)}
	if res.Warning == nil && displaced != nil {
		res.Warning = displaced.Warning
	}
	c.auditRecord(ctx, rideID, driverID, "assign", "committed", "", res.Warning, 0, reassigned)

	updated, err := c.rides.Ride(ctx, rideID)
	if err != nil {
		return Result{}, err
	}
	res.Ride = updated
	return res, nil
}

// Unassign releases the ride from the driver. The calendar event, when one
// was created, is cancelled through the outbox; the driver returns to
// AVAILABLE once no assigned rides remain.
func (c *Coordinator) Unassign(ctx context.Context, rideID, driverID int64) (Result, error) {
	ride, err := c.rides.Ride(ctx, rideID)
	if err != nil {
		return Result{}, err
	}
	if !ride.Assigned() || *ride.DriverID != driverID {
		c.auditRecord(ctx, rideID, driverID, "unassign", "rejected", storage.ErrNotAssigned.Error(), nil, 0, false)
		return Result{}, fmt.Errorf("ride %d: %w", rideID, storage.ErrNotAssigned)
	}

	var job *storage.OutboxJob
	if ride.CalendarEventID != "" {
		job = c.newJob(ctx, rideID, driverID, storage.OutboxCancelEvent, ride.CalendarEventID)
	}
	remaining, err := c.store.Unassign(ctx, rideID, driverID, job)
	if err != nil {
		return Result{}, err
	}

	ridesUnassigned.Inc()
	c.recordSink(rideID, driverID, "unassign", ride.ScheduledTime, job != nil)
	if c.bus != nil {
		c.bus.Publish(events.UnassignmentEvent{RideID: rideID, DriverID: driverID, Remaining: remaining})
	}

	res := Result{Warning: c.flush(ctx, job)}
	c.auditRecord(ctx, rideID, driverID, "unassign", "committed", "", res.Warning, remaining, false)

	updated, err := c.rides.Ride(ctx, rideID)
	if err != nil {
		return Result{}, err
	}
	res.Ride = updated
	return res, nil
}

// newJob builds an outbox job when the driver's calendar is connected. A
// driver who never authorized the calendar gets no job and no warning.
func (c *Coordinator) newJob(ctx context.Context, rideID, driverID int64, action storage.OutboxAction, eventRef string) *storage.OutboxJob {
	cred, err := c.creds.Credential(ctx, driverID)
	if err != nil {
		c.log.Warnf("credential lookup for driver %d failed: %v", driverID, err)
		return nil
	}
	if cred == nil || !cred.Connected() {
		c.log.Debugf("driver %d has no connected calendar, skipping %s", driverID, action)
		return nil
	}
	return &storage.OutboxJob{
		ID:       uuid.NewString(),
		RideID:   rideID,
		DriverID: driverID,
		Action:   action,
		EventRef: eventRef,
	}
}

// flush attempts the inline calendar sync with a bounded timeout. Failure is
// soft: the job stays queued and the caller receives a warning.
func (c *Coordinator) flush(ctx context.Context, job *storage.OutboxJob) *SyncWarning {
	if job == nil || c.syncer == nil {
		return nil
	}
	flushCtx, cancel := context.WithTimeout(ctx, time.Duration(c.cfg.SyncTimeoutSeconds)*time.Second)
	defer cancel()
	if err := c.syncer.Flush(flushCtx, job.ID); err != nil {
		w := &SyncWarning{JobID: job.ID, RideID: job.RideID, DriverID: job.DriverID, Cause: err}
		c.log.Warnf("%s", w)
		return w
	}
	return nil
}

func (c *Coordinator) recordSink(rideID, driverID int64, action string, scheduled time.Time, synced bool) {
	rec := metrics.AssignmentRecord{
		RideID:        rideID,
		DriverID:      driverID,
		Action:        action,
		ScheduledTime: scheduled,
		Synced:        synced,
		Time:          c.clk.Now(),
	}
	if err := c.sink.RecordAssignment([]metrics.AssignmentRecord{rec}); err != nil {
		c.log.Debugf("assignment record dropped: %v", err)
	}
}

func (c *Coordinator) auditRecord(ctx context.Context, rideID, driverID int64, action, outcome, reason string, warning *SyncWarning, remaining int, reassigned bool) {
	if c.audit == nil {
		return
	}
	rec := logging.LogRecord{
		Timestamp:  c.clk.Now(),
		RideID:     rideID,
		DriverID:   driverID,
		Action:     action,
		Outcome:    outcome,
		Reason:     reason,
		Remaining:  remaining,
		Reassigned: reassigned,
	}
	if warning != nil {
		rec.Warning = warning.String()
	}
	if err := c.audit.Append(ctx, rec); err != nil {
		c.log.Warnf("audit append failed: %v", err)
	}
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
