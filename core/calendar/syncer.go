package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eldlit/pet-dispatch-deploy/core/events"
	"github.com/eldlit/pet-dispatch-deploy/core/logger"
	"github.com/eldlit/pet-dispatch-deploy/core/metrics"
	"github.com/eldlit/pet-dispatch-deploy/core/model"
	"github.com/eldlit/pet-dispatch-deploy/core/storage"
	"github.com/eldlit/pet-dispatch-deploy/internal/eventbus"
)

const defaultBatchSize = 16

// Syncer drains the calendar outbox. The dispatch coordinator calls Flush for
// an inline best-effort attempt right after commit; Run picks up whatever is
// left behind.
type Syncer struct {
	outbox     storage.OutboxStore
	rides      storage.RideStore
	gateway    Gateway
	log        logger.Logger
	sink       metrics.CalendarSyncRecorder
	bus        eventbus.EventBus
	defaultDur time.Duration
	batchSize  int
}

// NewSyncer builds a Syncer. sink and bus may be nil; defaultDur falls back to
// the ride default when non-positive.
func NewSyncer(outbox storage.OutboxStore, rides storage.RideStore, gw Gateway, log logger.Logger, sink metrics.CalendarSyncRecorder, bus eventbus.EventBus, defaultDur time.Duration) (*Syncer, error) {
	if outbox == nil {
		return nil, fmt.Errorf("outbox store is nil")
	}
	if rides == nil {
		return nil, fmt.Errorf("ride store is nil")
	}
	if gw == nil {
		return nil, fmt.Errorf("gateway is nil")
	}
	if log == nil {
		return nil, fmt.Errorf("logger is nil")
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	if defaultDur <= 0 {
		defaultDur = model.DefaultRideDuration
	}
	return &Syncer{
		outbox:     outbox,
		rides:      rides,
		gateway:    gw,
		log:        log,
		sink:       sink,
		bus:        bus,
		defaultDur: defaultDur,
		batchSize:  defaultBatchSize,
	}, nil
}

// Flush claims one job and synchronises it. The returned error reflects the
// attempt: the job stays queued for the background loop unless it succeeded
// or turned out permanent.
func (s *Syncer) Flush(ctx context.Context, jobID string) error {
	job, err := s.outbox.ClaimJob(ctx, jobID)
	if err != nil {
		return err
	}
	return s.process(ctx, job)
}

// Run drains the outbox every interval until ctx is cancelled.
func (s *Syncer) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.drain(ctx)
		}
	}
}

func (s *Syncer) drain(ctx context.Context) {
	if _, err := s.DrainOnce(ctx); err != nil {
		s.log.Errorf("outbox claim failed: %v", err)
	}
}

// DrainOnce processes one batch of pending jobs and returns the number still
// pending afterwards.
func (s *Syncer) DrainOnce(ctx context.Context) (int, error) {
	jobs, err := s.outbox.ClaimBatch(ctx, s.batchSize)
	if err != nil {
		return 0, err
	}
	for _, job := range jobs {
		if err := s.process(ctx, job); err != nil {
			s.log.Warnf("calendar sync job %s failed: %v", job.ID, err)
		}
	}
	n, err := s.outbox.PendingCount(ctx)
	if err != nil {
		return 0, fmt.Errorf("pending count: %w", err)
	}
	outboxPending.Set(float64(n))
	return n, nil
}

func (s *Syncer) process(ctx context.Context, job storage.OutboxJob) error {
	started := time.Now()
	var err error
	switch job.Action {
	case storage.OutboxCreateEvent:
		err = s.create(ctx, job)
	case storage.OutboxCancelEvent:
		err = s.cancel(ctx, job)
	default:
		err = fmt.Errorf("unknown outbox action %q", job.Action)
	}
	s.record(job, time.Since(started), err)
	return err
}

func (s *Syncer) create(ctx context.Context, job storage.OutboxJob) error {
	ride, err := s.rides.Ride(ctx, job.RideID)
	if err != nil {
		if errors.Is(err, storage.ErrRideNotFound) {
			// The ride vanished between enqueue and sync.
			return s.outbox.MarkDone(ctx, job.ID)
		}
		s.fail(ctx, job, err)
		return err
	}
	if !ride.Assigned() || *ride.DriverID != job.DriverID {
		// The assignment was undone; the matching cancel job, if any,
		// has nothing to cancel either.
		return s.outbox.MarkDone(ctx, job.ID)
	}
	ref, err := s.gateway.CreateEvent(ctx, job.DriverID, SpecForRide(ride, s.defaultDur))
	if err != nil {
		s.fail(ctx, job, err)
		return err
	}
	return s.outbox.MarkCreated(ctx, job.ID, job.RideID, ref)
}

func (s *Syncer) cancel(ctx context.Context, job storage.OutboxJob) error {
	if job.EventRef == "" {
		return s.outbox.MarkDone(ctx, job.ID)
	}
	err := s.gateway.CancelEvent(ctx, job.DriverID, job.EventRef)
	if err != nil && !errors.Is(err, ErrEventNotFound) {
		s.fail(ctx, job, err)
		return err
	}
	return s.outbox.MarkDone(ctx, job.ID)
}

// fail routes a gateway error: permanent authorization failures drop the job
// with a warning, anything else returns it to the queue.
func (s *Syncer) fail(ctx context.Context, job storage.OutboxJob, cause error) {
	if errors.Is(cause, ErrNotConnected) {
		s.log.Warnf("dropping calendar job %s: driver %d not connected", job.ID, job.DriverID)
		if err := s.outbox.MarkDone(ctx, job.ID); err != nil {
			s.log.Errorf("outbox mark done failed: %v", err)
		}
		return
	}
	if err := s.outbox.MarkFailed(ctx, job.ID, cause.Error()); err != nil {
		s.log.Errorf("outbox mark failed errored: %v", err)
	}
}

func (s *Syncer) record(job storage.OutboxJob, latency time.Duration, cause error) {
	action := string(job.Action)
	syncLatency.WithLabelValues(action).Observe(latency.Seconds())
	rec := metrics.CalendarSyncRecord{
		JobID:    job.ID,
		RideID:   job.RideID,
		DriverID: job.DriverID,
		Action:   action,
		Attempts: job.Attempts,
		Latency:  latency,
		Time:     time.Now(),
	}
	if cause != nil {
		syncFailure.WithLabelValues(action).Inc()
		rec.Error = cause.Error()
	} else {
		syncSuccess.WithLabelValues(action).Inc()
	}
	if err := s.sink.RecordCalendarSync(rec); err != nil {
		s.log.Debugf("sync record dropped: %v", err)
	}
	if s.bus != nil {
		s.bus.Publish(events.CalendarSyncEvent{
			JobID:    job.ID,
			RideID:   job.RideID,
			DriverID: job.DriverID,
			Action:   action,
			Attempts: job.Attempts,
			Err:      cause,
		})
	}
}
