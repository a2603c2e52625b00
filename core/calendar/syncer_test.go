package calendar

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldlit/pet-dispatch-deploy/core/events"
	"github.com/eldlit/pet-dispatch-deploy/core/model"
	"github.com/eldlit/pet-dispatch-deploy/core/storage"
	"github.com/eldlit/pet-dispatch-deploy/infra/logger"
	"github.com/eldlit/pet-dispatch-deploy/internal/eventbus"
)

type fakeOutbox struct {
	jobs     map[string]storage.OutboxJob
	created  map[string]string // job id -> event ref
	done     []string
	failed   map[string]string
	countErr error
}

func newFakeOutbox(jobs ...storage.OutboxJob) *fakeOutbox {
	o := &fakeOutbox{
		jobs:    make(map[string]storage.OutboxJob),
		created: make(map[string]string),
		failed:  make(map[string]string),
	}
	for _, j := range jobs {
		o.jobs[j.ID] = j
	}
	return o
}

func (o *fakeOutbox) ClaimJob(_ context.Context, id string) (storage.OutboxJob, error) {
	job, ok := o.jobs[id]
	if !ok {
		return storage.OutboxJob{}, storage.ErrJobNotFound
	}
	job.Attempts++
	o.jobs[id] = job
	return job, nil
}

func (o *fakeOutbox) ClaimBatch(ctx context.Context, limit int) ([]storage.OutboxJob, error) {
	var out []storage.OutboxJob
	for id := range o.jobs {
		if len(out) == limit {
			break
		}
		job, _ := o.ClaimJob(ctx, id)
		out = append(out, job)
	}
	return out, nil
}

func (o *fakeOutbox) MarkCreated(_ context.Context, id string, _ int64, eventRef string) error {
	o.created[id] = eventRef
	delete(o.jobs, id)
	return nil
}

func (o *fakeOutbox) MarkDone(_ context.Context, id string) error {
	o.done = append(o.done, id)
	delete(o.jobs, id)
	return nil
}

func (o *fakeOutbox) MarkFailed(_ context.Context, id string, reason string) error {
	o.failed[id] = reason
	return nil
}

func (o *fakeOutbox) PendingCount(context.Context) (int, error) {
	if o.countErr != nil {
		return 0, o.countErr
	}
	return len(o.jobs), nil
}

type fakeRideStore struct {
	rides map[int64]model.Ride
}

func (s *fakeRideStore) Ride(_ context.Context, id int64) (model.Ride, error) {
	r, ok := s.rides[id]
	if !ok {
		return model.Ride{}, storage.ErrRideNotFound
	}
	return r, nil
}

func (s *fakeRideStore) CreateRide(_ context.Context, r model.Ride) (model.Ride, error) {
	return r, nil
}

func (s *fakeRideStore) RidesAt(context.Context, int64, time.Time, time.Duration) ([]model.Ride, error) {
	return nil, nil
}

func (s *fakeRideStore) NextRide(context.Context, int64, time.Time) (*model.Ride, error) {
	return nil, nil
}

func assignedRide(id, driverID int64) model.Ride {
	return model.Ride{
		ID:            id,
		CustomerID:    1,
		DriverID:      &driverID,
		PetName:       "Rex",
		ScheduledTime: time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC),
		Status:        model.RideIncomplete,
	}
}

func newTestSyncer(t *testing.T, outbox *fakeOutbox, rides *fakeRideStore, gw Gateway, bus eventbus.EventBus) *Syncer {
	t.Helper()
	s, err := NewSyncer(outbox, rides, gw, logger.NopLogger{}, nil, bus, 0)
	require.NoError(t, err)
	return s
}

func TestSyncerFlushCreatesEvent(t *testing.T) {
	job := storage.OutboxJob{ID: "job-1", RideID: 10, DriverID: 2, Action: storage.OutboxCreateEvent}
	outbox := newFakeOutbox(job)
	rides := &fakeRideStore{rides: map[int64]model.Ride{10: assignedRide(10, 2)}}
	gw := &scriptedGateway{}
	bus := eventbus.New()
	sub := bus.Subscribe()

	s := newTestSyncer(t, outbox, rides, gw, bus)
	require.NoError(t, s.Flush(context.Background(), "job-1"))

	assert.Equal(t, "evt-123", outbox.created["job-1"])
	assert.Equal(t, 1, gw.createCalls)

	ev, ok := (<-sub).(events.CalendarSyncEvent)
	require.True(t, ok)
	assert.Equal(t, "job-1", ev.JobID)
	assert.NoError(t, ev.Err)
}

func TestSyncerFlushUnknownJob(t *testing.T) {
	s := newTestSyncer(t, newFakeOutbox(), &fakeRideStore{}, &scriptedGateway{}, nil)
	err := s.Flush(context.Background(), "missing")
	require.ErrorIs(t, err, storage.ErrJobNotFound)
}

func TestSyncerDropsStaleCreateJob(t *testing.T) {
	// The ride lost its driver between enqueue and sync.
	job := storage.OutboxJob{ID: "job-1", RideID: 10, DriverID: 2, Action: storage.OutboxCreateEvent}
	outbox := newFakeOutbox(job)
	ride := assignedRide(10, 2)
	ride.DriverID = nil
	rides := &fakeRideStore{rides: map[int64]model.Ride{10: ride}}
	gw := &scriptedGateway{}

	s := newTestSyncer(t, outbox, rides, gw, nil)
	require.NoError(t, s.Flush(context.Background(), "job-1"))

	assert.Equal(t, []string{"job-1"}, outbox.done)
	assert.Zero(t, gw.createCalls)
}

func TestSyncerCancelToleratesMissingEvent(t *testing.T) {
	job := storage.OutboxJob{ID: "job-1", RideID: 10, DriverID: 2, Action: storage.OutboxCancelEvent, EventRef: "evt-gone"}
	outbox := newFakeOutbox(job)
	gw := &scriptedGateway{failures: 1 << 30, err: ErrEventNotFound}

	s := newTestSyncer(t, outbox, &fakeRideStore{}, gw, nil)
	require.NoError(t, s.Flush(context.Background(), "job-1"))
	assert.Equal(t, []string{"job-1"}, outbox.done)
}

func TestSyncerRequeuesTransientFailure(t *testing.T) {
	job := storage.OutboxJob{ID: "job-1", RideID: 10, DriverID: 2, Action: storage.OutboxCreateEvent}
	outbox := newFakeOutbox(job)
	rides := &fakeRideStore{rides: map[int64]model.Ride{10: assignedRide(10, 2)}}
	gw := &scriptedGateway{failures: 1 << 30, err: errors.New("upstream 503")}

	s := newTestSyncer(t, outbox, rides, gw, nil)
	err := s.Flush(context.Background(), "job-1")
	require.Error(t, err)
	assert.Equal(t, "upstream 503", outbox.failed["job-1"])
	assert.Contains(t, outbox.jobs, "job-1")
}

func TestSyncerDropsJobForDisconnectedDriver(t *testing.T) {
	job := storage.OutboxJob{ID: "job-1", RideID: 10, DriverID: 2, Action: storage.OutboxCreateEvent}
	outbox := newFakeOutbox(job)
	rides := &fakeRideStore{rides: map[int64]model.Ride{10: assignedRide(10, 2)}}
	gw := &scriptedGateway{failures: 1 << 30, err: ErrNotConnected}

	s := newTestSyncer(t, outbox, rides, gw, nil)
	err := s.Flush(context.Background(), "job-1")
	require.ErrorIs(t, err, ErrNotConnected)
	assert.Equal(t, []string{"job-1"}, outbox.done)
	assert.Empty(t, outbox.failed)
}

func TestSyncerDrainProcessesBatch(t *testing.T) {
	outbox := newFakeOutbox(
		storage.OutboxJob{ID: "job-1", RideID: 10, DriverID: 2, Action: storage.OutboxCreateEvent},
		storage.OutboxJob{ID: "job-2", RideID: 11, DriverID: 3, Action: storage.OutboxCancelEvent, EventRef: "evt-9"},
	)
	rides := &fakeRideStore{rides: map[int64]model.Ride{
		10: assignedRide(10, 2),
		11: assignedRide(11, 3),
	}}
	gw := &scriptedGateway{}

	s := newTestSyncer(t, outbox, rides, gw, nil)
	s.drain(context.Background())

	assert.Empty(t, outbox.jobs)
	assert.Equal(t, "evt-123", outbox.created["job-1"])
	assert.Contains(t, outbox.done, "job-2")
}

func TestSyncerDrainOnceSurfacesCountFailure(t *testing.T) {
	outbox := newFakeOutbox()
	outbox.countErr = errors.New("database is locked")

	s := newTestSyncer(t, outbox, &fakeRideStore{}, &scriptedGateway{}, nil)
	_, err := s.DrainOnce(context.Background())
	require.ErrorContains(t, err, "database is locked")
}
