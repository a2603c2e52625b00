package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldlit/pet-dispatch-deploy/core/clock"
	"github.com/eldlit/pet-dispatch-deploy/core/model"
	"github.com/eldlit/pet-dispatch-deploy/core/storage"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dispatch.db")
	s, err := Open(path, clock.NewFixed(time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedDriver(t *testing.T, s *Store, name string) model.Driver {
	t.Helper()
	d, err := s.CreateDriver(context.Background(), model.Driver{Name: name, Status: model.StatusAvailable})
	require.NoError(t, err)
	return d
}

func seedRide(t *testing.T, s *Store, at time.Time) model.Ride {
	t.Helper()
	r, err := s.CreateRide(context.Background(), model.Ride{
		CustomerID:    1,
		PetName:       "Rex",
		Status:        model.RideIncomplete,
		ScheduledTime: at,
	})
	require.NoError(t, err)
	return r
}

func TestDriverLifecycle(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	_, err := s.Driver(ctx, 99)
	require.ErrorIs(t, err, storage.ErrDriverNotFound)

	d := seedDriver(t, s, "Ada")
	loaded, err := s.Driver(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", loaded.Name)
	assert.Equal(t, model.StatusAvailable, loaded.Status)

	require.NoError(t, s.SetBaseStatus(ctx, d.ID, model.StatusOffline))
	loaded, err = s.Driver(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusOffline, loaded.Status)

	require.ErrorIs(t, s.SetBaseStatus(ctx, 99, model.StatusOffline), storage.ErrDriverNotFound)

	all, err := s.Drivers(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRideQueries(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	d := seedDriver(t, s, "Ada")

	morning := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)
	r1 := seedRide(t, s, morning)
	r2 := seedRide(t, s, morning.Add(4*time.Hour))
	require.NoError(t, s.Assign(ctx, r1.ID, d.ID, nil))
	require.NoError(t, s.Assign(ctx, r2.ID, d.ID, nil))

	// Inside r1's default one hour window.
	active, err := s.RidesAt(ctx, d.ID, morning.Add(30*time.Minute), 0)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, r1.ID, active[0].ID)

	// Between the two rides.
	active, err = s.RidesAt(ctx, d.ID, morning.Add(2*time.Hour), 0)
	require.NoError(t, err)
	assert.Empty(t, active)

	next, err := s.NextRide(ctx, d.ID, morning.Add(30*time.Minute))
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, r2.ID, next.ID)

	next, err = s.NextRide(ctx, d.ID, morning.Add(6*time.Hour))
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestRideExplicitEndTimeWidensWindow(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	d := seedDriver(t, s, "Ada")

	start := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)
	end := start.Add(3 * time.Hour)
	r, err := s.CreateRide(ctx, model.Ride{
		CustomerID:    1,
		PetName:       "Maple",
		Status:        model.RideIncomplete,
		ScheduledTime: start,
		RideEndTime:   &end,
	})
	require.NoError(t, err)
	require.NoError(t, s.Assign(ctx, r.ID, d.ID, nil))

	active, err := s.RidesAt(ctx, d.ID, start.Add(2*time.Hour), 0)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestWeeklyUpsertKeyedByWeekdayAndWindow(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	d := seedDriver(t, s, "Ada")

	entry := model.WeeklyScheduleEntry{
		DriverID:  d.ID,
		Weekday:   time.Monday,
		StartTime: model.NewClockTime(9, 0),
		EndTime:   model.NewClockTime(17, 0),
		StartDate: model.NewDate(2024, time.June, 3),
		EndDate:   model.NewDate(2024, time.June, 3),
	}
	require.NoError(t, s.UpsertWeeklyEntries(ctx, d.ID, []model.WeeklyScheduleEntry{entry}))

	// Same key, new times: updates in place instead of duplicating.
	entry.StartTime = model.NewClockTime(10, 0)
	require.NoError(t, s.UpsertWeeklyEntries(ctx, d.ID, []model.WeeklyScheduleEntry{entry}))

	entries, err := s.EntriesInRange(ctx, d.ID, model.NewDate(2024, time.June, 1), model.NewDate(2024, time.June, 30))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.NewClockTime(10, 0), entries[0].StartTime)
}

func TestScheduleWritesRejectUnknownDriver(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	entry := model.WeeklyScheduleEntry{
		DriverID:  99,
		Weekday:   time.Monday,
		StartTime: model.NewClockTime(9, 0),
		EndTime:   model.NewClockTime(17, 0),
		StartDate: model.NewDate(2024, time.June, 3),
		EndDate:   model.NewDate(2024, time.June, 3),
	}
	err := s.UpsertWeeklyEntries(ctx, 99, []model.WeeklyScheduleEntry{entry})
	require.ErrorIs(t, err, storage.ErrDriverNotFound)

	err = s.ReplaceOverrides(ctx, 99, []model.ScheduleOverride{{
		DriverID: 99, Date: model.NewDate(2024, time.June, 5), Type: model.OverrideSickLeave,
	}})
	require.ErrorIs(t, err, storage.ErrDriverNotFound)

	err = s.ApplyPlan(ctx, 99, []model.WeeklyScheduleEntry{entry}, nil)
	require.ErrorIs(t, err, storage.ErrDriverNotFound)
}

func TestOverridesLastWriteWinsPerDate(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	d := seedDriver(t, s, "Ada")
	date := model.NewDate(2024, time.June, 5)

	require.NoError(t, s.ReplaceOverrides(ctx, d.ID, []model.ScheduleOverride{{
		DriverID: d.ID, Date: date, Type: model.OverrideSickLeave,
	}}))
	start := model.NewClockTime(12, 0)
	end := model.NewClockTime(18, 0)
	require.NoError(t, s.ReplaceOverrides(ctx, d.ID, []model.ScheduleOverride{{
		DriverID: d.ID, Date: date, Type: model.OverrideCustomShift, StartTime: &start, EndTime: &end,
	}}))

	o, err := s.OverrideOn(ctx, d.ID, date)
	require.NoError(t, err)
	require.NotNil(t, o)
	assert.Equal(t, model.OverrideCustomShift, o.Type)
	require.NotNil(t, o.StartTime)
	assert.Equal(t, start, *o.StartTime)

	o, err = s.OverrideOn(ctx, d.ID, model.NewDate(2024, time.June, 6))
	require.NoError(t, err)
	assert.Nil(t, o)
}

func TestApplyPlanIsAtomic(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	d := seedDriver(t, s, "Ada")

	existing := model.WeeklyScheduleEntry{
		DriverID:  d.ID,
		Weekday:   time.Monday,
		StartTime: model.NewClockTime(9, 0),
		EndTime:   model.NewClockTime(17, 0),
		StartDate: model.NewDate(2024, time.June, 3),
		EndDate:   model.NewDate(2024, time.June, 3),
	}
	require.NoError(t, s.UpsertWeeklyEntries(ctx, d.ID, []model.WeeklyScheduleEntry{existing}))

	fresh := existing
	fresh.StartDate = model.NewDate(2024, time.June, 10)
	fresh.EndDate = fresh.StartDate

	// The second insert collides with the existing row, so the whole plan
	// must roll back including the first insert.
	err := s.ApplyPlan(ctx, d.ID, []model.WeeklyScheduleEntry{fresh, existing}, nil)
	require.Error(t, err)

	entries, err := s.EntriesInRange(ctx, d.ID, model.NewDate(2024, time.June, 1), model.NewDate(2024, time.June, 30))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	// A clean plan commits inserts and updates together.
	updated := existing
	updated.EndTime = model.NewClockTime(18, 0)
	require.NoError(t, s.ApplyPlan(ctx, d.ID, []model.WeeklyScheduleEntry{fresh}, []model.WeeklyScheduleEntry{updated}))
	entries, err = s.EntriesInRange(ctx, d.ID, model.NewDate(2024, time.June, 1), model.NewDate(2024, time.June, 30))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, model.NewClockTime(18, 0), entries[0].EndTime)
}

func TestAssignIsConditional(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	ada := seedDriver(t, s, "Ada")
	linus := seedDriver(t, s, "Linus")
	r := seedRide(t, s, time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC))

	job := &storage.OutboxJob{ID: "job-1", RideID: r.ID, DriverID: ada.ID, Action: storage.OutboxCreateEvent}
	require.NoError(t, s.Assign(ctx, r.ID, ada.ID, job))

	err := s.Assign(ctx, r.ID, linus.ID, nil)
	require.ErrorIs(t, err, storage.ErrAlreadyAssigned)

	require.ErrorIs(t, s.Assign(ctx, 99, ada.ID, nil), storage.ErrRideNotFound)

	loaded, err := s.Ride(ctx, r.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded.DriverID)
	assert.Equal(t, ada.ID, *loaded.DriverID)

	d, err := s.Driver(ctx, ada.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusOnRide, d.Status)

	n, err := s.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUnassignReleasesDriverAndEnqueuesCancel(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	ada := seedDriver(t, s, "Ada")
	r := seedRide(t, s, time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC))

	require.NoError(t, s.Assign(ctx, r.ID, ada.ID, nil))

	_, err := s.Unassign(ctx, r.ID, 99, nil)
	require.ErrorIs(t, err, storage.ErrNotAssigned)

	cancel := &storage.OutboxJob{ID: "job-2", RideID: r.ID, DriverID: ada.ID, Action: storage.OutboxCancelEvent, EventRef: "evt-1"}
	remaining, err := s.Unassign(ctx, r.ID, ada.ID, cancel)
	require.NoError(t, err)
	assert.Zero(t, remaining)

	loaded, err := s.Ride(ctx, r.ID)
	require.NoError(t, err)
	assert.Nil(t, loaded.DriverID)
	assert.Empty(t, loaded.CalendarEventID)

	d, err := s.Driver(ctx, ada.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusAvailable, d.Status)

	n, err := s.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestOutboxClaimAndComplete(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	ada := seedDriver(t, s, "Ada")
	r := seedRide(t, s, time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC))
	job := &storage.OutboxJob{ID: "job-1", RideID: r.ID, DriverID: ada.ID, Action: storage.OutboxCreateEvent}
	require.NoError(t, s.Assign(ctx, r.ID, ada.ID, job))

	claimed, err := s.ClaimJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, 1, claimed.Attempts)
	assert.Equal(t, storage.OutboxCreateEvent, claimed.Action)

	// A second claim of an in-flight job misses.
	_, err = s.ClaimJob(ctx, "job-1")
	require.ErrorIs(t, err, storage.ErrJobNotFound)

	require.NoError(t, s.MarkCreated(ctx, "job-1", r.ID, "evt-42"))
	loaded, err := s.Ride(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "evt-42", loaded.CalendarEventID)

	n, err := s.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOutboxFailureReturnsJobToPending(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	ada := seedDriver(t, s, "Ada")
	r := seedRide(t, s, time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC))
	job := &storage.OutboxJob{ID: "job-1", RideID: r.ID, DriverID: ada.ID, Action: storage.OutboxCreateEvent}
	require.NoError(t, s.Assign(ctx, r.ID, ada.ID, job))

	_, err := s.ClaimJob(ctx, "job-1")
	require.NoError(t, err)
	require.NoError(t, s.MarkFailed(ctx, "job-1", "upstream 503"))

	batch, err := s.ClaimBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, 2, batch[0].Attempts)
	assert.Equal(t, "upstream 503", batch[0].LastError)
}

func TestCredentialRoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	ada := seedDriver(t, s, "Ada")

	cred, err := s.Credential(ctx, ada.ID)
	require.NoError(t, err)
	assert.Nil(t, cred)

	require.NoError(t, s.UpsertCredential(ctx, model.CalendarCredential{
		DriverID:    ada.ID,
		AccessToken: "tok",
		Status:      model.ConnectionInitiated,
	}))
	require.NoError(t, s.UpsertCredential(ctx, model.CalendarCredential{
		DriverID:    ada.ID,
		AccessToken: "tok2",
		Status:      model.ConnectionConnected,
		ExpiresAt:   time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
	}))

	cred, err = s.Credential(ctx, ada.ID)
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.True(t, cred.Connected())
	assert.Equal(t, "tok2", cred.AccessToken)
}

func TestDeleteDriverCascades(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	ada := seedDriver(t, s, "Ada")
	r := seedRide(t, s, time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC))
	require.NoError(t, s.Assign(ctx, r.ID, ada.ID, nil))
	require.NoError(t, s.UpsertWeeklyEntries(ctx, ada.ID, []model.WeeklyScheduleEntry{{
		DriverID:  ada.ID,
		Weekday:   time.Monday,
		StartTime: model.NewClockTime(9, 0),
		EndTime:   model.NewClockTime(17, 0),
		StartDate: model.NewDate(2024, time.June, 3),
		EndDate:   model.NewDate(2024, time.June, 3),
	}}))
	require.NoError(t, s.UpsertCredential(ctx, model.CalendarCredential{DriverID: ada.ID, Status: model.ConnectionConnected}))

	require.NoError(t, s.DeleteDriver(ctx, ada.ID))
	require.ErrorIs(t, s.DeleteDriver(ctx, ada.ID), storage.ErrDriverNotFound)

	entries, err := s.EntriesInRange(ctx, ada.ID, model.NewDate(2024, time.June, 1), model.NewDate(2024, time.June, 30))
	require.NoError(t, err)
	assert.Empty(t, entries)

	cred, err := s.Credential(ctx, ada.ID)
	require.NoError(t, err)
	assert.Nil(t, cred)

	loaded, err := s.Ride(ctx, r.ID)
	require.NoError(t, err)
	assert.Nil(t, loaded.DriverID)
}
