package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/eldlit/pet-dispatch-deploy/core/model"
	"github.com/eldlit/pet-dispatch-deploy/core/storage"
)

const rideColumns = `id, customer_id, driver_id, pet_name, pickup_location, dropoff_location,
	special_notes, status, scheduled_time, ride_end_time, calendar_event_id, created_at, updated_at`

func scanRide(row interface{ Scan(...any) error }) (model.Ride, error) {
	var r model.Ride
	var driverID sql.NullInt64
	var endTime sql.NullInt64
	var status string
	var scheduled, created, updated int64
	err := row.Scan(&r.ID, &r.CustomerID, &driverID, &r.PetName, &r.PickupLocation,
		&r.DropoffLocation, &r.SpecialNotes, &status, &scheduled, &endTime,
		&r.CalendarEventID, &created, &updated)
	if err != nil {
		return model.Ride{}, err
	}
	if driverID.Valid {
		r.DriverID = &driverID.Int64
	}
	if endTime.Valid {
		t := time.Unix(endTime.Int64, 0).UTC()
		r.RideEndTime = &t
	}
	r.Status = model.RideStatus(status)
	r.ScheduledTime = time.Unix(scheduled, 0).UTC()
	r.CreatedAt = time.Unix(created, 0).UTC()
	r.UpdatedAt = time.Unix(updated, 0).UTC()
	return r, nil
}

// Ride implements storage.RideStore.
func (s *Store) Ride(ctx context.Context, id int64) (model.Ride, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+rideColumns+` FROM rides WHERE id = ?`, id)
	r, err := scanRide(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Ride{}, storage.ErrRideNotFound
	}
	if err != nil {
		return model.Ride{}, fmt.Errorf("load ride %d: %w", id, err)
	}
	return r, nil
}

// CreateRide implements storage.RideStore.
func (s *Store) CreateRide(ctx context.Context, r model.Ride) (model.Ride, error) {
	if err := r.Validate(); err != nil {
		return model.Ride{}, err
	}
	if r.Status == "" {
		r.Status = model.RideIncomplete
	}
	now := s.now()
	var driverID sql.NullInt64
	if r.DriverID != nil {
		driverID = sql.NullInt64{Int64: *r.DriverID, Valid: true}
	}
	var endTime sql.NullInt64
	if r.RideEndTime != nil {
		endTime = sql.NullInt64{Int64: r.RideEndTime.Unix(), Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO rides (customer_id, driver_id, pet_name, pickup_location, dropoff_location,
			special_notes, status, scheduled_time, ride_end_time, calendar_event_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.CustomerID, driverID, r.PetName, r.PickupLocation, r.DropoffLocation,
		r.SpecialNotes, string(r.Status), r.ScheduledTime.Unix(), endTime, r.CalendarEventID, now, now)
	if err != nil {
		return model.Ride{}, fmt.Errorf("insert ride: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Ride{}, err
	}
	return s.Ride(ctx, id)
}

// RidesAt implements storage.RideStore. A ride without a recorded end is
// considered to occupy the driver for defaultDur past its start.
func (s *Store) RidesAt(ctx context.Context, driverID int64, at time.Time, defaultDur time.Duration) ([]model.Ride, error) {
	if defaultDur <= 0 {
		defaultDur = model.DefaultRideDuration
	}
	instant := at.UTC().Unix()
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+rideColumns+` FROM rides
		WHERE driver_id = ?
		  AND scheduled_time <= ?
		  AND COALESCE(ride_end_time, scheduled_time + ?) >= ?
		ORDER BY scheduled_time`,
		driverID, instant, int64(defaultDur.Seconds()), instant)
	if err != nil {
		return nil, fmt.Errorf("rides at %s for driver %d: %w", at, driverID, err)
	}
	defer func() { _ = rows.Close() }()
	var out []model.Ride
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// NextRide implements storage.RideStore.
func (s *Store) NextRide(ctx context.Context, driverID int64, after time.Time) (*model.Ride, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+rideColumns+` FROM rides
		WHERE driver_id = ? AND scheduled_time > ?
		ORDER BY scheduled_time LIMIT 1`,
		driverID, after.UTC().Unix())
	r, err := scanRide(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next ride for driver %d: %w", driverID, err)
	}
	return &r, nil
}
