package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/eldlit/pet-dispatch-deploy/core/model"
	"github.com/eldlit/pet-dispatch-deploy/core/storage"
)

// Assign implements storage.DispatchStore. The conditional update only
// matches an unassigned ride, so two concurrent assignments cannot both
// commit; the loser sees ErrAlreadyAssigned.
func (s *Store) Assign(ctx context.Context, rideID, driverID int64, job *storage.OutboxJob) error {
	now := s.now()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE rides SET driver_id = ?, updated_at = ? WHERE id = ? AND driver_id IS NULL`,
			driverID, now, rideID)
		if err != nil {
			return fmt.Errorf("assign ride %d: %w", rideID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			var current sql.NullInt64
			err := tx.QueryRowContext(ctx, `SELECT driver_id FROM rides WHERE id = ?`, rideID).Scan(&current)
			if errors.Is(err, sql.ErrNoRows) {
				return storage.ErrRideNotFound
			}
			if err != nil {
				return err
			}
			return fmt.Errorf("ride %d held by driver %d: %w", rideID, current.Int64, storage.ErrAlreadyAssigned)
		}

		res, err = tx.ExecContext(ctx,
			`UPDATE drivers SET status = ?, updated_at = ? WHERE id = ?`,
			string(model.StatusOnRide), now, driverID)
		if err != nil {
			return fmt.Errorf("mark driver %d on ride: %w", driverID, err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return storage.ErrDriverNotFound
		}

		return s.enqueueTx(ctx, tx, job, now)
	})
}

// Unassign implements storage.DispatchStore. The driver returns to AVAILABLE
// once no assigned rides remain.
func (s *Store) Unassign(ctx context.Context, rideID, driverID int64, job *storage.OutboxJob) (int, error) {
	now := s.now()
	remaining := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE rides SET driver_id = NULL, calendar_event_id = '', updated_at = ?
			WHERE id = ? AND driver_id = ?`,
			now, rideID, driverID)
		if err != nil {
			return fmt.Errorf("unassign ride %d: %w", rideID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			var exists int
			err := tx.QueryRowContext(ctx, `SELECT 1 FROM rides WHERE id = ?`, rideID).Scan(&exists)
			if errors.Is(err, sql.ErrNoRows) {
				return storage.ErrRideNotFound
			}
			if err != nil {
				return err
			}
			return fmt.Errorf("ride %d: %w", rideID, storage.ErrNotAssigned)
		}

		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM rides WHERE driver_id = ?`, driverID).Scan(&remaining); err != nil {
			return fmt.Errorf("count remaining rides: %w", err)
		}
		if remaining == 0 {
			if _, err := tx.ExecContext(ctx,
				`UPDATE drivers SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
				string(model.StatusAvailable), now, driverID, string(model.StatusOnRide)); err != nil {
				return fmt.Errorf("release driver %d: %w", driverID, err)
			}
		}

		return s.enqueueTx(ctx, tx, job, now)
	})
	if err != nil {
		return 0, err
	}
	return remaining, nil
}

// enqueueTx inserts the outbox job inside the surrounding transaction.
func (s *Store) enqueueTx(ctx context.Context, tx *sql.Tx, job *storage.OutboxJob, now int64) error {
	if job == nil {
		return nil
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO calendar_outbox (id, ride_id, driver_id, action, event_ref, state, attempts, last_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 'pending', 0, '', ?, ?)`,
		job.ID, job.RideID, job.DriverID, string(job.Action), job.EventRef, now, now)
	if err != nil {
		return fmt.Errorf("enqueue outbox job %s: %w", job.ID, err)
	}
	return nil
}
