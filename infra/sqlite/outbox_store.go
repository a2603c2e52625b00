package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/eldlit/pet-dispatch-deploy/core/storage"
)

const outboxColumns = `id, ride_id, driver_id, action, event_ref, attempts, last_error, created_at, updated_at`

func scanJob(row interface{ Scan(...any) error }) (storage.OutboxJob, error) {
	var j storage.OutboxJob
	var action string
	var created, updated int64
	err := row.Scan(&j.ID, &j.RideID, &j.DriverID, &action, &j.EventRef,
		&j.Attempts, &j.LastError, &created, &updated)
	if err != nil {
		return storage.OutboxJob{}, err
	}
	j.Action = storage.OutboxAction(action)
	j.CreatedAt = time.Unix(created, 0).UTC()
	j.UpdatedAt = time.Unix(updated, 0).UTC()
	return j, nil
}

// ClaimJob implements storage.OutboxStore. Claiming moves the job to
// in-flight and bumps the attempt counter, so a concurrent claimer misses.
func (s *Store) ClaimJob(ctx context.Context, id string) (storage.OutboxJob, error) {
	var job storage.OutboxJob
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE calendar_outbox SET state = 'inflight', attempts = attempts + 1, updated_at = ?
			WHERE id = ? AND state = 'pending'`,
			s.now(), id)
		if err != nil {
			return fmt.Errorf("claim job %s: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return storage.ErrJobNotFound
		}
		row := tx.QueryRowContext(ctx, `SELECT `+outboxColumns+` FROM calendar_outbox WHERE id = ?`, id)
		job, err = scanJob(row)
		return err
	})
	if err != nil {
		return storage.OutboxJob{}, err
	}
	return job, nil
}

// ClaimBatch implements storage.OutboxStore, claiming the oldest pending jobs
// first.
func (s *Store) ClaimBatch(ctx context.Context, limit int) ([]storage.OutboxJob, error) {
	var jobs []storage.OutboxJob
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT id FROM calendar_outbox WHERE state = 'pending' ORDER BY created_at LIMIT ?`, limit)
		if err != nil {
			return fmt.Errorf("list pending jobs: %w", err)
		}
		var ids []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				_ = rows.Close()
				return err
			}
			ids = append(ids, id)
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return err
		}
		_ = rows.Close()

		now := s.now()
		for _, id := range ids {
			if _, err := tx.ExecContext(ctx,
				`UPDATE calendar_outbox SET state = 'inflight', attempts = attempts + 1, updated_at = ? WHERE id = ?`,
				now, id); err != nil {
				return fmt.Errorf("claim job %s: %w", id, err)
			}
			row := tx.QueryRowContext(ctx, `SELECT `+outboxColumns+` FROM calendar_outbox WHERE id = ?`, id)
			job, err := scanJob(row)
			if err != nil {
				return err
			}
			jobs = append(jobs, job)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// MarkCreated implements storage.OutboxStore. The event reference lands on
// the ride in the same transaction that completes the job.
func (s *Store) MarkCreated(ctx context.Context, id string, rideID int64, eventRef string) error {
	now := s.now()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.completeTx(ctx, tx, id, eventRef, now); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE rides SET calendar_event_id = ?, updated_at = ? WHERE id = ?`,
			eventRef, now, rideID); err != nil {
			return fmt.Errorf("record event on ride %d: %w", rideID, err)
		}
		return nil
	})
}

// MarkDone implements storage.OutboxStore.
func (s *Store) MarkDone(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.completeTx(ctx, tx, id, "", s.now())
	})
}

func (s *Store) completeTx(ctx context.Context, tx *sql.Tx, id, eventRef string, now int64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE calendar_outbox SET state = 'done', event_ref = CASE WHEN ? != '' THEN ? ELSE event_ref END, updated_at = ?
		WHERE id = ? AND state = 'inflight'`,
		eventRef, eventRef, now, id)
	if err != nil {
		return fmt.Errorf("complete job %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrJobNotFound
	}
	return nil
}

// MarkFailed implements storage.OutboxStore, returning the job to pending.
func (s *Store) MarkFailed(ctx context.Context, id string, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE calendar_outbox SET state = 'pending', last_error = ?, updated_at = ?
		WHERE id = ? AND state = 'inflight'`,
		reason, s.now(), id)
	if err != nil {
		return fmt.Errorf("fail job %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrJobNotFound
	}
	return nil
}

// PendingCount implements storage.OutboxStore.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM calendar_outbox WHERE state = 'pending'`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending jobs: %w", err)
	}
	return n, nil
}
