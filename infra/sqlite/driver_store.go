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

const driverColumns = `id, name, phone, email, status, created_at, updated_at`

func scanDriver(row interface{ Scan(...any) error }) (model.Driver, error) {
	var d model.Driver
	var status string
	var created, updated int64
	if err := row.Scan(&d.ID, &d.Name, &d.Phone, &d.Email, &status, &created, &updated); err != nil {
		return model.Driver{}, err
	}
	d.Status = model.DriverStatus(status)
	d.CreatedAt = time.Unix(created, 0).UTC()
	d.UpdatedAt = time.Unix(updated, 0).UTC()
	return d, nil
}

// Driver implements storage.DriverStore.
func (s *Store) Driver(ctx context.Context, id int64) (model.Driver, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+driverColumns+` FROM drivers WHERE id = ?`, id)
	d, err := scanDriver(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Driver{}, storage.ErrDriverNotFound
	}
	if err != nil {
		return model.Driver{}, fmt.Errorf("load driver %d: %w", id, err)
	}
	return d, nil
}

// Drivers implements storage.DriverStore.
func (s *Store) Drivers(ctx context.Context) ([]model.Driver, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+driverColumns+` FROM drivers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list drivers: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []model.Driver
	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// CreateDriver implements storage.DriverStore.
func (s *Store) CreateDriver(ctx context.Context, d model.Driver) (model.Driver, error) {
	if err := d.Validate(); err != nil {
		return model.Driver{}, err
	}
	if d.Status == "" {
		d.Status = model.StatusAvailable
	}
	now := s.now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO drivers (name, phone, email, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		d.Name, d.Phone, d.Email, string(d.Status), now, now)
	if err != nil {
		return model.Driver{}, fmt.Errorf("insert driver: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Driver{}, err
	}
	d.ID = id
	d.CreatedAt = time.Unix(now, 0).UTC()
	d.UpdatedAt = d.CreatedAt
	return d, nil
}

// SetBaseStatus implements storage.DriverStore.
func (s *Store) SetBaseStatus(ctx context.Context, id int64, status model.DriverStatus) error {
	if !status.Valid() {
		return fmt.Errorf("unknown driver status %q", status)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE drivers SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), s.now(), id)
	if err != nil {
		return fmt.Errorf("update driver %d status: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrDriverNotFound
	}
	return nil
}

// DeleteDriver implements storage.DriverStore. Schedule entries, overrides
// and the credential cascade; assigned rides fall back to unassigned.
func (s *Store) DeleteDriver(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE rides SET driver_id = NULL, calendar_event_id = '', updated_at = ? WHERE driver_id = ?`,
			s.now(), id); err != nil {
			return fmt.Errorf("release rides for driver %d: %w", id, err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM drivers WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete driver %d: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return storage.ErrDriverNotFound
		}
		return nil
	})
}
