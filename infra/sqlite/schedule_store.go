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

// ensureDriver maps a missing driver row to storage.ErrDriverNotFound before
// any schedule rows are touched.
func ensureDriver(ctx context.Context, tx *sql.Tx, driverID int64) error {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM drivers WHERE id = ?`, driverID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("driver %d: %w", driverID, storage.ErrDriverNotFound)
	}
	if err != nil {
		return fmt.Errorf("driver %d lookup: %w", driverID, err)
	}
	return nil
}

// UpsertWeeklyEntries implements storage.ScheduleStore. Each entry is keyed
// by (driver, weekday, startDate, endDate); a matching row gets its times
// updated in place.
func (s *Store) UpsertWeeklyEntries(ctx context.Context, driverID int64, entries []model.WeeklyScheduleEntry) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := ensureDriver(ctx, tx, driverID); err != nil {
			return err
		}
		for _, e := range entries {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO weekly_schedule (driver_id, day_of_week, start_time, end_time, start_date, end_date)
				VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT(driver_id, day_of_week, start_date, end_date)
				DO UPDATE SET start_time = excluded.start_time, end_time = excluded.end_time`,
				driverID, int(e.Weekday), int(e.StartTime), int(e.EndTime),
				e.StartDate.String(), e.EndDate.String()); err != nil {
				return fmt.Errorf("upsert entry for %s %s: %w", e.Weekday, e.StartDate, err)
			}
		}
		return nil
	})
}

// ReplaceOverrides implements storage.ScheduleStore with last-write-wins
// semantics per (driver, date).
func (s *Store) ReplaceOverrides(ctx context.Context, driverID int64, overrides []model.ScheduleOverride) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := ensureDriver(ctx, tx, driverID); err != nil {
			return err
		}
		for _, o := range overrides {
			var start, end sql.NullInt64
			if o.StartTime != nil {
				start = sql.NullInt64{Int64: int64(*o.StartTime), Valid: true}
			}
			if o.EndTime != nil {
				end = sql.NullInt64{Int64: int64(*o.EndTime), Valid: true}
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO schedule_overrides (driver_id, date, type, start_time, end_time)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT(driver_id, date)
				DO UPDATE SET type = excluded.type, start_time = excluded.start_time, end_time = excluded.end_time`,
				driverID, o.Date.String(), string(o.Type), start, end); err != nil {
				return fmt.Errorf("upsert override on %s: %w", o.Date, err)
			}
		}
		return nil
	})
}

// ApplyPlan implements storage.ScheduleStore. The whole diff commits or none
// of it does.
func (s *Store) ApplyPlan(ctx context.Context, driverID int64, inserts, updates []model.WeeklyScheduleEntry) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := ensureDriver(ctx, tx, driverID); err != nil {
			return err
		}
		for _, e := range inserts {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO weekly_schedule (driver_id, day_of_week, start_time, end_time, start_date, end_date)
				VALUES (?, ?, ?, ?, ?, ?)`,
				driverID, int(e.Weekday), int(e.StartTime), int(e.EndTime),
				e.StartDate.String(), e.EndDate.String()); err != nil {
				return fmt.Errorf("insert entry for %s %s: %w", e.Weekday, e.StartDate, err)
			}
		}
		for _, e := range updates {
			if _, err := tx.ExecContext(ctx,
				`UPDATE weekly_schedule SET start_time = ?, end_time = ?
				WHERE driver_id = ? AND day_of_week = ? AND start_date = ? AND end_date = ?`,
				int(e.StartTime), int(e.EndTime), driverID, int(e.Weekday),
				e.StartDate.String(), e.EndDate.String()); err != nil {
				return fmt.Errorf("update entry for %s %s: %w", e.Weekday, e.StartDate, err)
			}
		}
		return nil
	})
}

func scanEntry(row interface{ Scan(...any) error }) (model.WeeklyScheduleEntry, error) {
	var e model.WeeklyScheduleEntry
	var weekday, start, end int
	var startDate, endDate string
	if err := row.Scan(&e.ID, &e.DriverID, &weekday, &start, &end, &startDate, &endDate); err != nil {
		return model.WeeklyScheduleEntry{}, err
	}
	e.Weekday = time.Weekday(weekday)
	e.StartTime = model.ClockTime(start)
	e.EndTime = model.ClockTime(end)
	var err error
	if e.StartDate, err = model.ParseDate(startDate); err != nil {
		return model.WeeklyScheduleEntry{}, err
	}
	if e.EndDate, err = model.ParseDate(endDate); err != nil {
		return model.WeeklyScheduleEntry{}, err
	}
	return e, nil
}

// EntriesInRange implements storage.ScheduleStore.
func (s *Store) EntriesInRange(ctx context.Context, driverID int64, from, to model.Date) ([]model.WeeklyScheduleEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, driver_id, day_of_week, start_time, end_time, start_date, end_date
		FROM weekly_schedule
		WHERE driver_id = ? AND start_date >= ? AND start_date <= ?
		ORDER BY start_date, day_of_week`,
		driverID, from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("entries in %s..%s: %w", from, to, err)
	}
	defer func() { _ = rows.Close() }()
	var out []model.WeeklyScheduleEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanOverride(row interface{ Scan(...any) error }) (model.ScheduleOverride, error) {
	var o model.ScheduleOverride
	var date, typ string
	var start, end sql.NullInt64
	if err := row.Scan(&o.ID, &o.DriverID, &date, &typ, &start, &end); err != nil {
		return model.ScheduleOverride{}, err
	}
	var err error
	if o.Date, err = model.ParseDate(date); err != nil {
		return model.ScheduleOverride{}, err
	}
	o.Type = model.OverrideType(typ)
	if start.Valid {
		t := model.ClockTime(start.Int64)
		o.StartTime = &t
	}
	if end.Valid {
		t := model.ClockTime(end.Int64)
		o.EndTime = &t
	}
	return o, nil
}

// OverridesInRange implements storage.ScheduleStore.
func (s *Store) OverridesInRange(ctx context.Context, driverID int64, from, to model.Date) ([]model.ScheduleOverride, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, driver_id, date, type, start_time, end_time
		FROM schedule_overrides
		WHERE driver_id = ? AND date >= ? AND date <= ?
		ORDER BY date`,
		driverID, from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("overrides in %s..%s: %w", from, to, err)
	}
	defer func() { _ = rows.Close() }()
	var out []model.ScheduleOverride
	for rows.Next() {
		o, err := scanOverride(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// OverrideOn implements storage.ScheduleStore.
func (s *Store) OverrideOn(ctx context.Context, driverID int64, date model.Date) (*model.ScheduleOverride, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, driver_id, date, type, start_time, end_time
		FROM schedule_overrides WHERE driver_id = ? AND date = ?`,
		driverID, date.String())
	o, err := scanOverride(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("override on %s: %w", date, err)
	}
	return &o, nil
}
