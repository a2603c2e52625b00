package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/eldlit/pet-dispatch-deploy/core/model"
)

// Credential implements storage.CredentialStore. A driver who never started
// the authorization flow has no row and yields nil.
func (s *Store) Credential(ctx context.Context, driverID int64) (*model.CalendarCredential, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT driver_id, access_token, refresh_token, expires_at, status, created_at, updated_at
		FROM calendar_credentials WHERE driver_id = ?`, driverID)
	var c model.CalendarCredential
	var status string
	var expires, created, updated int64
	err := row.Scan(&c.DriverID, &c.AccessToken, &c.RefreshToken, &expires, &status, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load credential for driver %d: %w", driverID, err)
	}
	c.Status = model.ConnectionStatus(status)
	if expires != 0 {
		c.ExpiresAt = time.Unix(expires, 0).UTC()
	}
	c.CreatedAt = time.Unix(created, 0).UTC()
	c.UpdatedAt = time.Unix(updated, 0).UTC()
	return &c, nil
}

// UpsertCredential implements storage.CredentialStore.
func (s *Store) UpsertCredential(ctx context.Context, cred model.CalendarCredential) error {
	if cred.Status == "" {
		cred.Status = model.ConnectionNotConnected
	}
	now := s.now()
	var expires int64
	if !cred.ExpiresAt.IsZero() {
		expires = cred.ExpiresAt.Unix()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO calendar_credentials (driver_id, access_token, refresh_token, expires_at, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(driver_id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			status = excluded.status,
			updated_at = excluded.updated_at`,
		cred.DriverID, cred.AccessToken, cred.RefreshToken, expires, string(cred.Status), now, now)
	if err != nil {
		return fmt.Errorf("upsert credential for driver %d: %w", cred.DriverID, err)
	}
	return nil
}
