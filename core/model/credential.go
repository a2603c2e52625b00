package model

import "time"

// ConnectionStatus tracks a driver's external calendar authorization. The
// flow is one-directional (NOT_CONNECTED -> INITIATED -> CONNECTED) except
// for re-authorization after a token becomes invalid.
type ConnectionStatus string

const (
	ConnectionNotConnected ConnectionStatus = "NOT_CONNECTED"
	ConnectionInitiated    ConnectionStatus = "INITIATED"
	ConnectionConnected    ConnectionStatus = "CONNECTED"
)

// CalendarCredential holds a driver's calendar tokens. At most one exists per
// driver; absence means the driver never started the authorization flow and
// calendar sync is skipped silently.
type CalendarCredential struct {
	DriverID     int64
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Status       ConnectionStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Connected reports whether events can be pushed for this driver.
func (c CalendarCredential) Connected() bool {
	return c.Status == ConnectionConnected
}
