package dispatch

import "fmt"

// Config tunes the assignment coordinator.
type Config struct {
	// AllowReassign lets an assignment displace the current driver instead
	// of failing. The previous driver is unassigned first, calendar event
	// included.
	AllowReassign bool `json:"allow_reassign"`
	// DefaultRideMinutes bounds rides without a recorded end time.
	DefaultRideMinutes int `json:"default_ride_minutes"`
	// SyncTimeoutSeconds bounds the inline calendar flush after a commit.
	SyncTimeoutSeconds int `json:"sync_timeout_seconds"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.DefaultRideMinutes <= 0 {
		c.DefaultRideMinutes = 60
	}
	if c.SyncTimeoutSeconds <= 0 {
		c.SyncTimeoutSeconds = 5
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.DefaultRideMinutes < 0 {
		return fmt.Errorf("default_ride_minutes must be positive")
	}
	if c.SyncTimeoutSeconds < 0 {
		return fmt.Errorf("sync_timeout_seconds must be positive")
	}
	return nil
}
