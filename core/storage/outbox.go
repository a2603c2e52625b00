package storage

import "time"

// OutboxAction names the external calendar operation a job performs.
type OutboxAction string

const (
	// OutboxCreateEvent mirrors a fresh assignment into the driver's
	// calendar.
	OutboxCreateEvent OutboxAction = "create_event"
	// OutboxCancelEvent removes the calendar event after unassignment.
	OutboxCancelEvent OutboxAction = "cancel_event"
)

// OutboxJob is a calendar synchronisation unit of work. Jobs are enqueued in
// the same transaction as the assignment they mirror, so the internal commit
// is never gated on the external call.
type OutboxJob struct {
	ID        string
	RideID    int64
	DriverID  int64
	Action    OutboxAction
	EventRef  string
	Attempts  int
	LastError string
	CreatedAt time.Time
	UpdatedAt time.Time
}
