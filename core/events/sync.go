package events

// CalendarSyncEvent is published for each calendar synchronisation attempt.
// Action mirrors the outbox job action; Err is nil on success.
type CalendarSyncEvent struct {
	JobID    string
	RideID   int64
	DriverID int64
	Action   string
	Attempts int
	Err      error
}
