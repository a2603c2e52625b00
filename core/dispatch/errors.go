package dispatch

import (
	"errors"
	"fmt"
)

// ErrDriverUnavailable rejects an assignment because the driver's effective
// status at the ride's scheduled time is not AVAILABLE.
var ErrDriverUnavailable = errors.New("dispatch: driver unavailable")

// SyncWarning reports that the assignment committed but the calendar mirror
// did not complete inline. The outbox job remains queued for the background
// syncer, so the caller gets a warning rather than a failure.
type SyncWarning struct {
	JobID    string
	RideID   int64
	DriverID int64
	Cause    error
}

func (w *SyncWarning) String() string {
	return fmt.Sprintf("calendar sync pending for ride %d (job %s): %v", w.RideID, w.JobID, w.Cause)
}
