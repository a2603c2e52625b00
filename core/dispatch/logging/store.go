// Package logging persists an audit trail of assignment decisions. Every
// assign and unassign, committed or rejected, is appended here so operators
// can reconstruct how a ride ended up with a driver.
package logging

import (
	"context"
	"time"
)

// LogRecord captures one assignment decision and its outcome.
type LogRecord struct {
	Timestamp time.Time `json:"timestamp"`
	RideID    int64     `json:"ride_id"`
	DriverID  int64     `json:"driver_id"`
	Action    string    `json:"action"`  // assign, unassign
	Outcome   string    `json:"outcome"` // committed, rejected
	Reason    string    `json:"reason,omitempty"`
	// Warning carries the calendar sync warning text when the commit
	// succeeded but the mirror is still pending.
	Warning string `json:"warning,omitempty"`
	// Remaining is the driver's assigned ride count after an unassign.
	Remaining int `json:"remaining,omitempty"`
	// Reassigned marks an assign that displaced another driver.
	Reassigned bool `json:"reassigned,omitempty"`
}

// LogQuery defines filters for retrieving records.
type LogQuery struct {
	Start    time.Time
	End      time.Time
	RideID   int64
	DriverID int64
	Action   string
}

func (q LogQuery) matches(r LogRecord) bool {
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	if q.RideID != 0 && r.RideID != q.RideID {
		return false
	}
	if q.DriverID != 0 && r.DriverID != q.DriverID {
		return false
	}
	if q.Action != "" && r.Action != q.Action {
		return false
	}
	return true
}

// LogStore persists LogRecords and supports querying.
type LogStore interface {
	Append(ctx context.Context, rec LogRecord) error
	Query(ctx context.Context, q LogQuery) ([]LogRecord, error)
	Close() error
}
