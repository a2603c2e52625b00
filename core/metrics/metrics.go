package metrics

import "time"

// AssignmentRecord represents one assignment state change to be recorded.
type AssignmentRecord struct {
	RideID        int64
	DriverID      int64
	Action        string // "assign" or "unassign"
	ScheduledTime time.Time
	Synced        bool // whether a calendar job was enqueued
	Time          time.Time
}

// MetricsSink records assignment events for observability purposes.
type MetricsSink interface {
	RecordAssignment(records []AssignmentRecord) error
}

// CalendarSyncRecord captures one external calendar synchronisation attempt.
type CalendarSyncRecord struct {
	JobID    string
	RideID   int64
	DriverID int64
	Action   string
	Attempts int
	Error    string
	Latency  time.Duration
	Time     time.Time
}

// CalendarSyncRecorder records calendar synchronisation attempts. Sinks
// implement it in addition to MetricsSink when they can store sync events.
type CalendarSyncRecorder interface {
	RecordCalendarSync(rec CalendarSyncRecord) error
}

// Sink combines MetricsSink and CalendarSyncRecorder for sinks that can
// record both assignment events and calendar synchronisation attempts.
type Sink interface {
	MetricsSink
	CalendarSyncRecorder
}

// NopSink discards all records.
type NopSink struct{}

// RecordAssignment implements MetricsSink.
func (NopSink) RecordAssignment([]AssignmentRecord) error { return nil }

// RecordCalendarSync implements CalendarSyncRecorder.
func (NopSink) RecordCalendarSync(CalendarSyncRecord) error { return nil }
