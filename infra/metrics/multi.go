package metrics

import coremetrics "github.com/eldlit/pet-dispatch-deploy/core/metrics"

// MultiSink fans assignment records out to multiple sinks.
type MultiSink struct {
	Sinks []coremetrics.MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...coremetrics.MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordAssignment forwards the records to all sinks, returning the first
// error encountered.
func (m *MultiSink) RecordAssignment(recs []coremetrics.AssignmentRecord) error {
	for _, s := range m.Sinks {
		if err := s.RecordAssignment(recs); err != nil {
			return err
		}
	}
	return nil
}

// RecordCalendarSync forwards sync attempts to the sinks that support them.
func (m *MultiSink) RecordCalendarSync(rec coremetrics.CalendarSyncRecord) error {
	for _, s := range m.Sinks {
		if sr, ok := s.(coremetrics.CalendarSyncRecorder); ok {
			if err := sr.RecordCalendarSync(rec); err != nil {
				return err
			}
		}
	}
	return nil
}
