// Package events defines the dispatch related events emitted on the event bus.
//
// Available event types:
//   - AssignmentEvent: ride bound to a driver
//   - UnassignmentEvent: ride released from a driver
//   - CalendarSyncEvent: calendar mirror attempt result
//   - ConflictEvent: overlapping bookings detected
package events
