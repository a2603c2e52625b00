// Package calendar mirrors ride assignments into drivers' external calendars.
// The gateway is an unreliable collaborator: callers wrap it with RetryGateway
// and drive it from the outbox via Syncer so dispatch commits never wait on
// the network.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eldlit/pet-dispatch-deploy/core/model"
)

var (
	// ErrNotConnected is returned when the driver never completed the
	// calendar authorization flow.
	ErrNotConnected = errors.New("calendar: driver not connected")
	// ErrEventNotFound is returned when cancelling an event that no longer
	// exists upstream.
	ErrEventNotFound = errors.New("calendar: event not found")
)

// EventSpec describes one calendar event to create. IdempotencyKey is stable
// per ride so a retried create cannot duplicate the event upstream.
type EventSpec struct {
	Summary        string
	Description    string
	Location       string
	Start          time.Time
	End            time.Time
	IdempotencyKey string
}

// Gateway talks to the external calendar provider on behalf of one driver.
type Gateway interface {
	// CreateEvent creates the event in the driver's calendar and returns the
	// provider's event reference.
	CreateEvent(ctx context.Context, driverID int64, spec EventSpec) (string, error)
	// CancelEvent removes a previously created event.
	CancelEvent(ctx context.Context, driverID int64, eventRef string) error
}

// SpecForRide builds the calendar event for an assigned ride. Rides without a
// recorded end use defaultDur.
func SpecForRide(r model.Ride, defaultDur time.Duration) EventSpec {
	start, end := r.Window(defaultDur)
	desc := fmt.Sprintf("Pickup: %s\nDropoff: %s", r.PickupLocation, r.DropoffLocation)
	if r.SpecialNotes != "" {
		desc += "\nNotes: " + r.SpecialNotes
	}
	return EventSpec{
		Summary:        "Ride: " + r.PetName,
		Description:    desc,
		Location:       r.PickupLocation,
		Start:          start,
		End:            end,
		IdempotencyKey: fmt.Sprintf("ride-%d", r.ID),
	}
}
