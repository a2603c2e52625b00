package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/eldlit/pet-dispatch-deploy/core/model"
)

func TestSpecForRide(t *testing.T) {
	driverID := int64(2)
	r := model.Ride{
		ID:              42,
		CustomerID:      7,
		DriverID:        &driverID,
		PetName:         "Biscuit",
		PickupLocation:  "12 Rue des Chats",
		DropoffLocation: "Clinique Vétérinaire Nord",
		SpecialNotes:    "carrier required",
		ScheduledTime:   time.Date(2024, 6, 3, 9, 30, 0, 0, time.UTC),
	}

	spec := SpecForRide(r, 45*time.Minute)
	assert.Equal(t, "Ride: Biscuit", spec.Summary)
	assert.Equal(t, "12 Rue des Chats", spec.Location)
	assert.Equal(t, r.ScheduledTime, spec.Start)
	assert.Equal(t, r.ScheduledTime.Add(45*time.Minute), spec.End)
	assert.Equal(t, "ride-42", spec.IdempotencyKey)
	assert.Contains(t, spec.Description, "carrier required")

	end := time.Date(2024, 6, 3, 11, 0, 0, 0, time.UTC)
	r.RideEndTime = &end
	spec = SpecForRide(r, 45*time.Minute)
	assert.Equal(t, end, spec.End)
}
