// Package dispatch exposes assignment operations over HTTP.
package dispatch

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/eldlit/pet-dispatch-deploy/core/availability"
	coredispatch "github.com/eldlit/pet-dispatch-deploy/core/dispatch"
	"github.com/eldlit/pet-dispatch-deploy/core/engine"
	"github.com/eldlit/pet-dispatch-deploy/core/model"
	"github.com/eldlit/pet-dispatch-deploy/core/storage"
)

type assignmentRequest struct {
	RideID   int64 `json:"ride_id"`
	DriverID int64 `json:"driver_id"`
}

type rideView struct {
	ID              int64  `json:"id"`
	CustomerID      int64  `json:"customer_id"`
	DriverID        *int64 `json:"driver_id,omitempty"`
	PetName         string `json:"pet_name"`
	PickupLocation  string `json:"pickup_location"`
	DropoffLocation string `json:"dropoff_location"`
	Status          string `json:"status"`
	ScheduledTime   string `json:"scheduled_time"`
	RideEndTime     string `json:"ride_end_time,omitempty"`
	CalendarEventID string `json:"calendar_event_id,omitempty"`
}

type assignmentResponse struct {
	Ride    rideView `json:"ride"`
	Warning string   `json:"warning,omitempty"`
}

func viewOf(r model.Ride) rideView {
	v := rideView{
		ID:              r.ID,
		CustomerID:      r.CustomerID,
		DriverID:        r.DriverID,
		PetName:         r.PetName,
		PickupLocation:  r.PickupLocation,
		DropoffLocation: r.DropoffLocation,
		Status:          string(r.Status),
		ScheduledTime:   r.ScheduledTime.Format(time.RFC3339),
		CalendarEventID: r.CalendarEventID,
	}
	if r.RideEndTime != nil {
		v.RideEndTime = r.RideEndTime.Format(time.RFC3339)
	}
	return v
}

// NewAssignHandler binds a ride to a driver via POST /api/dispatch/assign.
func NewAssignHandler(eng *engine.Engine) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req assignmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		res, err := eng.AssignRide(r.Context(), req.RideID, req.DriverID)
		if err != nil {
			writeDispatchError(w, err)
			return
		}
		writeResult(w, res)
	})
}

// NewUnassignHandler releases a ride from a driver via POST /api/dispatch/unassign.
func NewUnassignHandler(eng *engine.Engine) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req assignmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		res, err := eng.UnassignRide(r.Context(), req.RideID, req.DriverID)
		if err != nil {
			writeDispatchError(w, err)
			return
		}
		writeResult(w, res)
	})
}

type boardEntry struct {
	DriverID int64     `json:"driver_id"`
	Name     string    `json:"name"`
	Status   string    `json:"status,omitempty"`
	NextRide *rideView `json:"next_ride,omitempty"`
	Conflict string    `json:"conflict,omitempty"`
}

// NewBoardHandler exposes every driver's effective status via GET /api/dispatch/board.
func NewBoardHandler(eng *engine.Engine) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		snaps, err := eng.Board(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		out := make([]boardEntry, len(snaps))
		for i, s := range snaps {
			out[i] = boardEntryOf(s)
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(out); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}

func boardEntryOf(s availability.Snapshot) boardEntry {
	e := boardEntry{DriverID: s.DriverID, Name: s.Name}
	if s.Conflict != nil {
		e.Conflict = s.Conflict.Error()
	} else {
		e.Status = string(s.Status)
	}
	if s.NextRide != nil {
		v := viewOf(*s.NextRide)
		e.NextRide = &v
	}
	return e
}

func writeResult(w http.ResponseWriter, res coredispatch.Result) {
	out := assignmentResponse{Ride: viewOf(res.Ride)}
	if res.Warning != nil {
		out.Warning = res.Warning.String()
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(out); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeDispatchError(w http.ResponseWriter, err error) {
	var conflict *availability.ConflictError
	switch {
	case errors.Is(err, storage.ErrRideNotFound), errors.Is(err, storage.ErrDriverNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, storage.ErrAlreadyAssigned), errors.Is(err, storage.ErrNotAssigned):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.As(err, &conflict):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, coredispatch.ErrDriverUnavailable):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
