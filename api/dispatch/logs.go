package dispatch

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/eldlit/pet-dispatch-deploy/core/dispatch/logging"
)

// NewLogHandler returns an HTTP handler exposing the assignment audit trail via
// GET /api/dispatch/logs. Requests must include an Authorization header with
// "Bearer <token>" when token is non-empty.
func NewLogHandler(store logging.LogStore, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token != "" {
			auth := r.Header.Get("Authorization")
			if auth != "Bearer "+token {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		q := logging.LogQuery{}
		if s := r.URL.Query().Get("start"); s != "" {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				q.Start = t
			}
		}
		if s := r.URL.Query().Get("end"); s != "" {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				q.End = t
			}
		}
		if s := r.URL.Query().Get("ride_id"); s != "" {
			if v, err := strconv.ParseInt(s, 10, 64); err == nil {
				q.RideID = v
			}
		}
		if s := r.URL.Query().Get("driver_id"); s != "" {
			if v, err := strconv.ParseInt(s, 10, 64); err == nil {
				q.DriverID = v
			}
		}
		q.Action = r.URL.Query().Get("action")
		records, err := store.Query(r.Context(), q)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(records); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}
