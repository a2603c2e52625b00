// Package drivers exposes driver availability and schedule management over
// HTTP. All routes live under /api/drivers/{id}/.
package drivers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/eldlit/pet-dispatch-deploy/core/availability"
	"github.com/eldlit/pet-dispatch-deploy/core/engine"
	"github.com/eldlit/pet-dispatch-deploy/core/model"
	"github.com/eldlit/pet-dispatch-deploy/core/storage"
)

// NewHandler routes /api/drivers/{id}/... requests to the engine.
func NewHandler(eng *engine.Engine) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/api/drivers/")
		parts := strings.Split(path, "/")
		if len(parts) < 2 {
			http.NotFound(w, r)
			return
		}
		id, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			http.Error(w, "invalid driver id", http.StatusBadRequest)
			return
		}
		switch {
		case parts[1] == "status" && r.Method == http.MethodGet:
			handleStatus(w, r, eng, id)
		case parts[1] == "schedule" && len(parts) == 2 && r.Method == http.MethodGet:
			handleGetSchedule(w, r, eng, id)
		case parts[1] == "schedule" && len(parts) == 2 && r.Method == http.MethodPut:
			handlePutSchedule(w, r, eng, id)
		case parts[1] == "schedule" && len(parts) == 3 && parts[2] == "propagate" && r.Method == http.MethodPost:
			handlePropagate(w, r, eng, id)
		case parts[1] == "overrides" && r.Method == http.MethodPut:
			handlePutOverrides(w, r, eng, id)
		case parts[1] == "calendar" && len(parts) == 3 && parts[2] == "connect" && r.Method == http.MethodPost:
			handleCalendarConnect(w, r, eng, id)
		case parts[1] == "calendar" && len(parts) == 3 && parts[2] == "complete" && r.Method == http.MethodPost:
			handleCalendarComplete(w, r, eng, id)
		case parts[1] == "calendar" && len(parts) == 2 && r.Method == http.MethodDelete:
			handleCalendarDisconnect(w, r, eng, id)
		default:
			http.NotFound(w, r)
		}
	})
}

func handleStatus(w http.ResponseWriter, r *http.Request, eng *engine.Engine, id int64) {
	at := eng.Now().UTC()
	if s := r.URL.Query().Get("at"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			http.Error(w, "invalid at parameter", http.StatusBadRequest)
			return
		}
		at = t
	}
	status, err := eng.DriverStatus(r.Context(), id, at)
	if err != nil {
		writeScheduleError(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": string(status), "at": at.Format(time.RFC3339)})
}

type scheduleEntryDTO struct {
	Weekday   string `json:"weekday"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

type overrideDTO struct {
	Date      string `json:"date"`
	Type      string `json:"type"`
	StartTime string `json:"start_time,omitempty"`
	EndTime   string `json:"end_time,omitempty"`
}

type scheduleResponse struct {
	Entries   []scheduleEntryDTO `json:"entries"`
	Overrides []overrideDTO      `json:"overrides"`
}

func handleGetSchedule(w http.ResponseWriter, r *http.Request, eng *engine.Engine, id int64) {
	from, err := model.ParseDate(r.URL.Query().Get("from"))
	if err != nil {
		http.Error(w, "invalid from date", http.StatusBadRequest)
		return
	}
	to, err := model.ParseDate(r.URL.Query().Get("to"))
	if err != nil {
		http.Error(w, "invalid to date", http.StatusBadRequest)
		return
	}
	entries, overrides, err := eng.Schedule(r.Context(), id, from, to)
	if err != nil {
		writeScheduleError(w, err)
		return
	}
	resp := scheduleResponse{
		Entries:   make([]scheduleEntryDTO, len(entries)),
		Overrides: make([]overrideDTO, len(overrides)),
	}
	for i, e := range entries {
		resp.Entries[i] = scheduleEntryDTO{
			Weekday:   e.Weekday.String(),
			StartTime: e.StartTime.String(),
			EndTime:   e.EndTime.String(),
			StartDate: e.StartDate.String(),
			EndDate:   e.EndDate.String(),
		}
	}
	for i, o := range overrides {
		d := overrideDTO{Date: o.Date.String(), Type: string(o.Type)}
		if o.StartTime != nil {
			d.StartTime = o.StartTime.String()
		}
		if o.EndTime != nil {
			d.EndTime = o.EndTime.String()
		}
		resp.Overrides[i] = d
	}
	writeJSON(w, resp)
}

func handlePutSchedule(w http.ResponseWriter, r *http.Request, eng *engine.Engine, id int64) {
	var dtos []scheduleEntryDTO
	if err := json.NewDecoder(r.Body).Decode(&dtos); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	entries := make([]model.WeeklyScheduleEntry, len(dtos))
	for i, d := range dtos {
		e, err := entryFromDTO(d)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		entries[i] = e
	}
	if err := eng.UpsertWeeklySchedule(r.Context(), id, entries); err != nil {
		writeScheduleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func handlePutOverrides(w http.ResponseWriter, r *http.Request, eng *engine.Engine, id int64) {
	var dtos []overrideDTO
	if err := json.NewDecoder(r.Body).Decode(&dtos); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	overrides := make([]model.ScheduleOverride, len(dtos))
	for i, d := range dtos {
		o, err := overrideFromDTO(d)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		overrides[i] = o
	}
	if err := eng.UpsertOverrides(r.Context(), id, overrides); err != nil {
		writeScheduleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type propagateRequest struct {
	Template   []templateDTO `json:"template"`
	MonthStart string        `json:"month_start"`
	MonthEnd   string        `json:"month_end"`
}

type templateDTO struct {
	Weekday   string `json:"weekday"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type propagateResponse struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
}

func handlePropagate(w http.ResponseWriter, r *http.Request, eng *engine.Engine, id int64) {
	var req propagateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	start, err := model.ParseDate(req.MonthStart)
	if err != nil {
		http.Error(w, "invalid month_start", http.StatusBadRequest)
		return
	}
	end, err := model.ParseDate(req.MonthEnd)
	if err != nil {
		http.Error(w, "invalid month_end", http.StatusBadRequest)
		return
	}
	template := make([]model.TemplateEntry, len(req.Template))
	for i, d := range req.Template {
		wd, ok := weekdayFromString(d.Weekday)
		if !ok {
			http.Error(w, "unknown weekday "+d.Weekday, http.StatusBadRequest)
			return
		}
		st, err := model.ParseClockTime(d.StartTime)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		et, err := model.ParseClockTime(d.EndTime)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		template[i] = model.TemplateEntry{Weekday: wd, StartTime: st, EndTime: et}
	}
	plan, err := eng.ApplyMonthlyTemplate(r.Context(), id, template, start, end)
	if err != nil {
		writeScheduleError(w, err)
		return
	}
	writeJSON(w, propagateResponse{Inserted: len(plan.Inserts), Updated: len(plan.Updates)})
}

type completeAuthRequest struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    string `json:"expires_at"`
}

func handleCalendarConnect(w http.ResponseWriter, r *http.Request, eng *engine.Engine, id int64) {
	if err := eng.BeginCalendarAuthorization(r.Context(), id); err != nil {
		writeScheduleError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func handleCalendarComplete(w http.ResponseWriter, r *http.Request, eng *engine.Engine, id int64) {
	var req completeAuthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.AccessToken == "" {
		http.Error(w, "access_token required", http.StatusBadRequest)
		return
	}
	var expiresAt time.Time
	if req.ExpiresAt != "" {
		t, err := time.Parse(time.RFC3339, req.ExpiresAt)
		if err != nil {
			http.Error(w, "invalid expires_at", http.StatusBadRequest)
			return
		}
		expiresAt = t
	}
	if err := eng.CompleteCalendarAuthorization(r.Context(), id, req.AccessToken, req.RefreshToken, expiresAt); err != nil {
		writeScheduleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func handleCalendarDisconnect(w http.ResponseWriter, r *http.Request, eng *engine.Engine, id int64) {
	if err := eng.DisconnectCalendar(r.Context(), id); err != nil {
		writeScheduleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func entryFromDTO(d scheduleEntryDTO) (model.WeeklyScheduleEntry, error) {
	wd, ok := weekdayFromString(d.Weekday)
	if !ok {
		return model.WeeklyScheduleEntry{}, errors.New("unknown weekday " + d.Weekday)
	}
	st, err := model.ParseClockTime(d.StartTime)
	if err != nil {
		return model.WeeklyScheduleEntry{}, err
	}
	et, err := model.ParseClockTime(d.EndTime)
	if err != nil {
		return model.WeeklyScheduleEntry{}, err
	}
	sd, err := model.ParseDate(d.StartDate)
	if err != nil {
		return model.WeeklyScheduleEntry{}, err
	}
	ed, err := model.ParseDate(d.EndDate)
	if err != nil {
		return model.WeeklyScheduleEntry{}, err
	}
	return model.WeeklyScheduleEntry{Weekday: wd, StartTime: st, EndTime: et, StartDate: sd, EndDate: ed}, nil
}

func overrideFromDTO(d overrideDTO) (model.ScheduleOverride, error) {
	date, err := model.ParseDate(d.Date)
	if err != nil {
		return model.ScheduleOverride{}, err
	}
	o := model.ScheduleOverride{Date: date, Type: model.OverrideType(d.Type)}
	if d.StartTime != "" {
		st, err := model.ParseClockTime(d.StartTime)
		if err != nil {
			return model.ScheduleOverride{}, err
		}
		o.StartTime = &st
	}
	if d.EndTime != "" {
		et, err := model.ParseClockTime(d.EndTime)
		if err != nil {
			return model.ScheduleOverride{}, err
		}
		o.EndTime = &et
	}
	return o, nil
}

func weekdayFromString(s string) (time.Weekday, bool) {
	switch strings.ToLower(s) {
	case "sunday":
		return time.Sunday, true
	case "monday":
		return time.Monday, true
	case "tuesday":
		return time.Tuesday, true
	case "wednesday":
		return time.Wednesday, true
	case "thursday":
		return time.Thursday, true
	case "friday":
		return time.Friday, true
	case "saturday":
		return time.Saturday, true
	default:
		return 0, false
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeScheduleError(w http.ResponseWriter, err error) {
	var conflict *availability.ConflictError
	switch {
	case errors.Is(err, storage.ErrDriverNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &conflict):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, model.ErrInvalidRange), errors.Is(err, model.ErrInvalidWindow):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
