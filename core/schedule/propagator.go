// Package schedule materialises weekly shift templates into concrete dated
// entries. Propagation computes the full diff in memory first and hands it to
// the store as one transactional batch, because the storage layer has no
// atomic "upsert many": issuing separate insert and update calls could leave
// a month half applied on a crash.
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/eldlit/pet-dispatch-deploy/core/logger"
	"github.com/eldlit/pet-dispatch-deploy/core/model"
	"github.com/eldlit/pet-dispatch-deploy/core/storage"
)

// Plan is the reconciliation diff for one propagation run: entries with no
// existing row for their (weekday, date) key are inserted, the rest get their
// shift times updated in place. Overrides are never part of a plan.
type Plan struct {
	Inserts []model.WeeklyScheduleEntry
	Updates []model.WeeklyScheduleEntry
}

// Empty reports whether the plan contains no work.
func (p Plan) Empty() bool { return len(p.Inserts) == 0 && len(p.Updates) == 0 }

// Size returns the total number of entries the plan touches.
func (p Plan) Size() int { return len(p.Inserts) + len(p.Updates) }

// BuildPlan expands the weekly template across [monthStart, monthEnd] and
// partitions the result against existing entries. Every template entry is
// validated before any date is visited, so an invalid template rejects the
// whole run. Dates whose weekday has no template entry are skipped.
func BuildPlan(driverID int64, template []model.TemplateEntry, monthStart, monthEnd model.Date, existing []model.WeeklyScheduleEntry) (Plan, error) {
	if monthEnd.Before(monthStart) {
		return Plan{}, fmt.Errorf("month end %s precedes start %s: %w", monthEnd, monthStart, model.ErrInvalidWindow)
	}

	byWeekday := make(map[time.Weekday]model.TemplateEntry, len(template))
	for _, entry := range template {
		if err := entry.Validate(); err != nil {
			return Plan{}, err
		}
		if _, dup := byWeekday[entry.Weekday]; dup {
			return Plan{}, fmt.Errorf("template lists %s twice", entry.Weekday)
		}
		byWeekday[entry.Weekday] = entry
	}

	existingKeys := make(map[string]struct{}, len(existing))
	for _, e := range existing {
		existingKeys[planKey(e.Weekday, e.StartDate)] = struct{}{}
	}

	var plan Plan
	for date := monthStart; !date.After(monthEnd); date = date.AddDays(1) {
		tmpl, ok := byWeekday[date.Weekday()]
		if !ok {
			continue
		}
		entry := model.WeeklyScheduleEntry{
			DriverID:  driverID,
			Weekday:   date.Weekday(),
			StartTime: tmpl.StartTime,
			EndTime:   tmpl.EndTime,
			StartDate: date,
			EndDate:   date,
		}
		if _, exists := existingKeys[planKey(entry.Weekday, entry.StartDate)]; exists {
			plan.Updates = append(plan.Updates, entry)
		} else {
			plan.Inserts = append(plan.Inserts, entry)
		}
	}
	return plan, nil
}

func planKey(w time.Weekday, d model.Date) string {
	return fmt.Sprintf("%d|%s", w, d)
}

// Propagator applies weekly templates to the schedule store.
type Propagator struct {
	store storage.ScheduleStore
	log   logger.Logger
}

// NewPropagator creates a propagator.
func NewPropagator(store storage.ScheduleStore, log logger.Logger) (*Propagator, error) {
	if store == nil {
		return nil, fmt.Errorf("schedule: nil store provided to NewPropagator")
	}
	return &Propagator{store: store, log: log}, nil
}

// Apply expands the template across the month and commits the diff as one
// transaction. Re-applying the same template is idempotent: the second run
// produces updates only, never duplicates. Date overrides are untouched.
func (p *Propagator) Apply(ctx context.Context, driverID int64, template []model.TemplateEntry, monthStart, monthEnd model.Date) (Plan, error) {
	existing, err := p.store.EntriesInRange(ctx, driverID, monthStart, monthEnd)
	if err != nil {
		return Plan{}, fmt.Errorf("load existing entries: %w", err)
	}
	plan, err := BuildPlan(driverID, template, monthStart, monthEnd, existing)
	if err != nil {
		return Plan{}, err
	}
	if plan.Empty() {
		return plan, nil
	}
	if err := p.store.ApplyPlan(ctx, driverID, plan.Inserts, plan.Updates); err != nil {
		return Plan{}, fmt.Errorf("apply plan: %w", err)
	}
	if p.log != nil {
		p.log.Infof("propagated schedule for driver %d: %d inserts, %d updates", driverID, len(plan.Inserts), len(plan.Updates))
	}
	return plan, nil
}
