package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/eldlit/pet-dispatch-deploy/core/model"
)

func juneTemplate() []model.TemplateEntry {
	return []model.TemplateEntry{
		{Weekday: time.Monday, StartTime: model.NewClockTime(9, 0), EndTime: model.NewClockTime(17, 0)},
		{Weekday: time.Wednesday, StartTime: model.NewClockTime(10, 0), EndTime: model.NewClockTime(18, 0)},
	}
}

func TestBuildPlanPartitionsNewAndExisting(t *testing.T) {
	monthStart := model.NewDate(2024, time.June, 1)
	monthEnd := model.NewDate(2024, time.June, 30)
	// June 2024 has four Mondays (3, 10, 17, 24) and four Wednesdays
	// (5, 12, 19, 26).
	existing := []model.WeeklyScheduleEntry{
		{DriverID: 1, Weekday: time.Monday, StartDate: model.NewDate(2024, time.June, 10), EndDate: model.NewDate(2024, time.June, 10), StartTime: model.NewClockTime(8, 0), EndTime: model.NewClockTime(12, 0)},
	}

	plan, err := BuildPlan(1, juneTemplate(), monthStart, monthEnd, existing)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(plan.Updates) != 1 {
		t.Fatalf("expected 1 update, got %d", len(plan.Updates))
	}
	if plan.Updates[0].StartDate != model.NewDate(2024, time.June, 10) {
		t.Errorf("wrong update target: %s", plan.Updates[0].StartDate)
	}
	if plan.Updates[0].StartTime != model.NewClockTime(9, 0) {
		t.Errorf("update must carry the template times, got %s", plan.Updates[0].StartTime)
	}
	// 4 Mondays + 4 Wednesdays in June 2024, minus the one existing row.
	if len(plan.Inserts) != 7 {
		t.Fatalf("expected 7 inserts, got %d", len(plan.Inserts))
	}
	for _, e := range plan.Inserts {
		if e.StartDate != e.EndDate {
			t.Errorf("materialised entry must cover a single date: %s-%s", e.StartDate, e.EndDate)
		}
		if e.Weekday != time.Monday && e.Weekday != time.Wednesday {
			t.Errorf("unexpected weekday %s", e.Weekday)
		}
	}
}

func TestBuildPlanSkipsDatesWithoutTemplate(t *testing.T) {
	plan, err := BuildPlan(1, juneTemplate(), model.NewDate(2024, time.June, 1), model.NewDate(2024, time.June, 2), nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	// June 1st 2024 is a Saturday, the 2nd a Sunday: nothing to stamp.
	if !plan.Empty() {
		t.Fatalf("expected empty plan, got %d entries", plan.Size())
	}
}

func TestBuildPlanRejectsInvalidTemplateAtomically(t *testing.T) {
	bad := append(juneTemplate(), model.TemplateEntry{
		Weekday:   time.Friday,
		StartTime: model.NewClockTime(18, 0),
		EndTime:   model.NewClockTime(9, 0),
	})
	_, err := BuildPlan(1, bad, model.NewDate(2024, time.June, 1), model.NewDate(2024, time.June, 30), nil)
	if !errors.Is(err, model.ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
}

func TestBuildPlanRejectsDuplicateWeekday(t *testing.T) {
	dup := append(juneTemplate(), juneTemplate()[0])
	if _, err := BuildPlan(1, dup, model.NewDate(2024, time.June, 1), model.NewDate(2024, time.June, 30), nil); err == nil {
		t.Fatal("expected duplicate weekday to be rejected")
	}
}

func TestBuildPlanRejectsInvertedMonth(t *testing.T) {
	_, err := BuildPlan(1, juneTemplate(), model.NewDate(2024, time.July, 1), model.NewDate(2024, time.June, 1), nil)
	if !errors.Is(err, model.ErrInvalidWindow) {
		t.Fatalf("expected ErrInvalidWindow, got %v", err)
	}
}

type planRecorder struct {
	entries  []model.WeeklyScheduleEntry
	applies  int
	lastSize int
}

func (r *planRecorder) UpsertWeeklyEntries(context.Context, int64, []model.WeeklyScheduleEntry) error {
	return nil
}

func (r *planRecorder) ReplaceOverrides(context.Context, int64, []model.ScheduleOverride) error {
	return nil
}

func (r *planRecorder) ApplyPlan(_ context.Context, _ int64, inserts, updates []model.WeeklyScheduleEntry) error {
	r.applies++
	r.lastSize = len(inserts) + len(updates)
	byKey := make(map[string]int)
	for i, e := range r.entries {
		byKey[planKey(e.Weekday, e.StartDate)] = i
	}
	for _, e := range updates {
		i, ok := byKey[planKey(e.Weekday, e.StartDate)]
		if !ok {
			return errors.New("update targets a missing row")
		}
		r.entries[i].StartTime = e.StartTime
		r.entries[i].EndTime = e.EndTime
	}
	for _, e := range inserts {
		if _, dup := byKey[planKey(e.Weekday, e.StartDate)]; dup {
			return errors.New("insert collides with an existing row")
		}
		r.entries = append(r.entries, e)
	}
	return nil
}

func (r *planRecorder) EntriesInRange(_ context.Context, _ int64, from, to model.Date) ([]model.WeeklyScheduleEntry, error) {
	var out []model.WeeklyScheduleEntry
	for _, e := range r.entries {
		if !e.StartDate.Before(from) && !e.StartDate.After(to) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *planRecorder) OverridesInRange(context.Context, int64, model.Date, model.Date) ([]model.ScheduleOverride, error) {
	return nil, nil
}

func (r *planRecorder) OverrideOn(context.Context, int64, model.Date) (*model.ScheduleOverride, error) {
	return nil, nil
}

func TestApplyIsIdempotent(t *testing.T) {
	store := &planRecorder{}
	prop, err := NewPropagator(store, nil)
	if err != nil {
		t.Fatalf("propagator: %v", err)
	}
	monthStart := model.NewDate(2024, time.June, 1)
	monthEnd := model.NewDate(2024, time.June, 30)

	first, err := prop.Apply(context.Background(), 1, juneTemplate(), monthStart, monthEnd)
	if err != nil {
		t.Fatalf("first apply: %v", err)
	}
	if len(first.Inserts) != 8 || len(first.Updates) != 0 {
		t.Fatalf("first run: expected 8 inserts, got %d inserts %d updates", len(first.Inserts), len(first.Updates))
	}

	second, err := prop.Apply(context.Background(), 1, juneTemplate(), monthStart, monthEnd)
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if len(second.Inserts) != 0 || len(second.Updates) != 8 {
		t.Fatalf("second run: expected 8 updates, got %d inserts %d updates", len(second.Inserts), len(second.Updates))
	}
	if len(store.entries) != 8 {
		t.Fatalf("expected 8 rows after two runs, got %d", len(store.entries))
	}
}
