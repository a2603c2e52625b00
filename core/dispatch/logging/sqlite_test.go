package logging

import (
	"context"
	"testing"
	"time"
)

func TestSQLiteStore_PersistQuery(t *testing.T) {
	store, err := NewSQLiteStore("file:audit_test.db?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = store.Close() }()
	rec := LogRecord{
		Timestamp: time.Now(),
		RideID:    42,
		DriverID:  7,
		Action:    "assign",
		Outcome:   "committed",
		Warning:   "calendar sync pending",
	}
	if err := store.Append(context.Background(), rec); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.Append(context.Background(), LogRecord{Timestamp: time.Now(), RideID: 43, DriverID: 8, Action: "unassign"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	out, err := store.Query(context.Background(), LogQuery{DriverID: 7})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 record, got %d", len(out))
	}
	if out[0].RideID != 42 || out[0].Warning == "" {
		t.Fatalf("unexpected record %+v", out[0])
	}
}
