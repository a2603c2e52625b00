package logging

import (
	"encoding/json"
	"testing"
	"time"
)

func TestLogRecord_JSON(t *testing.T) {
	rec := LogRecord{
		Timestamp:  time.Unix(0, 0),
		RideID:     1,
		DriverID:   2,
		Action:     "assign",
		Outcome:    "committed",
		Reassigned: true,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	keys := []string{"timestamp", "ride_id", "driver_id", "action", "outcome", "reassigned"}
	for _, k := range keys {
		if _, ok := m[k]; !ok {
			t.Errorf("missing key %s", k)
		}
	}
	if _, ok := m["warning"]; ok {
		t.Errorf("empty warning should be omitted")
	}
}
