package task

import (
	"errors"
	"testing"
	"time"
)

func TestSchedule_Validate(t *testing.T) {
	runAt := time.Now().Add(time.Hour)

	cases := []struct {
		name    string
		sched   Schedule
		wantErr bool
	}{
		{"valid once", Schedule{Type: ScheduleOnce, RunAt: &runAt}, false},
		{"once without run_at", Schedule{Type: ScheduleOnce}, true},
		{"valid interval", Schedule{Type: ScheduleInterval, IntervalMs: 1000}, false},
		{"interval zero", Schedule{Type: ScheduleInterval, IntervalMs: 0}, true},
		{"interval negative", Schedule{Type: ScheduleInterval, IntervalMs: -5}, true},
		{"valid cron 6 fields", Schedule{Type: ScheduleCron, Expression: "0 0 12 * * *"}, false},
		{"valid cron 5 fields", Schedule{Type: ScheduleCron, Expression: "0 12 * * *"}, false},
		{"valid cron descriptor", Schedule{Type: ScheduleCron, Expression: "@hourly"}, false},
		{"cron empty expression", Schedule{Type: ScheduleCron}, true},
		{"cron malformed", Schedule{Type: ScheduleCron, Expression: "not a cron"}, true},
		{"cron bad timezone", Schedule{Type: ScheduleCron, Expression: "@daily", Timezone: "Mars/Olympus"}, true},
		{"cron good timezone", Schedule{Type: ScheduleCron, Expression: "@daily", Timezone: "Asia/Shanghai"}, false},
		{"unknown type", Schedule{Type: "weekly"}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.sched.Validate()
			if tc.wantErr && err == nil {
				t.Error("Expected validation error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("Expected no error, got %v", err)
			}
			if tc.wantErr && err != nil && !errors.Is(err, ErrInvalidSchedule) {
				t.Errorf("Expected ErrInvalidSchedule, got %v", err)
			}
		})
	}
}

func TestSchedule_Location(t *testing.T) {
	s := Schedule{Type: ScheduleCron, Expression: "@daily"}
	if s.Location() != time.UTC {
		t.Error("Expected UTC for empty timezone")
	}

	s.Timezone = "Asia/Tokyo"
	if s.Location().String() != "Asia/Tokyo" {
		t.Errorf("Expected Asia/Tokyo, got %s", s.Location())
	}
}
