package task

import (
	"testing"
	"time"
)

func TestScheduleConfigValidate(t *testing.T) {
	cases := []struct {
		name    string
		cfg     ScheduleConfig
		wantErr bool
	}{
		{"interval only", ScheduleConfig{IntervalMinutes: 5}, false},
		{"daily only", ScheduleConfig{DailyTime: "09:00"}, false},
		{"neither", ScheduleConfig{}, true},
		{"both", ScheduleConfig{IntervalMinutes: 5, DailyTime: "09:00"}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.cfg.Validate()
			if (err != nil) != c.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, c.wantErr)
			}
		})
	}
}

func TestStatusIsTerminal(t *testing.T) {
	terminal := []Status{StatusCompleted, StatusFailed, StatusCancelled}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%v should be terminal", s)
		}
	}
	nonTerminal := []Status{StatusPending, StatusRunning}
	for _, s := range nonTerminal {
		if s.IsTerminal() {
			t.Errorf("%v should not be terminal", s)
		}
	}
}

func TestNextExecutionDelayInterval(t *testing.T) {
	delay, err := NextExecutionDelay(ScheduleConfig{IntervalMinutes: 30}, time.Now(), time.UTC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if delay != 30*time.Minute {
		t.Fatalf("delay = %v, want 30m", delay)
	}
}

func TestNextExecutionDelayDailyTimeLaterToday(t *testing.T) {
	now := time.Date(2026, 7, 29, 8, 0, 0, 0, time.UTC)
	delay, err := NextExecutionDelay(ScheduleConfig{DailyTime: "09:00"}, now, time.UTC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if delay != time.Hour {
		t.Fatalf("delay = %v, want 1h", delay)
	}
}

func TestNextExecutionDelayDailyTimeRollsToTomorrow(t *testing.T) {
	now := time.Date(2026, 7, 29, 10, 0, 0, 0, time.UTC)
	delay, err := NextExecutionDelay(ScheduleConfig{DailyTime: "09:00"}, now, time.UTC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := 23 * time.Hour
	if delay != want {
		t.Fatalf("delay = %v, want %v", delay, want)
	}
}

func TestNextExecutionDelayJustPastMidnight(t *testing.T) {
	// dailyTime "00:00" on a just-past-midnight clock should roll to
	// tomorrow, yielding ~86400s minus the elapsed seconds since midnight.
	now := time.Date(2026, 7, 29, 0, 0, 1, 0, time.UTC)
	delay, err := NextExecutionDelay(ScheduleConfig{DailyTime: "00:00"}, now, time.UTC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := 24*time.Hour - time.Second
	if delay != want {
		t.Fatalf("delay = %v, want %v", delay, want)
	}
}

func TestNextExecutionDelayInvalidSchedule(t *testing.T) {
	_, err := NextExecutionDelay(ScheduleConfig{}, time.Now(), time.UTC)
	if err != ErrInvalidSchedule {
		t.Fatalf("err = %v, want ErrInvalidSchedule", err)
	}
}

func TestNextExecutionDelayMalformedDailyTime(t *testing.T) {
	_, err := NextExecutionDelay(ScheduleConfig{DailyTime: "25:99"}, time.Now(), time.UTC)
	if err == nil {
		t.Fatal("expected error for malformed daily time")
	}
}
