package schedule

import (
	"errors"
	"testing"
	"time"

	"conveyor/internal/queue"
	"conveyor/internal/services"
)

func TestToCron(t *testing.T) {
	tests := []struct {
		name string
		job  queue.AutomationJob
		want string
	}{
		{
			name: "daily at time",
			job:  queue.AutomationJob{Kind: queue.ScheduleDaily, AtTime: "09:30"},
			want: "30 9 * * *",
		},
		{
			name: "daily at midnight",
			job:  queue.AutomationJob{Kind: queue.ScheduleDaily, AtTime: "00:00"},
			want: "0 0 * * *",
		},
		{
			name: "interval every six hours",
			job:  queue.AutomationJob{Kind: queue.ScheduleInterval, EveryHours: 6},
			want: "0 */6 * * *",
		},
		{
			name: "interval every 24 hours collapses to daily",
			job:  queue.AutomationJob{Kind: queue.ScheduleInterval, EveryHours: 24},
			want: "0 0 * * *",
		},
		{
			name: "weekdays sorted and deduplicated",
			job: queue.AutomationJob{
				Kind:     queue.ScheduleWeekdays,
				AtTime:   "17:15",
				Weekdays: []time.Weekday{time.Friday, time.Monday, time.Friday},
			},
			want: "15 17 * * 1,5",
		},
		{
			name: "cron passthrough",
			job:  queue.AutomationJob{Kind: queue.ScheduleCron, CronExpr: "0 4 * * 2"},
			want: "0 4 * * 2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToCron(&tt.job)
			if err != nil {
				t.Fatalf("ToCron: %v", err)
			}
			if got != tt.want {
				t.Fatalf("ToCron = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestToCronRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		job  queue.AutomationJob
	}{
		{"bad time", queue.AutomationJob{Kind: queue.ScheduleDaily, AtTime: "25:00"}},
		{"missing minute", queue.AutomationJob{Kind: queue.ScheduleDaily, AtTime: "9"}},
		{"zero interval", queue.AutomationJob{Kind: queue.ScheduleInterval}},
		{"oversized interval", queue.AutomationJob{Kind: queue.ScheduleInterval, EveryHours: 48}},
		{"no weekdays", queue.AutomationJob{Kind: queue.ScheduleWeekdays, AtTime: "09:00"}},
		{"bad cron", queue.AutomationJob{Kind: queue.ScheduleCron, CronExpr: "not cron"}},
		{"unknown kind", queue.AutomationJob{Kind: "hourly"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ToCron(&tt.job)
			if !errors.Is(err, services.ErrValidation) {
				t.Fatalf("ToCron err = %v, want validation error", err)
			}
		})
	}
}

func TestValidateMinInterval(t *testing.T) {
	tests := []struct {
		name     string
		expr     string
		minHours int
		want     bool
	}{
		{"daily passes 6h floor", "0 9 * * *", 6, true},
		{"hourly fails 6h floor", "0 * * * *", 6, false},
		{"every six hours meets 6h floor", "0 */6 * * *", 6, true},
		{"weekday pair tighter than floor", "0 9 * * 1,2", 48, false},
		{"weekly passes 48h floor", "0 9 * * 1", 48, true},
		{"zero floor accepts everything", "* * * * *", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateMinInterval(tt.expr, tt.minHours)
			if err != nil {
				t.Fatalf("ValidateMinInterval: %v", err)
			}
			if got != tt.want {
				t.Fatalf("ValidateMinInterval(%q, %d) = %v, want %v", tt.expr, tt.minHours, got, tt.want)
			}
		})
	}
}

func TestValidateMinIntervalBadExpression(t *testing.T) {
	if _, err := ValidateMinInterval("bogus", 1); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("err = %v, want validation error", err)
	}
}
