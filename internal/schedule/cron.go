package schedule

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"conveyor/internal/queue"
	"conveyor/internal/services"
)

// cronParser accepts the standard five-field expression the periodic task
// manager consumes.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ToCron converts an automation job's declarative schedule into a five-field
// cron expression.
func ToCron(job *queue.AutomationJob) (string, error) {
	if job == nil {
		return "", services.Wrap(services.ErrValidation, "", "schedule", "nil automation job", nil)
	}

	switch job.Kind {
	case queue.ScheduleDaily:
		hour, minute, err := parseAtTime(job.AtTime)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d %d * * *", minute, hour), nil

	case queue.ScheduleInterval:
		switch {
		case job.EveryHours == 24:
			return "0 0 * * *", nil
		case job.EveryHours >= 1 && job.EveryHours <= 23:
			return fmt.Sprintf("0 */%d * * *", job.EveryHours), nil
		default:
			return "", services.Wrap(services.ErrValidation, "", "schedule",
				fmt.Sprintf("interval of %d hours is out of range", job.EveryHours), nil)
		}

	case queue.ScheduleWeekdays:
		if len(job.Weekdays) == 0 {
			return "", services.Wrap(services.ErrValidation, "", "schedule", "weekday schedule has no weekdays", nil)
		}
		hour, minute, err := parseAtTime(job.AtTime)
		if err != nil {
			return "", err
		}
		days := make([]int, 0, len(job.Weekdays))
		seen := make(map[int]bool, len(job.Weekdays))
		for _, day := range job.Weekdays {
			if day < time.Sunday || day > time.Saturday {
				return "", services.Wrap(services.ErrValidation, "", "schedule",
					fmt.Sprintf("invalid weekday %d", day), nil)
			}
			if !seen[int(day)] {
				seen[int(day)] = true
				days = append(days, int(day))
			}
		}
		sort.Ints(days)
		parts := make([]string, len(days))
		for i, day := range days {
			parts[i] = strconv.Itoa(day)
		}
		return fmt.Sprintf("%d %d * * %s", minute, hour, strings.Join(parts, ",")), nil

	case queue.ScheduleCron:
		if _, err := cronParser.Parse(job.CronExpr); err != nil {
			return "", services.Wrap(services.ErrValidation, "", "schedule", "invalid cron expression", err)
		}
		return job.CronExpr, nil

	default:
		return "", services.Wrap(services.ErrValidation, "", "schedule",
			fmt.Sprintf("unknown schedule kind %q", job.Kind), nil)
	}
}

// ValidateMinInterval reports whether successive activations of the
// expression are always at least minHours apart. A non-positive floor
// accepts everything.
func ValidateMinInterval(expr string, minHours int) (bool, error) {
	if minHours <= 0 {
		return true, nil
	}
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return false, services.Wrap(services.ErrValidation, "", "schedule", "invalid cron expression", err)
	}

	floor := time.Duration(minHours) * time.Hour
	// Two weeks of activations from a fixed Monday covers every weekday
	// pattern and keeps the check deterministic.
	start := time.Date(2026, time.January, 5, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 14)

	prev := sched.Next(start)
	if prev.IsZero() {
		return true, nil
	}
	for {
		next := sched.Next(prev)
		if next.IsZero() || next.After(end) {
			return true, nil
		}
		if next.Sub(prev) < floor {
			return false, nil
		}
		prev = next
	}
}

func parseAtTime(value string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 2 {
		return 0, 0, services.Wrap(services.ErrValidation, "", "schedule",
			fmt.Sprintf("time %q is not HH:MM", value), nil)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, services.Wrap(services.ErrValidation, "", "schedule",
			fmt.Sprintf("time %q has an invalid hour", value), nil)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, services.Wrap(services.ErrValidation, "", "schedule",
			fmt.Sprintf("time %q has an invalid minute", value), nil)
	}
	return hour, minute, nil
}
