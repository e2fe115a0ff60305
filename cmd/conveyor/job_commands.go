package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"conveyor/internal/queue"
	"conveyor/internal/schedule"
)

func newJobCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Inspect automation jobs",
	}
	cmd.AddCommand(newJobListCommand(ctx))
	return cmd
}

func newJobListCommand(ctx *commandContext) *cobra.Command {
	var enabledOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List automation jobs with their effective cron schedules",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.ensureStore()
			if err != nil {
				return err
			}
			defer ctx.close()

			jobs, err := store.AutomationJobs(cmd.Context(), enabledOnly)
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(jobs))
			for _, job := range jobs {
				cron, err := schedule.ToCron(job)
				if err != nil {
					cron = "invalid: " + err.Error()
				}
				state := "disabled"
				if job.Enabled {
					state = "enabled"
				}
				rows = append(rows, []string{
					strconv.FormatInt(job.ID, 10),
					job.TenantID,
					job.Name,
					describeSchedule(job),
					cron,
					state,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Tenant", "Name", "Schedule", "Cron", "State"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().BoolVar(&enabledOnly, "enabled", false, "Only show enabled jobs")
	return cmd
}

func describeSchedule(job *queue.AutomationJob) string {
	switch job.Kind {
	case queue.ScheduleDaily:
		return "daily at " + job.AtTime
	case queue.ScheduleInterval:
		return fmt.Sprintf("every %dh", job.EveryHours)
	case queue.ScheduleWeekdays:
		names := make([]string, 0, len(job.Weekdays))
		for _, day := range job.Weekdays {
			names = append(names, day.String()[:3])
		}
		return strings.Join(names, ",") + " at " + job.AtTime
	case queue.ScheduleCron:
		return "cron"
	default:
		return string(job.Kind)
	}
}
