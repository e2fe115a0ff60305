package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"conveyor/internal/pipeline"
	"conveyor/internal/queue"
)

func newRecordingCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newAddCommand(ctx),
		newListCommand(ctx),
		newShowCommand(ctx),
		newStartCommand(ctx),
		newPauseCommand(ctx),
		newResumeCommand(ctx),
		newRetryCommand(ctx),
		newResetCommand(ctx),
	}
}

func newAddCommand(ctx *commandContext) *cobra.Command {
	var tenant, sourceID, sourceURL string

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Register a recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.ensureStore()
			if err != nil {
				return err
			}
			defer ctx.close()

			rec, err := store.NewRecording(cmd.Context(), tenant, args[0], sourceID, sourceURL)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "recording %d created (%s)\n", rec.ID, rec.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "default", "Tenant the recording belongs to")
	cmd.Flags().StringVar(&sourceID, "source", "", "Source identifier")
	cmd.Flags().StringVar(&sourceURL, "url", "", "Source media URL; omit for a pending-source recording")
	return cmd
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var tenant string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recordings",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.ensureStore()
			if err != nil {
				return err
			}
			defer ctx.close()

			var recs []*queue.Recording
			if tenant != "" {
				recs, err = store.RecordingsForTenant(cmd.Context(), tenant)
			} else {
				recs, err = store.ListRecordings(cmd.Context())
			}
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(recs))
			for _, rec := range recs {
				failed := ""
				if rec.Failed {
					failed = "failed at " + rec.FailedAtStage
				}
				rows = append(rows, []string{
					strconv.FormatInt(rec.ID, 10),
					rec.TenantID,
					rec.Name,
					string(rec.Status),
					failed,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Tenant", "Name", "Status", "Notes"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "Only list recordings for this tenant")
	return cmd
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one recording with its stages and outputs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRecordingID(args[0])
			if err != nil {
				return err
			}
			store, err := ctx.ensureStore()
			if err != nil {
				return err
			}
			defer ctx.close()

			rec, err := store.GetRecording(cmd.Context(), id)
			if err != nil {
				return err
			}
			if rec == nil {
				return fmt.Errorf("recording %d does not exist", id)
			}
			stages, err := store.StagesForRecording(cmd.Context(), id)
			if err != nil {
				return err
			}
			outputs, err := store.OutputsForRecording(cmd.Context(), id)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (id %d, tenant %s)\n", rec.Name, rec.ID, rec.TenantID)
			fmt.Fprintf(out, "status: %s", rec.Status)
			if rec.OnPause {
				fmt.Fprint(out, " (paused)")
			}
			fmt.Fprintln(out)
			if rec.Failed {
				fmt.Fprintf(out, "failed at %s: %s\n", rec.FailedAtStage, rec.ErrorMessage)
			}

			stageRows := make([][]string, 0, len(stages))
			for _, stage := range stages {
				note := stage.SkipReason
				if stage.FailedReason != "" {
					note = stage.FailedReason
				}
				stageRows = append(stageRows, []string{string(stage.Type), string(stage.Status), note})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Stage", "Status", "Notes"},
				stageRows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft},
			))

			if len(outputs) > 0 {
				outputRows := make([][]string, 0, len(outputs))
				for _, output := range outputs {
					outputRows = append(outputRows, []string{
						output.Platform,
						string(output.Status),
						output.ErrorMessage,
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Platform", "Upload", "Error"},
					outputRows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft},
				))
			}
			return nil
		},
	}
}

func newStartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "start <id>",
		Short: "Start or resume the processing chain for a recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRecordingID(args[0])
			if err != nil {
				return err
			}
			orch, err := ctx.ensureOrchestrator()
			if err != nil {
				return err
			}
			defer ctx.close()

			handle, err := orch.Start(cmd.Context(), id)
			if errors.Is(err, pipeline.ErrAlreadyRunning) {
				fmt.Fprintf(cmd.OutOrStdout(), "recording %d is already being processed\n", id)
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "recording %d: %s, %d task(s) enqueued\n",
				id, handle.Status, len(handle.Enqueued))
			return nil
		},
	}
}

func newPauseCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "pause <id>",
		Short: "Pause a recording's chain between stages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRecordingID(args[0])
			if err != nil {
				return err
			}
			orch, err := ctx.ensureOrchestrator()
			if err != nil {
				return err
			}
			defer ctx.close()

			if err := orch.Pause(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "recording %d paused\n", id)
			return nil
		},
	}
}

func newResumeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <id>",
		Short: "Resume a paused recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRecordingID(args[0])
			if err != nil {
				return err
			}
			orch, err := ctx.ensureOrchestrator()
			if err != nil {
				return err
			}
			defer ctx.close()

			handle, err := orch.Resume(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "recording %d resumed: %s\n", id, handle.Status)
			return nil
		},
	}
}

func newRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <id>",
		Short: "Requeue failed stages without redoing completed ones",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRecordingID(args[0])
			if err != nil {
				return err
			}
			orch, err := ctx.ensureOrchestrator()
			if err != nil {
				return err
			}
			defer ctx.close()

			handle, err := orch.Retry(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "recording %d retried: %s, %d task(s) enqueued\n",
				id, handle.Status, len(handle.Enqueued))
			return nil
		},
	}
}

func newResetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <id>",
		Short: "Clear failure state and roll stages back to pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRecordingID(args[0])
			if err != nil {
				return err
			}
			orch, err := ctx.ensureOrchestrator()
			if err != nil {
				return err
			}
			defer ctx.close()

			if err := orch.Reset(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "recording %d reset\n", id)
			return nil
		},
	}
}

func parseRecordingID(arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid recording id %q", arg)
	}
	return id, nil
}
