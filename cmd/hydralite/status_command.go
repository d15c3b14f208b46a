package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"hydralite/internal/api"
	"hydralite/internal/status"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status [audio_name]",
		Short: "Show pipeline progress or one job's state",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				if len(args) == 1 {
					job, err := client.Job(cmd.Context(), args[0])
					if api.IsNotFound(err) {
						return fmt.Errorf("job %q not found", args[0])
					}
					if err != nil {
						return err
					}
					if jsonOut {
						return writeJSON(cmd, job)
					}
					printJob(cmd, job)
					return nil
				}

				record, err := client.Status(cmd.Context())
				if err != nil {
					return err
				}
				health, err := client.Health(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, map[string]any{"status": record, "health": health})
				}
				printStatus(cmd, record, health)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON")
	return cmd
}

func printStatus(cmd *cobra.Command, record *status.Record, health *api.HealthResponse) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	for _, line := range renderSectionHeader("Hydralite", colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, renderStatusLine("Daemon", statusOK, "Running (v"+health.Version+")", colorize))
	fmt.Fprintln(out, renderStatusLine("Bluetooth watcher", statusInfo, yesNo(health.BluetoothWatcher), colorize))
	fmt.Fprintln(out, renderStatusLine("Processing slots",
		statusInfo,
		fmt.Sprintf("%d/%d busy, %d waiting", health.Gate.InFlight, health.Gate.Capacity, health.Gate.Waiting),
		colorize,
	))

	message := fmt.Sprintf("%s (%d%%)", record.Message, record.Progress)
	if record.File != "" {
		message = record.File + ": " + message
	}
	fmt.Fprintln(out, renderStatusLine("Pipeline", stageKind(record.Stage), message, colorize))
	if record.Language != "" {
		fmt.Fprintln(out, renderStatusLine("Language", statusInfo, record.Language, colorize))
	}
	if record.Timestamp > 0 {
		updated := time.Unix(record.Timestamp, 0).Local().Format(time.DateTime)
		fmt.Fprintln(out, renderStatusLine("Updated", statusInfo, updated, colorize))
	}
}

func printJob(cmd *cobra.Command, job *api.JobView) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	for _, line := range renderSectionHeader(job.AudioName, colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, renderStatusLine("Stage", stageKind(job.Stage), job.Stage+" ("+strconv.Itoa(job.Progress)+"%)", colorize))
	fmt.Fprintln(out, renderStatusLine("Message", statusInfo, job.Message, colorize))
	fmt.Fprintln(out, renderStatusLine("Source", statusInfo, job.Source, colorize))
	fmt.Fprintln(out, renderStatusLine("Original file", statusInfo, job.OriginalName, colorize))
	if job.Language != "" {
		fmt.Fprintln(out, renderStatusLine("Language", statusInfo, job.Language, colorize))
	}
	if job.Error != "" {
		detail := job.Error
		if job.FailureKind != "" {
			detail += " [" + job.FailureKind + "]"
		}
		fmt.Fprintln(out, renderStatusLine("Error", statusError, detail, colorize))
	}
	fmt.Fprintln(out, renderStatusLine("Summary", statusInfo, yesNo(job.HasSummary), colorize))
	fmt.Fprintln(out, renderStatusLine("PDF report", statusInfo, yesNo(job.HasReport), colorize))
}
