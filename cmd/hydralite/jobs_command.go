package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"hydralite/internal/api"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var stages []string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List jobs known to the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				list, err := client.Jobs(cmd.Context(), stages...)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, list)
				}
				out := cmd.OutOrStdout()
				if len(list) == 0 {
					fmt.Fprintln(out, "No jobs")
					return nil
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Audio name", "Source", "Stage", "Progress", "Language", "Updated"},
					jobRows(list),
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&stages, "stage", nil, "Filter by stage (repeatable)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON")
	return cmd
}

func jobRows(list []api.JobView) [][]string {
	rows := make([][]string, 0, len(list))
	for _, job := range list {
		stage := job.Stage
		if job.FailureKind != "" {
			stage += " (" + job.FailureKind + ")"
		}
		rows = append(rows, []string{
			job.AudioName,
			job.Source,
			stage,
			strconv.Itoa(job.Progress) + "%",
			job.Language,
			job.UpdatedAt,
		})
	}
	return rows
}
