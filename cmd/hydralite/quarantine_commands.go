package main

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/spf13/cobra"

	"hydralite/internal/api"
)

func newQuarantineCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quarantine",
		Short: "Inspect and retry failed Bluetooth files",
	}
	cmd.AddCommand(newQuarantineListCommand(ctx))
	cmd.AddCommand(newQuarantineRetryCommand(ctx))
	return cmd
}

func newQuarantineListCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List quarantine entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				entries, err := client.Quarantine(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, entries)
				}
				out := cmd.OutOrStdout()
				if len(entries) == 0 {
					fmt.Fprintln(out, "Quarantine is empty")
					return nil
				}
				rows := make([][]string, 0, len(entries))
				for _, entry := range entries {
					rows = append(rows, []string{
						strconv.FormatInt(entry.ID, 10),
						entry.OriginalName,
						entry.State,
						strconv.Itoa(entry.Attempts),
						entry.NextRetryAt,
						entry.LastError,
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "File", "State", "Attempts", "Next retry", "Last error"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON")
	return cmd
}

func newQuarantineRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <id>",
		Short: "Schedule an immediate retry for a quarantine entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid quarantine id %q", args[0])
			}
			return ctx.withClient(func(client *api.Client) error {
				entry, err := client.RetryQuarantine(cmd.Context(), id)
				var statusErr *api.StatusError
				switch {
				case api.IsNotFound(err):
					return fmt.Errorf("quarantine entry %d not found", id)
				case errors.As(err, &statusErr) && statusErr.Code == http.StatusConflict:
					return fmt.Errorf("quarantine entry %d is already being retried", id)
				case err != nil:
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Scheduled retry for %s (entry %d)\n", entry.OriginalName, entry.ID)
				return nil
			})
		},
	}
}
