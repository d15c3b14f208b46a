package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"hydralite/internal/config"
	"hydralite/internal/deps"
	"hydralite/internal/preflight"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run startup checks without starting the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			checkCtx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			results := preflight.RunAll(checkCtx, cfg, offline)
			binaries := preflight.CheckSystemDeps(cfg)
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			writeLines(out, checkLines(cfg, results, binaries, colorize))

			failed := 0
			for _, result := range preflight.Failed(results) {
				if result.Fatal {
					failed++
				}
			}
			failed += len(deps.MissingRequired(binaries))
			if err := cfg.RequireProviderKeys(); err != nil {
				failed++
			}
			if failed > 0 {
				return fmt.Errorf("%d blocking check(s) failed", failed)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "Skip provider reachability checks")
	return cmd
}

func checkLines(cfg *config.Config, results []preflight.Result, binaries []deps.Status, colorize bool) []string {
	lines := renderSectionHeader("Configuration", colorize)
	if err := cfg.RequireProviderKeys(); err != nil {
		lines = append(lines, renderStatusLine("API keys", statusError, err.Error(), colorize))
	} else {
		lines = append(lines, renderStatusLine("API keys", statusOK, "present", colorize))
	}
	for _, result := range results {
		kind := statusOK
		if !result.Passed {
			kind = statusWarn
			if result.Fatal {
				kind = statusError
			}
		}
		lines = append(lines, renderStatusLine(result.Name, kind, result.Detail, colorize))
	}

	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Dependencies", colorize)...)
	for _, status := range binaries {
		switch {
		case status.Available:
			lines = append(lines, renderStatusLine(status.Name, statusOK, "Ready (command: "+status.Command+")", colorize))
		case status.Optional:
			lines = append(lines, renderStatusLine(status.Name, statusWarn, status.Detail, colorize))
		default:
			lines = append(lines, renderStatusLine(status.Name, statusError, status.Detail, colorize))
		}
	}
	return lines
}

func writeLines(out io.Writer, lines []string) {
	fmt.Fprintln(out, strings.Join(lines, "\n"))
}
