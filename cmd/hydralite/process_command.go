package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"hydralite/internal/config"
	"hydralite/internal/daemonrun"
	"hydralite/internal/deps"
	"hydralite/internal/jobs"
	"hydralite/internal/preflight"
)

func newProcessCommand(ctx *commandContext) *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:   "process <file>",
		Short: "Run one recording through the pipeline without a daemon",
		Long: "Copy the file into the upload directory, normalize, transcribe, summarize and render\n" +
			"the PDF report in this process. The job is recorded in the same registry the daemon uses.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.RequireProviderKeys(); err != nil {
				return err
			}
			if missing := deps.MissingRequired(preflight.CheckSystemDeps(cfg)); len(missing) > 0 {
				return fmt.Errorf("required binary %s (%s) unavailable: %s", missing[0].Name, missing[0].Command, missing[0].Detail)
			}
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			return processFile(cmd, cfg, path, logLevel)
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "Log level for pipeline output")
	return cmd
}

func processFile(cmd *cobra.Command, cfg *config.Config, path, logLevel string) error {
	runCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger, err := daemonrun.NewLogger(cfg, logLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	rt, err := daemonrun.Build(cfg, logger, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open recording: %w", err)
	}
	job, err := rt.Intake.Accept(runCtx, filepath.Base(path), file, jobs.SourceCLI)
	file.Close()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Processing %s as %s\n", filepath.Base(path), job.ID)
	if err := rt.Processor.Process(runCtx, job); err != nil {
		return fmt.Errorf("processing %s failed: %w", job.ID, err)
	}

	done, err := rt.Store.Get(runCtx, job.ID)
	if err != nil || done == nil {
		fmt.Fprintln(out, "Processing complete")
		return nil
	}
	fmt.Fprintf(out, "Language:   %s\n", done.Language)
	fmt.Fprintf(out, "Transcript: %s\n", done.TranscriptPath)
	fmt.Fprintf(out, "Summary:    %s\n", done.SummaryPath)
	fmt.Fprintf(out, "Report:     %s\n", done.ReportPath)
	return nil
}
