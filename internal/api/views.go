package api

import (
	"strings"
	"time"

	"hydralite/internal/jobs"
)

// FromJob converts a registry row into its transport representation.
func FromJob(job *jobs.Job) JobView {
	if job == nil {
		return JobView{}
	}
	return JobView{
		AudioName:    job.ID,
		Source:       string(job.Source),
		OriginalName: job.OriginalName,
		Stage:        string(job.Stage),
		Progress:     job.Progress,
		Message:      job.Message,
		Language:     job.Language,
		Error:        job.ErrorMessage,
		FailureKind:  job.FailureKind,
		HasSummary:   strings.TrimSpace(job.SummaryPath) != "",
		HasReport:    strings.TrimSpace(job.ReportPath) != "",
		CreatedAt:    formatTime(job.CreatedAt),
		UpdatedAt:    formatTime(job.UpdatedAt),
	}
}

// FromQuarantine converts a quarantine entry into its transport representation.
func FromQuarantine(entry *jobs.QuarantineEntry) QuarantineView {
	if entry == nil {
		return QuarantineView{}
	}
	view := QuarantineView{
		ID:           entry.ID,
		AudioName:    entry.JobID,
		OriginalName: entry.OriginalName,
		Attempts:     entry.Attempts,
		LastError:    entry.LastError,
		State:        string(entry.State),
		UpdatedAt:    formatTime(entry.UpdatedAt),
	}
	if entry.State != jobs.QuarantineAbandoned {
		view.NextRetryAt = formatTime(entry.NextRetryAt)
	}
	return view
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
