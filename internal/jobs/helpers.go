package jobs

import (
	"database/sql"
	"errors"
	"os"
	"time"
)

const jobColumns = "id, source, original_name, raw_path, audio_path, stage, progress, message, language, error_message, failure_kind, transcript_path, summary_path, report_path, created_at, updated_at"

const quarantineColumns = "id, job_id, original_name, intake_path, attempts, last_error, state, next_retry_at, created_at, updated_at"

type scanner interface{ Scan(dest ...any) error }

func scanJob(row scanner) (*Job, error) {
	var (
		id             string
		source         string
		originalName   string
		rawPath        sql.NullString
		audioPath      sql.NullString
		stage          string
		progress       sql.NullInt64
		message        sql.NullString
		language       sql.NullString
		errorMessage   sql.NullString
		failureKind    sql.NullString
		transcriptPath sql.NullString
		summaryPath    sql.NullString
		reportPath     sql.NullString
		createdRaw     sql.NullString
		updatedRaw     sql.NullString
	)
	if err := row.Scan(
		&id,
		&source,
		&originalName,
		&rawPath,
		&audioPath,
		&stage,
		&progress,
		&message,
		&language,
		&errorMessage,
		&failureKind,
		&transcriptPath,
		&summaryPath,
		&reportPath,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:             id,
		Source:         Source(source),
		OriginalName:   originalName,
		RawPath:        rawPath.String,
		AudioPath:      audioPath.String,
		Stage:          Stage(stage),
		Progress:       int(progress.Int64),
		Message:        message.String,
		Language:       language.String,
		ErrorMessage:   errorMessage.String,
		FailureKind:    failureKind.String,
		TranscriptPath: transcriptPath.String,
		SummaryPath:    summaryPath.String,
		ReportPath:     reportPath.String,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	return job, nil
}

func scanQuarantine(row scanner) (*QuarantineEntry, error) {
	var (
		id           int64
		jobID        string
		originalName string
		intakePath   string
		attempts     int
		lastError    sql.NullString
		state        string
		nextRaw      string
		createdRaw   string
		updatedRaw   string
	)
	if err := row.Scan(&id, &jobID, &originalName, &intakePath, &attempts, &lastError, &state, &nextRaw, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	entry := &QuarantineEntry{
		ID:           id,
		JobID:        jobID,
		OriginalName: originalName,
		IntakePath:   intakePath,
		Attempts:     attempts,
		LastError:    lastError.String,
		State:        QuarantineState(state),
	}
	if next, err := parseTimeString(nextRaw); err == nil {
		entry.NextRetryAt = next
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		entry.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		entry.UpdatedAt = updated
	}
	return entry, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

func mkdirAll(dir string) error {
	return os.MkdirAll(dir, 0o755)
}
