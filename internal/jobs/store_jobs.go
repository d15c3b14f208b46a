package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Create registers a new job in the queued stage.
func (s *Store) Create(ctx context.Context, job Job) (*Job, error) {
	if strings.TrimSpace(job.ID) == "" {
		return nil, errors.New("job id is required")
	}
	if job.Source == "" {
		job.Source = SourceWeb
	}
	timestamp := s.timestamp()
	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO jobs (
            id, source, original_name, raw_path, audio_path, stage, progress, message,
            created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID,
		job.Source,
		job.OriginalName,
		nullableString(job.RawPath),
		nullableString(job.AudioPath),
		StageQueued,
		0,
		"Queued",
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return s.Get(ctx, job.ID)
}

// Get fetches a job by identifier. A missing job returns (nil, nil).
func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// List returns jobs newest first, optionally filtered by stage.
func (s *Store) List(ctx context.Context, stages ...Stage) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	args := make([]any, 0, len(stages))
	if len(stages) > 0 {
		query += ` WHERE stage IN (` + makePlaceholders(len(stages)) + `)`
		for _, stage := range stages {
			args = append(args, stage)
		}
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return out, nil
}

// Update persists a job, rejecting stage changes that move backwards.
func (s *Store) Update(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	ctx = ensureContext(ctx)

	var current string
	err := s.db.QueryRowContext(ctx, `SELECT stage FROM jobs WHERE id = ?`, job.ID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("update job %s: not registered", job.ID)
	}
	if err != nil {
		return fmt.Errorf("read job stage: %w", err)
	}
	if !CanTransition(Stage(current), job.Stage) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, job.Stage)
	}

	timestamp := s.timestamp()
	_, err = s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET raw_path = ?, audio_path = ?, stage = ?, progress = ?, message = ?, language = ?,
             error_message = ?, failure_kind = ?, transcript_path = ?, summary_path = ?,
             report_path = ?, updated_at = ?
         WHERE id = ?`,
		nullableString(job.RawPath),
		nullableString(job.AudioPath),
		job.Stage,
		job.Progress,
		nullableString(job.Message),
		nullableString(job.Language),
		nullableString(job.ErrorMessage),
		nullableString(job.FailureKind),
		nullableString(job.TranscriptPath),
		nullableString(job.SummaryPath),
		nullableString(job.ReportPath),
		timestamp,
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if updated, perr := parseTimeString(timestamp); perr == nil {
		job.UpdatedAt = updated
	}
	return nil
}

// Requeue resets a failed job so it can run again from the start.
func (s *Store) Requeue(ctx context.Context, id string) (*Job, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET stage = ?, progress = 0, message = 'Retry requested', error_message = NULL,
             failure_kind = NULL, updated_at = ?
         WHERE id = ? AND stage = ?`,
		StageQueued,
		s.timestamp(),
		id,
		StageError,
	)
	if err != nil {
		return nil, fmt.Errorf("requeue job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("requeue job %s: %w", id, ErrInvalidTransition)
	}
	return s.Get(ctx, id)
}

// MarkInterrupted fails every non-terminal job and returns the affected jobs
// as they were before the update. It runs once at daemon startup.
func (s *Store) MarkInterrupted(ctx context.Context) ([]*Job, error) {
	active, err := s.List(ctx, StageQueued, StageTranscribing, StageSummarizing, StageGeneratingPDF)
	if err != nil {
		return nil, err
	}
	if len(active) == 0 {
		return nil, nil
	}
	_, err = s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET stage = ?, progress = 0, message = ?, error_message = ?, failure_kind = 'interrupted',
             updated_at = ?
         WHERE stage IN (?, ?, ?, ?)`,
		StageError,
		"Error: "+InterruptedReason,
		InterruptedReason,
		s.timestamp(),
		StageQueued, StageTranscribing, StageSummarizing, StageGeneratingPDF,
	)
	if err != nil {
		return nil, fmt.Errorf("mark interrupted jobs: %w", err)
	}
	return active, nil
}

// CountByStage returns the number of jobs in each stage.
func (s *Store) CountByStage(ctx context.Context) (map[Stage]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT stage, COUNT(1) FROM jobs GROUP BY stage`)
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[Stage]int, len(allStages))
	for rows.Next() {
		var (
			stage string
			count int
		)
		if err := rows.Scan(&stage, &count); err != nil {
			return nil, fmt.Errorf("scan job count: %w", err)
		}
		counts[Stage(stage)] = count
	}
	return counts, rows.Err()
}
