package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"hydralite/internal/services"
)

// ErrQuarantineBusy is returned when a manual retry targets an entry that is
// already being retried.
var ErrQuarantineBusy = errors.New("quarantine entry is being retried")

// RecordFailure upserts the quarantine entry for a failed job. The attempt
// counter increments with each failure; once it reaches maxAttempts the entry
// is abandoned instead of scheduled.
func (s *Store) RecordFailure(ctx context.Context, failure Failure, maxAttempts int, backoff time.Duration) (*QuarantineEntry, error) {
	if strings.TrimSpace(failure.JobID) == "" {
		return nil, errors.New("quarantine: job id is required")
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	ctx = ensureContext(ctx)
	now := s.now().UTC()
	timestamp := formatTime(now)
	next := formatTime(now.Add(backoff))

	err := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		var attempts int
		err = tx.QueryRowContext(ctx, `SELECT attempts FROM quarantine WHERE job_id = ?`, failure.JobID).Scan(&attempts)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			attempts = 0
		case err != nil:
			return err
		}
		attempts++
		state := QuarantinePending
		if attempts >= maxAttempts {
			state = QuarantineAbandoned
		}

		if attempts == 1 {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO quarantine (
                    job_id, original_name, intake_path, attempts, last_error, state,
                    next_retry_at, created_at, updated_at
                ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				failure.JobID, failure.OriginalName, failure.IntakePath, attempts,
				nullableString(failure.Error), state, next, timestamp, timestamp,
			)
		} else {
			_, err = tx.ExecContext(ctx,
				`UPDATE quarantine
                 SET attempts = ?, last_error = ?, state = ?, next_retry_at = ?, updated_at = ?,
                     intake_path = COALESCE(NULLIF(?, ''), intake_path)
                 WHERE job_id = ?`,
				attempts, nullableString(failure.Error), state, next, timestamp,
				failure.IntakePath, failure.JobID,
			)
		}
		if err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return nil, fmt.Errorf("record quarantine failure: %w", err)
	}
	return s.QuarantineByJob(ctx, failure.JobID)
}

// ClaimDue moves pending entries whose retry time has passed into the
// retrying state and returns them. Claimed entries are invisible to later
// calls until resolved or failed again.
func (s *Store) ClaimDue(ctx context.Context, limit int) ([]*QuarantineEntry, error) {
	if limit <= 0 {
		return nil, nil
	}
	ctx = ensureContext(ctx)
	now := s.timestamp()

	var claimed []*QuarantineEntry
	err := retryOnBusy(ctx, func() error {
		claimed = claimed[:0]
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		rows, err := tx.QueryContext(ctx,
			`SELECT `+quarantineColumns+` FROM quarantine
             WHERE state = ? AND next_retry_at <= ?
             ORDER BY next_retry_at, id LIMIT ?`,
			QuarantinePending, now, limit,
		)
		if err != nil {
			return err
		}
		for rows.Next() {
			entry, err := scanQuarantine(rows)
			if err != nil {
				rows.Close()
				return err
			}
			claimed = append(claimed, entry)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, entry := range claimed {
			if _, err := tx.ExecContext(ctx,
				`UPDATE quarantine SET state = ?, updated_at = ? WHERE id = ?`,
				QuarantineRetrying, now, entry.ID,
			); err != nil {
				return err
			}
			entry.State = QuarantineRetrying
		}
		return tx.Commit()
	})
	if err != nil {
		return nil, fmt.Errorf("claim due quarantine entries: %w", err)
	}
	return claimed, nil
}

// Resolve deletes the quarantine entry for a job that finally succeeded.
func (s *Store) Resolve(ctx context.Context, jobID string) error {
	if _, err := s.execWithRetry(ctx, `DELETE FROM quarantine WHERE job_id = ?`, jobID); err != nil {
		return fmt.Errorf("resolve quarantine entry: %w", err)
	}
	return nil
}

// ScheduleRetry makes an entry due immediately. Abandoned entries get a fresh
// attempt budget.
func (s *Store) ScheduleRetry(ctx context.Context, id int64) (*QuarantineEntry, error) {
	entry, err := s.GetQuarantine(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, fmt.Errorf("quarantine entry %d: %w", id, services.ErrNotFound)
	}
	if entry.State == QuarantineRetrying {
		return nil, fmt.Errorf("quarantine entry %d: %w", id, ErrQuarantineBusy)
	}
	attempts := entry.Attempts
	if entry.State == QuarantineAbandoned {
		attempts = 0
	}
	now := s.timestamp()
	if _, err := s.execWithRetry(ctx,
		`UPDATE quarantine SET state = ?, attempts = ?, next_retry_at = ?, updated_at = ? WHERE id = ?`,
		QuarantinePending, attempts, now, now, id,
	); err != nil {
		return nil, fmt.Errorf("schedule quarantine retry: %w", err)
	}
	return s.GetQuarantine(ctx, id)
}

// ReleaseClaims returns entries left in the retrying state by a stopped
// daemon to pending.
func (s *Store) ReleaseClaims(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE quarantine SET state = ?, updated_at = ? WHERE state = ?`,
		QuarantinePending, s.timestamp(), QuarantineRetrying,
	)
	if err != nil {
		return 0, fmt.Errorf("release quarantine claims: %w", err)
	}
	return res.RowsAffected()
}

// GetQuarantine fetches an entry by id. A missing entry returns (nil, nil).
func (s *Store) GetQuarantine(ctx context.Context, id int64) (*QuarantineEntry, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+quarantineColumns+` FROM quarantine WHERE id = ?`, id)
	entry, err := scanQuarantine(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get quarantine entry: %w", err)
	}
	return entry, nil
}

// QuarantineByJob fetches the entry for a job id. A missing entry returns (nil, nil).
func (s *Store) QuarantineByJob(ctx context.Context, jobID string) (*QuarantineEntry, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+quarantineColumns+` FROM quarantine WHERE job_id = ?`, jobID)
	entry, err := scanQuarantine(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get quarantine entry: %w", err)
	}
	return entry, nil
}

// ListQuarantine returns all entries, oldest first.
func (s *Store) ListQuarantine(ctx context.Context) ([]*QuarantineEntry, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT `+quarantineColumns+` FROM quarantine ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list quarantine: %w", err)
	}
	defer rows.Close()

	var out []*QuarantineEntry
	for rows.Next() {
		entry, err := scanQuarantine(rows)
		if err != nil {
			return nil, fmt.Errorf("scan quarantine entry: %w", err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}
