package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"launchlock/internal/services"
	"launchlock/internal/storage"
)

// ClaimNext atomically moves the highest-priority claimable command to
// executing, owned by workerID for lease. The status predicate on the UPDATE
// makes the claim a compare-and-set, so two workers can never both win the
// same row. Returns nil, nil when nothing is claimable.
func (s *Store) ClaimNext(ctx context.Context, workerID string, lease time.Duration) (*Command, error) {
	now := s.clock.Now()
	nowStr := storage.FormatTime(now)
	var cmd *Command
	err := s.db.Tx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`UPDATE commands
             SET status = ?, attempts = attempts + 1, claimed_by = ?, lease_expires_at = ?, next_attempt_at = NULL, updated_at = ?
             WHERE id = (
                 SELECT id FROM commands
                 WHERE status = ? OR (status = ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?))
                 ORDER BY priority DESC, seq ASC
                 LIMIT 1
             ) AND status IN (?, ?)
             RETURNING `+commandColumns,
			string(StatusExecuting), workerID, storage.FormatTime(now.Add(lease)), nowStr,
			string(StatusPending), string(StatusFailedRetryable), nowStr,
			string(StatusPending), string(StatusFailedRetryable),
		)
		claimed, err := scanCommand(row)
		if errors.Is(err, sql.ErrNoRows) {
			cmd = nil
			return nil
		}
		if err != nil {
			return err
		}
		cmd = claimed
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("claim next command: %w", err)
	}
	return cmd, nil
}

// TransitionOption adjusts a Transition call.
type TransitionOption func(*transitionOptions)

type transitionOptions struct {
	expect  Status
	owner   string
	retryAt time.Time
}

// ExpectStatus makes the transition conditional on the row still having
// status. A mismatch returns ErrStatusConflict instead of an illegal transition.
func ExpectStatus(status Status) TransitionOption {
	return func(o *transitionOptions) { o.expect = status }
}

// OwnedBy makes the transition conditional on the claim owner.
func OwnedBy(workerID string) TransitionOption {
	return func(o *transitionOptions) { o.owner = workerID }
}

// RetryAt sets when a failed_retryable command becomes claimable again.
func RetryAt(t time.Time) TransitionOption {
	return func(o *transitionOptions) { o.retryAt = t }
}

// Transition moves a command to status to, recording cause as the command's
// error when non-nil. Leaving executing releases the claim.
func (s *Store) Transition(ctx context.Context, id string, to Status, cause error, opts ...TransitionOption) error {
	var options transitionOptions
	for _, opt := range opts {
		opt(&options)
	}
	now := storage.FormatTime(s.clock.Now())

	return s.db.Tx(ctx, func(tx *sql.Tx) error {
		var (
			current string
			owner   sql.NullString
		)
		err := tx.QueryRowContext(ctx, `SELECT status, claimed_by FROM commands WHERE id = ?`, id).Scan(&current, &owner)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("read command status: %w", err)
		}
		from := Status(current)
		if options.expect != "" && from != options.expect {
			return fmt.Errorf("%w: %s is %s, expected %s", ErrStatusConflict, id, from, options.expect)
		}
		if options.owner != "" && owner.String != options.owner {
			return fmt.Errorf("%w: %s is owned by %q", ErrStatusConflict, id, owner.String)
		}
		if !CanTransition(from, to) {
			return &IllegalTransitionError{ID: id, From: from, To: to}
		}

		var lastError, code, message any
		if cause != nil {
			detail := services.Details(cause)
			lastError = cause.Error()
			code = nullableString(string(detail.Code))
			message = nullableString(detail.Message)
		}
		var nextAttempt any
		if to == StatusFailedRetryable && !options.retryAt.IsZero() {
			nextAttempt = storage.FormatTime(options.retryAt)
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE commands
             SET status = ?,
                 last_error = COALESCE(?, last_error),
                 error_code = CASE WHEN ? IS NULL THEN error_code ELSE ? END,
                 error_message = CASE WHEN ? IS NULL THEN error_message ELSE ? END,
                 next_attempt_at = ?,
                 claimed_by = CASE WHEN ? = 'executing' THEN claimed_by ELSE NULL END,
                 lease_expires_at = CASE WHEN ? = 'executing' THEN lease_expires_at ELSE NULL END,
                 updated_at = ?
             WHERE id = ? AND status = ?`,
			string(to),
			lastError,
			code, code,
			message, message,
			nextAttempt,
			string(to),
			string(to),
			now,
			id, current,
		)
		if err != nil {
			return fmt.Errorf("update command status: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: %s", ErrStatusConflict, id)
		}
		return nil
	})
}

// Acknowledge returns a human_required command to pending with a fresh
// attempt budget after an operator has resolved the cause.
func (s *Store) Acknowledge(ctx context.Context, id string) error {
	now := storage.FormatTime(s.clock.Now())
	res, err := s.db.Exec(ctx,
		`UPDATE commands
         SET status = ?, attempts = 0, last_error = NULL, error_code = NULL, error_message = NULL,
             next_attempt_at = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		string(StatusPending), now, id, string(StatusHumanRequired),
	)
	if err != nil {
		return fmt.Errorf("acknowledge command: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	cmd, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return &IllegalTransitionError{ID: id, From: cmd.Status, To: StatusPending}
}

// Cancel moves a non-terminal command to cancelled. A running handler observes
// the change through its heartbeat and is interrupted.
func (s *Store) Cancel(ctx context.Context, id, reason string) error {
	if reason == "" {
		reason = "cancelled by operator"
	}
	now := storage.FormatTime(s.clock.Now())
	args := []any{string(StatusCancelled), string(services.CodeCancelled), reason, now, id}
	args = append(args, statusArgs(cancellableStatuses)...)
	res, err := s.db.Exec(ctx,
		`UPDATE commands
         SET status = ?, error_code = ?, error_message = ?, claimed_by = NULL, lease_expires_at = NULL,
             next_attempt_at = NULL, updated_at = ?
         WHERE id = ? AND status IN (`+makePlaceholders(len(cancellableStatuses))+`)`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("cancel command: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	cmd, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return &IllegalTransitionError{ID: id, From: cmd.Status, To: StatusCancelled}
}

// ReclaimExpiredLeases returns executing commands whose lease ended before now
// to pending. Commands that already spent their attempt budget go to
// human_required instead, so a crash loop cannot run forever.
func (s *Store) ReclaimExpiredLeases(ctx context.Context, now time.Time) (int64, error) {
	cutoff := storage.FormatTime(now)
	updated := storage.FormatTime(s.clock.Now())
	var total int64
	err := s.db.Tx(ctx, func(tx *sql.Tx) error {
		total = 0
		exhausted, err := tx.ExecContext(ctx,
			`UPDATE commands
             SET status = ?, error_code = ?, error_message = 'lease expired after final attempt',
                 claimed_by = NULL, lease_expires_at = NULL, updated_at = ?
             WHERE status = ? AND lease_expires_at IS NOT NULL AND lease_expires_at < ? AND attempts >= max_attempts`,
			string(StatusHumanRequired), string(services.CodeRetriesExhausted), updated,
			string(StatusExecuting), cutoff,
		)
		if err != nil {
			return err
		}
		reclaimed, err := tx.ExecContext(ctx,
			`UPDATE commands
             SET status = ?, claimed_by = NULL, lease_expires_at = NULL, updated_at = ?
             WHERE status = ? AND lease_expires_at IS NOT NULL AND lease_expires_at < ?`,
			string(StatusPending), updated,
			string(StatusExecuting), cutoff,
		)
		if err != nil {
			return err
		}
		a, _ := exhausted.RowsAffected()
		b, _ := reclaimed.RowsAffected()
		total = a + b
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("reclaim expired leases: %w", err)
	}
	return total, nil
}

// Heartbeat extends the lease of a command still executing under workerID and
// returns its current status. Any status other than executing tells the
// worker to stop: typically an operator cancelled the command.
func (s *Store) Heartbeat(ctx context.Context, id, workerID string, lease time.Duration) (Status, error) {
	now := s.clock.Now()
	if _, err := s.db.Exec(ctx,
		`UPDATE commands SET lease_expires_at = ?, updated_at = ?
         WHERE id = ? AND status = ? AND claimed_by = ?`,
		storage.FormatTime(now.Add(lease)), storage.FormatTime(now), id, string(StatusExecuting), workerID,
	); err != nil {
		return "", fmt.Errorf("heartbeat: %w", err)
	}
	var status string
	if err := s.db.QueryRowScan(ctx, `SELECT status FROM commands WHERE id = ?`, []any{id}, &status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return "", fmt.Errorf("heartbeat status: %w", err)
	}
	return Status(status), nil
}
