package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"launchlock/internal/logging"
	"launchlock/internal/storage"
)

// SetProgress overwrites the progress snapshot of a command.
func (s *Store) SetProgress(ctx context.Context, id string, progress Progress) error {
	if _, err := s.db.Exec(ctx,
		`INSERT INTO command_progress (command_id, phase, done, total, eta_seconds, message, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(command_id) DO UPDATE SET
             phase = excluded.phase, done = excluded.done, total = excluded.total,
             eta_seconds = excluded.eta_seconds, message = excluded.message, updated_at = excluded.updated_at`,
		id, progress.Phase, progress.Done, progress.Total, progress.ETASeconds, progress.Message,
		storage.FormatTime(s.clock.Now()),
	); err != nil {
		return fmt.Errorf("set progress: %w", err)
	}
	return nil
}

// GetProgress returns the latest progress snapshot. ok is false when none was reported.
func (s *Store) GetProgress(ctx context.Context, id string) (Progress, bool, error) {
	var (
		progress   Progress
		updatedRaw string
	)
	err := s.db.QueryRowScan(ctx,
		`SELECT phase, done, total, eta_seconds, message, updated_at FROM command_progress WHERE command_id = ?`,
		[]any{id},
		&progress.Phase, &progress.Done, &progress.Total, &progress.ETASeconds, &progress.Message, &updatedRaw,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Progress{}, false, nil
	}
	if err != nil {
		return Progress{}, false, fmt.Errorf("get progress: %w", err)
	}
	progress.UpdatedAt, _ = storage.ParseTime(updatedRaw)
	return progress, true, nil
}

// AppendLog adds one line to the command's execution log.
func (s *Store) AppendLog(ctx context.Context, entry LogEntry) error {
	ts := entry.Time
	if ts.IsZero() {
		ts = s.clock.Now()
	}
	if _, err := s.db.Exec(ctx,
		`INSERT INTO command_logs (command_id, ts, level, message, attrs_json) VALUES (?, ?, ?, ?, ?)`,
		entry.CommandID, storage.FormatTime(ts), strings.ToLower(entry.Level), entry.Message, nullableString(entry.AttrsJSON),
	); err != nil {
		return fmt.Errorf("append command log: %w", err)
	}
	return nil
}

// AppendCommandLog adapts slog records from the command log handler.
func (s *Store) AppendCommandLog(ctx context.Context, entry logging.CommandLogEntry) error {
	var attrs string
	if len(entry.Attrs) > 0 {
		data, err := json.Marshal(entry.Attrs)
		if err != nil {
			return fmt.Errorf("encode log attrs: %w", err)
		}
		attrs = string(data)
	}
	return s.AppendLog(ctx, LogEntry{
		CommandID: entry.CommandID,
		Time:      entry.Time,
		Level:     entry.Level,
		Message:   entry.Message,
		AttrsJSON: attrs,
	})
}

// Logs returns log lines for a command with id greater than afterID, oldest first.
func (s *Store) Logs(ctx context.Context, id string, afterID int64, limit int) ([]LogEntry, error) {
	query := `SELECT id, command_id, ts, level, message, attrs_json FROM command_logs
              WHERE command_id = ? AND id > ? ORDER BY id`
	args := []any{id, afterID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.SQL().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("command logs: %w", err)
	}
	defer rows.Close()

	var entries []LogEntry
	for rows.Next() {
		var (
			entry LogEntry
			tsRaw string
			attrs sql.NullString
		)
		if err := rows.Scan(&entry.ID, &entry.CommandID, &tsRaw, &entry.Level, &entry.Message, &attrs); err != nil {
			return nil, fmt.Errorf("scan command log: %w", err)
		}
		entry.Time, _ = storage.ParseTime(tsRaw)
		entry.AttrsJSON = attrs.String
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
