package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"launchlock/internal/clock"
	"launchlock/internal/storage"
)

// Store manages command persistence.
type Store struct {
	db    *storage.DB
	clock clock.Clock
}

// NewStore binds a Store to an open database.
func NewStore(db *storage.DB, clk clock.Clock) *Store {
	return &Store{db: db, clock: clock.OrReal(clk)}
}

// Enqueue validates and persists a new pending command, returning its id.
func (s *Store) Enqueue(ctx context.Context, payload Payload, opts EnqueueOptions) (string, error) {
	if err := ValidatePayload(payload); err != nil {
		return "", err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("%w: encode: %w", ErrInvalidPayload, err)
	}

	id := strings.TrimSpace(opts.ID)
	if id == "" {
		id = uuid.NewString()
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	now := storage.FormatTime(s.clock.Now())

	err = s.db.Tx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO commands (id, seq, type, payload_json, status, priority, attempts, max_attempts, created_at, updated_at)
             VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM commands), ?, ?, ?, ?, 0, ?, ?, ?)
             ON CONFLICT(id) DO NOTHING`,
			id, string(payload.CommandType()), string(data), string(StatusPending), opts.Priority, maxAttempts, now, now,
		)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("enqueue command: %w", err)
	}
	return id, nil
}

// Get fetches a command by id.
func (s *Store) Get(ctx context.Context, id string) (*Command, error) {
	row := s.db.SQL().QueryRowContext(ctx, `SELECT `+commandColumns+` FROM commands WHERE id = ?`, id)
	cmd, err := scanCommand(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get command: %w", err)
	}
	return cmd, nil
}

// List returns commands in creation order.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]*Command, error) {
	var (
		clauses []string
		args    []any
	)
	if len(filter.Statuses) > 0 {
		clauses = append(clauses, "status IN ("+makePlaceholders(len(filter.Statuses))+")")
		args = append(args, statusArgs(filter.Statuses)...)
	}
	if filter.Type != "" {
		clauses = append(clauses, "type = ?")
		args = append(args, string(filter.Type))
	}
	query := `SELECT ` + commandColumns + ` FROM commands`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY seq"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.SQL().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list commands: %w", err)
	}
	defer rows.Close()

	var commands []*Command
	for rows.Next() {
		cmd, err := scanCommand(rows)
		if err != nil {
			return nil, fmt.Errorf("scan command: %w", err)
		}
		commands = append(commands, cmd)
	}
	return commands, rows.Err()
}

// Stats returns a count of commands grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.SQL().QueryContext(ctx, `SELECT status, COUNT(1) FROM commands GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("command stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}
