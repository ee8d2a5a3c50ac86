package locks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"launchlock/internal/clock"
	"launchlock/internal/storage"
)

// SQLiteLocker stores locks in the resource_locks table.
type SQLiteLocker struct {
	db    *storage.DB
	clock clock.Clock
}

// NewSQLiteLocker binds a locker to an open database.
func NewSQLiteLocker(db *storage.DB, clk clock.Clock) *SQLiteLocker {
	return &SQLiteLocker{db: db, clock: clock.OrReal(clk)}
}

func (l *SQLiteLocker) Acquire(ctx context.Context, key Key, owner string, ttl time.Duration) error {
	now := l.clock.Now()
	res, err := l.db.Exec(ctx,
		`INSERT INTO resource_locks (entity_type, entity_id, owner, expires_at, acquired_at)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT(entity_type, entity_id) DO UPDATE SET
             owner = excluded.owner,
             expires_at = excluded.expires_at,
             acquired_at = CASE WHEN resource_locks.owner = excluded.owner THEN resource_locks.acquired_at ELSE excluded.acquired_at END
         WHERE resource_locks.owner = excluded.owner OR resource_locks.expires_at <= ?`,
		key.EntityType, key.EntityID, owner, storage.FormatTime(now.Add(ttl)), storage.FormatTime(now),
		storage.FormatTime(now),
	)
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("acquire lock %s: %w", key, err)
	} else if n == 1 {
		return nil
	}
	holder, _ := l.Holder(ctx, key)
	return lockedFailure(key, holder)
}

func (l *SQLiteLocker) Release(ctx context.Context, key Key, owner string) error {
	if _, err := l.db.Exec(ctx,
		`DELETE FROM resource_locks WHERE entity_type = ? AND entity_id = ? AND owner = ?`,
		key.EntityType, key.EntityID, owner,
	); err != nil {
		return fmt.Errorf("release lock %s: %w", key, err)
	}
	return nil
}

func (l *SQLiteLocker) Sweep(ctx context.Context) (int64, error) {
	res, err := l.db.Exec(ctx, `DELETE FROM resource_locks WHERE expires_at <= ?`, storage.FormatTime(l.clock.Now()))
	if err != nil {
		return 0, fmt.Errorf("sweep locks: %w", err)
	}
	return res.RowsAffected()
}

// Holder returns the current owner of key, or "" when it is free or expired.
func (l *SQLiteLocker) Holder(ctx context.Context, key Key) (string, error) {
	var owner string
	err := l.db.QueryRowScan(ctx,
		`SELECT owner FROM resource_locks WHERE entity_type = ? AND entity_id = ? AND expires_at > ?`,
		[]any{key.EntityType, key.EntityID, storage.FormatTime(l.clock.Now())}, &owner,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("lock holder %s: %w", key, err)
	}
	return owner, nil
}
