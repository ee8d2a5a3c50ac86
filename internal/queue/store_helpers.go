package queue

import (
	"database/sql"
	"strings"

	"launchlock/internal/storage"
)

const commandColumns = "id, seq, type, payload_json, status, priority, attempts, max_attempts, last_error, error_code, error_message, claimed_by, lease_expires_at, next_attempt_at, created_at, updated_at"

func scanCommand(scanner interface{ Scan(dest ...any) error }) (*Command, error) {
	var (
		cmd          Command
		typeStr      string
		statusStr    string
		lastError    sql.NullString
		errorCode    sql.NullString
		errorMessage sql.NullString
		claimedBy    sql.NullString
		leaseRaw     sql.NullString
		nextRaw      sql.NullString
		createdRaw   string
		updatedRaw   string
	)
	if err := scanner.Scan(
		&cmd.ID,
		&cmd.Seq,
		&typeStr,
		&cmd.PayloadJSON,
		&statusStr,
		&cmd.Priority,
		&cmd.Attempts,
		&cmd.MaxAttempts,
		&lastError,
		&errorCode,
		&errorMessage,
		&claimedBy,
		&leaseRaw,
		&nextRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	cmd.Type = Type(typeStr)
	cmd.Status = Status(statusStr)
	cmd.LastError = lastError.String
	cmd.ErrorCode = errorCode.String
	cmd.ErrorMessage = errorMessage.String
	cmd.ClaimedBy = claimedBy.String
	if t, err := storage.ParseNullTime(leaseRaw); err == nil {
		cmd.LeaseExpiresAt = t
	}
	if t, err := storage.ParseNullTime(nextRaw); err == nil {
		cmd.NextAttemptAt = t
	}
	if t, err := storage.ParseTime(createdRaw); err == nil {
		cmd.CreatedAt = t
	}
	if t, err := storage.ParseTime(updatedRaw); err == nil {
		cmd.UpdatedAt = t
	}
	return &cmd, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", count), ",")
}

func statusArgs(statuses []Status) []any {
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = string(status)
	}
	return args
}
