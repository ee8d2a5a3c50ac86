package logging

import (
	"context"
	"log/slog"

	"launchlock/internal/services"
)

// Standardized structured logging keys.
const (
	FieldComponent     = "component"
	FieldCommandID     = "command_id"
	FieldCommandType   = "command_type"
	FieldAttempt       = "attempt"
	FieldCorrelationID = "correlation_id"
	FieldEventType     = "event_type"
	FieldErrorCode     = "error_code"
	FieldErrorKind     = "error_kind"
	FieldErrorHint     = "error_hint"
	FieldDecisionType  = "decision_type"
	FieldWorkerID      = "worker_id"
	// FieldAlert flags warnings or anomalies that should stand out in structured logs.
	FieldAlert = "alert"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if id, ok := services.CommandIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCommandID, id))
	}
	if typ, ok := services.CommandTypeFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCommandType, typ))
	}
	if attempt, ok := services.AttemptFromContext(ctx); ok {
		fields = append(fields, slog.Int(FieldAttempt, attempt))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}
