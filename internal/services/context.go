package services

import "context"

type contextKey string

const (
	commandIDKey   contextKey = "command_id"
	commandTypeKey contextKey = "command_type"
	attemptKey     contextKey = "attempt"
	requestIDKey   contextKey = "request_id"
)

// WithCommandID annotates context with the command identifier.
func WithCommandID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, commandIDKey, id)
}

// CommandIDFromContext extracts the command identifier if present.
func CommandIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(commandIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithCommandType annotates context with the command type.
func WithCommandType(ctx context.Context, commandType string) context.Context {
	if commandType == "" {
		return ctx
	}
	return context.WithValue(ctx, commandTypeKey, commandType)
}

// CommandTypeFromContext returns the command type if present.
func CommandTypeFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(commandTypeKey)
	if str, ok := v.(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithAttempt annotates context with the execution attempt number.
func WithAttempt(ctx context.Context, attempt int) context.Context {
	if attempt <= 0 {
		return ctx
	}
	return context.WithValue(ctx, attemptKey, attempt)
}

// AttemptFromContext returns the execution attempt number if present.
func AttemptFromContext(ctx context.Context) (int, bool) {
	v := ctx.Value(attemptKey)
	switch val := v.(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	default:
		return 0, false
	}
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
