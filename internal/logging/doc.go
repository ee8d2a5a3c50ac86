// Package logging builds the structured slog loggers used by the LaunchLock
// worker and CLI.
//
// It provides a console handler tuned for operators, a JSON handler for log
// shipping, context helpers that stamp command identifiers onto every record,
// a fan-out handler for duplicating output, and the CommandLog handler that
// persists records carrying a command_id into the command's append-only log.
//
// Use the Field* constants instead of ad-hoc keys so log processors and the
// CLI can rely on a stable vocabulary.
package logging
