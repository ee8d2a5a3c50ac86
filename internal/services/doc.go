// Package services defines shared utilities consumed by the command handlers
// and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp command IDs, command types, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper and the coded Failure type
//     that translate failures into consistent command statuses (retryable,
//     fatal, or human_required).
//
// Use these helpers when wiring new handler logic so operational behaviour
// (error handling, observability, retries) stays uniform across commands.
package services
