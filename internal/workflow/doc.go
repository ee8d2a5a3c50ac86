// Package workflow runs the command worker.
//
// The Manager polls the queue, atomically claims the next command, and feeds
// it into the stage handler registered for its type. While a handler runs, a
// heartbeat loop extends the claim lease and watches for operator
// cancellation. When the handler returns, the manager resolves the outcome
// into a terminal or retryable status, schedules backoff, and notifies
// operators about commands that need them.
//
// Handlers never write command status directly. They return classified
// errors (see internal/services) or settle the command through
// stage.RequireHuman, and this package is the only place that maps those
// results onto the queue state machine.
package workflow
