// Package handlers implements the command handlers the worker dispatches to:
// publish (dry run, real, and approved from a dry run), price update, and
// withdraw.
//
// Every marketplace mutation happens under a resource lock with a per-call
// timeout. Real publishes write an intent row before the create call so a
// re-execution never creates a second listing: a row with an external id
// skips straight to read-back, and a row still publishing without one is
// escalated to an operator as PUBLISH_OUTCOME_UNKNOWN.
package handlers
