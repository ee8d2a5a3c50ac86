// Package daemon coordinates the long-running LaunchLock worker process.
//
// It ties the workflow manager and the housekeeping scheduler into a single
// lifecycle with flock-based locking, so that only one daemon runs per worker
// id on a host. Keep orchestration logic here: command semantics live in
// internal/handlers and queue state in internal/queue, while the daemon
// focuses on startup, shutdown, and status.
package daemon
