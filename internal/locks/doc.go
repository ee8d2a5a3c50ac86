// Package locks serializes mutations of shared marketplace entities.
//
// A lock is keyed by (entity type, entity id) and owned by a command id. It
// expires after a TTL so a crashed worker cannot hold it forever, and it is
// re-entrant for the same owner so a retried command reacquires its own lock.
// Two backends exist: SQLite rows in the command database and Redis keys for
// deployments where several hosts share one queue.
package locks
