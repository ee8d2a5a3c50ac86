// Package queue persists commands in SQLite and drives their lifecycle.
//
// A command is the durable record of one intent to change marketplace state
// (publish, price update, withdraw). The Store enqueues validated payloads,
// hands out work through an atomic compare-and-set claim, enforces the legal
// status graph on every transition, extends and reclaims leases, and records
// progress and the append-only execution log.
//
// Commands are never deleted: a finished command is the audit record of what
// the engine did. Treat this package as the single source of truth for
// command semantics; new statuses or columns go through schema.sql in the
// storage package and a schema version bump.
package queue
