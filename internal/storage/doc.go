// Package storage opens the LaunchLock SQLite database and owns its schema.
//
// Every persisted entity (commands, progress, logs, listings, drafts, source
// products, photo hashes, resource locks) lives in a single database file
// under the configured data directory. The package applies connection pragmas
// (WAL, busy timeout, foreign keys, immediate write transactions), creates the
// embedded schema on first use, refuses to open databases stamped with a
// different schema version, and exposes busy-retry helpers that the queue,
// listing, catalog, and lock stores share.
package storage
