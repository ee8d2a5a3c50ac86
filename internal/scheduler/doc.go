// Package scheduler runs periodic housekeeping for the worker daemon.
//
// The Housekeeper registers a robfig/cron entry that returns commands with
// expired claim leases to the queue and sweeps expired resource locks, so a
// crashed worker's claims and locks recover even while no worker is polling.
package scheduler
