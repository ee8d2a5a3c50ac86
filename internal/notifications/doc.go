// Package notifications tells operators when a command needs them.
//
// The default implementation publishes to the ntfy topic configured in
// config.toml and degrades to a no-op when no topic is set. Each event type
// can be switched off individually. Workflow code depends only on the Service
// interface.
package notifications
